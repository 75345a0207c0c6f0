package main

import (
	"errors"
	"fmt"
	"testing"

	"pushtotalk/internal/domain"
)

func TestGateReasonMessage(t *testing.T) {
	t.Parallel()

	if got := gateReasonMessage(domain.GateStatePassthrough, domain.GateReasonKeyPressed); got != "Live" {
		t.Fatalf("unexpected passthrough message: %q", got)
	}

	cases := map[domain.GateReason]string{
		domain.GateReasonReleaseSettled:  "Muted",
		domain.GateReasonBackendDisabled: "Muted (hotkey session ended)",
		domain.GateReasonBridgeStopped:   "Muted (session stopped)",
	}
	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := gateReasonMessage(domain.GateStateMuted, reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := gateReasonMessage(domain.GateStateMuted, "unknown"); got != "Muted" {
		t.Fatalf("expected muted fallback, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:           "Startup failed",
		domain.ErrorCodeDeviceUnavailable: "Microphone unavailable",
		domain.ErrorCodeDeviceRejected:    "Sound server rejected the virtual microphone",
		domain.ErrorCodeHotkey:            "Hotkey setup failed",
		domain.ErrorCodeSessionLost:       "Hotkey session lost",
		domain.ErrorCodeCapture:           "Audio capture issue",
		domain.ErrorCodeShutdown:          "Shutdown issue",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestErrorCodeFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want domain.ErrorCode
	}{
		{fmt.Errorf("load: %w", domain.ErrSystemRejected), domain.ErrorCodeDeviceRejected},
		{fmt.Errorf("lookup: %w", domain.ErrDeviceUnavailable), domain.ErrorCodeDeviceUnavailable},
		{fmt.Errorf("portal: %w", domain.ErrSessionLost), domain.ErrorCodeSessionLost},
		{fmt.Errorf("sniff: %w", domain.ErrBackendUnavailable), domain.ErrorCodeHotkey},
		{errors.New("anything else"), domain.ErrorCodeStartup},
	}
	for _, tc := range cases {
		if got := errorCodeFor(tc.err); got != tc.want {
			t.Fatalf("errorCodeFor(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetStatus()
	if status.Enabled || status.Gate != domain.GateStateMuted {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Backend.State != domain.BackendStateNotStarted {
		t.Fatalf("unexpected backend state: %+v", status.Backend)
	}

	app.bootErr = errors.New("boot")
	status = app.GetStatus()
	if status.Message != "boot" {
		t.Fatalf("unexpected boot status: %+v", status)
	}
}
