package bootstrap

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"pushtotalk/internal/domain"
)

func TestPickHotkeyBackendHonorsOverride(t *testing.T) {
	t.Parallel()

	kind, err := pickHotkeyBackend("x11", "wayland-0", "wayland", "")
	if err != nil || kind != domain.BackendKindX11Grab {
		t.Fatalf("expected the x11 override to win, got %q err=%v", kind, err)
	}

	kind, err = pickHotkeyBackend("portal", "", "", ":0")
	if err != nil || kind != domain.BackendKindPortal {
		t.Fatalf("expected the portal override to win, got %q err=%v", kind, err)
	}

	if _, err := pickHotkeyBackend("synergy", "", "", ":0"); err == nil {
		t.Fatalf("expected an unknown override to fail")
	}
}

func TestPickHotkeyBackendSniffsSession(t *testing.T) {
	t.Parallel()

	kind, err := pickHotkeyBackend("auto", "wayland-0", "", ":0")
	if err != nil || kind != domain.BackendKindPortal {
		t.Fatalf("expected wayland display to pick the portal, got %q err=%v", kind, err)
	}

	kind, err = pickHotkeyBackend("", "", "Wayland", "")
	if err != nil || kind != domain.BackendKindPortal {
		t.Fatalf("expected session type to pick the portal, got %q err=%v", kind, err)
	}

	kind, err = pickHotkeyBackend("", "", "x11", ":0")
	if err != nil || kind != domain.BackendKindX11Grab {
		t.Fatalf("expected the x server display to pick x11, got %q err=%v", kind, err)
	}

	_, err = pickHotkeyBackend("", "", "", "")
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected no session to be a backend error, got %v", err)
	}
}

func TestBuildAssemblesX11Runtime(t *testing.T) {
	clearRuntimeEnv(t)
	t.Setenv("PTT_HOTKEY_BACKEND", "x11")
	t.Setenv("DISPLAY", ":0")

	services, err := Build(noopEventSink{}, testLogger())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil {
		t.Fatalf("expected a controller")
	}
	if services.Controller.HotkeyDescription() != "insert" {
		t.Fatalf("unexpected hotkey description: %q", services.Controller.HotkeyDescription())
	}
}

func TestBuildAssemblesPortalRuntime(t *testing.T) {
	clearRuntimeEnv(t)
	t.Setenv("WAYLAND_DISPLAY", "wayland-0")
	t.Setenv("PTT_CAPTURE_BACKEND", "portaudio")

	services, err := Build(noopEventSink{}, testLogger())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil {
		t.Fatalf("expected a controller")
	}
}

func TestBuildRejectsUnknownCaptureBackend(t *testing.T) {
	clearRuntimeEnv(t)
	t.Setenv("DISPLAY", ":0")
	t.Setenv("PTT_CAPTURE_BACKEND", "jack")

	if _, err := Build(noopEventSink{}, testLogger()); err == nil {
		t.Fatalf("expected an unknown capture backend to fail")
	}
}

func TestBuildFailsWithoutAnySession(t *testing.T) {
	clearRuntimeEnv(t)

	_, err := Build(noopEventSink{}, testLogger())
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected a backend error, got %v", err)
	}
}

func TestBuildRejectsUnparsableCombo(t *testing.T) {
	clearRuntimeEnv(t)
	t.Setenv("DISPLAY", ":0")
	t.Setenv("PTT_HOTKEY", "ctrl+")

	if _, err := Build(noopEventSink{}, testLogger()); err == nil {
		t.Fatalf("expected a bad combo to fail the build")
	}
}

func clearRuntimeEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WAYLAND_DISPLAY", "XDG_SESSION_TYPE", "DISPLAY",
		"PTT_HOTKEY", "PTT_HOTKEY_BACKEND", "PTT_CAPTURE_BACKEND",
	} {
		t.Setenv(key, "")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noopEventSink struct{}

func (noopEventSink) GateChanged(_ domain.GateState, _ domain.GateReason) {}
func (noopEventSink) BackendChanged(_ domain.BackendStatus)               {}
func (noopEventSink) HotkeyChanged(_ string)                              {}
func (noopEventSink) SessionError(_ domain.ErrorCode, _ string)           {}
