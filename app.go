package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"pushtotalk/internal/bootstrap"
	"pushtotalk/internal/config"
	"pushtotalk/internal/domain"
	"pushtotalk/internal/pulse"
	"pushtotalk/internal/usecase"
)

const (
	eventGate    = "ptt:gate"
	eventBackend = "ptt:backend"
	eventHotkey  = "ptt:hotkey"
	eventError   = "ptt:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context
	log *slog.Logger

	controller *usecase.Controller
	cfg        config.Config
	bootErr    error
}

func NewApp(log *slog.Logger) *App {
	return &App{log: log}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a.log)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.BackendChanged(a.controller.Status().Backend)
	if desc := a.controller.HotkeyDescription(); desc != "" {
		a.HotkeyChanged(desc)
	}
}

func (a *App) shutdown(ctx context.Context) {
	if a.controller == nil {
		return
	}
	if err := a.controller.Disable(); err != nil {
		a.log.Warn("shutdown left the session dirty", "error", err)
	}
}

// Enable builds the virtual microphone and arms the hotkey for the
// given capture device.
func (a *App) Enable(deviceID string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Enable(a.ctx, deviceID); err != nil {
		a.SessionError(errorCodeFor(err), err.Error())
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// Disable tears the session down and removes the virtual microphone.
func (a *App) Disable() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Disable(); err != nil {
		a.SessionError(domain.ErrorCodeShutdown, err.Error())
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// GetStatus returns the current engine status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{
			Gate:    domain.GateStateMuted,
			Backend: domain.BackendStatus{State: domain.BackendStateNotStarted},
		}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.controller.Status()
}

// ListDevices enumerates capture devices eligible as the real microphone.
func (a *App) ListDevices() ([]domain.MicrophoneDevice, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	devices, err := a.controller.ListDevices(a.ctx)
	if err != nil {
		a.SessionError(domain.ErrorCodeDeviceUnavailable, err.Error())
		return nil, err
	}
	return devices, nil
}

// HotkeyDescription returns the human-readable trigger, or an empty
// string while the portal has not reported one yet.
func (a *App) HotkeyDescription() string {
	if a.controller == nil {
		return ""
	}
	return a.controller.HotkeyDescription()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"hotkey":         a.controller.HotkeyDescription(),
		"hotkeyBackend":  string(a.controller.Status().Backend.Kind),
		"captureBackend": a.cfg.Audio.CaptureBackend,
		"sampleRate":     strconv.Itoa(a.cfg.Audio.SampleRate),
		"channels":       strconv.Itoa(a.cfg.Audio.Channels),
		"virtualMic":     pulse.SourceDescription,
		"logLevel":       a.cfg.Log.Level,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// GateChanged emits gate transitions to the frontend.
func (a *App) GateChanged(state domain.GateState, reason domain.GateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventGate, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": gateReasonMessage(state, reason),
	})
}

// BackendChanged emits hotkey backend lifecycle updates.
func (a *App) BackendChanged(status domain.BackendStatus) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventBackend, map[string]string{
		"kind":   string(status.Kind),
		"state":  string(status.State),
		"detail": status.Detail,
	})
}

// HotkeyChanged emits the human-readable trigger description.
func (a *App) HotkeyChanged(description string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventHotkey, map[string]string{
		"description": description,
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func errorCodeFor(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, domain.ErrSystemRejected):
		return domain.ErrorCodeDeviceRejected
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return domain.ErrorCodeDeviceUnavailable
	case errors.Is(err, domain.ErrSessionLost):
		return domain.ErrorCodeSessionLost
	case errors.Is(err, domain.ErrBackendUnavailable):
		return domain.ErrorCodeHotkey
	default:
		return domain.ErrorCodeStartup
	}
}

func gateReasonMessage(state domain.GateState, reason domain.GateReason) string {
	if state == domain.GateStatePassthrough {
		return "Live"
	}
	switch reason {
	case domain.GateReasonReleaseSettled:
		return "Muted"
	case domain.GateReasonBackendDisabled:
		return "Muted (hotkey session ended)"
	case domain.GateReasonBridgeStopped:
		return "Muted (session stopped)"
	default:
		return "Muted"
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDeviceUnavailable:
		return "Microphone unavailable"
	case domain.ErrorCodeDeviceRejected:
		return "Sound server rejected the virtual microphone"
	case domain.ErrorCodeHotkey:
		return "Hotkey setup failed"
	case domain.ErrorCodeSessionLost:
		return "Hotkey session lost"
	case domain.ErrorCodeCapture:
		return "Audio capture issue"
	case domain.ErrorCodeShutdown:
		return "Shutdown issue"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
