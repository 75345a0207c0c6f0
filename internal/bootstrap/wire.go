package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"pushtotalk/internal/audio"
	"pushtotalk/internal/config"
	"pushtotalk/internal/domain"
	"pushtotalk/internal/ports"
	"pushtotalk/internal/providers/portal"
	"pushtotalk/internal/providers/x11"
	"pushtotalk/internal/pulse"
	"pushtotalk/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.Controller
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink, log *slog.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	kind, err := pickHotkeyBackend(
		cfg.Hotkey.Backend,
		os.Getenv("WAYLAND_DISPLAY"),
		os.Getenv("XDG_SESSION_TYPE"),
		os.Getenv("DISPLAY"),
	)
	if err != nil {
		return Services{}, err
	}

	hotkeys, err := buildHotkeySource(kind, cfg, eventSink, log)
	if err != nil {
		return Services{}, err
	}

	capture, err := buildCapture(cfg)
	if err != nil {
		return Services{}, err
	}

	controller := usecase.NewController(
		capture,
		pulse.NewManager(log, cfg.Pipe.Dir),
		hotkeys,
		eventSink,
		log,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
			},
			FrameDuration:   cfg.Audio.FrameDuration,
			ReleaseDebounce: cfg.Gate.ReleaseDebounce,
		},
	)

	return Services{Controller: controller, Config: cfg}, nil
}

// pickHotkeyBackend resolves which hotkey mechanism to use, honoring an
// explicit override before sniffing the session environment.
func pickHotkeyBackend(override, waylandDisplay, sessionType, x11Display string) (domain.BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(override)) {
	case "", "auto":
	case "x11", "x11grab":
		return domain.BackendKindX11Grab, nil
	case "portal", "wayland":
		return domain.BackendKindPortal, nil
	default:
		return "", fmt.Errorf("unknown hotkey backend %q", override)
	}

	if waylandDisplay != "" || strings.EqualFold(sessionType, "wayland") {
		return domain.BackendKindPortal, nil
	}
	if x11Display != "" {
		return domain.BackendKindX11Grab, nil
	}
	return "", fmt.Errorf("%w: neither a wayland nor an x11 session was detected", domain.ErrBackendUnavailable)
}

func buildHotkeySource(kind domain.BackendKind, cfg config.Config, eventSink ports.EventSink, log *slog.Logger) (ports.HotkeySource, error) {
	switch kind {
	case domain.BackendKindPortal:
		return portal.NewSource(portal.Config{
			Combo:            cfg.Hotkey.Combo,
			OnTriggerChanged: eventSink.HotkeyChanged,
		}, log), nil
	case domain.BackendKindX11Grab:
		return x11.NewSource(x11.Config{
			Combo:        cfg.Hotkey.Combo,
			RepeatFilter: cfg.Hotkey.RepeatFilter,
		}, log)
	}
	return nil, fmt.Errorf("%w: unsupported hotkey backend %q", domain.ErrBackendUnavailable, kind)
}

func buildCapture(cfg config.Config) (ports.AudioCapture, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Audio.CaptureBackend)) {
	case "", "ffmpeg":
		return audio.NewFFmpegCapture(cfg.Audio.RecorderCommand), nil
	case "portaudio":
		return audio.NewPortaudioCapture(), nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Audio.CaptureBackend)
	}
}
