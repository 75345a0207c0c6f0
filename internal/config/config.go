package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration for the push-to-talk engine.
type Config struct {
	Hotkey HotkeyConfig
	Gate   GateConfig
	Audio  AudioConfig
	Pipe   PipeConfig
	Log    LogConfig
}

type HotkeyConfig struct {
	// Combo is the X11 key combination, e.g. "insert" or "ctrl+alt+space".
	// The portal backend ignores it; the compositor owns the binding there.
	Combo        string
	Backend      string
	RepeatFilter time.Duration
}

type GateConfig struct {
	ReleaseDebounce time.Duration
}

type AudioConfig struct {
	CaptureBackend  string
	RecorderCommand string
	InputFormat     string
	SampleRate      int
	Channels        int
	FrameDuration   time.Duration
}

type PipeConfig struct {
	Dir string
}

type LogConfig struct {
	Level string
}

// Load resolves configuration from a .env file (if present), environment
// variables and sensible defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Hotkey: HotkeyConfig{
			Combo:        envOrDefault("PTT_HOTKEY", "insert"),
			Backend:      strings.ToLower(envOrDefault("PTT_HOTKEY_BACKEND", "auto")),
			RepeatFilter: time.Duration(envOrDefaultInt("PTT_REPEAT_FILTER_MS", 12)) * time.Millisecond,
		},
		Gate: GateConfig{
			ReleaseDebounce: time.Duration(envOrDefaultInt("PTT_RELEASE_DEBOUNCE_MS", 30)) * time.Millisecond,
		},
		Audio: AudioConfig{
			CaptureBackend:  strings.ToLower(envOrDefault("PTT_CAPTURE_BACKEND", "ffmpeg")),
			RecorderCommand: envOrDefault("PTT_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("PTT_AUDIO_INPUT_FORMAT", "pulse"),
			SampleRate:      envOrDefaultInt("PTT_SAMPLE_RATE", 48000),
			Channels:        envOrDefaultInt("PTT_CHANNELS", 1),
			FrameDuration:   time.Duration(envOrDefaultInt("PTT_FRAME_MS", 10)) * time.Millisecond,
		},
		Pipe: PipeConfig{
			Dir: firstNonEmpty(os.Getenv("PTT_PIPE_DIR"), os.Getenv("XDG_RUNTIME_DIR"), os.TempDir()),
		},
		Log: LogConfig{
			Level: strings.ToLower(envOrDefault("PTT_LOG_LEVEL", "info")),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.FrameDuration < 5*time.Millisecond || cfg.Audio.FrameDuration > 100*time.Millisecond {
		cfg.Audio.FrameDuration = 10 * time.Millisecond
	}
	if cfg.Gate.ReleaseDebounce < 0 || cfg.Gate.ReleaseDebounce > time.Second {
		cfg.Gate.ReleaseDebounce = 30 * time.Millisecond
	}
	if cfg.Hotkey.RepeatFilter < 0 || cfg.Hotkey.RepeatFilter > 100*time.Millisecond {
		cfg.Hotkey.RepeatFilter = 12 * time.Millisecond
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
