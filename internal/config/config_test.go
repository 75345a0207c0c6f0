package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PTT_HOTKEY", "PTT_HOTKEY_BACKEND", "PTT_REPEAT_FILTER_MS",
		"PTT_RELEASE_DEBOUNCE_MS", "PTT_CAPTURE_BACKEND", "PTT_FFMPEG_COMMAND",
		"PTT_AUDIO_INPUT_FORMAT", "PTT_SAMPLE_RATE", "PTT_CHANNELS",
		"PTT_FRAME_MS", "PTT_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Hotkey.Combo != "insert" || cfg.Hotkey.Backend != "auto" {
		t.Fatalf("unexpected hotkey defaults: %+v", cfg.Hotkey)
	}
	if cfg.Hotkey.RepeatFilter != 12*time.Millisecond {
		t.Fatalf("unexpected repeat filter default: %s", cfg.Hotkey.RepeatFilter)
	}
	if cfg.Gate.ReleaseDebounce != 30*time.Millisecond {
		t.Fatalf("unexpected release debounce default: %s", cfg.Gate.ReleaseDebounce)
	}
	if cfg.Audio.CaptureBackend != "ffmpeg" || cfg.Audio.RecorderCommand != "ffmpeg" || cfg.Audio.InputFormat != "pulse" {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 1 || cfg.Audio.FrameDuration != 10*time.Millisecond {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Pipe.Dir == "" {
		t.Fatal("expected a pipe dir fallback")
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("unexpected log level default: %q", cfg.Log.Level)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	t.Setenv("PTT_HOTKEY", "ctrl+alt+space")
	t.Setenv("PTT_HOTKEY_BACKEND", "Portal")
	t.Setenv("PTT_REPEAT_FILTER_MS", "20")
	t.Setenv("PTT_RELEASE_DEBOUNCE_MS", "50")
	t.Setenv("PTT_CAPTURE_BACKEND", "portaudio")
	t.Setenv("PTT_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("PTT_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("PTT_SAMPLE_RATE", "44100")
	t.Setenv("PTT_CHANNELS", "2")
	t.Setenv("PTT_FRAME_MS", "20")
	t.Setenv("PTT_PIPE_DIR", "/tmp/ptt-test")
	t.Setenv("PTT_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Hotkey.Combo != "ctrl+alt+space" || cfg.Hotkey.Backend != "portal" {
		t.Fatalf("unexpected hotkey config: %+v", cfg.Hotkey)
	}
	if cfg.Hotkey.RepeatFilter != 20*time.Millisecond {
		t.Fatalf("unexpected repeat filter: %s", cfg.Hotkey.RepeatFilter)
	}
	if cfg.Gate.ReleaseDebounce != 50*time.Millisecond {
		t.Fatalf("unexpected release debounce: %s", cfg.Gate.ReleaseDebounce)
	}
	if cfg.Audio.CaptureBackend != "portaudio" || cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 44100 || cfg.Audio.Channels != 2 || cfg.Audio.FrameDuration != 20*time.Millisecond {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Pipe.Dir != "/tmp/ptt-test" {
		t.Fatalf("unexpected pipe dir: %q", cfg.Pipe.Dir)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log level: %q", cfg.Log.Level)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("PTT_SAMPLE_RATE", "bad")
	t.Setenv("PTT_CHANNELS", "-1")
	t.Setenv("PTT_FRAME_MS", "4000")
	t.Setenv("PTT_RELEASE_DEBOUNCE_MS", "-5")
	t.Setenv("PTT_REPEAT_FILTER_MS", "900")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Audio.SampleRate != 48000 {
		t.Fatalf("expected default sample rate, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Fatalf("expected default channels, got %d", cfg.Audio.Channels)
	}
	if cfg.Audio.FrameDuration != 10*time.Millisecond {
		t.Fatalf("expected default frame duration, got %s", cfg.Audio.FrameDuration)
	}
	if cfg.Gate.ReleaseDebounce != 30*time.Millisecond {
		t.Fatalf("expected default release debounce, got %s", cfg.Gate.ReleaseDebounce)
	}
	if cfg.Hotkey.RepeatFilter != 12*time.Millisecond {
		t.Fatalf("expected default repeat filter, got %s", cfg.Hotkey.RepeatFilter)
	}
}
