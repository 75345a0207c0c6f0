package ports

import (
	"context"
	"io"

	"pushtotalk/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
// FragmentBytes, when set, asks the backend to deliver audio in chunks
// of that size so capture latency tracks the bridge's frame duration.
type AudioConfig struct {
	SampleRate    int
	Channels      int
	InputFormat   string
	InputDevice   string
	FragmentBytes int
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// HotkeySource delivers raw hotkey edges from one backend session.
// The channel closes when the session ends for any reason; Err reports
// the terminal error afterwards, nil for a clean Stop. Start on a
// stopped or failed source begins a fresh session and resets Err;
// Stop on a dead session is a no-op.
type HotkeySource interface {
	Start(ctx context.Context) (<-chan domain.KeyEdge, error)
	Stop() error
	Err() error
	Kind() domain.BackendKind
	Description() string
}

// VirtualMicConfig describes the virtual source to create.
type VirtualMicConfig struct {
	SampleRate int
	Channels   int
}

// VirtualMic is a live virtual source. WriteFrame pushes one frame of
// s16le PCM into it; Close destroys the source and is idempotent.
type VirtualMic interface {
	WriteFrame(p []byte) error
	Close() error
}

// DeviceManager enumerates capture sources and owns the virtual source.
// At most one virtual source exists per process.
type DeviceManager interface {
	ListSources(ctx context.Context) ([]domain.MicrophoneDevice, error)
	CreateVirtualMic(ctx context.Context, cfg VirtualMicConfig) (VirtualMic, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	GateChanged(state domain.GateState, reason domain.GateReason)
	BackendChanged(status domain.BackendStatus)
	HotkeyChanged(description string)
	SessionError(code domain.ErrorCode, detail string)
}
