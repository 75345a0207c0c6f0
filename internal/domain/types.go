package domain

import "time"

// GateState models whether microphone audio reaches the virtual device.
type GateState string

const (
	GateStateMuted       GateState = "muted"
	GateStatePassthrough GateState = "passthrough"
)

// GateReason provides a structured reason for gate transitions.
type GateReason string

const (
	GateReasonKeyPressed      GateReason = "key_pressed"
	GateReasonReleaseSettled  GateReason = "release_settled"
	GateReasonBackendDisabled GateReason = "backend_disabled"
	GateReasonBridgeStopped   GateReason = "bridge_stopped"
)

// KeyEdge is the direction of a hotkey transition.
type KeyEdge string

const (
	KeyEdgePressed  KeyEdge = "pressed"
	KeyEdgeReleased KeyEdge = "released"
	// KeyEdgeDisabled is terminal. It is synthesized when the hotkey
	// backend stops delivering events and is never followed by another edge.
	KeyEdgeDisabled KeyEdge = "disabled"
)

// KeyTransition is a normalized hotkey event. At carries a monotonic
// clock reading taken when the transition was observed.
type KeyTransition struct {
	Edge KeyEdge
	At   time.Time
}

// BackendKind identifies which hotkey mechanism is in use.
type BackendKind string

const (
	BackendKindX11Grab BackendKind = "x11grab"
	BackendKindPortal  BackendKind = "portal"
)

// BackendState models the hotkey backend lifecycle.
type BackendState string

const (
	BackendStateNotStarted BackendState = "not_started"
	BackendStateActive     BackendState = "active"
	BackendStateLost       BackendState = "lost"
)

// BackendStatus summarizes the hotkey backend for the UI.
type BackendStatus struct {
	Kind   BackendKind  `json:"kind"`
	State  BackendState `json:"state"`
	Detail string       `json:"detail,omitempty"`
}

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodeDeviceUnavailable ErrorCode = "device_unavailable"
	ErrorCodeDeviceRejected    ErrorCode = "device_rejected"
	ErrorCodeHotkey            ErrorCode = "hotkey"
	ErrorCodeSessionLost       ErrorCode = "session_lost"
	ErrorCodeCapture           ErrorCode = "capture"
	ErrorCodeShutdown          ErrorCode = "shutdown"
)

// MicrophoneDevice is a selectable physical capture source.
type MicrophoneDevice struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// BridgeStats counts frames moved by the audio bridge since enable.
type BridgeStats struct {
	FramesRead     uint64 `json:"framesRead"`
	FramesWritten  uint64 `json:"framesWritten"`
	FramesSilenced uint64 `json:"framesSilenced"`
}

// Status summarizes the current runtime status.
type Status struct {
	Enabled bool              `json:"enabled"`
	Gate    GateState         `json:"gate"`
	Backend BackendStatus     `json:"backend"`
	Device  *MicrophoneDevice `json:"device,omitempty"`
	Bridge  BridgeStats       `json:"bridge"`
	Hotkey  string            `json:"hotkey,omitempty"`
	Message string            `json:"message,omitempty"`
}
