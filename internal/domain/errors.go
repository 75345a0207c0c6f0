package domain

import "errors"

// Enable/Disable error taxonomy. Callers wrap these with operation
// context and the GUI boundary maps them onto ErrorCode values.
var (
	// ErrDeviceUnavailable means the selected microphone or the sound
	// server could not be reached.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrSystemRejected means the sound server refused to create or
	// configure the virtual device.
	ErrSystemRejected = errors.New("system rejected virtual device")

	// ErrSessionLost means the hotkey backend stopped delivering events
	// and cannot recover without a new Enable.
	ErrSessionLost = errors.New("hotkey session lost")

	// ErrBackendUnavailable means no hotkey backend could be started in
	// this desktop session.
	ErrBackendUnavailable = errors.New("hotkey backend unavailable")
)
