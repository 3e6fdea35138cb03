package audioio

import "errors"

// Sentinel errors for capture lifecycle violations.
var (
	// ErrDeviceUnavailable is returned when the platform denies or lacks
	// a microphone device.
	ErrDeviceUnavailable = errors.New("audioio: microphone device unavailable")

	// ErrAlreadyCapturing is returned when Start is called while a capture
	// is active. The existing capture is not disturbed.
	ErrAlreadyCapturing = errors.New("audioio: capture already active")

	// ErrNoAccess is returned when Start is called before RequestAccess.
	ErrNoAccess = errors.New("audioio: device access not granted")

	// ErrInvalidState is returned when Pause or Resume is requested from a
	// state that does not permit it.
	ErrInvalidState = errors.New("audioio: operation not valid in current state")

	// ErrClosed is returned when the capture has been closed.
	ErrClosed = errors.New("audioio: capture closed")
)
