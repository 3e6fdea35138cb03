package audioio

import (
	"context"
	"io"
)

// State is the device-level capture state.
type State int

const (
	// StateInactive means no capture is running and the device is released.
	StateInactive State = iota
	// StateRecording means the device is open and chunks are being emitted.
	StateRecording
	// StatePaused means the device is held open but samples are discarded.
	StatePaused
	// StateStopping means Stop is in progress and the device is being released.
	StateStopping
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Capture owns a microphone device handle and produces a finite sequence of
// audio chunks at a fixed cadence.
//
// Lifecycle: RequestAccess acquires the device, Start begins emitting chunks,
// Stop finalizes the chunk stream and returns only after the device handle is
// released, so a caller may RequestAccess again immediately. The mic
// indicator (Active) is asserted exactly while state is recording or paused.
type Capture interface {
	// RequestAccess acquires the microphone device.
	// Idempotent on success. Returns ErrDeviceUnavailable if the platform
	// denies or lacks the capability.
	RequestAccess(ctx context.Context) error

	// Start begins emitting chunks. Requires prior RequestAccess success
	// and no other active capture (ErrAlreadyCapturing otherwise).
	Start(ctx context.Context) error

	// Pause suspends chunk emission. Valid only while recording.
	// The device stays held, so the mic indicator stays asserted.
	Pause() error

	// Resume restarts chunk emission. Valid only while paused.
	Resume() error

	// Stop finalizes the chunk sequence, closes the chunk channel, and
	// releases the device. It returns once the device is released, not
	// merely once a stop signal is issued.
	Stop(ctx context.Context) error

	// Chunks returns the channel carrying captured chunks for the current
	// capture. The channel is closed by Stop.
	//
	// The channel is a bounded buffer. Chunk order is always preserved, but
	// if the consumer stops draining, chunks are dropped rather than
	// blocking the audio callback thread. Drops are counted in
	// Stats().Overruns; a continuously draining consumer never sees one.
	Chunks() <-chan Chunk

	// Active reports whether the mic indicator is asserted
	// (state is recording or paused).
	Active() bool

	// State returns the current device-level state.
	State() State

	// Config returns the capture configuration.
	Config() Config

	// Name returns the backend name (e.g. "miniaudio", "mock").
	Name() string

	// Close releases all resources. After Close the capture cannot be
	// restarted.
	io.Closer
}

// Stats contains statistics about a capture.
type Stats struct {
	// ChunksEmitted is the total number of chunks emitted.
	ChunksEmitted int64 `json:"chunks_emitted"`

	// SamplesEmitted is the total number of samples emitted.
	SamplesEmitted int64 `json:"samples_emitted"`

	// Overruns is the number of chunks dropped because the consumer fell
	// behind.
	Overruns int64 `json:"overruns"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// CaptureWithStats extends Capture with statistics.
type CaptureWithStats interface {
	Capture
	Stats() Stats
}
