package recorder

import "errors"

// Sentinel errors for recording lifecycle violations.
var (
	// ErrAlreadyRecording is returned by Begin while a session is
	// non-terminal. The existing session is not altered.
	ErrAlreadyRecording = errors.New("recorder: recording session already active")

	// ErrNoActiveSession is returned when an operation needs an active
	// session and none exists.
	ErrNoActiveSession = errors.New("recorder: no active recording session")

	// ErrInvalidState is returned when an operation is requested from a
	// state that does not permit it.
	ErrInvalidState = errors.New("recorder: operation not valid in current state")

	// ErrEmptyRecording is returned by End when no audio was captured.
	// A truncated or empty buffer is a failure, not a partial success.
	ErrEmptyRecording = errors.New("recorder: no audio captured")
)
