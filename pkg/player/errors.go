package player

import "errors"

// Sentinel errors for playback conditions.
var (
	// ErrAlreadyPlaying is returned when Play is called during an active playback.
	ErrAlreadyPlaying = errors.New("player: playback already active")

	// ErrNoPlayback is returned by Cancel when nothing is playing.
	ErrNoPlayback = errors.New("player: no active playback")

	// ErrEmptyClip is returned when the clip has no audio data.
	ErrEmptyClip = errors.New("player: empty clip")

	// ErrUnsupportedFormat is returned when the clip format does not match
	// the output device configuration.
	ErrUnsupportedFormat = errors.New("player: unsupported clip format")

	// ErrClosed is returned when the player has been closed.
	ErrClosed = errors.New("player: closed")
)
