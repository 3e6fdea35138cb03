// Package player provides exclusive single-stream audio playback.
//
// A Player holds the audio output device. At most one clip plays at a time;
// starting a second playback while one is active fails with
// ErrAlreadyPlaying. Completion is delivered asynchronously on the channel
// returned by Play. Cancel stops playback immediately and guarantees that no
// completion result is delivered for the cancelled clip.
package player

import (
	"context"
	"time"
)

// Clip is one playable audio buffer.
type Clip struct {
	// Audio is PCM16 little-endian sample data.
	Audio []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int
}

// Duration returns the clip's playback length.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	samples := len(c.Audio) / 2 / c.Channels
	seconds := float64(samples) / float64(c.SampleRate)
	return time.Duration(seconds * float64(time.Second))
}

// Result is the outcome of one playback, delivered exactly once on the
// channel returned by Play unless the playback is cancelled.
type Result struct {
	// Err is nil when the clip played to completion.
	Err error

	// Played is how long the clip actually played.
	Played time.Duration
}

// Player plays one clip at a time on the audio output.
type Player interface {
	// Play starts playback of the clip. The returned channel delivers
	// exactly one Result when playback finishes or fails, and nothing at
	// all if the playback is cancelled. Returns ErrAlreadyPlaying while a
	// previous playback is active.
	Play(ctx context.Context, clip Clip) (<-chan Result, error)

	// Cancel stops the active playback immediately. No Result is delivered
	// for the cancelled playback. Returns ErrNoPlayback when idle.
	Cancel() error

	// Active reports whether a playback is in progress.
	Active() bool

	// Close cancels any active playback and releases the output device.
	Close() error
}
