// Package recorder provides utterance-level recording on top of audioio.
//
// A Recorder owns at most one active Session at a time; the microphone is an
// exclusive resource, so beginning a second session while one is active is
// rejected rather than silently replacing it. Every exit path (success,
// failure, or discard) releases the device before the session reaches a
// terminal state.
package recorder

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/auralabs/go-aura/pkg/audioio"
)

// State is the lifecycle state of one recording session.
type State int

const (
	// StateIdle means the session has been created but not started.
	StateIdle State = iota
	// StateRequesting means device access is being acquired.
	StateRequesting
	// StateRecording means chunks are being captured.
	StateRecording
	// StatePaused means capture is suspended; the device stays held.
	StatePaused
	// StateStopping means End is finalizing the chunk sequence.
	StateStopping
	// StateRecorded is terminal: the clip was produced.
	StateRecorded
	// StateFailed is terminal: the session failed and no clip exists.
	StateFailed
	// StateDiscarded is terminal: the session was cancelled; the device was
	// released and no clip was produced.
	StateDiscarded
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateRecorded:
		return "recorded"
	case StateFailed:
		return "failed"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateRecorded || s == StateFailed || s == StateDiscarded
}

// Clip is the finalized audio artifact of one utterance.
type Clip struct {
	// Audio is the encoded payload.
	Audio []byte

	// MIMEType describes the encoding ("audio/wav" or "audio/ogg").
	MIMEType string

	// Duration is the captured audio duration.
	Duration time.Duration

	// SampleRate and Channels describe the underlying PCM stream.
	SampleRate int
	Channels   int
}

// Session represents one capture attempt.
// A session's clip and error are mutually exclusive: exactly one of them is
// set when the session reaches StateRecorded or StateFailed.
type Session struct {
	mu        sync.Mutex
	state     State
	startedAt time.Time
	chunks    []audioio.Chunk
	clip      *Clip
	err       error

	elapsed atomic.Int64 // whole seconds, ticks only while recording
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartedAt returns when recording began.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Elapsed returns the recorded time in whole seconds.
// The counter is monotonic and does not advance while paused.
func (s *Session) Elapsed() int {
	return int(s.elapsed.Load())
}

// Clip returns the finalized clip, or nil unless state is StateRecorded.
func (s *Session) Clip() *Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clip
}

// Err returns the session error, or nil unless state is StateFailed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// setState transitions the session state.
func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// fail moves the session to StateFailed with the given error.
// The clip is never set on this path.
func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.err = err
	s.mu.Unlock()
}

// appendChunk records one captured chunk in arrival order.
func (s *Session) appendChunk(chunk audioio.Chunk) {
	s.mu.Lock()
	s.chunks = append(s.chunks, chunk)
	s.mu.Unlock()
}

// takeChunks returns the buffered chunks in arrival order.
func (s *Session) takeChunks() []audioio.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}
