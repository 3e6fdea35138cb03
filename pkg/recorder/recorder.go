package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/auralabs/go-aura/pkg/audioio"
)

// Encoding selects the clip encoding for finalized utterances.
type Encoding string

const (
	// EncodingWAV wraps the PCM stream in a RIFF/WAVE container (default).
	EncodingWAV Encoding = "wav"
	// EncodingOpus compresses the stream with Opus for constrained uplinks.
	EncodingOpus Encoding = "opus"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger.With("component", "recorder")
	}
}

// WithEncoding selects the clip encoding.
func WithEncoding(enc Encoding) Option {
	return func(r *Recorder) {
		r.encoding = enc
	}
}

// WithTick sets a callback invoked once per second of recorded audio.
// The callback receives the total elapsed whole seconds. It is never called
// while the session is paused.
func WithTick(fn func(seconds int)) Option {
	return func(r *Recorder) {
		r.onTick = fn
	}
}

// Recorder aggregates capture chunks into a single encoded clip per
// utterance and enforces at-most-one-active-recording.
type Recorder struct {
	capture  audioio.Capture
	logger   *slog.Logger
	encoding Encoding
	onTick   func(seconds int)

	mu          sync.Mutex
	current     *Session
	collectDone chan struct{}
	tickStop    chan struct{}
}

// New creates a Recorder over the given capture.
func New(capture audioio.Capture, opts ...Option) *Recorder {
	r := &Recorder{
		capture:  capture,
		logger:   slog.Default().With("component", "recorder"),
		encoding: EncodingWAV,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin starts a new recording session.
//
// The returned session is in StateRecording on success. If device access is
// denied, the session is returned in StateFailed with the error also
// returned. Begin fails with ErrAlreadyRecording while a previous session is
// non-terminal; the previous session is left untouched.
func (r *Recorder) Begin(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	if r.current != nil && !r.current.State().Terminal() {
		r.mu.Unlock()
		return nil, ErrAlreadyRecording
	}

	session := &Session{state: StateRequesting}
	r.current = session
	r.mu.Unlock()

	if err := r.capture.RequestAccess(ctx); err != nil {
		session.fail(err)
		return session, err
	}

	if err := r.capture.Start(ctx); err != nil {
		// Start never holds the device on failure, but release defensively
		// so a denied session cannot leave the indicator asserted.
		_ = r.capture.Stop(ctx)
		session.fail(err)
		return session, err
	}

	session.mu.Lock()
	session.state = StateRecording
	session.startedAt = time.Now()
	session.mu.Unlock()

	collectDone := make(chan struct{})
	tickStop := make(chan struct{})

	r.mu.Lock()
	r.collectDone = collectDone
	r.tickStop = tickStop
	r.mu.Unlock()

	go r.collect(session, r.capture.Chunks(), collectDone)
	go r.tick(session, tickStop)

	r.logger.Info("recording started")
	return session, nil
}

// collect drains the capture channel, preserving chunk arrival order.
func (r *Recorder) collect(session *Session, ch <-chan audioio.Chunk, done chan<- struct{}) {
	defer close(done)
	for chunk := range ch {
		session.appendChunk(chunk)
	}
}

// tick advances the elapsed counter once per second while recording.
func (r *Recorder) tick(session *Session, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if session.State() != StateRecording {
				continue
			}
			seconds := session.elapsed.Add(1)
			if r.onTick != nil {
				r.onTick(int(seconds))
			}
		}
	}
}

// Pause suspends the active session. The elapsed counter stops; the device
// stays held.
func (r *Recorder) Pause() error {
	session, err := r.active()
	if err != nil {
		return err
	}
	if session.State() != StateRecording {
		return ErrInvalidState
	}
	if err := r.capture.Pause(); err != nil {
		return err
	}
	session.setState(StatePaused)
	return nil
}

// Resume restarts a paused session.
func (r *Recorder) Resume() error {
	session, err := r.active()
	if err != nil {
		return err
	}
	if session.State() != StatePaused {
		return ErrInvalidState
	}
	if err := r.capture.Resume(); err != nil {
		return err
	}
	session.setState(StateRecording)
	return nil
}

// End finalizes the active session: Recording|Paused → Stopping → Recorded.
//
// All buffered chunks are concatenated in arrival order and encoded into one
// clip. An empty chunk sequence is a failure (ErrEmptyRecording), not a
// zero-length clip. The device is released before End returns, on every
// path.
func (r *Recorder) End(ctx context.Context) (*Clip, error) {
	session, err := r.active()
	if err != nil {
		return nil, err
	}
	state := session.State()
	if state != StateRecording && state != StatePaused {
		return nil, ErrInvalidState
	}

	session.setState(StateStopping)

	// Stop returns once the device is released; the chunk channel closes as
	// part of it, which ends the collector.
	stopErr := r.capture.Stop(ctx)
	r.finishWorkers()

	if stopErr != nil {
		session.fail(stopErr)
		return nil, stopErr
	}

	chunks := session.takeChunks()
	if len(chunks) == 0 {
		session.fail(ErrEmptyRecording)
		return nil, ErrEmptyRecording
	}

	clip, err := r.encode(chunks)
	if err != nil {
		session.fail(err)
		return nil, err
	}

	session.mu.Lock()
	session.state = StateRecorded
	session.clip = clip
	session.mu.Unlock()

	r.logger.Info("recording finalized",
		"chunks", len(chunks),
		"duration_ms", clip.Duration.Milliseconds(),
		"bytes", len(clip.Audio),
	)
	return clip, nil
}

// Discard cancels the active session without producing a clip.
// The device is released before Discard returns.
func (r *Recorder) Discard() error {
	session, err := r.active()
	if err != nil {
		return err
	}

	_ = r.capture.Stop(context.Background())
	r.finishWorkers()
	session.setState(StateDiscarded)

	r.logger.Info("recording discarded")
	return nil
}

// Elapsed returns the active session's elapsed seconds, or 0 if none.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	session := r.current
	r.mu.Unlock()
	if session == nil {
		return 0
	}
	return session.Elapsed()
}

// Session returns the current session (possibly terminal), or nil.
func (r *Recorder) Session() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// active returns the current non-terminal session.
func (r *Recorder) active() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.State().Terminal() {
		return nil, ErrNoActiveSession
	}
	return r.current, nil
}

// finishWorkers waits for the collector and stops the ticker.
func (r *Recorder) finishWorkers() {
	r.mu.Lock()
	collectDone, tickStop := r.collectDone, r.tickStop
	r.collectDone, r.tickStop = nil, nil
	r.mu.Unlock()

	if collectDone != nil {
		<-collectDone
	}
	if tickStop != nil {
		close(tickStop)
	}
}

// encode concatenates chunks in arrival order and wraps them in the
// configured encoding. Chunk order must match emission order exactly.
func (r *Recorder) encode(chunks []audioio.Chunk) (*Clip, error) {
	total := 0
	for _, c := range chunks {
		total += len(c.Samples)
	}

	samples := make([]int16, 0, total)
	for _, c := range chunks {
		samples = append(samples, c.Samples...)
	}

	rate := chunks[0].SampleRate
	channels := chunks[0].Channels
	seconds := float64(len(samples)) / float64(rate*channels)

	clip := &Clip{
		Duration:   time.Duration(seconds * float64(time.Second)),
		SampleRate: rate,
		Channels:   channels,
	}

	switch r.encoding {
	case EncodingOpus:
		audio, err := audioio.EncodeOpus(samples, rate, channels)
		if err != nil {
			return nil, err
		}
		clip.Audio = audio
		clip.MIMEType = "audio/ogg"
	default:
		clip.Audio = audioio.EncodeWAV(samples, rate, channels)
		clip.MIMEType = "audio/wav"
	}

	return clip, nil
}
