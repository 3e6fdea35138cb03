// Package call orchestrates one voice conversation: capture an utterance,
// transcribe it, generate a reply, synthesize speech, and play it back.
//
// A Session owns all pipeline state. Commands (StartTurn, EndUtterance,
// CancelTurn, ToggleMute, EndCall) return quickly; stage work runs on a
// single pipeline goroutine per turn. Results arriving for an abandoned turn
// are discarded, never applied. The microphone and the audio output are
// exclusive resources released on every exit path.
package call

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auralabs/go-aura/pkg/inference"
	"github.com/auralabs/go-aura/pkg/player"
	"github.com/auralabs/go-aura/pkg/recorder"
	"github.com/auralabs/go-aura/pkg/stt"
	"github.com/auralabs/go-aura/pkg/tts"
)

// Deps are the pipeline components a session drives.
// Recorder, Transcriber and Responder are required. A nil Synthesizer makes
// every turn text-only; a nil Player skips playback.
type Deps struct {
	Recorder    *recorder.Recorder
	Transcriber stt.Provider
	Responder   inference.Provider
	Synthesizer tts.Provider
	Player      player.Player
}

// ErrMissingDeps is returned when a required dependency is nil.
var ErrMissingDeps = errors.New("call: recorder, transcriber and responder required")

// Session is one voice call. Create with NewSession, drive with commands,
// observe through Events and Snapshot.
type Session struct {
	id      string
	cfg     *Config
	rec     *recorder.Recorder
	sttP    stt.Provider
	llm     inference.Provider
	ttsP    tts.Provider
	out     player.Player
	logger  *slog.Logger
	metrics *MetricsCollector

	events chan Event

	mu       sync.Mutex
	muted    bool
	ended    bool
	turnSeq  int64
	turns    []*Turn
	current  *Turn
	cancelFn context.CancelFunc
	dropped  int
}

// SessionSnapshot is a read-only view of the session for presentation.
type SessionSnapshot struct {
	ID          string         `json:"id"`
	Assistant   string         `json:"assistant"`
	Muted       bool           `json:"muted"`
	Ended       bool           `json:"ended"`
	Elapsed     int            `json:"elapsed_seconds"`
	CurrentTurn *TurnSnapshot  `json:"current_turn,omitempty"`
	Turns       []TurnSnapshot `json:"turns"`
}

// NewSession creates a voice call session over the given components.
func NewSession(deps Deps, opts ...Option) (*Session, error) {
	if deps.Recorder == nil || deps.Transcriber == nil || deps.Responder == nil {
		return nil, ErrMissingDeps
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)

	id := uuid.NewString()

	return &Session{
		id:      id,
		cfg:     cfg,
		rec:     deps.Recorder,
		sttP:    deps.Transcriber,
		llm:     deps.Responder,
		ttsP:    deps.Synthesizer,
		out:     deps.Player,
		logger:  cfg.Logger.With("component", "call", "session_id", id[:8]),
		metrics: NewMetricsCollector(),
		events:  make(chan Event, cfg.EventBuffer),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Events returns the session event stream. The channel closes after
// SessionEnded is delivered.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Metrics returns the per-stage latency collector.
func (s *Session) Metrics() *MetricsCollector {
	return s.metrics
}

// StartTurn opens a new turn and starts capturing the user's utterance.
// Fails with ErrTurnActive while a turn is in flight, ErrMuted while muted,
// and ErrSessionEnded after EndCall. Device denial fails the turn at the
// capturing stage; the session stays usable.
func (s *Session) StartTurn(ctx context.Context) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	if s.muted {
		s.mu.Unlock()
		return ErrMuted
	}
	if s.current != nil && !s.current.Stage.Terminal() {
		s.mu.Unlock()
		return ErrTurnActive
	}

	s.turnSeq++
	turn := &Turn{
		ID:        s.turnSeq,
		Stage:     StageCapturing,
		StartedAt: time.Now(),
	}
	s.current = turn
	s.turns = append(s.turns, turn)
	s.mu.Unlock()

	if _, err := s.rec.Begin(ctx); err != nil {
		s.failTurn(turn, StageCapturing, err)
		return err
	}

	s.mu.Lock()
	s.publish(Event{Type: EventTurnStateChanged, TurnID: turn.ID, Stage: StageCapturing})
	s.mu.Unlock()

	go s.tickLoop(turn)

	s.logger.Info("turn started", "turn_id", turn.ID)
	return nil
}

// EndUtterance finalizes capture and runs the rest of the pipeline
// asynchronously. Only valid while the current turn is capturing. An empty
// recording fails the turn at the capturing stage.
func (s *Session) EndUtterance(ctx context.Context) error {
	s.mu.Lock()
	turn := s.current
	if s.ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	if turn == nil || turn.Stage.Terminal() {
		s.mu.Unlock()
		return ErrNoActiveTurn
	}
	if turn.Stage != StageCapturing || turn.finalizing {
		s.mu.Unlock()
		return ErrInvalidStage
	}
	// Claim finalization before releasing the lock so a concurrent duplicate
	// EndUtterance is rejected here instead of racing rec.End and failing a
	// healthy turn.
	turn.finalizing = true
	s.mu.Unlock()

	clip, err := s.rec.End(ctx)
	if err != nil {
		s.failTurn(turn, StageCapturing, err)
		return err
	}

	s.metrics.MarkUtteranceEnd()

	pctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.current != turn || turn.Stage != StageCapturing {
		// Cancelled between End and here; the clip is discarded.
		s.mu.Unlock()
		cancel()
		return ErrNoActiveTurn
	}
	turn.Stage = StageTranscribing
	s.cancelFn = cancel
	s.publish(Event{Type: EventTurnStateChanged, TurnID: turn.ID, Stage: StageTranscribing})
	s.mu.Unlock()

	go s.runPipeline(pctx, turn, clip)
	return nil
}

// CancelTurn abandons the in-flight turn. The active stage is aborted, any
// held device is released before the call returns, and the session is ready
// for an immediate StartTurn. Results still in flight for the cancelled turn
// are discarded.
func (s *Session) CancelTurn() error {
	s.mu.Lock()
	turn := s.current
	if turn == nil || turn.Stage.Terminal() {
		s.mu.Unlock()
		return ErrNoActiveTurn
	}
	stage := turn.Stage
	turn.Stage = StageCancelled
	turn.FinishedAt = time.Now()
	cancel := s.cancelFn
	s.cancelFn = nil
	s.publish(Event{Type: EventTurnStateChanged, TurnID: turn.ID, Stage: StageCancelled})
	s.mu.Unlock()

	s.releaseStage(stage)
	if cancel != nil {
		cancel()
	}

	s.logger.Info("turn cancelled", "turn_id", turn.ID, "stage", stage)
	return nil
}

// ToggleMute flips the mute flag and returns the new state. Muting during
// capture pauses the recorder; unmuting resumes it. The mic indicator stays
// asserted while paused.
func (s *Session) ToggleMute() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return s.muted, ErrSessionEnded
	}

	muted := !s.muted
	if s.current != nil && s.current.Stage == StageCapturing {
		var err error
		if muted {
			err = s.rec.Pause()
		} else {
			err = s.rec.Resume()
		}
		if err != nil {
			return s.muted, err
		}
	}
	s.muted = muted

	s.logger.Info("mute toggled", "muted", muted)
	return muted, nil
}

// Muted reports the mute state.
func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// EndCall terminates the session. An in-flight turn is cancelled with its
// resources released, exactly one SessionEnded event is emitted, and the
// event channel closes. Further commands fail with ErrSessionEnded.
func (s *Session) EndCall() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}

	turn := s.current
	var stage Stage
	var cancel context.CancelFunc
	if turn != nil && !turn.Stage.Terminal() {
		stage = turn.Stage
		turn.Stage = StageCancelled
		turn.FinishedAt = time.Now()
		cancel = s.cancelFn
		s.cancelFn = nil
		s.publish(Event{Type: EventTurnStateChanged, TurnID: turn.ID, Stage: StageCancelled})
	}
	s.mu.Unlock()

	if stage != "" {
		s.releaseStage(stage)
	}
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	s.publish(Event{Type: EventSessionEnded, Reason: "user_ended"})
	s.ended = true
	close(s.events)
	s.mu.Unlock()

	if s.cfg.Cleanup != nil {
		s.cfg.Cleanup()
	}

	s.logger.Info("session ended", "turns", len(s.turns))
	return nil
}

// Elapsed returns the active recording's elapsed seconds.
func (s *Session) Elapsed() int {
	return s.rec.Elapsed()
}

// Snapshot returns a read-only view of the session.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SessionSnapshot{
		ID:        s.id,
		Assistant: s.cfg.AssistantName,
		Muted:     s.muted,
		Ended:     s.ended,
		Elapsed:   s.rec.Elapsed(),
		Turns:     make([]TurnSnapshot, 0, len(s.turns)),
	}
	for _, t := range s.turns {
		snap.Turns = append(snap.Turns, t.snapshot())
	}
	if s.current != nil && !s.current.Stage.Terminal() {
		cur := s.current.snapshot()
		snap.CurrentTurn = &cur
	}
	return snap
}

// runPipeline drives one turn from transcription through playback.
// Every transition re-checks that the turn is still live, so results for a
// cancelled or superseded turn never mutate session state.
func (s *Session) runPipeline(ctx context.Context, turn *Turn, clip *recorder.Clip) {
	// Transcribe
	tctx, tcancel := s.stageCtx(ctx, s.cfg.TranscribeTimeout)
	result, err := s.sttP.Transcribe(tctx, &stt.Request{
		Audio:     clip.Audio,
		MIMEType:  clip.MIMEType,
		SessionID: s.id,
	})
	tcancel()
	if err != nil {
		s.failTurn(turn, StageTranscribing, err)
		return
	}

	transcript := strings.TrimSpace(result.Text)
	if transcript == "" {
		// No speech recognized; the reply stage is never entered.
		s.failTurn(turn, StageTranscribing, ErrEmptyTranscript)
		return
	}

	var messages []inference.Message
	ok := s.transition(turn, StageTranscribing, StageAwaitingReply, func() {
		turn.Transcript = transcript
		s.publish(Event{Type: EventTranscriptAppended, TurnID: turn.ID, Speaker: SpeakerUser, Text: transcript})
		messages = s.buildMessages(turn)
	})
	if !ok {
		return
	}
	s.metrics.MarkTranscript()

	// Generate reply
	rctx, rcancel := s.stageCtx(ctx, s.cfg.ReplyTimeout)
	reply, err := s.llm.Chat(rctx, &inference.ChatRequest{Messages: messages})
	rcancel()
	if err != nil {
		s.failTurn(turn, StageAwaitingReply, err)
		return
	}

	replyText := strings.TrimSpace(reply.Message.Content)
	ok = s.transition(turn, StageAwaitingReply, StageSynthesizing, func() {
		turn.ReplyText = replyText
		s.publish(Event{Type: EventTranscriptAppended, TurnID: turn.ID, Speaker: SpeakerAssistant, Text: replyText})
	})
	if !ok {
		return
	}
	s.metrics.MarkReply()

	// Synthesize. Failure here is soft: the turn completes text-only.
	var audio *tts.AudioResult
	if s.ttsP != nil {
		sctx, scancel := s.stageCtx(ctx, s.cfg.SynthesizeTimeout)
		audio, err = s.ttsP.Synthesize(sctx, replyText)
		scancel()
		if err != nil {
			if ctx.Err() != nil {
				return // cancelled, already terminal
			}
			s.logger.Warn("synthesis failed, completing text-only",
				"turn_id", turn.ID,
				"error", err,
			)
			audio = nil
		}
	}

	if audio == nil || s.out == nil {
		s.completeTurn(turn, StageSynthesizing, nil)
		return
	}

	ok = s.transition(turn, StageSynthesizing, StagePlaying, func() {
		turn.Audio = audio.Audio
	})
	if !ok {
		return
	}
	s.metrics.MarkAudio()

	// Play back
	resultCh, err := s.out.Play(ctx, player.Clip{
		Audio:      audio.Audio,
		SampleRate: audio.Format.SampleRate,
		Channels:   audio.Format.Channels,
	})
	if err != nil {
		s.failTurn(turn, StagePlaying, err)
		return
	}

	var timeout <-chan time.Time
	if s.cfg.PlaybackTimeout > 0 {
		timer := time.NewTimer(s.cfg.PlaybackTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		// Cancelled; CancelTurn already stopped the player.
		return
	case <-timeout:
		_ = s.out.Cancel()
		s.failTurn(turn, StagePlaying, context.DeadlineExceeded)
		return
	case res := <-resultCh:
		if res.Err != nil {
			s.failTurn(turn, StagePlaying, res.Err)
			return
		}
	}

	s.metrics.MarkPlaybackDone()
	s.completeTurn(turn, StagePlaying, turn.Audio)

	latency := s.metrics.Current()
	s.logger.Info("turn completed",
		"turn_id", turn.ID,
		"latency", latency.FormatLatency(),
	)
}

// buildMessages assembles the reply context: system prompt, a bounded
// window of past exchanges, then the current transcript.
// Caller must hold the session mutex.
func (s *Session) buildMessages(turn *Turn) []inference.Message {
	messages := []inference.Message{
		inference.NewSystemMessage(s.cfg.SystemPrompt),
	}

	var past []*Turn
	for _, t := range s.turns {
		if t != turn && t.Stage == StageCompleted && t.Transcript != "" {
			past = append(past, t)
		}
	}
	if s.cfg.HistoryWindow > 0 && len(past) > s.cfg.HistoryWindow {
		past = past[len(past)-s.cfg.HistoryWindow:]
	}
	for _, t := range past {
		messages = append(messages, inference.NewUserMessage(t.Transcript))
		if t.ReplyText != "" {
			messages = append(messages, inference.NewAssistantMessage(t.ReplyText))
		}
	}

	messages = append(messages, inference.NewUserMessage(turn.Transcript))
	return messages
}

// transition advances the turn from one stage to the next under the mutex,
// running apply while it holds the lock. Returns false (a stale no-op) when
// the turn is no longer live at the expected stage.
func (s *Session) transition(turn *Turn, from, to Stage, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != turn || turn.Stage != from {
		return false
	}
	if apply != nil {
		apply()
	}
	turn.Stage = to
	s.publish(Event{Type: EventTurnStateChanged, TurnID: turn.ID, Stage: to})
	return true
}

// completeTurn finishes the turn successfully. A nil audio means the reply
// is text-only (synthesis unavailable), which is still a completed turn.
func (s *Session) completeTurn(turn *Turn, from Stage, audio []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != turn || turn.Stage != from {
		return
	}
	turn.Audio = audio
	turn.Stage = StageCompleted
	turn.FinishedAt = time.Now()
	s.cancelFn = nil
	s.publish(Event{Type: EventTurnStateChanged, TurnID: turn.ID, Stage: StageCompleted})
}

// failTurn marks the turn failed at the given stage. No-op when the turn is
// already terminal or superseded.
func (s *Session) failTurn(turn *Turn, stage Stage, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != turn || turn.Stage.Terminal() {
		return
	}
	turn.Stage = StageFailed
	turn.FailedStage = stage
	turn.Err = err
	turn.FinishedAt = time.Now()
	s.cancelFn = nil
	s.publish(Event{Type: EventTurnStateChanged, TurnID: turn.ID, Stage: StageFailed, FailedStage: stage})

	s.logger.Error("turn failed",
		"turn_id", turn.ID,
		"stage", stage,
		"error", err,
	)
}

// releaseStage frees the resource held by the given stage.
func (s *Session) releaseStage(stage Stage) {
	switch stage {
	case StageCapturing:
		_ = s.rec.Discard()
	case StagePlaying:
		if s.out != nil {
			_ = s.out.Cancel()
		}
	}
}

// tickLoop publishes elapsed-seconds events while the turn is capturing.
// It never blocks pipeline work.
func (s *Session) tickLoop(turn *Turn) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := -1
	for range ticker.C {
		s.mu.Lock()
		live := s.current == turn && turn.Stage == StageCapturing
		if !live {
			s.mu.Unlock()
			return
		}
		seconds := s.rec.Elapsed()
		if seconds != last {
			last = seconds
			s.publish(Event{Type: EventElapsedTimeTicked, Seconds: seconds})
		}
		s.mu.Unlock()
	}
}

// stageCtx bounds one pipeline stage.
func (s *Session) stageCtx(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// publish emits an event without blocking. Caller must hold the mutex.
// Events after EndCall are dropped.
func (s *Session) publish(ev Event) {
	if s.ended {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.dropped++
		s.logger.Warn("event dropped", "type", ev.Type, "dropped", s.dropped)
	}
}
