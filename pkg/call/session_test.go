package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/auralabs/go-aura/pkg/audioio"
	"github.com/auralabs/go-aura/pkg/inference"
	"github.com/auralabs/go-aura/pkg/player"
	"github.com/auralabs/go-aura/pkg/recorder"
	"github.com/auralabs/go-aura/pkg/stt"
	"github.com/auralabs/go-aura/pkg/tts"
)

type fixtures struct {
	capture *audioio.MockCapture
	rec     *recorder.Recorder
	sttP    *stt.MockProvider
	llm     *inference.Mock
	ttsP    *tts.Mock
	out     *player.MockPlayer
}

func testCaptureConfig() audioio.Config {
	return audioio.Config{
		Backend:       audioio.BackendMock,
		SampleRate:    16000,
		Channels:      1,
		ChunkDuration: 10 * time.Millisecond,
	}
}

func newFixtures(captureOpts ...audioio.MockOption) *fixtures {
	opts := append([]audioio.MockOption{audioio.WithSineWave(440, 0.3)}, captureOpts...)
	capture := audioio.NewMockCapture(testCaptureConfig(), nil, opts...)
	return &fixtures{
		capture: capture,
		rec:     recorder.New(capture),
		sttP:    stt.NewMock("hello there"),
		llm:     inference.NewMock(),
		ttsP:    tts.NewMock(),
		out:     player.NewMockPlayer(),
	}
}

func (f *fixtures) session(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(Deps{
		Recorder:    f.rec,
		Transcriber: f.sttP,
		Responder:   f.llm,
		Synthesizer: f.ttsP,
		Player:      f.out,
	}, opts...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

// eventLog drains the session event stream for later assertions.
type eventLog struct {
	mu  sync.Mutex
	evs []Event
}

func recordEvents(s *Session) *eventLog {
	log := &eventLog{}
	go func() {
		for ev := range s.Events() {
			log.mu.Lock()
			log.evs = append(log.evs, ev)
			log.mu.Unlock()
		}
	}()
	return log
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.evs))
	copy(out, l.evs)
	return out
}

func (l *eventLog) terminalCount(turnID int64) int {
	count := 0
	for _, ev := range l.all() {
		if ev.Type == EventTurnStateChanged && ev.TurnID == turnID && ev.Stage.Terminal() {
			count++
		}
	}
	return count
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func currentStage(s *Session) Stage {
	snap := s.Snapshot()
	if len(snap.Turns) == 0 {
		return ""
	}
	return snap.Turns[len(snap.Turns)-1].Stage
}

func TestFullTurnCompletes(t *testing.T) {
	f := newFixtures()
	s := f.session(t)
	log := recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	time.Sleep(30 * time.Millisecond) // let a few chunks accumulate

	if err := s.EndUtterance(ctx); err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return currentStage(s) == StageCompleted
	}, "turn completion")

	snap := s.Snapshot()
	turn := snap.Turns[0]
	if turn.Transcript != "hello there" {
		t.Errorf("Transcript = %q", turn.Transcript)
	}
	if turn.ReplyText != "Mock response" {
		t.Errorf("ReplyText = %q", turn.ReplyText)
	}
	if !turn.HasAudio {
		t.Error("expected synthesized audio")
	}
	if len(f.out.Played()) != 1 {
		t.Errorf("playbacks = %d, want 1", len(f.out.Played()))
	}

	waitFor(t, time.Second, func() bool {
		var userLine, assistantLine bool
		for _, ev := range log.all() {
			if ev.Type == EventTranscriptAppended {
				switch ev.Speaker {
				case SpeakerUser:
					userLine = ev.Text == "hello there"
				case SpeakerAssistant:
					assistantLine = ev.Text == "Mock response"
				}
			}
		}
		return userLine && assistantLine
	}, "transcript events")
	waitFor(t, time.Second, func() bool {
		return log.terminalCount(turn.ID) == 1
	}, "single terminal event")
}

func TestSynthesisFailureCompletesTextOnly(t *testing.T) {
	f := newFixtures()
	f.ttsP = tts.WithError(errors.New("voice service down"))
	s := f.session(t)
	recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := s.EndUtterance(ctx); err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return currentStage(s) == StageCompleted
	}, "text-only completion")

	turn := s.Snapshot().Turns[0]
	if turn.HasAudio {
		t.Error("audio present after synthesis failure")
	}
	if turn.ReplyText == "" {
		t.Error("reply text missing")
	}
	if len(f.out.Played()) != 0 {
		t.Error("playback attempted without audio")
	}
}

func TestEmptyTranscriptSkipsReply(t *testing.T) {
	f := newFixtures()
	f.sttP = stt.NewMock("")
	s := f.session(t)
	recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := s.EndUtterance(ctx); err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return currentStage(s) == StageFailed
	}, "empty transcript failure")

	turn := s.Snapshot().Turns[0]
	if turn.FailedStage != StageTranscribing {
		t.Errorf("FailedStage = %q", turn.FailedStage)
	}
	if f.llm.CallCount("Chat") != 0 {
		t.Error("reply requested for empty transcript")
	}
}

func TestDoubleStartTurnRejected(t *testing.T) {
	f := newFixtures()
	s := f.session(t)
	recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	if err := s.StartTurn(ctx); !errors.Is(err, ErrTurnActive) {
		t.Errorf("second StartTurn err = %v, want ErrTurnActive", err)
	}
	if got := currentStage(s); got != StageCapturing {
		t.Errorf("first turn disturbed, stage = %q", got)
	}
}

func TestCancelDuringCapture(t *testing.T) {
	f := newFixtures()
	s := f.session(t)
	recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	if err := s.CancelTurn(); err != nil {
		t.Fatalf("CancelTurn: %v", err)
	}

	if f.capture.Active() {
		t.Error("mic still held after cancel")
	}
	if got := currentStage(s); got != StageCancelled {
		t.Errorf("stage = %q", got)
	}

	// Session is immediately ready for a new turn.
	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn after cancel: %v", err)
	}
}

func TestCancelDuringReplyDiscardsStaleResult(t *testing.T) {
	f := newFixtures()
	release := make(chan struct{})
	f.llm.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		select {
		case <-release:
			return &inference.ChatResponse{Message: inference.NewAssistantMessage("late reply")}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s := f.session(t)
	log := recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := s.EndUtterance(ctx); err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return currentStage(s) == StageAwaitingReply
	}, "awaiting reply")

	if err := s.CancelTurn(); err != nil {
		t.Fatalf("CancelTurn: %v", err)
	}
	close(release)
	time.Sleep(20 * time.Millisecond) // let the stale result arrive

	turn := s.Snapshot().Turns[0]
	if turn.Stage != StageCancelled {
		t.Errorf("stage = %q, want cancelled", turn.Stage)
	}
	if turn.ReplyText != "" {
		t.Errorf("stale reply applied: %q", turn.ReplyText)
	}
	waitFor(t, time.Second, func() bool {
		return log.terminalCount(turn.ID) >= 1
	}, "cancelled event")
	if n := log.terminalCount(turn.ID); n != 1 {
		t.Errorf("terminal events = %d, want 1", n)
	}
}

func TestCancelDuringPlayback(t *testing.T) {
	f := newFixtures()
	f.out = &player.MockPlayer{Manual: true}
	s := f.session(t)
	recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := s.EndUtterance(ctx); err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return currentStage(s) == StagePlaying
	}, "playback start")

	if err := s.CancelTurn(); err != nil {
		t.Fatalf("CancelTurn: %v", err)
	}
	if f.out.Cancels() != 1 {
		t.Errorf("player cancels = %d, want 1", f.out.Cancels())
	}
	if got := currentStage(s); got != StageCancelled {
		t.Errorf("stage = %q", got)
	}
}

func TestEndCallDuringPlayback(t *testing.T) {
	f := newFixtures()
	f.out = &player.MockPlayer{Manual: true}
	s := f.session(t)
	log := recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := s.EndUtterance(ctx); err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return currentStage(s) == StagePlaying
	}, "playback start")

	if err := s.EndCall(); err != nil {
		t.Fatalf("EndCall: %v", err)
	}

	if f.out.Cancels() != 1 {
		t.Errorf("player cancels = %d, want 1", f.out.Cancels())
	}
	if got := currentStage(s); got != StageCancelled {
		t.Errorf("stage = %q", got)
	}

	waitFor(t, time.Second, func() bool {
		for _, ev := range log.all() {
			if ev.Type == EventSessionEnded {
				return true
			}
		}
		return false
	}, "session ended event")

	ended := 0
	for _, ev := range log.all() {
		if ev.Type == EventSessionEnded {
			ended++
		}
	}
	if ended != 1 {
		t.Errorf("SessionEnded events = %d, want 1", ended)
	}

	if err := s.StartTurn(ctx); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("StartTurn after EndCall err = %v", err)
	}
	if err := s.EndCall(); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("second EndCall err = %v", err)
	}
}

func TestMuteBlocksStartTurn(t *testing.T) {
	f := newFixtures()
	s := f.session(t)
	recordEvents(s)

	muted, err := s.ToggleMute()
	if err != nil || !muted {
		t.Fatalf("ToggleMute: %v %v", muted, err)
	}
	if err := s.StartTurn(context.Background()); !errors.Is(err, ErrMuted) {
		t.Errorf("StartTurn muted err = %v, want ErrMuted", err)
	}
}

func TestMutePausesCapture(t *testing.T) {
	f := newFixtures()
	s := f.session(t)
	recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}

	if _, err := s.ToggleMute(); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if f.capture.State() != audioio.StatePaused {
		t.Errorf("capture state = %v, want paused", f.capture.State())
	}
	if !f.capture.Active() {
		t.Error("mic indicator cleared while paused")
	}

	if _, err := s.ToggleMute(); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	if f.capture.State() != audioio.StateRecording {
		t.Errorf("capture state = %v, want recording", f.capture.State())
	}
}

func TestDeviceDeniedFailsTurn(t *testing.T) {
	f := newFixtures(audioio.WithAccessDenied())
	s := f.session(t)
	recordEvents(s)
	ctx := context.Background()

	err := s.StartTurn(ctx)
	if !errors.Is(err, audioio.ErrDeviceUnavailable) {
		t.Fatalf("StartTurn err = %v, want ErrDeviceUnavailable", err)
	}

	turn := s.Snapshot().Turns[0]
	if turn.Stage != StageFailed || turn.FailedStage != StageCapturing {
		t.Errorf("turn = %+v", turn)
	}
	if f.capture.Active() {
		t.Error("mic indicator asserted after denial")
	}

	// The failure is recoverable: a new turn may be attempted.
	if err := s.StartTurn(ctx); errors.Is(err, ErrTurnActive) {
		t.Errorf("session blocked after device denial: %v", err)
	}
}

func TestEndUtteranceWithoutTurn(t *testing.T) {
	f := newFixtures()
	s := f.session(t)
	recordEvents(s)

	if err := s.EndUtterance(context.Background()); !errors.Is(err, ErrNoActiveTurn) {
		t.Errorf("err = %v, want ErrNoActiveTurn", err)
	}
}

func TestHistoryWindowBoundsContext(t *testing.T) {
	f := newFixtures()
	var gotMessages []inference.Message
	var mu sync.Mutex
	replies := []string{"first reply", "second reply", "third reply"}
	callN := 0
	f.llm.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		mu.Lock()
		gotMessages = req.Messages
		reply := replies[callN%len(replies)]
		callN++
		mu.Unlock()
		return &inference.ChatResponse{Message: inference.NewAssistantMessage(reply)}, nil
	}
	s := f.session(t, WithHistoryWindow(1))
	recordEvents(s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.StartTurn(ctx); err != nil {
			t.Fatalf("StartTurn %d: %v", i, err)
		}
		time.Sleep(30 * time.Millisecond)
		if err := s.EndUtterance(ctx); err != nil {
			t.Fatalf("EndUtterance %d: %v", i, err)
		}
		waitFor(t, time.Second, func() bool {
			return currentStage(s) == StageCompleted
		}, "turn completion")
	}

	mu.Lock()
	defer mu.Unlock()
	// system + one past exchange (user, assistant) + current transcript
	if len(gotMessages) != 4 {
		t.Fatalf("messages = %d, want 4: %+v", len(gotMessages), gotMessages)
	}
	if gotMessages[0].Role != inference.RoleSystem {
		t.Errorf("first message role = %q", gotMessages[0].Role)
	}
	if gotMessages[2].Content != "second reply" {
		t.Errorf("window kept wrong turn: %q", gotMessages[2].Content)
	}
}

func TestElapsedEventsDuringCapture(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	f := newFixtures()
	s := f.session(t)
	log := recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		for _, ev := range log.all() {
			if ev.Type == EventElapsedTimeTicked && ev.Seconds >= 1 {
				return true
			}
		}
		return false
	}, "elapsed tick")

	if err := s.CancelTurn(); err != nil {
		t.Fatalf("CancelTurn: %v", err)
	}
}

func TestNewSessionMissingDeps(t *testing.T) {
	_, err := NewSession(Deps{})
	if !errors.Is(err, ErrMissingDeps) {
		t.Errorf("err = %v, want ErrMissingDeps", err)
	}
}

func TestCancelDuringTranscribe(t *testing.T) {
	f := newFixtures()
	f.sttP = &stt.MockProvider{
		TranscribeFunc: func(ctx context.Context, req *stt.Request) (*stt.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	s := f.session(t)
	log := recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := s.EndUtterance(ctx); err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return currentStage(s) == StageTranscribing
	}, "transcribing")

	if err := s.CancelTurn(); err != nil {
		t.Fatalf("CancelTurn: %v", err)
	}

	turn := s.Snapshot().Turns[0]
	if turn.Stage != StageCancelled {
		t.Errorf("stage = %q", turn.Stage)
	}
	time.Sleep(20 * time.Millisecond) // let the aborted stage unwind
	if n := log.terminalCount(turn.ID); n != 1 {
		t.Errorf("terminal events = %d, want 1", n)
	}
}

func TestCancelDuringSynthesis(t *testing.T) {
	f := newFixtures()
	f.ttsP = &tts.Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*tts.AudioResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	s := f.session(t)
	recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := s.EndUtterance(ctx); err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return currentStage(s) == StageSynthesizing
	}, "synthesizing")

	if err := s.CancelTurn(); err != nil {
		t.Fatalf("CancelTurn: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	turn := s.Snapshot().Turns[0]
	if turn.Stage != StageCancelled {
		t.Errorf("stage = %q", turn.Stage)
	}
	if len(f.out.Played()) != 0 {
		t.Error("playback started for cancelled turn")
	}
}

func TestEmptyRecordingFailsCapture(t *testing.T) {
	f := newFixtures(audioio.WithManualChunks())
	s := f.session(t)
	recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}

	// No chunks ever arrive; ending the utterance has nothing to keep.
	if err := s.EndUtterance(ctx); err == nil {
		t.Fatal("expected error for empty recording")
	}

	turn := s.Snapshot().Turns[0]
	if turn.Stage != StageFailed || turn.FailedStage != StageCapturing {
		t.Errorf("turn = %+v", turn)
	}
	if f.sttP.CallCount() != 0 {
		t.Error("transcription requested for empty recording")
	}
}

func TestConcurrentEndUtterance(t *testing.T) {
	f := newFixtures()
	s := f.session(t)
	recordEvents(s)
	ctx := context.Background()

	if err := s.StartTurn(ctx); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.EndUtterance(ctx)
		}(i)
	}
	wg.Wait()

	var okCount, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, ErrInvalidStage):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || rejected != 1 {
		t.Fatalf("ok = %d rejected = %d, want 1/1", okCount, rejected)
	}

	// The duplicate must not have failed the healthy turn.
	waitFor(t, time.Second, func() bool {
		return currentStage(s) == StageCompleted
	}, "turn completion despite duplicate finalize")
}

func TestEndCallRunsCleanupOnce(t *testing.T) {
	f := newFixtures()
	var cleanups int32
	s := f.session(t, WithCleanup(func() { atomic.AddInt32(&cleanups, 1) }))
	recordEvents(s)

	if err := s.EndCall(); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if n := atomic.LoadInt32(&cleanups); n != 1 {
		t.Fatalf("cleanups = %d, want 1", n)
	}

	if err := s.EndCall(); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("second EndCall err = %v", err)
	}
	if n := atomic.LoadInt32(&cleanups); n != 1 {
		t.Errorf("cleanups after duplicate EndCall = %d, want 1", n)
	}
}
