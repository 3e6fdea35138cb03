package call

import "time"

// Stage identifies where a turn is in the pipeline.
// Stages only move forward; a terminal stage is never left.
type Stage string

const (
	// StageCapturing: microphone is recording the user's utterance.
	StageCapturing Stage = "capturing"

	// StageTranscribing: the finalized utterance is being transcribed.
	StageTranscribing Stage = "transcribing"

	// StageAwaitingReply: the assistant reply is being generated.
	StageAwaitingReply Stage = "awaiting_reply"

	// StageSynthesizing: the reply text is being converted to speech.
	StageSynthesizing Stage = "synthesizing"

	// StagePlaying: the synthesized reply is playing back.
	StagePlaying Stage = "playing"

	// StageCompleted: the turn finished. Audio may be nil when synthesis
	// was unavailable; the reply text is still present.
	StageCompleted Stage = "completed"

	// StageCancelled: the turn was abandoned by the user.
	StageCancelled Stage = "cancelled"

	// StageFailed: a pipeline stage failed; FailedStage records which.
	StageFailed Stage = "failed"
)

// Terminal reports whether the stage is final.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageCancelled, StageFailed:
		return true
	}
	return false
}

// Turn is one round trip through the pipeline: user utterance in,
// assistant reply out. Fields are mutated only by the owning session under
// its mutex; callers see copies via Snapshot.
type Turn struct {
	// ID is monotonically increasing within a session.
	ID int64

	// Stage is the turn's current pipeline position.
	Stage Stage

	// FailedStage records where a failed turn broke down.
	FailedStage Stage

	// Transcript is the user's transcribed utterance.
	Transcript string

	// ReplyText is the assistant's generated reply.
	ReplyText string

	// Audio is the synthesized reply, nil when synthesis was skipped or
	// failed.
	Audio []byte

	// Err is set for failed turns.
	Err error

	// finalizing marks the turn claimed by EndUtterance. Duplicate
	// finalize attempts are rejected without touching the recorder.
	finalizing bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// TurnSnapshot is a read-only copy of a turn for presentation.
type TurnSnapshot struct {
	ID          int64     `json:"id"`
	Stage       Stage     `json:"stage"`
	FailedStage Stage     `json:"failed_stage,omitempty"`
	Transcript  string    `json:"transcript,omitempty"`
	ReplyText   string    `json:"reply_text,omitempty"`
	HasAudio    bool      `json:"has_audio"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// snapshot copies the turn for external consumption.
// Caller must hold the session mutex.
func (t *Turn) snapshot() TurnSnapshot {
	s := TurnSnapshot{
		ID:          t.ID,
		Stage:       t.Stage,
		FailedStage: t.FailedStage,
		Transcript:  t.Transcript,
		ReplyText:   t.ReplyText,
		HasAudio:    len(t.Audio) > 0,
		StartedAt:   t.StartedAt,
	}
	if t.Err != nil {
		s.Error = t.Err.Error()
	}
	return s
}
