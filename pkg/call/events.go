package call

// EventType identifies a session event.
type EventType string

const (
	// EventTurnStateChanged fires on every turn stage transition.
	// Exactly one terminal-stage event is emitted per turn.
	EventTurnStateChanged EventType = "turn_state_changed"

	// EventTranscriptAppended fires when a transcript line is added,
	// once for the user utterance and once for the assistant reply.
	EventTranscriptAppended EventType = "transcript_appended"

	// EventElapsedTimeTicked fires once per second of active capture.
	EventElapsedTimeTicked EventType = "elapsed_time_ticked"

	// EventSessionEnded fires exactly once, when the call ends.
	EventSessionEnded EventType = "session_ended"
)

// Speaker identifies who a transcript line belongs to.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Event is one presentation-facing session event.
// Only the fields relevant to Type are set.
type Event struct {
	Type        EventType `json:"type"`
	TurnID      int64     `json:"turn_id,omitempty"`
	Stage       Stage     `json:"stage,omitempty"`
	FailedStage Stage     `json:"failed_stage,omitempty"`
	Speaker     Speaker   `json:"speaker,omitempty"`
	Text        string    `json:"text,omitempty"`
	Seconds     int       `json:"seconds,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}
