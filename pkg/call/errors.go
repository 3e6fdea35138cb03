package call

import "errors"

// Sentinel errors for session commands.
var (
	// ErrSessionEnded is returned by any command after EndCall.
	ErrSessionEnded = errors.New("call: session ended")

	// ErrTurnActive is returned by StartTurn while a turn is in flight.
	ErrTurnActive = errors.New("call: turn already active")

	// ErrNoActiveTurn is returned when a command needs an in-flight turn.
	ErrNoActiveTurn = errors.New("call: no active turn")

	// ErrMuted is returned by StartTurn while the session is muted.
	ErrMuted = errors.New("call: session muted")

	// ErrInvalidStage is returned when a command does not apply to the
	// current turn stage.
	ErrInvalidStage = errors.New("call: invalid stage for command")

	// ErrEmptyTranscript marks a turn whose utterance produced no text.
	// The reply stage is never entered for such a turn.
	ErrEmptyTranscript = errors.New("call: empty transcript")
)
