package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches the id or room code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrInvalidCommand indicates a malformed or unknown command.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrInvalidState rejects a command the current session status does not permit.
	ErrInvalidState = errors.New("command not valid in current state")
	// ErrWindowClosed rejects an answer outside the open question window.
	ErrWindowClosed = errors.New("question window closed")
	// ErrDuplicateAnswer rejects a second submission for the same question.
	ErrDuplicateAnswer = errors.New("answer already recorded for question")
	// ErrInvalidChoice rejects a selection that is out of range or has the wrong cardinality.
	ErrInvalidChoice = errors.New("invalid choice selection")
	// ErrClockAnomaly rejects submissions whose server-measured elapsed time is negative.
	ErrClockAnomaly = errors.New("server clock anomaly on submission")
	// ErrBanned rejects a join or bind from a banned participant.
	ErrBanned = errors.New("participant is banned")
	// ErrJoiningClosed rejects joins while the session is not accepting them.
	ErrJoiningClosed = errors.New("session is not accepting new participants")
	// ErrNotAuthorized rejects control commands from anyone but the session host.
	ErrNotAuthorized = errors.New("not authorized for host action")
)

// ReasonCode maps an error to a stable wire-level code so clients can
// distinguish rejection causes without parsing messages.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrQuizNotFound):
		return "quiz_not_found"
	case errors.Is(err, ErrParticipantNotFound):
		return "not_participant"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, ErrDuplicateAnswer):
		return "duplicate_answer"
	case errors.Is(err, ErrInvalidChoice):
		return "invalid_choice"
	case errors.Is(err, ErrClockAnomaly):
		return "clock_anomaly"
	case errors.Is(err, ErrBanned):
		return "banned"
	case errors.Is(err, ErrJoiningClosed):
		return "joining_closed"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrInvalidCommand):
		return "invalid_command"
	default:
		return "internal"
	}
}
