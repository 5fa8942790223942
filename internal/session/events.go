package session

import (
	"livequiz-service/internal/domain"
)

// Event is a wire-level message produced by a session. Each variant has a
// fixed type tag so host and player clients decode the same payload shape.
type Event interface {
	EventType() string
}

// EventSink delivers events to the connections bound to a session. Broadcast
// calls made from one transition must reach every bound connection before
// the next transition's events; the transport guarantees this by enqueueing
// into per-connection FIFO queues while the caller still holds the session
// lock.
type EventSink interface {
	Broadcast(sessionID string, e Event)
	SendTo(sessionID, participantID string, e Event)
	Disconnect(sessionID, participantID string, e Event)
}

// ChoiceView is a choice with its correctness withheld.
type ChoiceView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the player-safe projection of a question.
type QuestionView struct {
	ID             string       `json:"id"`
	Text           string       `json:"text"`
	Choices        []ChoiceView `json:"choices"`
	TimeLimitSec   int          `json:"timeLimitSec"`
	MultipleChoice bool         `json:"multipleChoice"`
}

func viewOf(q domain.Question) QuestionView {
	view := QuestionView{
		ID:             q.ID,
		Text:           q.Text,
		TimeLimitSec:   int(q.TimeLimit().Seconds()),
		MultipleChoice: q.MultipleChoice(),
	}
	for _, c := range q.Choices {
		view.Choices = append(view.Choices, ChoiceView{ID: c.ID, Text: c.Text})
	}
	return view
}

// StateEvent is the idempotent snapshot of current session state. It is
// broadcast on roster changes and sent point-to-point to (re)connecting
// participants so a briefly offline client can resynchronize.
type StateEvent struct {
	SessionID        string                    `json:"sessionId"`
	RoomCode         string                    `json:"roomCode,omitempty"`
	Status           domain.SessionStatus      `json:"status"`
	QuestionIndex    int                       `json:"questionIndex"`
	TotalQuestions   int                       `json:"totalQuestions"`
	Question         *QuestionView             `json:"question,omitempty"`
	QuestionStartMs  int64                     `json:"questionStartMs,omitempty"`
	AcceptingAnswers bool                      `json:"acceptingAnswers"`
	AnsweredCount    int                       `json:"answeredCount"`
	Participants     []domain.Participant      `json:"participants"`
	Leaderboard      []domain.LeaderboardEntry `json:"leaderboard,omitempty"`
	OwnScore         *int                      `json:"ownScore,omitempty"`
	ServerTimeMs     int64                     `json:"serverTimeMs"`
}

func (StateEvent) EventType() string { return "session_state" }

// CountdownEvent announces the pre-question countdown.
type CountdownEvent struct {
	Count int `json:"count"`
}

func (CountdownEvent) EventType() string { return "countdown" }

// QuestionStartEvent opens a question window. StartTimeMs is the server
// clock at window open; answers become submittable DisplayDelaySec later.
type QuestionStartEvent struct {
	Index           int          `json:"index"`
	TotalQuestions  int          `json:"totalQuestions"`
	Question        QuestionView `json:"question"`
	StartTimeMs     int64        `json:"startTimeMs"`
	DisplayDelaySec int          `json:"displayDelaySec"`
}

func (QuestionStartEvent) EventType() string { return "question_start" }

// AnswerSubmittedEvent reports live submission progress.
type AnswerSubmittedEvent struct {
	ParticipantID  string `json:"participantId"`
	AnsweredCount  int    `json:"answeredCount"`
	TotalConnected int    `json:"totalConnected"`
}

func (AnswerSubmittedEvent) EventType() string { return "answer_submitted" }

// QuestionEndEvent reveals the correct answer. Leaderboard is empty when the
// session hides interim standings; the scores are still computed and stored.
type QuestionEndEvent struct {
	QuestionIndex int                       `json:"questionIndex"`
	CorrectAnswer []int                     `json:"correctAnswer"`
	Leaderboard   []domain.LeaderboardEntry `json:"leaderboard,omitempty"`
}

func (QuestionEndEvent) EventType() string { return "question_end" }

// Top3Event carries the podium after the last question.
type Top3Event struct {
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

func (Top3Event) EventType() string { return "top3" }

// EndEvent carries the final leaderboard.
type EndEvent struct {
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

func (EndEvent) EventType() string { return "session_end" }

// ReplayEvent announces a reset back to the lobby.
type ReplayEvent struct{}

func (ReplayEvent) EventType() string { return "session_replay" }

// KickedEvent is sent to a participant removed from the current session.
type KickedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (KickedEvent) EventType() string { return "kicked" }

// BannedFromSessionEvent is sent to a participant banned from this session.
type BannedFromSessionEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (BannedFromSessionEvent) EventType() string { return "banned_from_session" }

// BannedPermanentlyEvent is sent to a participant banned from every session
// of this host.
type BannedPermanentlyEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (BannedPermanentlyEvent) EventType() string { return "banned_permanently" }

// ForceDisconnectEvent precedes a server-initiated connection teardown.
type ForceDisconnectEvent struct {
	Reason string `json:"reason"`
}

func (ForceDisconnectEvent) EventType() string { return "force_disconnect" }
