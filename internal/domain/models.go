package domain

import "time"

// SessionStatus is the lifecycle phase of a live session.
type SessionStatus string

const (
	StatusLobby     SessionStatus = "lobby"
	StatusCountdown SessionStatus = "countdown"
	StatusQuestion  SessionStatus = "question"
	StatusResults   SessionStatus = "results"
	StatusTop3      SessionStatus = "top3"
	StatusEnded     SessionStatus = "ended"
)

// Choice represents a possible answer for a question.
type Choice struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question. One correct choice means single-choice,
// several mean the participant must select the exact set.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Choices      []Choice `json:"choices"`
	TimeLimitSec int      `json:"timeLimitSec"` // defaults to 20 if zero
	BasePoints   int      `json:"basePoints"`   // defaults to 1000 if zero
}

// CorrectSet returns the indices of the correct choices.
func (q Question) CorrectSet() map[int]struct{} {
	set := make(map[int]struct{})
	for i, c := range q.Choices {
		if c.Correct {
			set[i] = struct{}{}
		}
	}
	return set
}

// MultipleChoice reports whether more than one choice is flagged correct.
func (q Question) MultipleChoice() bool {
	return len(q.CorrectSet()) > 1
}

// TimeLimit returns the answer window length for the question.
func (q Question) TimeLimit() time.Duration {
	if q.TimeLimitSec <= 0 {
		return 20 * time.Second
	}
	return time.Duration(q.TimeLimitSec) * time.Second
}

// Points returns the base point value for the question.
func (q Question) Points() int {
	if q.BasePoints <= 0 {
		return 1000
	}
	return q.BasePoints
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// Participant is a snapshot-friendly view of one player in a session.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Connected   bool   `json:"connected"`
	Score       int    `json:"score"`
}

// AnswerRecord is written once per (participant, question index) and never
// mutated afterwards. ClientClaimedMs carries the client-reported elapsed
// time for diagnostics; scoring always uses the server-measured Elapsed.
type AnswerRecord struct {
	ParticipantID   string        `json:"participantId"`
	QuestionIndex   int           `json:"questionIndex"`
	Selection       []int         `json:"selection"`
	Correct         bool          `json:"correct"`
	Points          int           `json:"points"`
	Elapsed         time.Duration `json:"elapsed"`
	ClientClaimedMs int64         `json:"clientClaimedMs"`
	SubmittedAt     time.Time     `json:"submittedAt"`
}

// LeaderboardEntry is one row of the ranked score table.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Score         int    `json:"score"`
	ScoreGain     int    `json:"scoreGain,omitempty"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// TopN returns a prefix of the ranked entries.
func (l Leaderboard) TopN(n int) []LeaderboardEntry {
	if n > len(l.Entries) {
		n = len(l.Entries)
	}
	return l.Entries[:n]
}

// QuestionStats aggregates per-question outcomes for the final summary.
type QuestionStats struct {
	QuestionIndex int    `json:"questionIndex"`
	QuestionID    string `json:"questionId"`
	Answered      int    `json:"answered"`
	Correct       int    `json:"correct"`
}

// SessionSummary is persisted write-once when a session ends.
type SessionSummary struct {
	SessionID   string          `json:"sessionId"`
	RoomCode    string          `json:"roomCode"`
	EndedAt     time.Time       `json:"endedAt"`
	Leaderboard Leaderboard     `json:"leaderboard"`
	Stats       []QuestionStats `json:"stats"`
}
