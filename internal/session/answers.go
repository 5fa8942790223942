package session

import (
	"livequiz-service/internal/domain"
	"livequiz-service/internal/scoring"
)

// SubmitAnswer validates and scores one answer submission. Exactly one
// submission per (participant, question) can win; everything else is
// rejected with a distinguishable error and no state change. Scoring uses
// the server-measured elapsed time only; clientClaimedMs is stored on the
// record for diagnostics.
func (s *Session) SubmitAnswer(participantID string, questionIndex int, selection []int, clientClaimedMs int64) (domain.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusQuestion {
		return domain.AnswerRecord{}, domain.ErrInvalidState
	}
	p, ok := s.participants[participantID]
	if !ok || p.removed {
		return domain.AnswerRecord{}, domain.ErrParticipantNotFound
	}
	if questionIndex != s.current || !s.window.accepting {
		return domain.AnswerRecord{}, domain.ErrWindowClosed
	}

	now := s.clock.Now()
	if now.Before(s.window.openedAt) {
		return domain.AnswerRecord{}, domain.ErrClockAnomaly
	}
	elapsed := now.Sub(s.window.openedAt) - s.timing.DisplayDelay
	if elapsed < 0 {
		// arrived while the question was still displayed read-only
		elapsed = 0
	}
	if elapsed > s.window.timeLimit+s.timing.AnswerGrace {
		return domain.AnswerRecord{}, domain.ErrWindowClosed
	}

	if _, dup := p.answers[s.current]; dup {
		return domain.AnswerRecord{}, domain.ErrDuplicateAnswer
	}

	q := s.questions[s.current]
	if err := validateSelection(q, selection); err != nil {
		return domain.AnswerRecord{}, err
	}

	correct := selectionMatches(q, selection)
	points := 0
	if correct {
		timeTaken := elapsed
		if timeTaken <= s.timing.Freeze {
			timeTaken = 0
		}
		points = scoring.Score(q.Points(), q.TimeLimit(), timeTaken, s.timing.Alpha)
	}

	rec := &domain.AnswerRecord{
		ParticipantID:   participantID,
		QuestionIndex:   s.current,
		Selection:       append([]int(nil), selection...),
		Correct:         correct,
		Points:          points,
		Elapsed:         elapsed,
		ClientClaimedMs: clientClaimedMs,
		SubmittedAt:     now,
	}
	p.answers[s.current] = rec
	if points > 0 {
		p.p.Score += points
		s.scoreClock++
		p.scoreSeq = s.scoreClock
	}

	s.sink.Broadcast(s.id, AnswerSubmittedEvent{
		ParticipantID:  participantID,
		AnsweredCount:  s.answeredCountLocked(),
		TotalConnected: s.connectedCountLocked(),
	})

	if s.allConnectedAnsweredLocked() {
		s.closeQuestionLocked()
	}
	return *rec, nil
}

func validateSelection(q domain.Question, selection []int) error {
	if len(selection) == 0 {
		return domain.ErrInvalidChoice
	}
	if !q.MultipleChoice() && len(selection) > 1 {
		return domain.ErrInvalidChoice
	}
	seen := make(map[int]struct{}, len(selection))
	for _, idx := range selection {
		if idx < 0 || idx >= len(q.Choices) {
			return domain.ErrInvalidChoice
		}
		if _, dup := seen[idx]; dup {
			return domain.ErrInvalidChoice
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// selectionMatches checks set-equality against the correct choices,
// order-independent for multiple-choice questions.
func selectionMatches(q domain.Question, selection []int) bool {
	correct := q.CorrectSet()
	if len(selection) != len(correct) {
		return false
	}
	for _, idx := range selection {
		if _, ok := correct[idx]; !ok {
			return false
		}
	}
	return true
}
