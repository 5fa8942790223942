// Package content defines how quiz material reaches the engine. Storage and
// editing live elsewhere; the engine only reads ordered questions through the
// Source interface and fixes its selection once at session start.
package content

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"livequiz-service/internal/domain"
)

// Source loads quiz content (from cache/backing store).
type Source interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Mode selects which questions of the combined quizzes are played.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeRandom Mode = "random"
	ModeRange  Mode = "range"
)

// Order is the ordering policy applied after selection.
type Order string

const (
	OrderSequential Order = "sequential"
	OrderShuffled   Order = "shuffled"
)

// Selection describes the question set for one session.
type Selection struct {
	QuizIDs []string `json:"quizIds" yaml:"quizIds"`
	Mode    Mode     `json:"mode" yaml:"mode"`
	Count   int      `json:"count,omitempty" yaml:"count"`         // random mode: sample size
	Start   int      `json:"start,omitempty" yaml:"start"`         // range mode: first index (inclusive)
	End     int      `json:"end,omitempty" yaml:"end"`             // range mode: last index (inclusive)
	Order   Order    `json:"order,omitempty" yaml:"order"`
	Seed    int64    `json:"seed,omitempty" yaml:"seed"`           // zero means time-seeded
}

// ResolveQuestionSet loads the selected quizzes and returns the ordered
// question list the session will play. Every returned question has at least
// two choices and one correct choice.
func ResolveQuestionSet(ctx context.Context, src Source, sel Selection) ([]domain.Question, error) {
	if len(sel.QuizIDs) == 0 {
		return nil, fmt.Errorf("resolve question set: %w", domain.ErrQuizNotFound)
	}

	var pool []domain.Question
	for _, id := range sel.QuizIDs {
		quiz, err := src.GetQuiz(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve question set %q: %w", id, err)
		}
		for _, q := range quiz.Questions {
			if err := validateQuestion(q); err != nil {
				return nil, fmt.Errorf("quiz %q question %q: %w", id, q.ID, err)
			}
			pool = append(pool, q)
		}
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("resolve question set: no questions in %v", sel.QuizIDs)
	}

	rnd := newRand(sel.Seed)

	var picked []domain.Question
	switch sel.Mode {
	case ModeAll, "":
		picked = pool
	case ModeRandom:
		count := sel.Count
		if count <= 0 || count > len(pool) {
			count = len(pool)
		}
		picked = sampleInOrder(pool, count, rnd)
	case ModeRange:
		start, end := sel.Start, sel.End
		if start < 0 {
			start = 0
		}
		if end >= len(pool) {
			end = len(pool) - 1
		}
		if start > end {
			return nil, fmt.Errorf("resolve question set: empty range [%d,%d]", sel.Start, sel.End)
		}
		picked = append(picked, pool[start:end+1]...)
	default:
		return nil, fmt.Errorf("resolve question set: unknown mode %q", sel.Mode)
	}

	if sel.Order == OrderShuffled {
		shuffled := make([]domain.Question, len(picked))
		copy(shuffled, picked)
		rnd.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		return shuffled, nil
	}

	out := make([]domain.Question, len(picked))
	copy(out, picked)
	return out, nil
}

// sampleInOrder picks count distinct questions but keeps their original
// relative order, so sequential sessions stay faithful to the quiz author.
func sampleInOrder(pool []domain.Question, count int, rnd *rand.Rand) []domain.Question {
	indices := rnd.Perm(len(pool))[:count]
	chosen := make(map[int]struct{}, count)
	for _, i := range indices {
		chosen[i] = struct{}{}
	}
	out := make([]domain.Question, 0, count)
	for i, q := range pool {
		if _, ok := chosen[i]; ok {
			out = append(out, q)
		}
	}
	return out
}

func validateQuestion(q domain.Question) error {
	if len(q.Choices) < 2 {
		return fmt.Errorf("needs at least two choices, has %d", len(q.Choices))
	}
	if len(q.CorrectSet()) == 0 {
		return fmt.Errorf("has no correct choice")
	}
	return nil
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
