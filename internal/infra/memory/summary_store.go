package memory

import (
	"context"
	"sync"

	"livequiz-service/internal/domain"
)

// SummaryStore keeps finished session results in memory. Summaries
// survive session eviction but not a process restart.
type SummaryStore struct {
	mu        sync.RWMutex
	summaries map[string]domain.SessionSummary
}

func NewSummaryStore() *SummaryStore {
	return &SummaryStore{summaries: make(map[string]domain.SessionSummary)}
}

func (s *SummaryStore) SaveSummary(_ context.Context, summary domain.SessionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summary.SessionID] = summary
	return nil
}

func (s *SummaryStore) GetSummary(_ context.Context, sessionID string) (domain.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[sessionID]
	if !ok {
		return domain.SessionSummary{}, domain.ErrSessionNotFound
	}
	return summary, nil
}
