package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"livequiz-service/internal/domain"
)

// SummaryStore persists finished session results in Redis so they
// survive session eviction and outlive a single process.
type SummaryStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaryStore(client *redis.Client, ttl time.Duration) *SummaryStore {
	return &SummaryStore{client: client, ttl: ttl}
}

func (s *SummaryStore) SaveSummary(ctx context.Context, summary domain.SessionSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(summary.SessionID), raw, s.ttl).Err()
}

func (s *SummaryStore) GetSummary(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SessionSummary{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionSummary{}, err
	}
	var summary domain.SessionSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return domain.SessionSummary{}, err
	}
	return summary, nil
}

func (s *SummaryStore) key(sessionID string) string {
	return "session:summary:" + sessionID
}
