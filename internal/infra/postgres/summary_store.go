package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"livequiz-service/internal/domain"
)

// SummaryStore archives finished session results as JSONB rows.
type SummaryStore struct {
	pool *pgxpool.Pool
}

func NewSummaryStore(pool *pgxpool.Pool) *SummaryStore {
	return &SummaryStore{pool: pool}
}

func (s *SummaryStore) SaveSummary(ctx context.Context, summary domain.SessionSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO session_summaries (session_id, room_code, ended_at, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET data = EXCLUDED.data, ended_at = EXCLUDED.ended_at`,
		summary.SessionID, summary.RoomCode, summary.EndedAt, raw)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

func (s *SummaryStore) GetSummary(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM session_summaries WHERE session_id=$1`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SessionSummary{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("get summary: %w", err)
	}
	var summary domain.SessionSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return domain.SessionSummary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return summary, nil
}
