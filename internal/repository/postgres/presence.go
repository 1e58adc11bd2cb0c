package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PresenceStore struct {
	pool *pgxpool.Pool
}

func NewPresenceStore(pool *pgxpool.Pool) *PresenceStore {
	return &PresenceStore{pool: pool}
}

func (s *PresenceStore) Upsert(ctx context.Context, userID uuid.UUID, status string, at time.Time) error {
	// One row per user, last writer wins. If a disconnect and a fresh
	// connect from the same user race, whichever lands second sticks —
	// acceptable because presence is advisory.
	query := `
		INSERT INTO presence (user_id, status, last_seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET status = EXCLUDED.status, last_seen_at = EXCLUDED.last_seen_at`

	_, err := s.pool.Exec(ctx, query, userID, status, at)
	if err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}
