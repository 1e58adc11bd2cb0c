package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MentionStore struct {
	pool *pgxpool.Pool
}

func NewMentionStore(pool *pgxpool.Pool) *MentionStore {
	return &MentionStore{pool: pool}
}

func (s *MentionStore) Create(ctx context.Context, messageID int64, userID uuid.UUID) error {
	// A client that lists the same user twice in the mention array should
	// not produce two rows or two errors.
	query := `
		INSERT INTO message_mentions (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query, messageID, userID)
	if err != nil {
		return fmt.Errorf("insert mention: %w", err)
	}
	return nil
}
