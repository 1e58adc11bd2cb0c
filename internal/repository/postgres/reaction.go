package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReactionStore struct {
	pool *pgxpool.Pool
}

func NewReactionStore(pool *pgxpool.Pool) *ReactionStore {
	return &ReactionStore{pool: pool}
}

func (s *ReactionStore) Add(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) (bool, error) {
	// ON CONFLICT DO NOTHING makes the triple the idempotency key: the
	// second identical add inserts zero rows, and RowsAffected tells the
	// caller nothing changed so nothing should be broadcast. The store's
	// unique constraint does the coordination — no lock in the gateway.
	query := `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, messageID, userID, emoji)
	if err != nil {
		return false, fmt.Errorf("add reaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *ReactionStore) Remove(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) (bool, error) {
	// DELETE of a missing row affects zero rows — naturally idempotent.
	query := `
		DELETE FROM message_reactions
		WHERE message_id = $1 AND user_id = $2 AND emoji = $3`

	tag, err := s.pool.Exec(ctx, query, messageID, userID, emoji)
	if err != nil {
		return false, fmt.Errorf("remove reaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
