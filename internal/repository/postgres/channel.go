package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/echogate/internal/models"
)

type ChannelStore struct {
	pool *pgxpool.Pool
}

func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

func (s *ChannelStore) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	query := `
		SELECT id, name, last_message_at, created_at
		FROM channels
		WHERE id = $1`

	var ch models.Channel
	err := s.pool.QueryRow(ctx, query, channelID).Scan(
		&ch.ID,
		&ch.Name,
		&ch.LastMessageAt,
		&ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &ch, nil
}

func (s *ChannelStore) TouchLastMessage(ctx context.Context, channelID uuid.UUID, at time.Time) error {
	// A plain single-row UPDATE; if two sends race, either order leaves
	// the column at one of the two send times, which is all "last
	// activity" needs to mean.
	query := `
		UPDATE channels
		SET last_message_at = $2
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, channelID, at)
	if err != nil {
		return fmt.Errorf("touch channel: %w", err)
	}
	return nil
}
