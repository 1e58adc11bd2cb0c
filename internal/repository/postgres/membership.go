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

type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

func (s *MembershipStore) Find(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) (*models.ChannelMembership, error) {
	// (channel_id, user_id) is the primary key, so this is a single
	// index lookup. It runs before every channel-scoped operation —
	// the one query the whole authorization model hangs on.
	query := `
		SELECT channel_id, user_id, role, last_read_at
		FROM channel_memberships
		WHERE channel_id = $1 AND user_id = $2`

	var m models.ChannelMembership
	err := s.pool.QueryRow(ctx, query, channelID, userID).Scan(
		&m.ChannelID,
		&m.UserID,
		&m.Role,
		&m.LastReadAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return &m, nil
}

func (s *MembershipStore) UpdateLastRead(ctx context.Context, channelID uuid.UUID, userID uuid.UUID, at time.Time) error {
	// UPDATE of a missing row matches zero rows and is a clean no-op,
	// which is exactly the contract: non-members get silence, not errors.
	query := `
		UPDATE channel_memberships
		SET last_read_at = $3
		WHERE channel_id = $1 AND user_id = $2`

	_, err := s.pool.Exec(ctx, query, channelID, userID, at)
	if err != nil {
		return fmt.Errorf("update last read: %w", err)
	}
	return nil
}
