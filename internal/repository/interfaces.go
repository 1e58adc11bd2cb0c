package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echogate/internal/models"
)

// Why context.Context as the first parameter on every method?
//
//   - It's idiomatic Go for anything that does I/O.
//   - It carries deadlines: if the requesting connection goes away, the
//     query it was waiting on gets cancelled too. No wasted work.
//   - Rule of thumb: if a function touches the network, it takes ctx.

// Why these interfaces are deliberately narrow?
//
//   - Each one exposes only the operations the gateway actually performs.
//     Membership management, channel creation, user CRUD — all of that
//     lives in other services; the gateway reads what it must and mutates
//     only what it owns (read markers, presence, message rows).
//   - The atomicity the gateway needs (create-if-absent reactions,
//     reply-counter increments, presence upserts) is part of the CONTRACT
//     here, not an implementation detail: the gateway holds no locks
//     across requests and relies entirely on these primitives.

// ChannelRepository covers the two things the gateway does with channels:
// existence checks and activity bumps.
type ChannelRepository interface {
	// GetByID returns a single channel. Returns nil, nil if not found.
	GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error)

	// TouchLastMessage bumps the channel's last-activity timestamp.
	TouchLastMessage(ctx context.Context, channelID uuid.UUID, at time.Time) error
}

// MembershipRepository is the authorization source of truth. Every
// channel-scoped operation starts with a Find here — the gateway never
// trusts client-asserted membership.
type MembershipRepository interface {
	// Find returns the membership row for (channel, user).
	// Returns nil, nil if the user is not a member. Hot path — called
	// before every send, join, and read marker.
	Find(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) (*models.ChannelMembership, error)

	// UpdateLastRead sets the membership's last-read marker. No-op if
	// the membership row does not exist.
	UpdateLastRead(ctx context.Context, channelID uuid.UUID, userID uuid.UUID, at time.Time) error
}

// CreateMessageParams carries everything needed to persist a new message.
// SenderName/SenderAvatar are the display snapshot taken at send time.
type CreateMessageParams struct {
	ChannelID    uuid.UUID
	SenderID     uuid.UUID
	SenderName   string
	SenderAvatar string
	Content      string
	Kind         string
	ParentID     *int64
}

// MessageRepository handles message persistence and the enriched reads
// that feed both broadcasts and history fetches.
type MessageRepository interface {
	// Create persists a message and returns it with ID and timestamps set.
	Create(ctx context.Context, params CreateMessageParams) (*models.Message, error)

	// GetByID returns a single message. Returns nil, nil if not found.
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// GetEnriched returns the message joined with its reactions, mentions,
	// and attachments — the canonical outbound shape. nil, nil if absent.
	GetEnriched(ctx context.Context, messageID int64) (*models.EnrichedMessage, error)

	// ListEnrichedByChannel returns enriched messages in a channel, newest
	// first, cursor-paginated: before=0 means "from the latest".
	ListEnrichedByChannel(ctx context.Context, channelID uuid.UUID, before int64, limit int) ([]models.EnrichedMessage, error)

	// UpdateContent replaces the content, marks the message edited, and
	// returns the updated row.
	UpdateContent(ctx context.Context, messageID int64, content string, at time.Time) (*models.Message, error)

	// SoftDelete marks the message deleted at the given time. The row and
	// its content stay in storage for audit; read paths must treat it as
	// removed.
	SoftDelete(ctx context.Context, messageID int64, at time.Time) error

	// IncrementReplyCount atomically bumps a parent's reply counter.
	// Silently a no-op if the parent does not exist — a reply whose parent
	// vanished is still a valid standalone message.
	IncrementReplyCount(ctx context.Context, parentID int64) error

	// AddAttachments records attachment references for a message.
	AddAttachments(ctx context.Context, messageID int64, attachments []models.MessageAttachment) error
}

// ReactionRepository. Add and Remove report whether state actually
// changed, which is what gates the broadcast: repeated adds of the same
// (message, user, emoji) triple must not re-broadcast.
type ReactionRepository interface {
	// Add creates the reaction if absent. Returns true if a row was
	// actually created.
	Add(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) (bool, error)

	// Remove deletes the reaction if present. Returns true if a row was
	// actually deleted.
	Remove(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) (bool, error)
}

// MentionRepository records who a message refers to.
type MentionRepository interface {
	// Create persists a mention row. Idempotent: re-creating the same
	// (message, user) pair is a no-op.
	Create(ctx context.Context, messageID int64, userID uuid.UUID) error
}

// PresenceRepository stores the advisory online/offline state.
type PresenceRepository interface {
	// Upsert writes the user's status and last-seen time, creating the
	// row on first sight. Last writer wins.
	Upsert(ctx context.Context, userID uuid.UUID, status string, at time.Time) error
}
