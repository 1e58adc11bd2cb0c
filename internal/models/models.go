package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a conversation scope. The gateway only ever touches two of its
// columns: the id (for addressing) and last_message_at (bumped on every
// accepted message so channel lists can sort by activity).
type Channel struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Membership roles. Kept as plain string constants rather than a dedicated
// type — they come straight out of a text column and only two checks exist:
// "is there a row at all" and "is the role elevated".
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// ChannelMembership is the durable grant of access to a channel.
//
// (channel_id, user_id) is the primary key, which is what makes every
// authorization check a single-row lookup. LastReadAt is the read-receipt
// marker; nil means the user has never marked the channel read.
type ChannelMembership struct {
	ChannelID  uuid.UUID  `json:"channel_id"`
	UserID     uuid.UUID  `json:"user_id"`
	Role       string     `json:"role"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

// Elevated reports whether the role may act on other members' content
// (today: delete their messages).
func (m *ChannelMembership) Elevated() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}

// MessageState is the lifecycle of a message. We model it as an explicit
// variant instead of letting callers poke at the is_edited/deleted_at columns
// directly: every read and broadcast path switches on the state, so a deleted
// message can't leak its content through a path that forgot to check a flag.
type MessageState string

const (
	StateActive  MessageState = "active"
	StateEdited  MessageState = "edited"
	StateDeleted MessageState = "deleted"
)

// Message is a single chat message.
//
// Why int64 for ID (not UUID)?
//   - Messages are the highest-volume table. bigserial is smaller, naturally
//     ordered (higher ID = newer), and B-tree friendly. Messages always go
//     through this gateway, so a single sequence is fine.
//
// SenderName/SenderAvatar are snapshots taken at send time. They are part of
// the row on purpose: if the sender later renames themselves, history shows
// what the channel saw when the message was sent.
type Message struct {
	ID           int64      `json:"id"`
	ChannelID    uuid.UUID  `json:"channel_id"`
	SenderID     uuid.UUID  `json:"sender_id"`
	SenderName   string     `json:"sender_name"`
	SenderAvatar string     `json:"sender_avatar,omitempty"`
	Content      string     `json:"content"`
	Kind         string     `json:"message_type"`
	ParentID     *int64     `json:"parent_message_id,omitempty"`
	ReplyCount   int        `json:"reply_count"`
	IsEdited     bool       `json:"is_edited"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// KindText is the default message kind when the client sends none.
const KindText = "text"

// State derives the lifecycle variant from the persisted columns. Deletion
// wins over edit: an edited-then-deleted message is Deleted.
func (m *Message) State() MessageState {
	switch {
	case m.DeletedAt != nil:
		return StateDeleted
	case m.IsEdited:
		return StateEdited
	default:
		return StateActive
	}
}

// MessageReaction is one user's emoji on one message.
// (message_id, user_id, emoji) is unique — that triple is the idempotency
// key for both add (create-if-absent) and remove (delete-if-present).
type MessageReaction struct {
	MessageID int64     `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageMention links a message to a user it references. Written once,
// alongside the message, never mutated.
type MessageMention struct {
	MessageID int64     `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// MessageAttachment is a reference to externally stored media. The gateway
// records the reference; the bytes live elsewhere.
type MessageAttachment struct {
	ID        int64  `json:"id"`
	MessageID int64  `json:"message_id"`
	URL       string `json:"url"`
	Name      string `json:"name,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
}

// EnrichedMessage is the canonical outbound shape: the message together with
// everything a fresh history fetch would join in. Broadcasting this exact
// shape (rather than the bare row) guarantees live receivers and
// history-fetchers see identical messages.
type EnrichedMessage struct {
	Message
	Reactions   []MessageReaction   `json:"reactions"`
	Mentions    []MessageMention    `json:"mentions"`
	Attachments []MessageAttachment `json:"attachments"`
}

// ForClient returns the shape safe to serve to clients. The switch is
// exhaustive over the lifecycle on purpose: a deleted message keeps its
// identifiers and thread counter (so reply chains still render) but its
// content and attachments never leave storage.
func (em EnrichedMessage) ForClient() EnrichedMessage {
	switch em.State() {
	case StateDeleted:
		redacted := em
		redacted.Content = ""
		redacted.Attachments = make([]MessageAttachment, 0)
		return redacted
	case StateActive, StateEdited:
		return em
	default:
		return em
	}
}

// Presence statuses. There is deliberately no "away" — the tracker is a
// two-state machine driven only by connect and disconnect.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PresenceRecord is one row per user, upserted on every connect/disconnect.
// Last writer wins; presence is advisory, not authoritative.
type PresenceRecord struct {
	UserID     uuid.UUID `json:"user_id"`
	Status     string    `json:"status"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
