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
	"github.com/lalith-99/echogate/internal/repository"
)

const messageColumns = `id, channel_id, sender_id, sender_name, sender_avatar,
	content, message_type, parent_message_id, reply_count, is_edited,
	deleted_at, created_at, updated_at`

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.SenderAvatar,
		&msg.Content,
		&msg.Kind,
		&msg.ParentID,
		&msg.ReplyCount,
		&msg.IsEdited,
		&msg.DeletedAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) Create(ctx context.Context, params repository.CreateMessageParams) (*models.Message, error) {
	// Messages use bigserial, so Postgres generates the ID; RETURNING
	// gives the full row back including both timestamps.
	query := `
		INSERT INTO messages (channel_id, sender_id, sender_name, sender_avatar,
			content, message_type, parent_message_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING ` + messageColumns

	msg, err := scanMessage(s.pool.QueryRow(ctx, query,
		params.ChannelID,
		params.SenderID,
		params.SenderName,
		params.SenderAvatar,
		params.Content,
		params.Kind,
		params.ParentID,
	))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) GetEnriched(ctx context.Context, messageID int64) (*models.EnrichedMessage, error) {
	msg, err := s.GetByID(ctx, messageID)
	if err != nil || msg == nil {
		return nil, err
	}

	enriched := models.EnrichedMessage{
		Message:     *msg,
		Reactions:   make([]models.MessageReaction, 0),
		Mentions:    make([]models.MessageMention, 0),
		Attachments: make([]models.MessageAttachment, 0),
	}

	if err := s.loadReactions(ctx, &enriched); err != nil {
		return nil, err
	}
	if err := s.loadMentions(ctx, &enriched); err != nil {
		return nil, err
	}
	if err := s.loadAttachments(ctx, &enriched); err != nil {
		return nil, err
	}
	return &enriched, nil
}

func (s *MessageStore) ListEnrichedByChannel(ctx context.Context, channelID uuid.UUID, before int64, limit int) ([]models.EnrichedMessage, error) {
	// Cursor-based pagination, same convention as the REST layer:
	// before=0 → latest page; before=N → messages with id < N.
	// ORDER BY id DESC because bigserial is monotonically increasing —
	// same order as time, cheaper to sort on.
	var query string
	var args []any

	if before > 0 {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE channel_id = $1 AND id < $2
			ORDER BY id DESC
			LIMIT $3`
		args = []any{channelID, before, limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE channel_id = $1
			ORDER BY id DESC
			LIMIT $2`
		args = []any{channelID, limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.EnrichedMessage, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, models.EnrichedMessage{
			Message:     *msg,
			Reactions:   make([]models.MessageReaction, 0),
			Mentions:    make([]models.MessageMention, 0),
			Attachments: make([]models.MessageAttachment, 0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	for i := range messages {
		if err := s.loadReactions(ctx, &messages[i]); err != nil {
			return nil, err
		}
		if err := s.loadMentions(ctx, &messages[i]); err != nil {
			return nil, err
		}
		if err := s.loadAttachments(ctx, &messages[i]); err != nil {
			return nil, err
		}
	}

	return messages, nil
}

func (s *MessageStore) UpdateContent(ctx context.Context, messageID int64, content string, at time.Time) (*models.Message, error) {
	query := `
		UPDATE messages
		SET content = $2, is_edited = true, updated_at = $3
		WHERE id = $1
		RETURNING ` + messageColumns

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID, content, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update message content: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) SoftDelete(ctx context.Context, messageID int64, at time.Time) error {
	// Content stays in the row. Read paths are responsible for never
	// serving it once deleted_at is set.
	query := `
		UPDATE messages
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, messageID, at)
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	return nil
}

func (s *MessageStore) IncrementReplyCount(ctx context.Context, parentID int64) error {
	// reply_count = reply_count + 1 is evaluated inside the row lock,
	// so two concurrent replies both land: no read-modify-write race.
	// A missing parent matches zero rows — deliberately not an error.
	query := `
		UPDATE messages
		SET reply_count = reply_count + 1
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, parentID)
	if err != nil {
		return fmt.Errorf("increment reply count: %w", err)
	}
	return nil
}

func (s *MessageStore) AddAttachments(ctx context.Context, messageID int64, attachments []models.MessageAttachment) error {
	for _, a := range attachments {
		query := `
			INSERT INTO message_attachments (message_id, url, name, mime_type)
			VALUES ($1, $2, $3, $4)`
		if _, err := s.pool.Exec(ctx, query, messageID, a.URL, a.Name, a.MimeType); err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}
	return nil
}

func (s *MessageStore) loadReactions(ctx context.Context, msg *models.EnrichedMessage) error {
	query := `
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, msg.ID)
	if err != nil {
		return fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.MessageReaction
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		msg.Reactions = append(msg.Reactions, r)
	}
	return rows.Err()
}

func (s *MessageStore) loadMentions(ctx context.Context, msg *models.EnrichedMessage) error {
	query := `
		SELECT message_id, user_id
		FROM message_mentions
		WHERE message_id = $1`

	rows, err := s.pool.Query(ctx, query, msg.ID)
	if err != nil {
		return fmt.Errorf("list mentions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.MessageMention
		if err := rows.Scan(&m.MessageID, &m.UserID); err != nil {
			return fmt.Errorf("scan mention: %w", err)
		}
		msg.Mentions = append(msg.Mentions, m)
	}
	return rows.Err()
}

func (s *MessageStore) loadAttachments(ctx context.Context, msg *models.EnrichedMessage) error {
	query := `
		SELECT id, message_id, url, name, mime_type
		FROM message_attachments
		WHERE message_id = $1
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query, msg.ID)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.MessageAttachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.URL, &a.Name, &a.MimeType); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		msg.Attachments = append(msg.Attachments, a)
	}
	return rows.Err()
}
