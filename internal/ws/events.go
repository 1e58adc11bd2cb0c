package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echogate/internal/models"
)

// Every frame on the wire, both directions, is {"event": ..., "data": ...}.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client-to-gateway event names.
const (
	evJoinChannels   = "join-channels"
	evLeaveChannel   = "leave-channel"
	evSendMessage    = "send-message"
	evEditMessage    = "edit-message"
	evDeleteMessage  = "delete-message"
	evAddReaction    = "add-reaction"
	evRemoveReaction = "remove-reaction"
	evTypingStart    = "typing-start"
	evTypingStop     = "typing-stop"
	evMarkRead       = "mark-read"
)

// Gateway-to-client event names.
const (
	evChannelsJoined    = "channels-joined"
	evNewMessage        = "new-message"
	evMessageEdited     = "message-edited"
	evMessageDeleted    = "message-deleted"
	evReactionAdded     = "reaction-added"
	evReactionRemoved   = "reaction-removed"
	evUserTyping        = "user-typing"
	evUserStoppedTyping = "user-stopped-typing"
	evMarkedRead        = "messages-marked-read"
	evMentioned         = "mentioned"
	evPresenceChanged   = "presence-changed"
	evError             = "error"
)

// Inbound payloads. All ids arrive as JSON strings/numbers and unmarshal
// straight into typed fields; a malformed payload fails unmarshalling and
// comes back to the sender as a validation error.

type joinChannelsPayload struct {
	ChannelIDs []uuid.UUID `json:"channelIds"`
}

type leaveChannelPayload struct {
	ChannelID uuid.UUID `json:"channelId"`
}

type attachmentRef struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type sendMessagePayload struct {
	ChannelID   uuid.UUID       `json:"channelId"`
	Content     string          `json:"content"`
	MessageType string          `json:"messageType,omitempty"`
	ParentID    *int64          `json:"parentMessageId,omitempty"`
	Mentions    []uuid.UUID     `json:"mentions,omitempty"`
	Attachments []attachmentRef `json:"attachments,omitempty"`
}

type editMessagePayload struct {
	MessageID int64  `json:"messageId"`
	Content   string `json:"content"`
}

type deleteMessagePayload struct {
	MessageID int64 `json:"messageId"`
}

type reactionPayload struct {
	MessageID int64  `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type typingPayload struct {
	ChannelID uuid.UUID `json:"channelId"`
}

type markReadPayload struct {
	ChannelID     uuid.UUID `json:"channelId"`
	LastMessageID int64     `json:"lastMessageId"`
}

// Outbound payloads.

type channelsJoinedEvent struct {
	ChannelIDs []uuid.UUID `json:"channelIds"`
}

type newMessageEvent struct {
	Message   *models.EnrichedMessage `json:"message"`
	ChannelID uuid.UUID               `json:"channelId"`
}

type messageEditedEvent struct {
	MessageID int64     `json:"messageId"`
	ChannelID uuid.UUID `json:"channelId"`
	Content   string    `json:"content"`
	IsEdited  bool      `json:"isEdited"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// messageDeletedEvent carries only identifiers — never the content.
type messageDeletedEvent struct {
	MessageID int64     `json:"messageId"`
	ChannelID uuid.UUID `json:"channelId"`
}

type reactionEvent struct {
	MessageID int64     `json:"messageId"`
	UserID    uuid.UUID `json:"userId"`
	Emoji     string    `json:"emoji"`
}

type userTypingEvent struct {
	ChannelID uuid.UUID `json:"channelId"`
	UserID    uuid.UUID `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
}

type markedReadEvent struct {
	ChannelID  uuid.UUID `json:"channelId"`
	UserID     uuid.UUID `json:"userId"`
	LastReadAt time.Time `json:"lastReadAt"`
}

type mentionedEvent struct {
	MessageID  int64     `json:"messageId"`
	ChannelID  uuid.UUID `json:"channelId"`
	SenderID   uuid.UUID `json:"senderId"`
	SenderName string    `json:"senderName"`
}

type presenceChangedEvent struct {
	UserID uuid.UUID `json:"userId"`
	Status string    `json:"status"`
}

type errorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
