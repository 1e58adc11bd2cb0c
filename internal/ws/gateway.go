package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/echogate/internal/middleware"
	"github.com/lalith-99/echogate/internal/models"
	"github.com/lalith-99/echogate/internal/repository"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Identity is asserted by the upstream boundary, not by cookies,
		// so cross-origin upgrades carry no ambient authority to abuse.
		return true
	},
}

// Stores bundles the persistence interfaces the gateway operates against.
type Stores struct {
	Channels    repository.ChannelRepository
	Memberships repository.MembershipRepository
	Messages    repository.MessageRepository
	Reactions   repository.ReactionRepository
	Mentions    repository.MentionRepository
	Presence    repository.PresenceRepository
}

// Gateway owns the event loop of every connection: it authenticates the
// handshake (via the identity middleware), registers the connection,
// dispatches its events in arrival order, and flips presence on the way
// in and out.
//
// It publishes through the Broadcaster interface rather than the Hub
// directly, so the fan-out can be the local hub, the Redis relay, or a
// recorder in tests. Group membership, though, always goes through the
// Hub — it is the sole addressing authority.
type Gateway struct {
	hub    *Hub
	bcast  Broadcaster
	stores Stores
	logger *zap.Logger
}

func NewGateway(hub *Hub, bcast Broadcaster, stores Stores, logger *zap.Logger) *Gateway {
	return &Gateway{
		hub:    hub,
		bcast:  bcast,
		stores: stores,
		logger: logger,
	}
}

// HandleConnection is the gin handler for the WebSocket route. It runs
// behind middleware.RequireIdentity, so an unidentified request has
// already been refused with 401 before we get here.
func (g *Gateway) HandleConnection(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	if ident == nil {
		// Route wired without RequireIdentity — refuse rather than serve
		// an anonymous connection.
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	client := newClient(*ident, conn, g.logger)
	client.logger.Info("connection authenticated",
		zap.String("display_name", ident.DisplayName),
		zap.String("email", ident.Email),
	)

	g.hub.Register(client)
	g.setPresence(context.Background(), client, models.StatusOnline)

	go client.writePump()
	g.readLoop(client)
}

// readLoop processes the connection's events one at a time, in arrival
// order. It is the only goroutine reading the socket. The deferred
// disconnect runs on EVERY exit — graceful close, network drop, or a
// dropped slow consumer all tear down identically.
func (g *Gateway) readLoop(client *Client) {
	defer g.disconnect(client)

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		g.dispatch(context.Background(), client, raw)
	}
}

func (g *Gateway) disconnect(client *Client) {
	g.hub.Unregister(client)

	// Best effort: a failed offline flip is logged inside setPresence,
	// never allowed to break teardown.
	g.setPresence(context.Background(), client, models.StatusOffline)
	client.close()
}

func (g *Gateway) setPresence(ctx context.Context, client *Client, status string) {
	now := time.Now().UTC()
	if err := g.stores.Presence.Upsert(ctx, client.identity.UserID, status, now); err != nil {
		client.logger.Error("presence update failed",
			zap.String("status", status),
			zap.Error(err),
		)
	}
	// Presence changes go to every connected client, not to a group.
	g.bcast.PublishAll(evPresenceChanged, presenceChangedEvent{
		UserID: client.identity.UserID,
		Status: status,
	})
}

// dispatch routes one inbound frame to its handler. Handler errors are
// scoped to this connection: a ClientError goes back as-is, anything else
// is logged and surfaced as a generic internal failure. Nothing here ever
// leaks an error to other subscribers.
func (g *Gateway) dispatch(ctx context.Context, client *Client, raw []byte) {
	var f struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		g.sendError(client, "", errValidation("malformed frame"))
		return
	}

	var err error
	switch f.Event {
	case evJoinChannels:
		err = g.joinChannels(ctx, client, f.Data)
	case evLeaveChannel:
		err = g.leaveChannel(client, f.Data)
	case evSendMessage:
		err = g.sendMessage(ctx, client, f.Data)
	case evEditMessage:
		err = g.editMessage(ctx, client, f.Data)
	case evDeleteMessage:
		err = g.deleteMessage(ctx, client, f.Data)
	case evAddReaction:
		err = g.addReaction(ctx, client, f.Data)
	case evRemoveReaction:
		err = g.removeReaction(ctx, client, f.Data)
	case evTypingStart:
		err = g.typing(client, f.Data, true)
	case evTypingStop:
		err = g.typing(client, f.Data, false)
	case evMarkRead:
		err = g.markRead(ctx, client, f.Data)
	default:
		err = errValidation("unknown event: " + f.Event)
	}

	if err != nil {
		g.sendError(client, f.Event, err)
	}
}

func (g *Gateway) sendError(client *Client, event string, err error) {
	var cerr *ClientError
	if !errors.As(err, &cerr) {
		cerr = errInternal("request failed", err)
	}
	if cerr.cause != nil {
		client.logger.Error("event handler failed",
			zap.String("event", event),
			zap.Error(cerr.cause),
		)
	}
	client.enqueue(frame{Event: evError, Data: errorEvent{
		Message: cerr.Message,
		Code:    cerr.Code,
	}})
}

// decodePayload unmarshals an event payload, converting JSON shape errors
// into the validation half of the error taxonomy.
func decodePayload[T any](raw json.RawMessage) (T, error) {
	var payload T
	if len(raw) == 0 {
		return payload, errValidation("missing payload")
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, errValidation("malformed payload")
	}
	return payload, nil
}

// joinChannels re-verifies membership per channel before subscribing.
// Client-asserted membership is never trusted; a denial skips that one id
// and the rest of the batch proceeds. The ack lists the REQUESTED ids —
// callers infer failures from the absence of subsequent channel events.
func (g *Gateway) joinChannels(ctx context.Context, client *Client, raw json.RawMessage) error {
	p, err := decodePayload[joinChannelsPayload](raw)
	if err != nil {
		return err
	}
	if len(p.ChannelIDs) == 0 {
		return errValidation("channelIds must be a non-empty array")
	}

	for _, channelID := range p.ChannelIDs {
		membership, err := g.stores.Memberships.Find(ctx, channelID, client.identity.UserID)
		if err != nil {
			client.logger.Error("membership lookup failed",
				zap.String("channel_id", channelID.String()),
				zap.Error(err),
			)
			continue
		}
		if membership == nil {
			client.logger.Warn("channel join denied: not a member",
				zap.String("channel_id", channelID.String()),
			)
			continue
		}
		g.hub.Subscribe(client, ChannelGroup(channelID))
		client.logger.Info("joined channel",
			zap.String("channel_id", channelID.String()),
		)
	}

	client.enqueue(frame{Event: evChannelsJoined, Data: channelsJoinedEvent{
		ChannelIDs: p.ChannelIDs,
	}})
	return nil
}

// leaveChannel unsubscribes unconditionally: leaving a group you were
// never in is a no-op, so there is nothing to authorize.
func (g *Gateway) leaveChannel(client *Client, raw json.RawMessage) error {
	p, err := decodePayload[leaveChannelPayload](raw)
	if err != nil {
		return err
	}
	g.hub.Unsubscribe(client, ChannelGroup(p.ChannelID))
	return nil
}

// sendMessage is the full pipeline: authorize, persist, bump the thread
// counter, record and deliver mentions, bump channel activity, re-read the
// canonical shape, broadcast. Partial side effects before a persistence
// failure are not rolled back — delivery is at-least-once, and the sender
// gets a generic failure.
func (g *Gateway) sendMessage(ctx context.Context, client *Client, raw json.RawMessage) error {
	p, err := decodePayload[sendMessagePayload](raw)
	if err != nil {
		return err
	}
	if strings.TrimSpace(p.Content) == "" && len(p.Attachments) == 0 {
		return errValidation("message content is empty")
	}

	membership, err := g.stores.Memberships.Find(ctx, p.ChannelID, client.identity.UserID)
	if err != nil {
		return errInternal("failed to send message", err)
	}
	if membership == nil {
		return errAuthorization("not a member of this channel")
	}

	kind := p.MessageType
	if kind == "" {
		kind = models.KindText
	}

	// The sender's display name and avatar are snapshotted into the row —
	// history keeps showing what the channel saw at send time.
	msg, err := g.stores.Messages.Create(ctx, repository.CreateMessageParams{
		ChannelID:    p.ChannelID,
		SenderID:     client.identity.UserID,
		SenderName:   client.identity.DisplayName,
		SenderAvatar: client.identity.AvatarURL,
		Content:      p.Content,
		Kind:         kind,
		ParentID:     p.ParentID,
	})
	if err != nil {
		return errInternal("failed to send message", err)
	}

	// Threaded reply: bump the parent's counter. The increment happens in
	// the store's row lock, so concurrent replies all land. A vanished
	// parent updates zero rows and the reply stands alone.
	if p.ParentID != nil {
		if err := g.stores.Messages.IncrementReplyCount(ctx, *p.ParentID); err != nil {
			return errInternal("failed to send message", err)
		}
	}

	if len(p.Attachments) > 0 {
		attachments := make([]models.MessageAttachment, 0, len(p.Attachments))
		for _, a := range p.Attachments {
			attachments = append(attachments, models.MessageAttachment{
				URL:      a.URL,
				Name:     a.Name,
				MimeType: a.MimeType,
			})
		}
		if err := g.stores.Messages.AddAttachments(ctx, msg.ID, attachments); err != nil {
			return errInternal("failed to send message", err)
		}
	}

	// Mentions are independent per recipient: one failed row or delivery
	// must not block the others or the channel broadcast.
	for _, mentionedID := range p.Mentions {
		if err := g.stores.Mentions.Create(ctx, msg.ID, mentionedID); err != nil {
			client.logger.Error("mention persist failed",
				zap.Int64("message_id", msg.ID),
				zap.String("mentioned_user_id", mentionedID.String()),
				zap.Error(err),
			)
			continue
		}
		g.bcast.PublishToUser(mentionedID, evMentioned, mentionedEvent{
			MessageID:  msg.ID,
			ChannelID:  p.ChannelID,
			SenderID:   client.identity.UserID,
			SenderName: client.identity.DisplayName,
		})
	}

	if err := g.stores.Channels.TouchLastMessage(ctx, p.ChannelID, msg.CreatedAt); err != nil {
		return errInternal("failed to send message", err)
	}

	// Re-fetch rather than assemble in memory: receivers must see exactly
	// what a fresh history fetch would return.
	enriched, err := g.stores.Messages.GetEnriched(ctx, msg.ID)
	if err != nil || enriched == nil {
		return errInternal("failed to send message", err)
	}

	g.bcast.Publish(ChannelGroup(p.ChannelID), evNewMessage, newMessageEvent{
		Message:   enriched,
		ChannelID: p.ChannelID,
	})
	return nil
}

// editMessage is author-only — no role override.
func (g *Gateway) editMessage(ctx context.Context, client *Client, raw json.RawMessage) error {
	p, err := decodePayload[editMessagePayload](raw)
	if err != nil {
		return err
	}
	if strings.TrimSpace(p.Content) == "" {
		return errValidation("message content is empty")
	}

	msg, err := g.stores.Messages.GetByID(ctx, p.MessageID)
	if err != nil {
		return errInternal("failed to edit message", err)
	}
	if msg == nil {
		return errNotFound("message not found")
	}

	switch msg.State() {
	case models.StateDeleted:
		// Deleted content is retired from every live path; for clients
		// the message no longer exists.
		return errNotFound("message not found")
	case models.StateActive, models.StateEdited:
	}

	if msg.SenderID != client.identity.UserID {
		return errAuthorization("only the author can edit a message")
	}

	updated, err := g.stores.Messages.UpdateContent(ctx, p.MessageID, p.Content, time.Now().UTC())
	if err != nil {
		return errInternal("failed to edit message", err)
	}
	if updated == nil {
		return errNotFound("message not found")
	}

	g.bcast.Publish(ChannelGroup(updated.ChannelID), evMessageEdited, messageEditedEvent{
		MessageID: updated.ID,
		ChannelID: updated.ChannelID,
		Content:   updated.Content,
		IsEdited:  updated.IsEdited,
		UpdatedAt: updated.UpdatedAt,
	})
	return nil
}

// deleteMessage allows the author, or an elevated role in the message's
// channel. The delete is soft: the row keeps its content for audit, the
// broadcast carries only identifiers.
func (g *Gateway) deleteMessage(ctx context.Context, client *Client, raw json.RawMessage) error {
	p, err := decodePayload[deleteMessagePayload](raw)
	if err != nil {
		return err
	}

	msg, err := g.stores.Messages.GetByID(ctx, p.MessageID)
	if err != nil {
		return errInternal("failed to delete message", err)
	}
	if msg == nil || msg.State() == models.StateDeleted {
		return errNotFound("message not found")
	}

	if msg.SenderID != client.identity.UserID {
		membership, err := g.stores.Memberships.Find(ctx, msg.ChannelID, client.identity.UserID)
		if err != nil {
			return errInternal("failed to delete message", err)
		}
		if membership == nil || !membership.Elevated() {
			return errAuthorization("not allowed to delete this message")
		}
	}

	if err := g.stores.Messages.SoftDelete(ctx, p.MessageID, time.Now().UTC()); err != nil {
		return errInternal("failed to delete message", err)
	}

	g.bcast.Publish(ChannelGroup(msg.ChannelID), evMessageDeleted, messageDeletedEvent{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
	})
	return nil
}

func (g *Gateway) addReaction(ctx context.Context, client *Client, raw json.RawMessage) error {
	p, err := decodePayload[reactionPayload](raw)
	if err != nil {
		return err
	}
	if p.Emoji == "" {
		return errValidation("emoji is required")
	}

	msg, err := g.liveMessage(ctx, p.MessageID, "failed to add reaction")
	if err != nil {
		return err
	}

	created, err := g.stores.Reactions.Add(ctx, p.MessageID, client.identity.UserID, p.Emoji)
	if err != nil {
		return errInternal("failed to add reaction", err)
	}
	// Broadcast only on actual state change — a repeated add by the same
	// user/emoji inserted nothing, so subscribers hear nothing.
	if created {
		g.bcast.Publish(ChannelGroup(msg.ChannelID), evReactionAdded, reactionEvent{
			MessageID: p.MessageID,
			UserID:    client.identity.UserID,
			Emoji:     p.Emoji,
		})
	}
	return nil
}

func (g *Gateway) removeReaction(ctx context.Context, client *Client, raw json.RawMessage) error {
	p, err := decodePayload[reactionPayload](raw)
	if err != nil {
		return err
	}
	if p.Emoji == "" {
		return errValidation("emoji is required")
	}

	msg, err := g.liveMessage(ctx, p.MessageID, "failed to remove reaction")
	if err != nil {
		return err
	}

	deleted, err := g.stores.Reactions.Remove(ctx, p.MessageID, client.identity.UserID, p.Emoji)
	if err != nil {
		return errInternal("failed to remove reaction", err)
	}
	if deleted {
		g.bcast.Publish(ChannelGroup(msg.ChannelID), evReactionRemoved, reactionEvent{
			MessageID: p.MessageID,
			UserID:    client.identity.UserID,
			Emoji:     p.Emoji,
		})
	}
	return nil
}

// liveMessage loads a message that must still be visible to clients.
// A deleted message is indistinguishable from a missing one out here.
func (g *Gateway) liveMessage(ctx context.Context, messageID int64, failMsg string) (*models.Message, error) {
	msg, err := g.stores.Messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, errInternal(failMsg, err)
	}
	if msg == nil || msg.State() == models.StateDeleted {
		return nil, errNotFound("message not found")
	}
	return msg, nil
}

// typing is purely ephemeral: no persistence, no membership query. The
// authorization already happened when the sender joined the group; a
// connection that never joined simply has its indicator dropped.
func (g *Gateway) typing(client *Client, raw json.RawMessage, start bool) error {
	p, err := decodePayload[typingPayload](raw)
	if err != nil {
		return err
	}

	group := ChannelGroup(p.ChannelID)
	if !g.hub.Subscribed(client, group) {
		return nil
	}

	if start {
		g.bcast.PublishExcept(group, client.id, evUserTyping, userTypingEvent{
			ChannelID: p.ChannelID,
			UserID:    client.identity.UserID,
			UserName:  client.identity.DisplayName,
		})
	} else {
		g.bcast.PublishExcept(group, client.id, evUserStoppedTyping, userTypingEvent{
			ChannelID: p.ChannelID,
			UserID:    client.identity.UserID,
		})
	}
	return nil
}

// markRead persists the membership's read marker and tells the channel.
// A non-member gets silence, not an error — an error would leak whether
// the membership exists.
func (g *Gateway) markRead(ctx context.Context, client *Client, raw json.RawMessage) error {
	p, err := decodePayload[markReadPayload](raw)
	if err != nil {
		return err
	}

	membership, err := g.stores.Memberships.Find(ctx, p.ChannelID, client.identity.UserID)
	if err != nil {
		return errInternal("failed to mark messages read", err)
	}
	if membership == nil {
		return nil
	}

	now := time.Now().UTC()
	if err := g.stores.Memberships.UpdateLastRead(ctx, p.ChannelID, client.identity.UserID, now); err != nil {
		return errInternal("failed to mark messages read", err)
	}

	g.bcast.Publish(ChannelGroup(p.ChannelID), evMarkedRead, markedReadEvent{
		ChannelID:  p.ChannelID,
		UserID:     client.identity.UserID,
		LastReadAt: now,
	})
	return nil
}
