package ws

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echogate/internal/models"
	"github.com/lalith-99/echogate/internal/repository"
)

// Test doubles for the gateway's collaborators: in-memory stores with the
// same atomicity contracts as the Postgres ones, and a broadcaster that
// records emissions instead of performing I/O.

type publishedEvent struct {
	scope  string // "group" | "group-except" | "user" | "all"
	group  string
	except uuid.UUID
	userID uuid.UUID
	event  string
	data   any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (r *recordingBroadcaster) record(e publishedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingBroadcaster) Publish(group, event string, data any) {
	r.record(publishedEvent{scope: "group", group: group, event: event, data: data})
}

func (r *recordingBroadcaster) PublishExcept(group string, except uuid.UUID, event string, data any) {
	r.record(publishedEvent{scope: "group-except", group: group, except: except, event: event, data: data})
}

func (r *recordingBroadcaster) PublishToUser(userID uuid.UUID, event string, data any) {
	r.record(publishedEvent{scope: "user", userID: userID, event: event, data: data})
}

func (r *recordingBroadcaster) PublishAll(event string, data any) {
	r.record(publishedEvent{scope: "all", event: event, data: data})
}

func (r *recordingBroadcaster) byEvent(event string) []publishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]publishedEvent, 0)
	for _, e := range r.events {
		if e.event == event {
			matched = append(matched, e)
		}
	}
	return matched
}

// ---------------------------------------------------------------------

type fakeChannelStore struct {
	mu       sync.Mutex
	channels map[uuid.UUID]*models.Channel
}

func newFakeChannelStore() *fakeChannelStore {
	return &fakeChannelStore{channels: make(map[uuid.UUID]*models.Channel)}
}

func (s *fakeChannelStore) add(channelID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channelID] = &models.Channel{ID: channelID, CreatedAt: time.Now().UTC()}
}

func (s *fakeChannelStore) GetByID(_ context.Context, channelID uuid.UUID) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, nil
	}
	copied := *ch
	return &copied, nil
}

func (s *fakeChannelStore) TouchLastMessage(_ context.Context, channelID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[channelID]; ok {
		ch.LastMessageAt = at
	}
	return nil
}

func (s *fakeChannelStore) lastMessageAt(channelID uuid.UUID) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[channelID]; ok {
		return ch.LastMessageAt
	}
	return time.Time{}
}

// ---------------------------------------------------------------------

type membershipKey struct {
	channelID uuid.UUID
	userID    uuid.UUID
}

type fakeMembershipStore struct {
	mu   sync.Mutex
	rows map[membershipKey]*models.ChannelMembership
}

func newFakeMembershipStore() *fakeMembershipStore {
	return &fakeMembershipStore{rows: make(map[membershipKey]*models.ChannelMembership)}
}

func (s *fakeMembershipStore) add(channelID, userID uuid.UUID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[membershipKey{channelID, userID}] = &models.ChannelMembership{
		ChannelID: channelID,
		UserID:    userID,
		Role:      role,
	}
}

func (s *fakeMembershipStore) Find(_ context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[membershipKey{channelID, userID}]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (s *fakeMembershipStore) UpdateLastRead(_ context.Context, channelID, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.rows[membershipKey{channelID, userID}]; ok {
		m.LastReadAt = &at
	}
	return nil
}

// ---------------------------------------------------------------------

type fakeReactionStore struct {
	mu   sync.Mutex
	rows []models.MessageReaction
}

func newFakeReactionStore() *fakeReactionStore {
	return &fakeReactionStore{rows: make([]models.MessageReaction, 0)}
}

func (s *fakeReactionStore) Add(_ context.Context, messageID int64, userID uuid.UUID, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.MessageID == messageID && r.UserID == userID && r.Emoji == emoji {
			return false, nil
		}
	}
	s.rows = append(s.rows, models.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	})
	return true, nil
}

func (s *fakeReactionStore) Remove(_ context.Context, messageID int64, userID uuid.UUID, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rows {
		if r.MessageID == messageID && r.UserID == userID && r.Emoji == emoji {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeReactionStore) byMessage(messageID int64) []models.MessageReaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]models.MessageReaction, 0)
	for _, r := range s.rows {
		if r.MessageID == messageID {
			matched = append(matched, r)
		}
	}
	return matched
}

// ---------------------------------------------------------------------

type fakeMentionStore struct {
	mu   sync.Mutex
	rows []models.MessageMention
}

func newFakeMentionStore() *fakeMentionStore {
	return &fakeMentionStore{rows: make([]models.MessageMention, 0)}
}

func (s *fakeMentionStore) Create(_ context.Context, messageID int64, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.MessageID == messageID && m.UserID == userID {
			return nil
		}
	}
	s.rows = append(s.rows, models.MessageMention{MessageID: messageID, UserID: userID})
	return nil
}

func (s *fakeMentionStore) byMessage(messageID int64) []models.MessageMention {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]models.MessageMention, 0)
	for _, m := range s.rows {
		if m.MessageID == messageID {
			matched = append(matched, m)
		}
	}
	return matched
}

// ---------------------------------------------------------------------

type fakeMessageStore struct {
	mu          sync.Mutex
	nextID      int64
	messages    map[int64]*models.Message
	attachments map[int64][]models.MessageAttachment

	reactions *fakeReactionStore
	mentions  *fakeMentionStore
}

func newFakeMessageStore(reactions *fakeReactionStore, mentions *fakeMentionStore) *fakeMessageStore {
	return &fakeMessageStore{
		nextID:      1,
		messages:    make(map[int64]*models.Message),
		attachments: make(map[int64][]models.MessageAttachment),
		reactions:   reactions,
		mentions:    mentions,
	}
}

func (s *fakeMessageStore) Create(_ context.Context, params repository.CreateMessageParams) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	msg := &models.Message{
		ID:           s.nextID,
		ChannelID:    params.ChannelID,
		SenderID:     params.SenderID,
		SenderName:   params.SenderName,
		SenderAvatar: params.SenderAvatar,
		Content:      params.Content,
		Kind:         params.Kind,
		ParentID:     params.ParentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.nextID++
	s.messages[msg.ID] = msg
	copied := *msg
	return &copied, nil
}

func (s *fakeMessageStore) GetByID(_ context.Context, messageID int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

func (s *fakeMessageStore) GetEnriched(ctx context.Context, messageID int64) (*models.EnrichedMessage, error) {
	msg, err := s.GetByID(ctx, messageID)
	if err != nil || msg == nil {
		return nil, err
	}
	s.mu.Lock()
	attachments := append([]models.MessageAttachment{}, s.attachments[messageID]...)
	s.mu.Unlock()
	return &models.EnrichedMessage{
		Message:     *msg,
		Reactions:   s.reactions.byMessage(messageID),
		Mentions:    s.mentions.byMessage(messageID),
		Attachments: attachments,
	}, nil
}

func (s *fakeMessageStore) ListEnrichedByChannel(ctx context.Context, channelID uuid.UUID, before int64, limit int) ([]models.EnrichedMessage, error) {
	s.mu.Lock()
	ids := make([]int64, 0)
	for id, msg := range s.messages {
		if msg.ChannelID != channelID {
			continue
		}
		if before > 0 && id >= before {
			continue
		}
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]models.EnrichedMessage, 0, len(ids))
	for _, id := range ids {
		enriched, err := s.GetEnriched(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *enriched)
	}
	return out, nil
}

func (s *fakeMessageStore) UpdateContent(_ context.Context, messageID int64, content string, at time.Time) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, nil
	}
	msg.Content = content
	msg.IsEdited = true
	msg.UpdatedAt = at
	copied := *msg
	return &copied, nil
}

func (s *fakeMessageStore) SoftDelete(_ context.Context, messageID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[messageID]; ok {
		msg.DeletedAt = &at
		msg.UpdatedAt = at
	}
	return nil
}

func (s *fakeMessageStore) IncrementReplyCount(_ context.Context, parentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[parentID]; ok {
		msg.ReplyCount++
	}
	return nil
}

func (s *fakeMessageStore) AddAttachments(_ context.Context, messageID int64, attachments []models.MessageAttachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range attachments {
		a.ID = int64(len(s.attachments[messageID]) + 1)
		a.MessageID = messageID
		s.attachments[messageID] = append(s.attachments[messageID], a)
	}
	return nil
}

func (s *fakeMessageStore) stored(messageID int64) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil
	}
	copied := *msg
	return &copied
}

// ---------------------------------------------------------------------

type fakePresenceStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.PresenceRecord
}

func newFakePresenceStore() *fakePresenceStore {
	return &fakePresenceStore{rows: make(map[uuid.UUID]models.PresenceRecord)}
}

func (s *fakePresenceStore) Upsert(_ context.Context, userID uuid.UUID, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[userID] = models.PresenceRecord{UserID: userID, Status: status, LastSeenAt: at}
	return nil
}

func (s *fakePresenceStore) get(userID uuid.UUID) (models.PresenceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[userID]
	return rec, ok
}
