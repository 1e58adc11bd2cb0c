package ws

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcast group addressing. One group per channel, one private group per
// user; presence uses no group at all (it goes to every connection).
func ChannelGroup(channelID uuid.UUID) string {
	return "channel:" + channelID.String()
}

func UserGroup(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Broadcaster is the capability handlers publish through. They depend on
// this interface, not on the Hub, so tests can swap in a recorder and a
// multi-instance deployment can swap in the Redis relay.
type Broadcaster interface {
	// Publish delivers an event to every connection in a group.
	Publish(group, event string, data any)

	// PublishExcept delivers to a group, skipping one connection —
	// used by typing indicators, which never echo to the typist.
	PublishExcept(group string, except uuid.UUID, event string, data any)

	// PublishToUser delivers to all of one user's active connections
	// via their private group.
	PublishToUser(userID uuid.UUID, event string, data any)

	// PublishAll delivers to every connection on this gateway.
	PublishAll(event string, data any)
}

// Hub is the connection registry and the local fan-out. It owns the
// group membership maps; nothing else in the process may address a
// connection directly.
//
// Locking: a single RWMutex over both maps. Every critical section is a
// map operation or an iteration that only enqueues onto per-client
// buffered channels — the lock is never held across I/O or a repository
// call.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	groups  map[string]map[uuid.UUID]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		groups:  make(map[string]map[uuid.UUID]*Client),
		logger:  logger,
	}
}

// Register adds an authenticated connection and subscribes it to the
// user's private group, so "notify user X" works from the first moment
// regardless of which channels the connection ever joins.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.addToGroup(UserGroup(c.identity.UserID), c)
	h.mu.Unlock()

	h.logger.Info("connection registered",
		zap.String("connection_id", c.id.String()),
		zap.String("user_id", c.identity.UserID.String()),
	)
}

// Unregister removes the connection from every group it is in. Called
// from the connection's teardown path, so it runs for abrupt drops too.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	for group := range c.groups {
		h.removeFromGroup(group, c)
	}
	delete(h.clients, c.id)
	h.mu.Unlock()

	h.logger.Info("connection unregistered",
		zap.String("connection_id", c.id.String()),
		zap.String("user_id", c.identity.UserID.String()),
	)
}

// Subscribe adds the connection to a broadcast group.
func (h *Hub) Subscribe(c *Client, group string) {
	h.mu.Lock()
	h.addToGroup(group, c)
	h.mu.Unlock()
}

// Unsubscribe removes the connection from a group. Leaving a group the
// connection never joined is a no-op.
func (h *Hub) Unsubscribe(c *Client, group string) {
	h.mu.Lock()
	h.removeFromGroup(group, c)
	h.mu.Unlock()
}

// Subscribed reports whether the connection currently belongs to a group.
func (h *Hub) Subscribed(c *Client, group string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.groups[group]
}

func (h *Hub) addToGroup(group string, c *Client) {
	members, ok := h.groups[group]
	if !ok {
		members = make(map[uuid.UUID]*Client)
		h.groups[group] = members
	}
	members[c.id] = c
	c.groups[group] = true
}

func (h *Hub) removeFromGroup(group string, c *Client) {
	if members, ok := h.groups[group]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	delete(c.groups, group)
}

func (h *Hub) Publish(group, event string, data any) {
	h.PublishExcept(group, uuid.Nil, event, data)
}

func (h *Hub) PublishExcept(group string, except uuid.UUID, event string, data any) {
	f := frame{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.groups[group] {
		if id == except {
			continue
		}
		c.enqueue(f)
	}
}

func (h *Hub) PublishToUser(userID uuid.UUID, event string, data any) {
	h.Publish(UserGroup(userID), event, data)
}

func (h *Hub) PublishAll(event string, data any) {
	f := frame{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(f)
	}
}
