package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fanoutChannel is the Redis pub/sub channel shared by all gateway
// instances.
const fanoutChannel = "echogate:fanout"

// relayEnvelope is what travels through Redis: the broadcast scope plus
// the original frame. Origin lets an instance skip its own echoes.
type relayEnvelope struct {
	Origin string          `json:"origin"`
	Scope  string          `json:"scope"` // "group" | "user" | "all"
	Group  string          `json:"group,omitempty"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// Relay is a Broadcaster that fans out locally through the Hub and
// mirrors every publication to Redis so sibling gateway instances can
// replay it into THEIR hubs. A channel's broadcast group is thereby the
// union of its subscribers across instances.
//
// PublishExcept only excludes on the origin instance: the excluded
// connection id doesn't exist anywhere else, so siblings deliver to the
// whole group — which is the right outcome for typing indicators.
type Relay struct {
	hub        *Hub
	rdb        *redis.Client
	instanceID string
	logger     *zap.Logger
}

func NewRelay(hub *Hub, rdb *redis.Client, logger *zap.Logger) *Relay {
	return &Relay{
		hub:        hub,
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

// Run subscribes to the fanout channel and replays frames from sibling
// instances into the local hub. Blocks until ctx is cancelled; meant to
// run in its own goroutine from main.
func (r *Relay) Run(ctx context.Context) {
	sub := r.rdb.Subscribe(ctx, fanoutChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.deliver(msg.Payload)
		}
	}
}

func (r *Relay) deliver(payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("relay: malformed envelope", zap.Error(err))
		return
	}
	if env.Origin == r.instanceID {
		return
	}

	switch env.Scope {
	case "group", "user":
		r.hub.Publish(env.Group, env.Event, env.Data)
	case "all":
		r.hub.PublishAll(env.Event, env.Data)
	default:
		r.logger.Warn("relay: unknown scope", zap.String("scope", env.Scope))
	}
}

// mirror publishes the envelope to Redis. Fire-and-forget: the local
// delivery already happened, and a Redis hiccup must not fail the
// requesting connection's operation.
func (r *Relay) mirror(scope, group, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		r.logger.Error("relay: marshal payload", zap.Error(err))
		return
	}
	env := relayEnvelope{
		Origin: r.instanceID,
		Scope:  scope,
		Group:  group,
		Event:  event,
		Data:   raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("relay: marshal envelope", zap.Error(err))
		return
	}
	if err := r.rdb.Publish(context.Background(), fanoutChannel, body).Err(); err != nil {
		r.logger.Error("relay: publish to redis", zap.Error(err))
	}
}

func (r *Relay) Publish(group, event string, data any) {
	r.hub.Publish(group, event, data)
	r.mirror("group", group, event, data)
}

func (r *Relay) PublishExcept(group string, except uuid.UUID, event string, data any) {
	r.hub.PublishExcept(group, except, event, data)
	r.mirror("group", group, event, data)
}

func (r *Relay) PublishToUser(userID uuid.UUID, event string, data any) {
	r.hub.PublishToUser(userID, event, data)
	r.mirror("user", UserGroup(userID), event, data)
}

func (r *Relay) PublishAll(event string, data any) {
	r.hub.PublishAll(event, data)
	r.mirror("all", "", event, data)
}
