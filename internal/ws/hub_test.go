package ws

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/echogate/internal/identity"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func hubClient(userID uuid.UUID) *Client {
	return newClient(identity.Identity{UserID: userID, DisplayName: "tester"}, nil, zap.NewNop())
}

func received(t *testing.T, c *Client) []frame {
	t.Helper()
	frames := make([]frame, 0)
	for {
		select {
		case f := <-c.send:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestHubRegisterSubscribesPrivateUserGroup(t *testing.T) {
	hub := NewHub(zap.NewNop())
	userID := uuid.New()

	// Two connections from the same user both sit in the private group.
	first := hubClient(userID)
	second := hubClient(userID)
	hub.Register(first)
	hub.Register(second)

	hub.PublishToUser(userID, "ping", nil)
	require.Len(t, received(t, first), 1)
	require.Len(t, received(t, second), 1)

	// A different user's private group is untouched.
	stranger := hubClient(uuid.New())
	hub.Register(stranger)
	hub.PublishToUser(userID, "ping", nil)
	require.Empty(t, received(t, stranger))
}

func TestHubGroupPublishAndExcept(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := hubClient(uuid.New())
	b := hubClient(uuid.New())
	outsider := hubClient(uuid.New())
	hub.Register(a)
	hub.Register(b)
	hub.Register(outsider)

	group := ChannelGroup(uuid.New())
	hub.Subscribe(a, group)
	hub.Subscribe(b, group)

	hub.Publish(group, "hello", nil)
	require.Len(t, received(t, a), 1)
	require.Len(t, received(t, b), 1)
	require.Empty(t, received(t, outsider))

	// PublishExcept skips exactly the excluded connection.
	hub.PublishExcept(group, a.id, "typing", nil)
	require.Empty(t, received(t, a))
	require.Len(t, received(t, b), 1)
}

func TestHubUnsubscribeAndUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := hubClient(uuid.New())
	hub.Register(a)

	group := ChannelGroup(uuid.New())
	hub.Subscribe(a, group)
	require.True(t, hub.Subscribed(a, group))

	hub.Unsubscribe(a, group)
	require.False(t, hub.Subscribed(a, group))
	// Unsubscribing twice is a no-op.
	hub.Unsubscribe(a, group)

	hub.Subscribe(a, group)
	hub.Unregister(a)
	hub.Publish(group, "hello", nil)
	hub.PublishAll("global", nil)
	require.Empty(t, received(t, a), "unregistered connection receives nothing")
}

func TestHubPublishAllReachesEveryConnection(t *testing.T) {
	hub := NewHub(zap.NewNop())
	clients := make([]*Client, 0, 3)
	for i := 0; i < 3; i++ {
		c := hubClient(uuid.New())
		hub.Register(c)
		clients = append(clients, c)
	}

	hub.PublishAll("presence-changed", nil)
	for _, c := range clients {
		require.Len(t, received(t, c), 1)
	}
}
