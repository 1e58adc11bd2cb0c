package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/echogate/internal/identity"
	"go.uber.org/zap"
)

// sendQueueSize bounds the per-connection outbound buffer. A client that
// can't drain 64 frames is not keeping up; we drop the connection rather
// than let one slow reader hold memory (and a hub iteration) hostage.
const sendQueueSize = 64

// maxFrameSize caps inbound frames. Nothing a client legitimately sends
// (a message with attachments and mentions) comes close to 256 KiB.
const maxFrameSize = 256 * 1024

// Client is one authenticated connection. Ephemeral by design: created at
// the handshake, gone at disconnect, never persisted.
//
// Concurrency: exactly one goroutine reads the socket (the gateway's event
// loop — this is what gives a single client in-order handling of its own
// requests) and exactly one goroutine writes it (the write pump). Everyone
// else talks to the client only through the buffered send channel.
type Client struct {
	id       uuid.UUID
	identity identity.Identity
	conn     *websocket.Conn
	logger   *zap.Logger

	// groups this connection belongs to. Owned by the Hub: only touched
	// while the hub lock is held.
	groups map[string]bool

	send      chan frame
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(ident identity.Identity, conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.New()
	return &Client{
		id:       id,
		identity: ident,
		conn:     conn,
		logger: logger.With(
			zap.String("connection_id", id.String()),
			zap.String("user_id", ident.UserID.String()),
		),
		groups: make(map[string]bool),
		send:   make(chan frame, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking. If the buffer
// is full the connection is past saving: signal teardown instead of
// stalling the publisher.
func (c *Client) enqueue(f frame) {
	select {
	case c.send <- f:
	default:
		c.logger.Warn("send queue full, dropping connection")
		c.close()
	}
}

// close is safe to call from multiple goroutines; only the first wins.
// Closing the underlying conn unblocks the read loop, which runs the
// full teardown path.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// writePump drains the send queue onto the socket. One goroutine per
// connection; a write error means the connection is gone, so it tears
// down the same way a read error would.
func (c *Client) writePump() {
	for {
		select {
		case f := <-c.send:
			if err := c.conn.WriteJSON(f); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
