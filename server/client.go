package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dotside-studios/cgm-agent/protocol"
)

// writeWait bounds a single frame write to a peer.
const writeWait = 10 * time.Second

// Client is one connected WebSocket peer. Writes are serialized so that
// broadcasts and request responses may come from different goroutines.
type Client struct {
	id     string
	conn   *websocket.Conn
	remote string
	mu     sync.Mutex
}

func newClient(conn *websocket.Conn, remote string) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		remote: remote,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) RemoteAddr() string {
	return c.remote
}

// WriteJSON sends v as a single text frame. A peer that does not drain the
// frame within writeWait fails the write.
func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Respond sends a successful response to req.
func (c *Client) Respond(req protocol.WebSocketRequest, payload any) error {
	return c.WriteJSON(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    req.Type,
		Success: true,
		Payload: payload,
	})
}

// RespondError sends a failed response to req.
func (c *Client) RespondError(req protocol.WebSocketRequest, code, message string) error {
	return c.WriteJSON(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    req.Type,
		Success: false,
		Error:   message,
		Payload: map[string]any{
			"code": code,
		},
	})
}

func (c *Client) Close() error {
	return c.conn.Close()
}
