package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("relay: connection closed")

// Conn wraps one ConversationRelay WebSocket.
// Send, IsOpen and Close are safe for concurrent use; reads belong to the
// endpoint's read loop.
type Conn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex // serializes data-frame writes
	sessionID atomic.Value
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewConn wraps an upgraded WebSocket.
//
// Precondition: ws must be open; id must be non-empty.
func NewConn(id string, ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	c := &Conn{id: id, ws: ws, writeTimeout: writeTimeout}
	c.sessionID.Store("")
	return c
}

// ID returns the local connection id.
func (c *Conn) ID() string {
	return c.id
}

// SessionID returns the provider session id announced by the setup frame,
// or empty before setup.
func (c *Conn) SessionID() string {
	return c.sessionID.Load().(string)
}

func (c *Conn) setSessionID(id string) {
	c.sessionID.Store(id)
}

// Send encodes frame as JSON and writes it as one text message.
// A failed write closes the connection.
//
// Postcondition: Returns ErrClosed after Close, or the write error.
func (c *Conn) Send(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.closeLocked()
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ping sends a keepalive control frame. WriteControl may run concurrently
// with Send.
func (c *Conn) ping() error {
	if c.closed.Load() {
		return ErrClosed
	}
	timeout := c.writeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// IsOpen reports whether the connection still accepts frames.
func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

// Close sends a normal-closure frame and closes the socket. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Conn) closeLocked() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}
