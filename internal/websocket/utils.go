package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn serializes writes to a websocket. gorilla connections support one
// concurrent writer, and the stream writes from both the reader loop and the
// event pump.
type Conn struct {
	*websocket.Conn
	mu sync.Mutex
}

// Wrap returns a Conn for c.
func Wrap(c *websocket.Conn) *Conn {
	return &Conn{Conn: c}
}

// WriteTyped sends a strongly-typed payload.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(v)
}

// WriteEvent sends data under the given event name.
func (c *Conn) WriteEvent(event Event, data interface{}) error {
	return c.WriteTyped(Response{Event: event, Data: data})
}

// WriteError sends a typed ErrorResponse.
func (c *Conn) WriteError(code, errMsg string) error {
	return c.WriteTyped(ErrorResponse{Event: EventError, Code: code, Error: errMsg})
}

// ReadJSON reads and decodes one message with a read deadline.
func (c *Conn) ReadJSON(v interface{}) error {
	_ = c.SetReadDeadline(time.Now().Add(readWait))
	return c.Conn.ReadJSON(v)
}
