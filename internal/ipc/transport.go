package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// transport moves whole messages over one connection. ReadMessage is only
// called from one goroutine; WriteMessage may be called concurrently.
type transport interface {
	ReadMessage() (*Message, error)
	WriteMessage(m *Message, timeout time.Duration) error
	SetReadDeadline(t time.Time) error
	RemoteAddr() string
	Kind() string
	Close() error
}

// framedConn speaks the binary header framing over a stream socket.
type framedConn struct {
	conn    net.Conn
	r       *bufio.Reader
	writeMu sync.Mutex
}

func newFramedConn(conn net.Conn) *framedConn {
	return &framedConn{conn: conn, r: bufio.NewReader(conn)}
}

func (c *framedConn) ReadMessage() (*Message, error) { return ReadMessage(c.r) }

func (c *framedConn) WriteMessage(m *Message, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return m.Write(c.conn)
}

func (c *framedConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }
func (c *framedConn) RemoteAddr() string                { return c.conn.RemoteAddr().String() }
func (c *framedConn) Kind() string                      { return "unix" }
func (c *framedConn) Close() error                      { return c.conn.Close() }

// wsConn carries one envelope per WebSocket text frame.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(MaxPayload + 1024)
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadMessage() (*Message, error) {
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected websocket frame type %d", kind)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return env.message(), nil
}

func (c *wsConn) WriteMessage(m *Message, timeout time.Duration) error {
	data, err := json.Marshal(m.envelope())
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }
func (c *wsConn) RemoteAddr() string                { return c.conn.RemoteAddr().String() }
func (c *wsConn) Kind() string                      { return "websocket" }
func (c *wsConn) Close() error                      { return c.conn.Close() }
