package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
	ErrNotImplemented   = errors.New("not implemented")
)

// RemoteError is a failure reported by the daemon.
type RemoteError struct {
	Type    MessageType
	Code    string
	Field   string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches ErrNotImplemented for MsgNotImplemented replies.
func (e *RemoteError) Is(target error) bool {
	return target == ErrNotImplemented && e.Type == MsgNotImplemented
}

// IPCClient is the client for communicating with the ringobridge daemon
type IPCClient struct {
	mu       sync.RWMutex
	conn     transport
	clientID string
	version  string
	channels []string

	connected atomic.Bool
	closeOnce sync.Once

	pending   map[uint32]chan *Message
	pendingMu sync.Mutex
	nextReqID atomic.Uint32

	eventChan chan *Event
	dropped   atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	config ClientConfig
}

// ClientConfig configures the IPC client
type ClientConfig struct {
	SocketPath     string
	WebSocketURL   string // Used instead of SocketPath when set
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	EventBuffer    int
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig(dataDir string) ClientConfig {
	return ClientConfig{
		SocketPath:     filepath.Join(dataDir, "ringobridge.sock"),
		ClientName:     "ringoctl",
		ClientVersion:  "1.0.0",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 30 * time.Second,
		EventBuffer:    256,
	}
}

// NewClient creates a new IPC client
func NewClient(cfg ClientConfig) *IPCClient {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IPCClient{
		pending:   make(map[uint32]chan *Message),
		eventChan: make(chan *Event, cfg.EventBuffer),
		ctx:       ctx,
		cancel:    cancel,
		config:    cfg,
	}
}

// Connect dials the daemon and performs the handshake.
func (c *IPCClient) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	c.wg.Add(1)
	go c.readLoop(conn)

	if err := c.handshake(ctx); err != nil {
		c.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	return nil
}

func (c *IPCClient) dial(ctx context.Context) (transport, error) {
	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	if c.config.WebSocketURL != "" {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.WebSocketURL, nil)
		if err != nil {
			return nil, err
		}
		return newWSConn(ws), nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.config.SocketPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || isConnRefused(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, err
	}
	return newFramedConn(conn), nil
}

func isConnRefused(err error) bool {
	var op *net.OpError
	if errors.As(err, &op) {
		var se *os.SyscallError
		if errors.As(op.Err, &se) {
			return se.Syscall == "connect"
		}
	}
	return false
}

// Close closes the connection to the daemon
func (c *IPCClient) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.drop()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		close(c.eventChan)
	})
	return nil
}

// drop closes the transport and fails every pending request.
func (c *IPCClient) drop() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	c.connected.Store(false)

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// IsConnected returns whether the client is connected
func (c *IPCClient) IsConnected() bool {
	return c.connected.Load()
}

// ClientID returns the ID assigned by the server.
func (c *IPCClient) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

// Channels returns the channels the server announced.
func (c *IPCClient) Channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels
}

// Events returns the stream events. It is closed by Close.
func (c *IPCClient) Events() <-chan *Event {
	return c.eventChan
}

// Dropped reports events discarded because Events was not drained.
func (c *IPCClient) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *IPCClient) handshake(ctx context.Context) error {
	req := &HandshakeRequest{
		ClientVersion:   c.config.ClientVersion,
		ClientName:      c.config.ClientName,
		ProtocolVersion: ProtocolVersion,
	}

	var ack HandshakeResponse
	if err := c.roundTrip(ctx, MsgHandshake, req, MsgHandshakeAck, &ack); err != nil {
		return err
	}

	c.mu.Lock()
	c.clientID = ack.ClientID
	c.version = ack.ServerVersion
	c.channels = ack.Channels
	c.mu.Unlock()
	return nil
}

// request sends a request and waits for the matching response.
func (c *IPCClient) request(ctx context.Context, msgType MessageType, payload any) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		if data, err = Encode(payload); err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	reqID := c.nextReqID.Add(1)
	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	if err := conn.WriteMessage(NewMessage(msgType, reqID, data), 10*time.Second); err != nil {
		c.drop()
		return nil, fmt.Errorf("write message: %w", err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		return resp, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrNotConnected
	}
}

// roundTrip sends a request and decodes a response of type want into out.
func (c *IPCClient) roundTrip(ctx context.Context, t MessageType, payload any, want MessageType, out any) error {
	resp, err := c.request(ctx, t, payload)
	if err != nil {
		return err
	}
	return decodeResponse(resp, want, out)
}

func decodeResponse(resp *Message, want MessageType, out any) error {
	switch resp.Header.Type {
	case want:
	case MsgError, MsgNotImplemented:
		var e ErrorResponse
		if err := Decode(resp.Payload, &e); err != nil {
			return fmt.Errorf("decode error response: %w", err)
		}
		return &RemoteError{Type: resp.Header.Type, Code: e.Code, Field: e.Field, Message: e.Message}
	default:
		return fmt.Errorf("unexpected response: %s", resp.Header.Type)
	}
	if out == nil || len(resp.Payload) == 0 {
		return nil
	}
	return Decode(resp.Payload, out)
}

func (c *IPCClient) readLoop(conn transport) {
	defer c.wg.Done()

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.drop()
			}
			return
		}
		c.handleMessage(conn, msg)
	}
}

func (c *IPCClient) handleMessage(conn transport, msg *Message) {
	switch msg.Header.Type {
	case MsgPong:
		c.deliverResponse(msg)

	case MsgPing:
		conn.WriteMessage(NewMessage(MsgPong, msg.Header.RequestID, nil), 5*time.Second)

	case MsgShutdown:
		c.drop()

	case MsgEvent:
		var event Event
		if err := Decode(msg.Payload, &event); err != nil {
			return
		}
		select {
		case c.eventChan <- &event:
		case <-c.ctx.Done():
		default:
			c.dropped.Add(1)
		}

	default:
		c.deliverResponse(msg)
	}
}

func (c *IPCClient) deliverResponse(msg *Message) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if ch, ok := c.pending[msg.Header.RequestID]; ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

// High-level API methods

// Status requests the daemon status
func (c *IPCClient) Status(ctx context.Context) (*StatusResponse, error) {
	var status StatusResponse
	if err := c.roundTrip(ctx, MsgStatusRequest, nil, MsgStatusResponse, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Ping checks if the daemon is responsive and returns the round-trip time.
func (c *IPCClient) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.roundTrip(ctx, MsgPing, nil, MsgPong, nil); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Call invokes method on channel and returns the raw JSON result.
func (c *IPCClient) Call(ctx context.Context, channel, method string, args any) (json.RawMessage, error) {
	req := &CallRequest{Channel: channel, Method: method}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode args: %w", err)
		}
		req.Args = raw
	}

	var result CallResult
	if err := c.roundTrip(ctx, MsgCall, req, MsgCallResult, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// CallBool invokes a method with a boolean result.
func (c *IPCClient) CallBool(ctx context.Context, channel, method string, args any) (bool, error) {
	raw, err := c.Call(ctx, channel, method, args)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("decode result: %w", err)
	}
	return ok, nil
}

// Subscribe opens the stream on channel. Events arrive on Events; the
// stream's initial event may arrive before Subscribe returns.
func (c *IPCClient) Subscribe(ctx context.Context, channel string) (string, error) {
	var resp SubscribeResponse
	if err := c.roundTrip(ctx, MsgSubscribe, &SubscribeRequest{Channel: channel}, MsgSubscribeResp, &resp); err != nil {
		return "", err
	}
	return resp.SubscriptionID, nil
}

// Unsubscribe closes this client's stream on channel.
func (c *IPCClient) Unsubscribe(ctx context.Context, channel string) error {
	return c.roundTrip(ctx, MsgUnsubscribe, &UnsubscribeRequest{Channel: channel}, MsgUnsubscribeResp, nil)
}
