package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ringobridge/internal/bridge"
	"ringobridge/internal/stream"
)

// Backend answers calls and hands out streams. *bridge.Router implements it.
type Backend interface {
	Call(ctx context.Context, channel, method string, args json.RawMessage) (any, error)
	Stream(name string) (stream.Subscribable, bool)
	Channels() []string
}

// Server is the IPC server that manages client connections
type Server struct {
	mu       sync.RWMutex
	cfg      ServerConfig
	backend  Backend
	logger   *slog.Logger
	listener net.Listener
	http     *http.Server
	wsAddr   string
	clients  map[string]*Client

	startedAt time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	nextRequestID atomic.Uint32
}

// Client represents a connected client
type Client struct {
	ID          string
	Transport   string
	Peer        *PeerCredentials
	ConnectedAt time.Time

	mu           sync.Mutex
	name         string
	version      string
	lastActivity time.Time
	subs         map[string]clientSub

	conn      transport
	outbox    chan *Message
	done      chan struct{}
	closeOnce sync.Once
}

type clientSub struct {
	channel string
	stream  stream.Subscribable
}

// ServerConfig configures the IPC server
type ServerConfig struct {
	SocketPath      string        // Unix socket path
	WebSocketAddr   string        // Optional host:port for the WebSocket listener
	Version         string        // Server version
	Platform        string        // Backend description reported by status
	ReadTimeout     time.Duration // Idle time before the server pings a client
	WriteTimeout    time.Duration
	MaxConnections  int
	OutboxSize      int
	RequireSameUser bool
	AllowedOrigins  []string
	Observer        ConnObserver // Optional
	Logger          *slog.Logger
}

// ConnObserver hears about clients coming and going. Calls must not block.
type ConnObserver interface {
	ClientConnected(transport string)
	ClientDisconnected(transport string)
}

// DefaultServerConfig returns the defaults for a daemon rooted at dataDir.
func DefaultServerConfig(dataDir string) ServerConfig {
	return ServerConfig{
		SocketPath:      filepath.Join(dataDir, "ringobridge.sock"),
		Version:         "1.0.0",
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxConnections:  16,
		OutboxSize:      256,
		RequireSameUser: true,
	}
}

// NewServer creates a new IPC server
func NewServer(cfg ServerConfig, backend Backend) (*Server, error) {
	if backend == nil {
		return nil, errors.New("ipc: nil backend")
	}
	if cfg.SocketPath == "" && cfg.WebSocketAddr == "" {
		return nil, errors.New("ipc: no socket path or websocket address")
	}
	def := DefaultServerConfig("")
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = def.OutboxSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		backend: backend,
		logger:  logger.With("component", "ipc"),
		clients: make(map[string]*Client),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins listening for connections
func (s *Server) Start() error {
	s.startedAt = time.Now()
	if s.cfg.SocketPath != "" {
		if err := s.listenUnix(); err != nil {
			return err
		}
	}
	if s.cfg.WebSocketAddr != "" {
		if err := s.listenWebSocket(); err != nil {
			if s.listener != nil {
				s.listener.Close()
			}
			return err
		}
	}

	s.running.Store(true)
	return nil
}

func (s *Server) listenUnix() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if IsSocketListening(s.cfg.SocketPath) {
		return fmt.Errorf("socket %s is already in use", s.cfg.SocketPath)
	}
	if err := CleanupSocket(s.cfg.SocketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := SetSocketPermissions(s.cfg.SocketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.wg.Add(1)
	go s.acceptLoop()
	s.logger.Info("listening", "socket", s.cfg.SocketPath)
	return nil
}

func (s *Server) listenWebSocket() error {
	ln, err := net.Listen("tcp", s.cfg.WebSocketAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.WebSocketAddr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWebSocket)
	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("websocket listener stopped", "error", err)
		}
	}()
	s.wsAddr = ln.Addr().String()
	s.logger.Info("listening", "websocket", s.wsAddr)
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.broadcastShutdown()
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		s.http.Shutdown(ctx)
		cancel()
	}

	s.mu.Lock()
	for _, client := range s.clients {
		client.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timed out waiting for connections to close")
	}

	if s.cfg.SocketPath != "" {
		os.Remove(s.cfg.SocketPath)
	}
	return nil
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// WebSocketAddr returns the bound WebSocket address, if any.
func (s *Server) WebSocketAddr() string {
	return s.wsAddr
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		peer, err := GetPeerCredentials(conn)
		if err != nil {
			s.logger.Debug("peer credentials unavailable", "error", err)
		} else if s.cfg.RequireSameUser && peer.UID != os.Getuid() {
			s.logger.Warn("rejected connection from another user", "uid", peer.UID, "pid", peer.PID)
			conn.Close()
			continue
		}

		s.admit(newFramedConn(conn), peer)
	}
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if c := s.register(newWSConn(conn), nil); c != nil {
			s.handleConnection(c)
		}
	}()
}

// checkOrigin accepts requests without an Origin header, from a loopback
// host, or from a configured origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
	}
	ip := net.ParseIP(host)
	return host == "localhost" || (ip != nil && ip.IsLoopback())
}

func (s *Server) admit(conn transport, peer *PeerCredentials) {
	c := s.register(conn, peer)
	if c == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.handleConnection(c)
	}()
}

// register adds a client or closes conn when the server is full.
func (s *Server) register(conn transport, peer *PeerCredentials) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.clients) >= s.cfg.MaxConnections {
		s.logger.Warn("connection limit reached", "limit", s.cfg.MaxConnections, "remote", conn.RemoteAddr())
		conn.Close()
		return nil
	}

	now := time.Now()
	c := &Client{
		ID:           uuid.NewString(),
		Transport:    conn.Kind(),
		Peer:         peer,
		ConnectedAt:  now,
		lastActivity: now,
		subs:         make(map[string]clientSub),
		conn:         conn,
		outbox:       make(chan *Message, s.cfg.OutboxSize),
		done:         make(chan struct{}),
	}
	s.clients[c.ID] = c
	if s.cfg.Observer != nil {
		s.cfg.Observer.ClientConnected(c.Transport)
	}
	return c
}

func (s *Server) handleConnection(client *Client) {
	logger := s.logger.With("client", client.ID, "transport", client.Transport)
	logger.Debug("client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(client)
	}()

	defer func() {
		client.close()
		<-writerDone
		s.dropSubscriptions(client)

		s.mu.Lock()
		delete(s.clients, client.ID)
		s.mu.Unlock()
		if s.cfg.Observer != nil {
			s.cfg.Observer.ClientDisconnected(client.Transport)
		}
		logger.Debug("client disconnected")
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-client.done:
			return
		default:
		}

		if client.Transport != "websocket" {
			client.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		msg, err := client.conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.enqueue(client, NewMessage(MsgPing, s.nextRequestID.Add(1), nil))
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read failed", "error", err)
			}
			return
		}

		client.mu.Lock()
		client.lastActivity = time.Now()
		client.mu.Unlock()

		response := s.processMessage(client, msg)
		if response != nil && !s.enqueue(client, response) {
			return
		}
	}
}

func (s *Server) writeLoop(client *Client) {
	for {
		select {
		case msg := <-client.outbox:
			if err := client.conn.WriteMessage(msg, s.cfg.WriteTimeout); err != nil {
				client.close()
				return
			}
		case <-client.done:
			return
		}
	}
}

// enqueue queues msg for the client's writer, waiting for room.
func (s *Server) enqueue(client *Client, msg *Message) bool {
	select {
	case client.outbox <- msg:
		return true
	case <-client.done:
		return false
	}
}

// offer queues msg without waiting. A client that cannot keep up with its
// streams is disconnected.
func (s *Server) offer(client *Client, msg *Message) {
	select {
	case client.outbox <- msg:
	case <-client.done:
	default:
		s.logger.Warn("client outbox full, disconnecting", "client", client.ID)
		client.close()
	}
}

func (s *Server) processMessage(client *Client, msg *Message) *Message {
	id := msg.Header.RequestID
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, id, nil)
	case MsgPong:
		return nil
	case MsgHandshake:
		return s.handleHandshake(client, msg)
	case MsgStatusRequest:
		return s.respond(MsgStatusResponse, id, s.status())
	case MsgCall:
		return s.handleCall(client, msg)
	case MsgSubscribe:
		return s.handleSubscribe(client, msg)
	case MsgUnsubscribe:
		return s.handleUnsubscribe(client, msg)
	default:
		return NewErrorMessage(id, ErrInvalidRequest, fmt.Sprintf("unknown message type: %s", msg.Header.Type))
	}
}

func (s *Server) respond(t MessageType, id uint32, v any) *Message {
	resp, err := NewResponse(t, id, v)
	if err != nil {
		return NewErrorMessage(id, ErrInternalError, err.Error())
	}
	return resp
}

func (s *Server) handleHandshake(client *Client, msg *Message) *Message {
	var req HandshakeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid handshake")
	}
	if req.ProtocolVersion > ProtocolVersion {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
			fmt.Sprintf("unsupported protocol version %d", req.ProtocolVersion))
	}

	client.mu.Lock()
	client.name = req.ClientName
	client.version = req.ClientVersion
	client.mu.Unlock()

	return s.respond(MsgHandshakeAck, msg.Header.RequestID, &HandshakeResponse{
		ServerVersion:   s.cfg.Version,
		ProtocolVersion: ProtocolVersion,
		ClientID:        client.ID,
		Channels:        s.backend.Channels(),
	})
}

func (s *Server) status() *StatusResponse {
	channels := s.backend.Channels()
	resp := &StatusResponse{
		Version:   s.cfg.Version,
		Platform:  s.cfg.Platform,
		StartedAt: s.startedAt,
		Uptime:    time.Since(s.startedAt),
		Clients:   s.ClientCount(),
		Channels:  channels,
	}
	for _, name := range channels {
		st, ok := s.backend.Stream(name)
		if !ok {
			continue
		}
		state := StreamState{Channel: name}
		if a, ok := st.(interface{ Active() bool }); ok {
			state.Active = a.Active()
		}
		resp.Streams = append(resp.Streams, state)
	}
	return resp
}

func (s *Server) handleCall(client *Client, msg *Message) *Message {
	id := msg.Header.RequestID
	var req CallRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(id, ErrInvalidRequest, "invalid call request")
	}

	value, err := s.backend.Call(s.ctx, req.Channel, req.Method, req.Args)
	if err != nil {
		return callError(id, err)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return NewErrorMessage(id, ErrInternalError, err.Error())
	}
	return s.respond(MsgCallResult, id, &CallResult{Value: raw})
}

// callError maps a bridge error to its wire form. Unknown channels and
// methods get their own message type so they are never confused with a
// failed call.
func callError(id uint32, err error) *Message {
	be := bridge.AsError(err)
	resp := ErrorResponse{Code: string(be.Code), Field: be.Field, Message: be.Message}
	if be.Code == bridge.CodeNotImplemented {
		return newErrorOfType(MsgNotImplemented, id, resp)
	}
	return newErrorOfType(MsgError, id, resp)
}

func (s *Server) handleSubscribe(client *Client, msg *Message) *Message {
	id := msg.Header.RequestID
	var req SubscribeRequest
	if err := Decode(msg.Payload, &req); err != nil || req.Channel == "" {
		return NewErrorMessage(id, ErrInvalidRequest, "invalid subscribe request")
	}

	st, ok := s.backend.Stream(req.Channel)
	if !ok {
		return callError(id, bridge.NotImplemented(req.Channel, ""))
	}

	channel := req.Channel
	subID, err := st.SubscribeAny(func(v any) {
		s.deliver(client, channel, v)
	})
	if err != nil {
		return callError(id, err)
	}

	client.mu.Lock()
	client.subs[subID] = clientSub{channel: channel, stream: st}
	client.mu.Unlock()

	s.logger.Info("stream subscribed", "client", client.ID, "channel", channel, "subscription", subID)
	return s.respond(MsgSubscribeResp, id, &SubscribeResponse{Channel: channel, SubscriptionID: subID})
}

// deliver runs on the stream queue.
func (s *Server) deliver(client *Client, channel string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode event", "channel", channel, "error", err)
		return
	}
	payload, err := Encode(&Event{Channel: channel, Data: data})
	if err != nil {
		return
	}
	s.offer(client, NewMessage(MsgEvent, s.nextRequestID.Add(1), payload))
}

func (s *Server) handleUnsubscribe(client *Client, msg *Message) *Message {
	id := msg.Header.RequestID
	var req UnsubscribeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(id, ErrInvalidRequest, "invalid unsubscribe request")
	}

	client.mu.Lock()
	subID, sub, ok := client.findSub(req)
	if ok {
		delete(client.subs, subID)
	}
	client.mu.Unlock()

	if !ok {
		return callError(id, stream.ErrNotSubscribed)
	}
	if err := sub.stream.Unsubscribe(subID); err != nil {
		return callError(id, err)
	}
	s.logger.Info("stream unsubscribed", "client", client.ID, "channel", sub.channel)
	return NewMessage(MsgUnsubscribeResp, id, nil)
}

func (c *Client) findSub(req UnsubscribeRequest) (string, clientSub, bool) {
	if req.SubscriptionID != "" {
		sub, ok := c.subs[req.SubscriptionID]
		return req.SubscriptionID, sub, ok
	}
	for id, sub := range c.subs {
		if sub.channel == req.Channel {
			return id, sub, true
		}
	}
	return "", clientSub{}, false
}

func (s *Server) dropSubscriptions(client *Client) {
	client.mu.Lock()
	subs := client.subs
	client.subs = make(map[string]clientSub)
	client.mu.Unlock()

	for id, sub := range subs {
		if err := sub.stream.Unsubscribe(id); err != nil && !errors.Is(err, stream.ErrQueueClosed) {
			s.logger.Debug("unsubscribe on disconnect", "channel", sub.channel, "error", err)
		}
	}
}

func (s *Server) broadcastShutdown() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		s.offer(c, NewMessage(MsgShutdown, s.nextRequestID.Add(1), nil))
	}
}

// Clients returns a summary of connected clients, sorted by connect time.
func (s *Server) Clients() []ClientInfo {
	s.mu.RLock()
	infos := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		infos = append(infos, c.info())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ConnectedAt.Before(infos[j].ConnectedAt) })
	return infos
}

// ClientInfo describes a connected client.
type ClientInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Transport    string    `json:"transport"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	Channels     []string  `json:"channels"`
}

func (c *Client) info() ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := ClientInfo{
		ID:           c.ID,
		Name:         c.name,
		Version:      c.version,
		Transport:    c.Transport,
		ConnectedAt:  c.ConnectedAt,
		LastActivity: c.lastActivity,
	}
	for _, sub := range c.subs {
		info.Channels = append(info.Channels, sub.channel)
	}
	sort.Strings(info.Channels)
	return info
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
