package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringobridge/internal/bridge"
	"ringobridge/internal/stream"
	"ringobridge/internal/window"
)

type tick struct {
	N int `json:"n"`
}

// counterSource emits tick{0} on subscribe and further ticks when poked.
type counterSource struct {
	q    *stream.Queue
	emit func(tick)
}

func (s *counterSource) OnSubscribe(emit func(tick)) {
	s.emit = emit
	emit(tick{0})
}

func (s *counterSource) OnCancel() { s.emit = nil }

func (s *counterSource) poke(n int) {
	s.q.Post(func() {
		if s.emit != nil {
			s.emit(tick{n})
		}
	})
}

type fixture struct {
	server *Server
	source *counterSource
	ticks  *stream.Stream[tick]
	dir    string
}

func newFixture(t *testing.T, ws bool, opts ...func(*ServerConfig)) *fixture {
	t.Helper()

	// Unix socket paths are length limited; keep the directory short.
	dir, err := os.MkdirTemp("", "rbipc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	q := stream.NewQueue(0, nil)
	t.Cleanup(q.Close)

	src := &counterSource{q: q}
	ticks := stream.New[tick](bridge.ChannelStrokeEvents, q, src, nil)

	router, err := bridge.NewRouter(bridge.Config{
		Modes:    window.NewMachine(window.DefaultConfig(), nil, nil, nil),
		Tint:     window.NewTint(nil, nil),
		Executor: q,
	})
	require.NoError(t, err)
	router.RegisterStream(ticks)

	cfg := DefaultServerConfig(dir)
	cfg.Platform = "test"
	if ws {
		cfg.SocketPath = ""
		cfg.WebSocketAddr = "127.0.0.1:0"
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	server, err := NewServer(cfg, router)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(func() { server.Stop() })

	return &fixture{server: server, source: src, ticks: ticks, dir: dir}
}

func (f *fixture) connect(t *testing.T) *IPCClient {
	t.Helper()
	cfg := DefaultClientConfig(f.dir)
	cfg.RequestTimeout = 5 * time.Second
	if addr := f.server.WebSocketAddr(); addr != "" {
		cfg.WebSocketURL = "ws://" + addr + "/ws"
	}
	c := NewClient(cfg)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func nextEvent(t *testing.T, c *IPCClient) *Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func decodeTick(t *testing.T, ev *Event) int {
	t.Helper()
	var v tick
	require.NoError(t, json.Unmarshal(ev.Data, &v))
	return v.N
}

func TestHandshakeAndStatus(t *testing.T) {
	f := newFixture(t, false)
	c := f.connect(t)
	ctx := context.Background()

	assert.NotEmpty(t, c.ClientID())
	assert.Contains(t, c.Channels(), bridge.ChannelStrokeEvents)
	assert.Contains(t, c.Channels(), bridge.ChannelWindowPin)

	_, err := c.Ping(ctx)
	require.NoError(t, err)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", status.Platform)
	assert.Equal(t, 1, status.Clients)
	require.Len(t, status.Streams, 1)
	assert.False(t, status.Streams[0].Active)
}

func TestCallResults(t *testing.T) {
	f := newFixture(t, false)
	c := f.connect(t)
	ctx := context.Background()

	// No tint backend: recorded but not applied.
	ok, err := c.CallBool(ctx, bridge.ChannelGlassTint, bridge.MethodSetTintColor, window.Color{R: 1, G: 0, B: 0.5})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Call(ctx, "nope", "nothing", nil)
	assert.ErrorIs(t, err, ErrNotImplemented)

	_, err = c.Call(ctx, bridge.ChannelWindowPin, bridge.MethodIsPinned, nil)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, string(bridge.CodeUnavailable), re.Code)
	assert.NotErrorIs(t, err, ErrNotImplemented)

	_, err = c.Call(ctx, bridge.ChannelGlassTint, bridge.MethodSetTintColor, map[string]float64{"g": 0, "b": 0})
	require.ErrorAs(t, err, &re)
	assert.Equal(t, string(bridge.CodeInvalidArgument), re.Code)
	assert.Equal(t, "r", re.Field)
}

func TestStreamOverSocket(t *testing.T) {
	f := newFixture(t, false)
	c := f.connect(t)
	ctx := context.Background()

	id, err := c.Subscribe(ctx, bridge.ChannelStrokeEvents)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	ev := nextEvent(t, c)
	assert.Equal(t, bridge.ChannelStrokeEvents, ev.Channel)
	assert.Equal(t, 0, decodeTick(t, ev))

	for i := 1; i <= 5; i++ {
		f.source.poke(i)
	}
	for i := 1; i <= 5; i++ {
		assert.Equal(t, i, decodeTick(t, nextEvent(t, c)))
	}

	// The stream has a single sink.
	other := f.connect(t)
	_, err = other.Subscribe(ctx, bridge.ChannelStrokeEvents)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, string(bridge.CodeAlreadySubscribed), re.Code)

	_, err = other.Subscribe(ctx, "no-such-stream")
	assert.ErrorIs(t, err, ErrNotImplemented)

	require.NoError(t, c.Unsubscribe(ctx, bridge.ChannelStrokeEvents))
	assert.False(t, f.ticks.Active())

	err = c.Unsubscribe(ctx, bridge.ChannelStrokeEvents)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, string(bridge.CodeNotSubscribed), re.Code)

	_, err = other.Subscribe(ctx, bridge.ChannelStrokeEvents)
	require.NoError(t, err)
}

func TestDisconnectCancelsSubscription(t *testing.T) {
	f := newFixture(t, false)
	c := f.connect(t)

	_, err := c.Subscribe(context.Background(), bridge.ChannelStrokeEvents)
	require.NoError(t, err)
	require.True(t, f.ticks.Active())

	c.Close()
	require.Eventually(t, func() bool { return !f.ticks.Active() }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return f.server.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

type connCounter struct {
	mu   sync.Mutex
	up   map[string]int
	down map[string]int
}

func (c *connCounter) ClientConnected(transport string) {
	c.mu.Lock()
	c.up[transport]++
	c.mu.Unlock()
}

func (c *connCounter) ClientDisconnected(transport string) {
	c.mu.Lock()
	c.down[transport]++
	c.mu.Unlock()
}

func (c *connCounter) counts(transport string) (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up[transport], c.down[transport]
}

func TestObserverAndClientState(t *testing.T) {
	obs := &connCounter{up: map[string]int{}, down: map[string]int{}}
	f := newFixture(t, false, func(cfg *ServerConfig) { cfg.Observer = obs })

	c := f.connect(t)
	up, down := obs.counts("unix")
	assert.Equal(t, 1, up)
	assert.Equal(t, 0, down)
	assert.True(t, c.IsConnected())

	// The server going away is visible to the client without a request.
	require.NoError(t, f.server.Stop())
	require.Eventually(t, func() bool { return !c.IsConnected() }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, down := obs.counts("unix")
		return down == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWebSocketTransport(t *testing.T) {
	f := newFixture(t, true)
	c := f.connect(t)
	ctx := context.Background()

	_, err := c.Ping(ctx)
	require.NoError(t, err)

	_, err = c.Subscribe(ctx, bridge.ChannelStrokeEvents)
	require.NoError(t, err)
	assert.Equal(t, 0, decodeTick(t, nextEvent(t, c)))

	f.source.poke(7)
	assert.Equal(t, 7, decodeTick(t, nextEvent(t, c)))

	infos := f.server.Clients()
	require.Len(t, infos, 1)
	assert.Equal(t, "websocket", infos[0].Transport)
	assert.Equal(t, []string{bridge.ChannelStrokeEvents}, infos[0].Channels)
}

func TestSecondServerOnSameSocketFails(t *testing.T) {
	f := newFixture(t, false)

	cfg := DefaultServerConfig(f.dir)
	other, err := NewServer(cfg, f.server.backend)
	require.NoError(t, err)
	assert.Error(t, other.Start())
}

func TestClientWithoutDaemon(t *testing.T) {
	dir, err := os.MkdirTemp("", "rbipc")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := DefaultClientConfig(dir)
	cfg.SocketPath = filepath.Join(dir, "missing.sock")
	c := NewClient(cfg)
	defer c.Close()

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	msg := NewMessage(MsgCall, 42, []byte(`{"channel":"window-pin"}`))
	require.NoError(t, msg.Write(&buf))
	assert.Equal(t, HeaderSize+len(msg.Payload), buf.Len())

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgCall, got.Header.Type)
	assert.Equal(t, uint32(42), got.Header.RequestID)
	assert.Equal(t, msg.Payload, got.Payload)

	bad := bytes.NewReader(make([]byte, HeaderSize))
	_, err = ReadMessage(bad)
	assert.ErrorContains(t, err, "invalid magic")
}

func TestCallErrorMapping(t *testing.T) {
	msg := callError(3, bridge.NotImplemented("x", "y"))
	assert.Equal(t, MsgNotImplemented, msg.Header.Type)

	msg = callError(4, errors.New("boom"))
	assert.Equal(t, MsgError, msg.Header.Type)
	var e ErrorResponse
	require.NoError(t, Decode(msg.Payload, &e))
	assert.Equal(t, "INTERNAL", e.Code)
}
