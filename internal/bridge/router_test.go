package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringobridge/internal/foreground"
	"ringobridge/internal/stream"
	"ringobridge/internal/window"
)

type fakeModes struct {
	pinned   bool
	locked   bool
	released bool
	resolve  bool
	calls    []string
}

func (m *fakeModes) gone() error {
	if m.released {
		return window.ErrUnavailable
	}
	return nil
}

func (m *fakeModes) EnterPinnedMode() (bool, error) {
	m.calls = append(m.calls, "enter")
	if err := m.gone(); err != nil {
		return false, err
	}
	if !m.resolve {
		return false, nil
	}
	m.pinned = true
	return true, nil
}

func (m *fakeModes) ExitPinnedMode() (bool, error) {
	m.calls = append(m.calls, "exit")
	if err := m.gone(); err != nil {
		return false, err
	}
	m.pinned = false
	return true, nil
}

func (m *fakeModes) IsPinned() (bool, error) {
	if err := m.gone(); err != nil {
		return false, err
	}
	return m.pinned, nil
}

func (m *fakeModes) SetLocked(locked bool) (bool, error) {
	if err := m.gone(); err != nil {
		return false, err
	}
	m.locked = locked
	return true, nil
}

func (m *fakeModes) Locked() bool { return m.locked }

func (m *fakeModes) Close() (bool, error) {
	if err := m.gone(); err != nil {
		return false, err
	}
	m.released = true
	return true, nil
}

func (m *fakeModes) HitTest(p window.Point, client window.Size, scale float64) (window.Hit, error) {
	if err := m.gone(); err != nil {
		return window.HitClient, err
	}
	if m.pinned && p.X < client.Width-80*scale {
		return window.HitDrag, nil
	}
	return window.HitClient, nil
}

type fakeTint struct {
	colors   []window.Color
	resets   int
	released bool
}

func (t *fakeTint) SetColor(c window.Color) (bool, error) {
	if t.released {
		return false, window.ErrUnavailable
	}
	t.colors = append(t.colors, c)
	return true, nil
}

func (t *fakeTint) Reset() (bool, error) {
	if t.released {
		return false, window.ErrUnavailable
	}
	t.resets++
	return true, nil
}

func (t *fakeTint) Release() { t.released = true }

type fakeProber struct{}

func (fakeProber) Probe() foreground.Probe {
	return foreground.NewProbe(time.UnixMilli(42), &foreground.AppInfo{Identifier: "com.example.app", PID: 7}, nil)
}

func newRouter(t *testing.T) (*Router, *fakeModes, *fakeTint) {
	t.Helper()
	modes := &fakeModes{resolve: true}
	tint := &fakeTint{}
	q := stream.NewQueue(0, nil)
	t.Cleanup(q.Close)
	r, err := NewRouter(Config{Modes: modes, Tint: tint, Prober: fakeProber{}, Executor: q})
	require.NoError(t, err)
	return r, modes, tint
}

func call(t *testing.T, r *Router, channel, method, args string) (any, error) {
	t.Helper()
	var raw json.RawMessage
	if args != "" {
		raw = json.RawMessage(args)
	}
	return r.Call(context.Background(), channel, method, raw)
}

func requireCode(t *testing.T, err error, code Code) *Error {
	t.Helper()
	var be *Error
	require.ErrorAs(t, err, &be)
	require.Equal(t, code, be.Code, be.Error())
	return be
}

func TestWindowPinCalls(t *testing.T) {
	r, modes, _ := newRouter(t)

	got, err := call(t, r, ChannelWindowPin, MethodEnterPinnedMode, "")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = call(t, r, ChannelWindowPin, MethodIsPinned, "")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = call(t, r, ChannelWindowPin, MethodExitPinnedMode, "")
	require.NoError(t, err)
	assert.Equal(t, true, got)
	assert.Equal(t, []string{"enter", "exit"}, modes.calls)
}

func TestEnterWithoutDisplayIsFalseNotError(t *testing.T) {
	r, modes, _ := newRouter(t)
	modes.resolve = false

	got, err := call(t, r, ChannelWindowPin, MethodEnterPinnedMode, "")
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestUnknownChannelAndMethod(t *testing.T) {
	r, _, _ := newRouter(t)

	_, err := call(t, r, "teleport", "go", "")
	requireCode(t, err, CodeNotImplemented)

	_, err = call(t, r, ChannelWindowPin, "fold", "")
	requireCode(t, err, CodeNotImplemented)

	// Stream channels have no methods.
	_, err = call(t, r, ChannelStrokeEvents, "listen", "")
	requireCode(t, err, CodeNotImplemented)
}

func TestMissingCollaboratorsAreNotImplemented(t *testing.T) {
	r, err := NewRouter(Config{})
	require.NoError(t, err)

	_, err = call(t, r, ChannelGlassTint, MethodResetTintColor, "")
	requireCode(t, err, CodeNotImplemented)
}

func TestInvalidArgumentsNameTheField(t *testing.T) {
	r, _, tint := newRouter(t)

	tests := []struct {
		name    string
		channel string
		method  string
		args    string
		field   string
	}{
		{"missing r", ChannelGlassTint, MethodSetTintColor, `{"g":0.5,"b":0.5}`, "r"},
		{"g out of range", ChannelGlassTint, MethodSetTintColor, `{"r":0.1,"g":1.5,"b":0.5}`, "g"},
		{"b wrong type", ChannelGlassTint, MethodSetTintColor, `{"r":0.1,"g":0.5,"b":"blue"}`, "b"},
		{"no args", ChannelGlassTint, MethodSetTintColor, ``, "args"},
		{"malformed", ChannelGlassTint, MethodSetTintColor, `{"r":`, "args"},
		{"missing locked", ChannelWindowPin, MethodSetLocked, `{}`, "locked"},
		{"locked not bool", ChannelWindowPin, MethodSetLocked, `{"locked":"yes"}`, "locked"},
		{"hit test missing y", ChannelWindowPin, MethodHitTest, `{"x":1,"width":10,"height":10}`, "y"},
		{"hit test zero scale", ChannelWindowPin, MethodHitTest, `{"x":1,"y":1,"width":10,"height":10,"scale":0}`, "scale"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, r, tt.channel, tt.method, tt.args)
			be := requireCode(t, err, CodeInvalidArgument)
			assert.Equal(t, tt.field, be.Field)
		})
	}
	assert.Empty(t, tint.colors)
}

func TestTintCalls(t *testing.T) {
	r, _, tint := newRouter(t)

	got, err := call(t, r, ChannelGlassTint, MethodSetTintColor, `{"r":1,"g":0.25,"b":0}`)
	require.NoError(t, err)
	assert.Equal(t, true, got)
	assert.Equal(t, []window.Color{{R: 1, G: 0.25, B: 0}}, tint.colors)

	_, err = call(t, r, ChannelGlassTint, MethodResetTintColor, "")
	require.NoError(t, err)
	assert.Equal(t, 1, tint.resets)
}

func TestLockAndHitTest(t *testing.T) {
	r, _, _ := newRouter(t)

	_, err := call(t, r, ChannelWindowPin, MethodEnterPinnedMode, "")
	require.NoError(t, err)

	got, err := call(t, r, ChannelWindowPin, MethodHitTest, `{"x":10,"y":10,"width":360,"height":220}`)
	require.NoError(t, err)
	assert.Equal(t, "drag", got)

	got, err = call(t, r, ChannelWindowPin, MethodHitTest, `{"x":300,"y":10,"width":360,"height":220,"scale":1}`)
	require.NoError(t, err)
	assert.Equal(t, "client", got)

	got, err = call(t, r, ChannelWindowPin, MethodSetLocked, `{"locked":true}`)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = call(t, r, ChannelWindowPin, MethodIsLocked, "")
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestPrepareCloseThenUnavailable(t *testing.T) {
	r, _, _ := newRouter(t)

	got, err := call(t, r, ChannelWindowPin, MethodPrepareClose, "")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	for _, method := range []string{MethodEnterPinnedMode, MethodExitPinnedMode, MethodIsPinned, MethodIsLocked, MethodPrepareClose} {
		_, err := call(t, r, ChannelWindowPin, method, "")
		requireCode(t, err, CodeUnavailable)
	}
}

func TestPrepareCloseReleasesHitTestAndTint(t *testing.T) {
	r, _, tint := newRouter(t)

	_, err := call(t, r, ChannelWindowPin, MethodEnterPinnedMode, "")
	require.NoError(t, err)
	_, err = call(t, r, ChannelWindowPin, MethodPrepareClose, "")
	require.NoError(t, err)
	assert.True(t, tint.released)

	got, err := call(t, r, ChannelWindowPin, MethodHitTest, `{"x":10,"y":10,"width":360,"height":220}`)
	requireCode(t, err, CodeUnavailable)
	assert.Nil(t, got)

	got, err = call(t, r, ChannelGlassTint, MethodSetTintColor, `{"r":1,"g":0,"b":0}`)
	requireCode(t, err, CodeUnavailable)
	assert.Nil(t, got)
	assert.Empty(t, tint.colors)

	_, err = call(t, r, ChannelGlassTint, MethodResetTintColor, "")
	requireCode(t, err, CodeUnavailable)
}

func TestClosedQueueIsUnavailable(t *testing.T) {
	q := stream.NewQueue(0, nil)
	r, err := NewRouter(Config{Modes: &fakeModes{resolve: true}, Executor: q})
	require.NoError(t, err)
	q.Close()

	_, err = call(t, r, ChannelWindowPin, MethodIsPinned, "")
	requireCode(t, err, CodeUnavailable)
}

func TestProbe(t *testing.T) {
	r, _, _ := newRouter(t)

	got, err := call(t, r, ChannelForeground, MethodProbe, "")
	require.NoError(t, err)
	p, ok := got.(foreground.Probe)
	require.True(t, ok)
	assert.Equal(t, "com.example.app", p.AppID)
	assert.Equal(t, 7, p.PID)
}

func TestStreamsRegistry(t *testing.T) {
	r, _, _ := newRouter(t)
	q := stream.NewQueue(0, nil)
	t.Cleanup(q.Close)

	s := stream.New[int](ChannelStrokeEvents, q, nopSource{}, nil)
	r.RegisterStream(s)

	got, ok := r.Stream(ChannelStrokeEvents)
	require.True(t, ok)
	assert.Equal(t, ChannelStrokeEvents, got.Name())

	_, ok = r.Stream(ChannelForegroundEvents)
	assert.False(t, ok)
	assert.Contains(t, r.Channels(), ChannelStrokeEvents)
	assert.Contains(t, r.Channels(), ChannelWindowPin)
}

type nopSource struct{}

func (nopSource) OnSubscribe(func(int)) {}
func (nopSource) OnCancel()             {}

func TestAsError(t *testing.T) {
	assert.Equal(t, CodeUnavailable, AsError(window.ErrUnavailable).Code)
	assert.Equal(t, CodeAlreadySubscribed, AsError(stream.ErrAlreadySubscribed).Code)
	assert.Equal(t, CodeNotSubscribed, AsError(stream.ErrNotSubscribed).Code)
	assert.Equal(t, CodeInternal, AsError(errors.New("boom")).Code)
	assert.Nil(t, AsError(nil))

	err := InvalidArgument("r", "missing")
	assert.True(t, errors.Is(err, &Error{Code: CodeInvalidArgument}))
	assert.False(t, errors.Is(err, &Error{Code: CodeUnavailable}))
	assert.Equal(t, "INVALID_ARGUMENT: r: missing", err.Error())
}
