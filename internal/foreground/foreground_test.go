package foreground

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringobridge/internal/clock"
	"ringobridge/internal/stream"
)

type fakeWorkspace struct {
	mu       sync.Mutex
	front    *AppInfo
	frontErr error
	watchErr error
	handler  func(AppInfo)
	stops    int
}

func (w *fakeWorkspace) Frontmost() (*AppInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.front, w.frontErr
}

func (w *fakeWorkspace) Watch(h func(AppInfo)) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watchErr != nil {
		return nil, w.watchErr
	}
	w.handler = h
	return func() {
		w.mu.Lock()
		w.stops++
		w.handler = nil
		w.mu.Unlock()
	}, nil
}

func (w *fakeWorkspace) Available() (bool, string) { return true, "fake" }

func (w *fakeWorkspace) activate(app AppInfo) func(AppInfo) {
	w.mu.Lock()
	h := w.handler
	w.mu.Unlock()
	if h != nil {
		h(app)
	}
	return h
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) sink(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) got() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTracker(t *testing.T, ws Workspace, cfg Config) (*Tracker, *stream.Stream[Event], *stream.Queue, *clock.ManualClock) {
	t.Helper()
	q := stream.NewQueue(0, nil)
	t.Cleanup(q.Close)
	clk := clock.NewManual(clock.FromMillis(1_000))
	tr := NewTracker(cfg, ws, q, clk, nil)
	return tr, stream.New[Event]("foreground-app-events", q, tr, nil), q, clk
}

func TestSubscribeEmitsCurrentAppSynchronously(t *testing.T) {
	ws := &fakeWorkspace{front: &AppInfo{Identifier: "com.example.paint"}}
	_, s, _, _ := newTracker(t, ws, Config{})

	rec := &recorder{}
	_, err := s.Subscribe(rec.sink)
	require.NoError(t, err)

	// No flush: the first event must already be there.
	assert.Equal(t, []Event{{AppID: "com.example.paint", TimestampMillis: 1_000}}, rec.got())
}

func TestSubscribeEmitsIgnoredCurrentApp(t *testing.T) {
	ws := &fakeWorkspace{front: &AppInfo{Identifier: "ignored"}}
	_, s, q, _ := newTracker(t, ws, Config{IgnoredApplications: []string{"ignored"}})

	rec := &recorder{}
	_, err := s.Subscribe(rec.sink)
	require.NoError(t, err)
	assert.Equal(t, []Event{{AppID: "ignored", TimestampMillis: 1_000}}, rec.got())

	// Later activations of it are still filtered.
	ws.activate(AppInfo{Identifier: "ignored"})
	require.NoError(t, q.Sync(func() {}))
	assert.Len(t, rec.got(), 1)
}

func TestSubscribeWithoutFrontmostApp(t *testing.T) {
	ws := &fakeWorkspace{}
	_, s, _, _ := newTracker(t, ws, Config{})

	rec := &recorder{}
	_, err := s.Subscribe(rec.sink)
	require.NoError(t, err)
	assert.Empty(t, rec.got())
}

func TestActivationsAreForwarded(t *testing.T) {
	ws := &fakeWorkspace{front: &AppInfo{Identifier: "a"}}
	_, s, q, clk := newTracker(t, ws, Config{IgnoredApplications: []string{"ignored"}})

	rec := &recorder{}
	_, err := s.Subscribe(rec.sink)
	require.NoError(t, err)

	clk.Advance(500 * time.Millisecond)
	ws.activate(AppInfo{Identifier: "b"})
	ws.activate(AppInfo{})
	ws.activate(AppInfo{Identifier: "ignored"})
	ws.activate(AppInfo{ExePath: "/usr/bin/krita"})
	require.NoError(t, q.Sync(func() {}))

	assert.Equal(t, []Event{
		{AppID: "a", TimestampMillis: 1_000},
		{AppID: "b", TimestampMillis: 1_500},
		{AppID: UnknownApp, TimestampMillis: 1_500},
		{AppID: "krita", TimestampMillis: 1_500},
	}, rec.got())
}

func TestLateActivationAfterCancelIsDropped(t *testing.T) {
	ws := &fakeWorkspace{front: &AppInfo{Identifier: "a"}}
	_, s, q, _ := newTracker(t, ws, Config{})

	rec := &recorder{}
	id, err := s.Subscribe(rec.sink)
	require.NoError(t, err)

	h := ws.activate(AppInfo{Identifier: "b"})
	require.NoError(t, q.Sync(func() {}))
	require.NoError(t, s.Unsubscribe(id))
	assert.Equal(t, 1, ws.stops)

	h(AppInfo{Identifier: "late"})
	require.NoError(t, q.Sync(func() {}))

	assert.Len(t, rec.got(), 2)
}

func TestWatchFailureStillEmitsCurrentApp(t *testing.T) {
	ws := &fakeWorkspace{front: &AppInfo{Identifier: "a"}, watchErr: ErrNotAvailable}
	_, s, _, _ := newTracker(t, ws, Config{})

	rec := &recorder{}
	id, err := s.Subscribe(rec.sink)
	require.NoError(t, err)
	require.NoError(t, s.Unsubscribe(id))
	assert.Len(t, rec.got(), 1)
}

// floodWorkspace activates apps from its own goroutine until stopped;
// stop waits for that goroutine like the real watchers do.
type floodWorkspace struct {
	fakeWorkspace
}

func (w *floodWorkspace) Watch(h func(AppInfo)) (func(), error) {
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			for j := 0; j < 64; j++ {
				h(AppInfo{Identifier: string(rune('a' + j%26))})
			}
			select {
			case <-quit:
				return
			default:
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-done
		})
	}, nil
}

func TestCancelWhileWatcherFloodsQueue(t *testing.T) {
	q := stream.NewQueue(4, nil)
	defer q.Close()
	tr := NewTracker(Config{}, &floodWorkspace{}, q, nil, nil)
	s := stream.New[Event]("foreground-app-events", q, tr, nil)

	var mu sync.Mutex
	n := 0
	id, err := s.Subscribe(func(Event) {
		mu.Lock()
		n++
		mu.Unlock()
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return n > 64
	}, 5*time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- s.Unsubscribe(id) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Unsubscribe did not return while the watcher was posting")
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		front   *AppInfo
		err     error
		code    ProbeCode
		isError bool
		pid     int
	}{
		{"ok", &AppInfo{Identifier: "x", PID: 12, ExePath: "/bin/x", Title: "T"}, nil, ProbeOK, false, 12},
		{"no window", nil, nil, ProbeNoForegroundWindow, true, 0},
		{"open process", &AppInfo{PID: 40}, &ProbeError{Code: ProbeOpenProcessFailed}, ProbeOpenProcessFailed, true, 40},
		{"title", &AppInfo{PID: 41, ExePath: "/bin/y"}, &ProbeError{Code: ProbeWindowTitleFailed, Err: errors.New("denied")}, ProbeWindowTitleFailed, true, 41},
		{"opaque error", nil, errors.New("display gone"), ProbeNoForegroundWindow, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := &fakeWorkspace{front: tt.front, frontErr: tt.err}
			tr, _, _, _ := newTracker(t, ws, Config{})

			p := tr.Probe()
			assert.Equal(t, tt.code, p.ErrorCode)
			assert.Equal(t, tt.isError, p.IsError)
			assert.Equal(t, tt.pid, p.PID)
			assert.Equal(t, int64(1_000), p.TimestampMillis)
		})
	}
}

func TestProbeErrorMessage(t *testing.T) {
	err := &ProbeError{Code: ProbeQueryPathFailed, Err: errors.New("access denied")}
	assert.Equal(t, "foreground: query executable path failed: access denied", err.Error())
	assert.Equal(t, "foreground: no foreground window", (&ProbeError{Code: ProbeNoForegroundWindow}).Error())
}

func TestPollerReportsChanges(t *testing.T) {
	var mu sync.Mutex
	seq := []*AppInfo{{Identifier: "a", PID: 1}, {Identifier: "a", PID: 1}, {Identifier: "b", PID: 2}, nil, {Identifier: "b", PID: 2}}
	i := 0
	lookup := func() (*AppInfo, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(seq) {
			return seq[len(seq)-1], nil
		}
		app := seq[i]
		i++
		return app, nil
	}

	got := make(chan AppInfo, 10)
	stop, err := NewPoller(lookup, time.Millisecond).Watch(func(app AppInfo) { got <- app })
	require.NoError(t, err)
	defer stop()

	first := <-got
	second := <-got
	assert.Equal(t, "b", first.Identifier)
	assert.Equal(t, "b", second.Identifier)

	stop()
	select {
	case app := <-got:
		t.Fatalf("unexpected activation after stop: %+v", app)
	case <-time.After(10 * time.Millisecond):
	}
}
