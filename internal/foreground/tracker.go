package foreground

import (
	"log/slog"
	"sync/atomic"

	"ringobridge/internal/clock"
	"ringobridge/internal/stream"
)

// Config configures the tracker.
type Config struct {
	// IgnoredApplications lists identifiers whose activations are not
	// forwarded.
	IgnoredApplications []string
}

// Observer is notified of every delivered event on the stream queue.
type Observer interface {
	AppActivated(ev Event)
}

// Tracker is the foreground-app-events stream source.
type Tracker struct {
	ws        Workspace
	queue     stream.Dispatcher
	clock     clock.Clock
	logger    *slog.Logger
	ignored   map[string]bool
	observers []Observer

	gen atomic.Uint64

	// Owned by the stream queue.
	emit      func(Event)
	stopWatch func()
	abort     chan struct{}
}

// NewTracker creates a tracker over ws.
func NewTracker(cfg Config, ws Workspace, queue stream.Dispatcher, clk clock.Clock, logger *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ignored := make(map[string]bool, len(cfg.IgnoredApplications))
	for _, id := range cfg.IgnoredApplications {
		ignored[id] = true
	}
	return &Tracker{
		ws:      ws,
		queue:   queue,
		clock:   clk,
		logger:  logger.With("component", "foreground"),
		ignored: ignored,
	}
}

// AddObserver attaches an Observer. Call before the first subscription.
func (t *Tracker) AddObserver(o Observer) {
	t.observers = append(t.observers, o)
}

// OnSubscribe registers for activations and then emits the current
// frontmost application before returning.
func (t *Tracker) OnSubscribe(emit func(Event)) {
	gen := t.gen.Add(1)
	t.emit = emit
	abort := make(chan struct{})
	t.abort = abort

	// stopWatch waits for the watcher, which may be blocked posting here.
	stop, err := t.ws.Watch(func(app AppInfo) {
		t.queue.PostOr(func() { t.handleActivation(gen, app) }, abort)
	})
	if err != nil {
		t.logger.Warn("activation notifications unavailable", "error", err)
	} else {
		t.stopWatch = stop
	}

	app, err := t.ws.Frontmost()
	if err != nil {
		t.logger.Debug("frontmost lookup", "error", err)
	}
	// The current app is reported even when ignored; subscribers always
	// get a starting point.
	if app != nil {
		t.send(app.AppID())
	}
}

// OnCancel unregisters the activation observer and clears the sink.
func (t *Tracker) OnCancel() {
	t.gen.Add(1)
	t.emit = nil
	if t.abort != nil {
		close(t.abort)
		t.abort = nil
	}
	if t.stopWatch != nil {
		t.stopWatch()
		t.stopWatch = nil
	}
}

// Probe performs a one-shot lookup of the frontmost application.
func (t *Tracker) Probe() Probe {
	app, err := t.ws.Frontmost()
	return NewProbe(t.clock.Now(), app, err)
}

func (t *Tracker) handleActivation(gen uint64, app AppInfo) {
	if gen != t.gen.Load() {
		return
	}
	t.deliver(app)
}

func (t *Tracker) deliver(app AppInfo) {
	if id := app.AppID(); !t.ignored[id] {
		t.send(id)
	}
}

func (t *Tracker) send(id string) {
	if t.emit == nil {
		return
	}
	ev := Event{AppID: id, TimestampMillis: clock.Millis(t.clock.Now())}
	t.emit(ev)
	for _, o := range t.observers {
		o.AppActivated(ev)
	}
}
