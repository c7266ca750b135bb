package activity

import (
	"log/slog"
	"sync/atomic"
	"time"

	"ringobridge/internal/clock"
	"ringobridge/internal/stream"
)

// Origin tells which path produced an event.
type Origin string

const (
	OriginInitial Origin = "initial"
	OriginMonitor Origin = "monitor"
	OriginPoll    Origin = "poll"
)

// Observer is notified of every delivered event and every discarded poll
// sample. It runs on the stream queue and must not block.
type Observer interface {
	EventEmitted(ev Event, origin Origin)
	SampleDropped(reason string)
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(d *Detector) { d.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(d *Detector) { d.observers = append(d.observers, o) }
}

// Detector is the stroke-events stream source.
//
// All fields below queue are owned by the stream queue. Platform callbacks
// and poll ticks hop onto the queue and carry the generation they were
// started under; anything from an older generation is ignored, so nothing
// reaches the sink once OnCancel has run.
type Detector struct {
	monitor   ButtonMonitor
	idle      IdleSource
	queue     stream.Dispatcher
	clock     clock.Clock
	logger    *slog.Logger
	observers []Observer

	gen atomic.Uint64

	cfg       Config
	norm      *Normalizer
	emit      func(Event)
	pressed   map[Button]bool
	monitorOn bool
	stopPoll  chan struct{}
	// Closed by OnCancel so monitor callbacks stop waiting for queue space.
	abort chan struct{}
}

// NewDetector builds a detector. monitor and idle may be nil when the
// platform has no such source.
func NewDetector(cfg Config, monitor ButtonMonitor, idle IdleSource, queue stream.Dispatcher, opts ...Option) *Detector {
	cfg = cfg.withDefaults()
	d := &Detector{
		monitor: monitor,
		idle:    idle,
		queue:   queue,
		clock:   clock.SystemClock{},
		logger:  slog.Default(),
		cfg:     cfg,
		norm:    NewNormalizer(cfg.DedupThreshold),
		pressed: make(map[Button]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "activity")
	return d
}

// OnSubscribe emits the initial event and starts both sources.
func (d *Detector) OnSubscribe(emit func(Event)) {
	gen := d.gen.Add(1)
	d.emit = emit
	clear(d.pressed)
	abort := make(chan struct{})
	d.abort = abort

	d.deliver(d.norm.Reset(d.clock.Now()), OriginInitial)

	if d.monitor != nil {
		err := d.monitor.Start(func(tr Transition) {
			d.queue.PostOr(func() { d.handleTransition(gen, tr) }, abort)
		})
		if err != nil {
			d.logger.Warn("button monitor unavailable, relying on idle polling", "error", err)
		} else {
			d.monitorOn = true
		}
	}

	d.startPolling(gen)
}

// OnCancel stops both sources. No event is emitted after it returns.
func (d *Detector) OnCancel() {
	d.gen.Add(1)
	d.emit = nil
	if d.abort != nil {
		close(d.abort)
		d.abort = nil
	}

	if d.monitorOn {
		if err := d.monitor.Stop(); err != nil {
			d.logger.Warn("stop button monitor", "error", err)
		}
		d.monitorOn = false
	}
	d.stopPolling()
}

// Reconfigure applies new tunables. A running poll loop is restarted when
// the interval changes.
func (d *Detector) Reconfigure(cfg Config) {
	cfg = cfg.withDefaults()
	d.queue.Post(func() {
		old := d.cfg
		d.cfg = cfg
		d.norm.SetThreshold(cfg.DedupThreshold)
		if d.emit != nil && old.PollInterval != cfg.PollInterval {
			d.stopPolling()
			d.startPolling(d.gen.Load())
		}
		d.logger.Info("tunables updated",
			"poll_interval", cfg.PollInterval,
			"dedup_threshold", cfg.DedupThreshold)
	})
}

func (d *Detector) startPolling(gen uint64) {
	if d.idle == nil {
		return
	}
	stop := make(chan struct{})
	d.stopPoll = stop
	go d.pollLoop(gen, d.cfg.PollInterval, stop)
}

func (d *Detector) stopPolling() {
	if d.stopPoll != nil {
		close(d.stopPoll)
		d.stopPoll = nil
	}
}

func (d *Detector) pollLoop(gen uint64, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.pollOnce(gen, stop)
		}
	}
}

// pollOnce queries the idle source off the queue, then hands the answer
// to the queue unless stop closes first.
func (d *Detector) pollOnce(gen uint64, stop <-chan struct{}) {
	sample, err := d.idle.Sample()
	now := d.clock.Now()
	d.queue.PostOr(func() { d.handleSample(gen, now, sample, err) }, stop)
}

func (d *Detector) handleSample(gen uint64, now time.Time, sample clock.IdleSample, err error) {
	if gen != d.gen.Load() || d.emit == nil {
		return
	}
	if err != nil {
		d.logger.Debug("idle query failed", "error", err)
		d.dropped("query_failed")
		return
	}

	ev, ok, valid := d.norm.ObserveSample(now, sample)
	if !valid {
		d.logger.Debug("discarding idle sample",
			"since_down", sample.SinceButtonDown,
			"since_drag", sample.SinceButtonDrag)
		d.dropped("invalid_sample")
		return
	}
	if ok {
		d.deliver(ev, OriginPoll)
	}
}

func (d *Detector) handleTransition(gen uint64, tr Transition) {
	if gen != d.gen.Load() || d.emit == nil {
		return
	}

	if tr.Down {
		d.pressed[tr.Button] = true
	} else {
		delete(d.pressed, tr.Button)
	}

	if ev, ok := d.norm.Observe(tr.Timestamp, len(d.pressed) > 0); ok {
		d.deliver(ev, OriginMonitor)
	}
}

func (d *Detector) deliver(ev Event, origin Origin) {
	if d.emit == nil {
		return
	}
	d.emit(ev)
	for _, o := range d.observers {
		o.EventEmitted(ev, origin)
	}
}

func (d *Detector) dropped(reason string) {
	for _, o := range d.observers {
		o.SampleDropped(reason)
	}
}
