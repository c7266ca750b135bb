package journal

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ringobridge/internal/activity"
	"ringobridge/internal/foreground"
	"ringobridge/internal/window"
)

// RecorderConfig tunes the background writer.
type RecorderConfig struct {
	// Buffer is the number of entries held before new ones are dropped.
	Buffer int

	// FlushInterval bounds how long an entry waits before it is written.
	FlushInterval time.Duration

	// MaxEntries, when positive, is the number of rows kept after each
	// prune.
	MaxEntries int64

	// SessionID tags every entry.
	SessionID string

	// Channel names used for the entries.
	StrokeChannel     string
	ForegroundChannel string
	WindowChannel     string
}

// Recorder feeds stream and mode observers into a Store from a background
// goroutine. The observer methods run on the stream queue and never block:
// when the buffer is full the entry is counted and discarded.
type Recorder struct {
	store  *Store
	cfg    RecorderConfig
	logger *slog.Logger

	entries chan Entry
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	written atomic.Uint64
}

var (
	_ activity.Observer   = (*Recorder)(nil)
	_ foreground.Observer = (*Recorder)(nil)
	_ window.Observer     = (*Recorder)(nil)
)

// NewRecorder starts the writer.
func NewRecorder(store *Store, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:   store,
		cfg:     cfg,
		logger:  logger.With("component", "journal"),
		entries: make(chan Entry, cfg.Buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go r.run()
	return r
}

// Dropped returns the number of entries discarded because the buffer was
// full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns the number of entries committed.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// EventEmitted records a stroke event.
func (r *Recorder) EventEmitted(ev activity.Event, origin activity.Origin) {
	r.offer(KindStroke, r.cfg.StrokeChannel, struct {
		activity.Event
		Origin activity.Origin `json:"origin"`
	}{ev, origin})
}

// SampleDropped records a discarded poll sample.
func (r *Recorder) SampleDropped(reason string) {
	r.offer(KindDropped, r.cfg.StrokeChannel, map[string]string{"reason": reason})
}

// AppActivated records a foreground event.
func (r *Recorder) AppActivated(ev foreground.Event) {
	r.offer(KindForeground, r.cfg.ForegroundChannel, ev)
}

// ModeChanged records a window mode transition.
func (r *Recorder) ModeChanged(from, to window.Mode) {
	r.offer(KindMode, r.cfg.WindowChannel, map[string]string{"from": from.String(), "to": to.String()})
}

func (r *Recorder) offer(kind Kind, channel string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Debug("encode journal entry", "kind", kind, "error", err)
		return
	}
	e := Entry{
		RecordedAt: time.Now(),
		Kind:       kind,
		Channel:    channel,
		Payload:    payload,
		SessionID:  r.cfg.SessionID,
	}
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.entries <- e:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) run() {
	defer close(r.stopped)
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	var batch []Entry
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.Insert(batch...); err != nil {
			r.logger.Warn("write journal", "entries", len(batch), "error", err)
		} else {
			r.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
		if r.cfg.MaxEntries > 0 {
			if _, err := r.store.Prune(r.cfg.MaxEntries); err != nil {
				r.logger.Warn("prune journal", "error", err)
			}
		}
	}

	for {
		select {
		case e := <-r.entries:
			batch = append(batch, e)
			if len(batch) >= 256 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.done:
			for {
				select {
				case e := <-r.entries:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close stops the writer after flushing what is buffered. It does not
// close the Store.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.done)
	})
	<-r.stopped
}
