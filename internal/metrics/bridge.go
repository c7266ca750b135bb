package metrics

import (
	"time"

	"ringobridge/internal/activity"
	"ringobridge/internal/foreground"
	"ringobridge/internal/window"
)

// BridgeMetrics holds the ringobridge series. It observes the stream
// sources and the window machine directly.
type BridgeMetrics struct {
	registry *Registry

	strokes     map[activity.Origin]*Counter
	dropped     *Counter
	foreground  *Counter
	transitions map[window.Mode]*Counter
	pinned      *Gauge
	clients     *Gauge
	startedAt   *Gauge
}

var (
	_ activity.Observer   = (*BridgeMetrics)(nil)
	_ foreground.Observer = (*BridgeMetrics)(nil)
	_ window.Observer     = (*BridgeMetrics)(nil)
)

// NewBridgeMetrics registers the series on registry.
func NewBridgeMetrics(registry *Registry) *BridgeMetrics {
	m := &BridgeMetrics{
		registry:    registry,
		strokes:     make(map[activity.Origin]*Counter),
		transitions: make(map[window.Mode]*Counter),
	}
	for _, o := range []activity.Origin{activity.OriginInitial, activity.OriginMonitor, activity.OriginPoll} {
		m.strokes[o] = registry.Counter("stroke_events_emitted_total",
			"Stroke events delivered to the subscriber", Labels{"origin": string(o)})
	}
	m.dropped = registry.Counter("stroke_samples_dropped_total",
		"Idle samples discarded as invalid or failed", nil)
	m.foreground = registry.Counter("foreground_events_emitted_total",
		"Foreground application events delivered to the subscriber", nil)
	for _, to := range []window.Mode{window.ModeNormal, window.ModePinned} {
		m.transitions[to] = registry.Counter("window_mode_transitions_total",
			"Window mode transitions by target mode", Labels{"to": to.String()})
	}
	m.pinned = registry.Gauge("window_pinned", "1 while the host window is pinned", nil)
	m.clients = registry.Gauge("ipc_clients", "Connected IPC clients", nil)
	m.startedAt = registry.Gauge("start_time_seconds", "Daemon start time in unix seconds", nil)
	m.startedAt.Set(time.Now().Unix())
	return m
}

// Registry returns the underlying registry.
func (m *BridgeMetrics) Registry() *Registry { return m.registry }

// EventEmitted counts a stroke event.
func (m *BridgeMetrics) EventEmitted(_ activity.Event, origin activity.Origin) {
	if c, ok := m.strokes[origin]; ok {
		c.Inc()
	}
}

// SampleDropped counts a discarded idle sample.
func (m *BridgeMetrics) SampleDropped(string) { m.dropped.Inc() }

// AppActivated counts a foreground event.
func (m *BridgeMetrics) AppActivated(foreground.Event) { m.foreground.Inc() }

// ModeChanged counts a transition and updates window_pinned.
func (m *BridgeMetrics) ModeChanged(_, to window.Mode) {
	m.transitions[to].Inc()
	if to == window.ModePinned {
		m.pinned.Set(1)
	} else {
		m.pinned.Set(0)
	}
}

// ObserveCall records one command's latency and outcome.
func (m *BridgeMetrics) ObserveCall(channel, method string, d time.Duration, code string) {
	if code == "" {
		code = "OK"
	}
	m.registry.Histogram("command_duration_seconds", "Command latency",
		Labels{"channel": channel, "method": method}, nil).ObserveDuration(d)
	m.registry.Counter("commands_total", "Commands by result code",
		Labels{"channel": channel, "method": method, "code": code}).Inc()
}

// ClientConnected counts a new IPC client.
func (m *BridgeMetrics) ClientConnected(string) { m.clients.Inc() }

// ClientDisconnected drops a departed IPC client from the gauge.
func (m *BridgeMetrics) ClientDisconnected(string) { m.clients.Dec() }
