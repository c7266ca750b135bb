package activity

import (
	"time"

	"ringobridge/internal/clock"
)

// Normalizer is the single de-dup gate shared by both activity sources.
//
// A candidate (ts, down) passes the gate when the button state differs from
// the retained state or ts is more than the threshold away from the
// retained timestamp. Passing updates the retained pair. Emitted timestamps
// are clamped so the stream never goes backwards; a clamped candidate that
// would repeat the previous event within the threshold is swallowed.
//
// A Normalizer is not safe for concurrent use. The Detector only touches it
// from the stream queue.
type Normalizer struct {
	threshold int64

	primed   bool
	lastTs   int64
	lastDown bool

	emitted     bool
	emittedTs   int64
	emittedDown bool
}

// NewNormalizer creates a gate with the given threshold.
func NewNormalizer(threshold time.Duration) *Normalizer {
	return &Normalizer{threshold: threshold.Milliseconds()}
}

// SetThreshold changes the de-dup threshold.
func (n *Normalizer) SetThreshold(threshold time.Duration) {
	n.threshold = threshold.Milliseconds()
}

// Reset seeds the gate with the "no button pressed" state at now and
// returns the initial event for a fresh subscription.
func (n *Normalizer) Reset(now time.Time) Event {
	ts := clock.Millis(now)
	n.primed = true
	n.lastTs = ts
	n.lastDown = false
	n.emitted = true
	n.emittedTs = ts
	n.emittedDown = false
	return Event{TimestampMillis: ts, IsButtonDown: false}
}

// Observe feeds a candidate through the gate.
func (n *Normalizer) Observe(at time.Time, down bool) (Event, bool) {
	ts := clock.Millis(at)

	if n.primed && down == n.lastDown && abs(ts-n.lastTs) <= n.threshold {
		return Event{}, false
	}
	n.primed = true
	n.lastTs = ts
	n.lastDown = down

	out := ts
	if out < n.emittedTs {
		out = n.emittedTs
	}
	if n.emitted && down == n.emittedDown && out-n.emittedTs <= n.threshold {
		return Event{}, false
	}

	n.emitted = true
	n.emittedTs = out
	n.emittedDown = down
	return Event{TimestampMillis: out, IsButtonDown: down}, true
}

// ObserveSample infers a candidate from an idle sample taken at now.
// Invalid samples are rejected without touching the gate; ok is false for
// both rejected samples and de-duplicated ones, valid tells them apart.
//
// A sample without button state keeps the retained state. It only moves
// the timestamp of a held stroke; while the buttons are up its idle time
// counts keyboard and pointer motion too, so it is ignored.
func (n *Normalizer) ObserveSample(now time.Time, s clock.IdleSample) (ev Event, ok bool, valid bool) {
	at, valid := s.InferredAt(now)
	if !valid {
		return Event{}, false, false
	}
	down := s.ButtonDown
	if !s.ButtonKnown {
		if !n.lastDown {
			return Event{}, false, true
		}
		down = true
	}
	ev, ok = n.Observe(at, down)
	return ev, ok, true
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
