// Package clock provides the wall clock and idle-time sample types shared by
// the activity and foreground trackers.
package clock

import (
	"math"
	"sync"
	"time"
)

// Clock reports the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a ManualClock starting at t.
func NewManual(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts epoch milliseconds to a time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// IdleSample is one answer from an idle-time query.
//
// SinceButtonDown and SinceButtonDrag are seconds since the last event of
// that kind. A source that has never seen the event reports +Inf. Sources
// that cannot tell the two apart report the same value in both fields.
//
// ButtonDown is only meaningful when ButtonKnown is set. Sources with no
// view of the pointer buttons leave ButtonKnown false.
type IdleSample struct {
	SinceButtonDown float64
	SinceButtonDrag float64
	ButtonDown      bool
	ButtonKnown     bool
}

// Idle returns the smaller of the two idle durations in seconds.
// NaN in either field yields NaN.
func (s IdleSample) Idle() float64 {
	return math.Min(s.SinceButtonDown, s.SinceButtonDrag)
}

// Valid reports whether Idle is a finite, non-negative number.
func (s IdleSample) Valid() bool {
	idle := s.Idle()
	return !math.IsNaN(idle) && !math.IsInf(idle, 0) && idle >= 0
}

// InferredAt returns the wall-clock time of the last activity implied by
// the sample, taken relative to now. ok is false when the sample is not
// Valid.
func (s IdleSample) InferredAt(now time.Time) (at time.Time, ok bool) {
	if !s.Valid() {
		return time.Time{}, false
	}
	ms := int64(s.Idle() * 1000)
	return now.Add(-time.Duration(ms) * time.Millisecond), true
}

// ButtonClock turns an any-input idle counter into button activity. The
// counter is only read while a button is held and on the first sample
// that sees it released; other input leaves the pinned time alone. Until
// a button has been seen the samples report +Inf.
//
// A ButtonClock is not safe for concurrent use.
type ButtonClock struct {
	seen bool
	down bool
	at   time.Time
}

// Sample builds an IdleSample from the idle counter and button state
// read at now.
func (b *ButtonClock) Sample(now time.Time, idle time.Duration, down bool) IdleSample {
	if down || b.down {
		b.at = now.Add(-idle)
		b.seen = true
	}
	b.down = down

	secs := math.Inf(1)
	if b.seen {
		secs = math.Max(now.Sub(b.at).Seconds(), 0)
	}
	return IdleSample{
		SinceButtonDown: secs,
		SinceButtonDrag: secs,
		ButtonDown:      down,
		ButtonKnown:     true,
	}
}
