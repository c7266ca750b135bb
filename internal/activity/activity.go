// Package activity turns pointer-button signals into a de-duplicated stream
// of stroke events.
//
// Two sources feed the stream: an event-driven ButtonMonitor that reports
// each press and release with the OS timestamp, and an IdleSource polled on
// a fixed interval as a fallback for when the monitor cannot be installed
// or misses events. Both go through the same Normalizer so the consumer
// sees one consistent sequence.
package activity

import (
	"errors"
	"time"

	"ringobridge/internal/clock"
)

// ErrNotAvailable is returned by monitors and idle sources that cannot run
// on the current system.
var ErrNotAvailable = errors.New("activity: source not available")

// Event is one stroke sample delivered to the application.
type Event struct {
	TimestampMillis int64 `json:"timestamp"`
	IsButtonDown    bool  `json:"isDown"`
}

// Button identifies a pointer button.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonSecondary
	ButtonAuxiliary
	ButtonStylus
)

// String returns the button name.
func (b Button) String() string {
	switch b {
	case ButtonPrimary:
		return "primary"
	case ButtonSecondary:
		return "secondary"
	case ButtonAuxiliary:
		return "auxiliary"
	case ButtonStylus:
		return "stylus"
	default:
		return "unknown"
	}
}

// Transition is a single press or release reported by a ButtonMonitor.
type Transition struct {
	Timestamp time.Time
	Button    Button
	Down      bool
}

// ButtonMonitor delivers button transitions as they happen.
//
// Start returns once the monitor is installed; handler may then be called
// from any goroutine. Stop uninstalls the monitor and returns after the
// last handler call has finished.
type ButtonMonitor interface {
	Start(handler func(Transition)) error
	Stop() error
}

// IdleSource answers idle-time queries.
type IdleSource interface {
	Sample() (clock.IdleSample, error)
}

// Config holds the detector tunables.
type Config struct {
	// PollInterval is the idle-source polling period.
	PollInterval time.Duration

	// DedupThreshold is the largest timestamp difference treated as the
	// same activity when the button state is unchanged.
	DedupThreshold time.Duration
}

// DefaultConfig returns the stock tunables: 1s polling, 50ms de-dup.
func DefaultConfig() Config {
	return Config{
		PollInterval:   time.Second,
		DedupThreshold: 50 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.DedupThreshold < 0 {
		c.DedupThreshold = d.DedupThreshold
	}
	return c
}
