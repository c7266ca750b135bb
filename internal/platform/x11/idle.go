package x11

import (
	"fmt"
	"sync"
	"time"

	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"

	"ringobridge/internal/activity"
	"ringobridge/internal/clock"
)

const buttonMask = xproto.KeyButMaskButton1 | xproto.KeyButMaskButton2 | xproto.KeyButMaskButton3

// IdleSource reads idle time from the MIT-SCREEN-SAVER extension and the
// button state from QueryPointer. The extension does not separate button
// input from other input; a ButtonClock pins the samples to the button
// activity QueryPointer sees.
type IdleSource struct {
	mu      sync.Mutex
	c       *client
	buttons clock.ButtonClock
}

// NewIdleSource connects to display and initialises the extension.
func NewIdleSource(display string) (*IdleSource, error) {
	c, err := dial(display)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", activity.ErrNotAvailable, err)
	}
	if err := screensaver.Init(c.conn); err != nil {
		c.close()
		return nil, fmt.Errorf("%w: MIT-SCREEN-SAVER: %v", activity.ErrNotAvailable, err)
	}
	return &IdleSource{c: c}, nil
}

// Sample queries the server.
func (s *IdleSource) Sample() (clock.IdleSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.c
	if c == nil {
		return clock.IdleSample{}, activity.ErrNotAvailable
	}

	info, err := screensaver.QueryInfo(c.conn, xproto.Drawable(c.root)).Reply()
	if err != nil {
		return clock.IdleSample{}, fmt.Errorf("x11: query idle: %w", err)
	}
	ptr, err := xproto.QueryPointer(c.conn, c.root).Reply()
	if err != nil {
		return clock.IdleSample{}, fmt.Errorf("x11: query pointer: %w", err)
	}
	return idleSample(&s.buttons, time.Now(), info.MsSinceUserInput, ptr.Mask), nil
}

func idleSample(b *clock.ButtonClock, now time.Time, ms uint32, mask uint16) clock.IdleSample {
	return b.Sample(now, time.Duration(ms)*time.Millisecond, mask&buttonMask != 0)
}

// Close releases the connection.
func (s *IdleSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		s.c.close()
		s.c = nil
	}
}
