// Package mutter samples GNOME's idle monitor over the session bus. It is
// the idle source for Wayland sessions, where X11 queries are not
// available to ordinary clients.
package mutter

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/godbus/dbus/v5"

	"ringobridge/internal/activity"
	"ringobridge/internal/clock"
)

// D-Bus names of the Mutter idle monitor.
const (
	BusName    = "org.gnome.Mutter.IdleMonitor"
	ObjectPath = dbus.ObjectPath("/org/gnome/Mutter/IdleMonitor/Core")
	Interface  = "org.gnome.Mutter.IdleMonitor"

	methodGetIdletime = Interface + ".GetIdletime"
)

// caller is the part of a bus object the source needs.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// IdleSource answers idle queries from Mutter. Mutter reports one idle
// time for all input, so both sample fields carry the same value and the
// button is never reported down.
type IdleSource struct {
	mu     sync.Mutex
	conn   *dbus.Conn
	obj    caller
	logger *slog.Logger
}

// Connect opens the session bus and checks that the idle monitor is
// present.
func Connect(logger *slog.Logger) (*IdleSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: session bus: %v", activity.ErrNotAvailable, err)
	}

	var owned bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, BusName).Store(&owned); err != nil || !owned {
		if err == nil {
			err = fmt.Errorf("%s has no owner", BusName)
		}
		return nil, fmt.Errorf("%w: %v", activity.ErrNotAvailable, err)
	}

	s := &IdleSource{
		conn:   conn,
		obj:    conn.Object(BusName, ObjectPath),
		logger: logger.With("component", "mutter"),
	}
	s.logger.Debug("idle monitor connected", "bus", BusName)
	return s, nil
}

func newWithCaller(obj caller) *IdleSource {
	return &IdleSource{obj: obj, logger: slog.Default()}
}

// Sample returns the current idle time.
func (s *IdleSource) Sample() (clock.IdleSample, error) {
	s.mu.Lock()
	obj := s.obj
	s.mu.Unlock()
	if obj == nil {
		return clock.IdleSample{}, activity.ErrNotAvailable
	}

	var ms uint64
	if err := obj.Call(methodGetIdletime, 0).Store(&ms); err != nil {
		return clock.IdleSample{}, fmt.Errorf("mutter: GetIdletime: %w", err)
	}
	return fromMillis(ms), nil
}

func fromMillis(ms uint64) clock.IdleSample {
	secs := float64(ms) / 1000
	if ms == math.MaxUint64 {
		secs = math.Inf(1)
	}
	// GetIdletime says nothing about the buttons.
	return clock.IdleSample{SinceButtonDown: secs, SinceButtonDrag: secs, ButtonKnown: false}
}

// Close drops the bus connection. The shared session bus itself stays
// open for other users in the process.
func (s *IdleSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obj = nil
	s.conn = nil
	return nil
}
