//go:build !linux

package evdev

import (
	"log/slog"

	"ringobridge/internal/activity"
)

// Monitor is unavailable outside Linux.
type Monitor struct{}

// NewMonitor returns a monitor whose Start always fails.
func NewMonitor(*slog.Logger) *Monitor { return &Monitor{} }

// Available reports false.
func (*Monitor) Available() (bool, string) { return false, "evdev requires linux" }

// Start returns activity.ErrNotAvailable.
func (*Monitor) Start(func(activity.Transition)) error { return activity.ErrNotAvailable }

// Stop does nothing.
func (*Monitor) Stop() error { return nil }
