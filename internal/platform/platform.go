// Package platform selects the backends for the running system.
package platform

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"ringobridge/internal/activity"
	"ringobridge/internal/foreground"
	"ringobridge/internal/platform/null"
	"ringobridge/internal/window"
)

// Idle source names accepted in Options.IdleSource.
const (
	IdleAuto   = "auto"
	IdleX11    = "x11"
	IdleMutter = "mutter"
	IdleNone   = "none"
)

// Options picks and configures backends.
type Options struct {
	// Display is the X11 display; empty means $DISPLAY.
	Display string

	// HostClass matches the host window's WM_CLASS on X11 and its window
	// class on Windows.
	HostClass string

	// HostTitle matches the host window title on Windows.
	HostTitle string

	// HostPID matches the host window's _NET_WM_PID on X11.
	HostPID int

	// ForegroundPoll is the activation polling interval where the system
	// has no activation notification.
	ForegroundPoll time.Duration

	// DisableMonitor skips the event-driven button monitor.
	DisableMonitor bool

	// IdleSource is one of IdleAuto, IdleX11, IdleMutter or IdleNone.
	IdleSource string
}

// Backend is the set of sources and sinks for one system. Window, Displays
// and Tinter are nil when the system cannot control the host window.
type Backend struct {
	Name      string
	Monitor   activity.ButtonMonitor
	Idle      activity.IdleSource
	Workspace foreground.Workspace
	Window    window.Window
	Displays  window.Displays
	Tinter    window.Tinter

	closers []func()
}

// Open builds the backend for the running OS. It never fails: parts that
// cannot be opened are replaced by null implementations and logged.
func Open(opts Options, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "platform")
	if opts.IdleSource == "" {
		opts.IdleSource = IdleAuto
	}

	b := &Backend{Name: runtime.GOOS}
	openNative(b, opts, logger)
	b.fillNull()

	logger.Info("platform backend", b.LogAttrs()...)
	return b
}

func (b *Backend) fillNull() {
	if b.Monitor == nil {
		b.Monitor = null.Monitor{}
	}
	if b.Idle == nil {
		b.Idle = null.IdleSource{}
	}
	if b.Workspace == nil {
		b.Workspace = null.Workspace{}
	}
}

func (b *Backend) onClose(f func()) {
	b.closers = append(b.closers, f)
}

// Close releases every connection the backend opened.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// LogAttrs describes the chosen implementations as slog key/value pairs.
func (b *Backend) LogAttrs() []any {
	ok, desc := b.Workspace.Available()
	return []any{
		"name", b.Name,
		"monitor", typeName(b.Monitor),
		"idle", typeName(b.Idle),
		"workspace", typeName(b.Workspace),
		"workspace_ok", ok,
		"workspace_detail", desc,
		"window", typeName(b.Window),
		"tint", typeName(b.Tinter),
	}
}

func typeName(v any) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprintf("%T", v)
}
