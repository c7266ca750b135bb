//go:build windows

package platform

import (
	"log/slog"

	"ringobridge/internal/platform/win32"
)

func openNative(b *Backend, opts Options, logger *slog.Logger) {
	var hook *win32.Monitor
	if !opts.DisableMonitor {
		hook = win32.NewMonitor(logger)
		b.Monitor = hook
	}
	if opts.IdleSource != IdleNone {
		b.Idle = win32.NewIdleSource(hook)
	}
	b.Workspace = win32.NewWorkspace(opts.ForegroundPoll)

	hw, err := win32.NewHostWindow(opts.HostClass, opts.HostTitle, logger)
	if err != nil {
		logger.Warn("win32 host window", "error", err)
		return
	}
	b.Window = hw
	b.Displays = hw
	b.Tinter = hw
}
