//go:build linux

package platform

import (
	"log/slog"

	"ringobridge/internal/platform/evdev"
	"ringobridge/internal/platform/mutter"
	"ringobridge/internal/platform/x11"
)

func openNative(b *Backend, opts Options, logger *slog.Logger) {
	if !opts.DisableMonitor {
		mon := evdev.NewMonitor(logger)
		if ok, reason := mon.Available(); !ok {
			logger.Warn("evdev monitor unavailable", "reason", reason)
		} else {
			b.Monitor = mon
		}
	}

	hasX, reason := x11.Available()
	if hasX {
		b.Name = "linux/x11"
		if ws, err := x11.NewWorkspace(opts.Display, logger); err != nil {
			logger.Warn("x11 workspace", "error", err)
		} else {
			b.Workspace = ws
			b.onClose(ws.Close)
		}
		if opts.HostClass != "" || opts.HostPID > 0 {
			if hw, err := x11.NewHostWindow(opts.Display, opts.HostClass, opts.HostPID, logger); err != nil {
				logger.Warn("x11 host window", "error", err)
			} else {
				b.Window = hw
				b.Displays = hw
				b.onClose(hw.Close)
			}
		}
	} else {
		logger.Info("no x11 display", "reason", reason)
	}

	if opts.IdleSource == IdleNone {
		return
	}
	if hasX && (opts.IdleSource == IdleAuto || opts.IdleSource == IdleX11) {
		if idle, err := x11.NewIdleSource(opts.Display); err != nil {
			logger.Warn("x11 idle source", "error", err)
		} else {
			b.Idle = idle
			b.onClose(idle.Close)
			return
		}
	}
	if opts.IdleSource == IdleAuto || opts.IdleSource == IdleMutter {
		if idle, err := mutter.Connect(logger); err != nil {
			logger.Warn("mutter idle source", "error", err)
		} else {
			b.Idle = idle
			b.onClose(func() { idle.Close() })
		}
	}
}
