//go:build !linux && !windows

package platform

import "log/slog"

func openNative(b *Backend, _ Options, logger *slog.Logger) {
	b.Name = "null"
	logger.Info("no native backend for this system, using null backend")
}
