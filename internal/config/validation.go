package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrInvalidConfig is matched by every error ValidateConfig returns.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrInvalidConfig) match.
func (e ValidationErrors) Is(target error) bool { return target == ErrInvalidConfig }

// Fields returns the names of the invalid fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// ValidateConfig checks every section and returns ValidationErrors, or nil.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateActivity(&c.Activity)...)
	errs = append(errs, validateForeground(&c.Foreground)...)
	errs = append(errs, validateWindow(&c.Window)...)
	errs = append(errs, validateIPC(&c.IPC)...)
	errs = append(errs, validateJournal(&c.Journal)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateActivity(a *ActivityConfig) ValidationErrors {
	var errs ValidationErrors

	if a.PollIntervalMs < 50 || a.PollIntervalMs > 60000 {
		errs = append(errs, *RangeError("activity.poll_interval_ms", 50, 60000))
	}
	if a.DedupThresholdMs < 0 || a.DedupThresholdMs > 10000 {
		errs = append(errs, *RangeError("activity.dedup_threshold_ms", 0, 10000))
	}

	switch a.IdleSource {
	case "auto", "x11", "mutter", "none":
	default:
		errs = append(errs, ValidationError{
			Field:   "activity.idle_source",
			Message: fmt.Sprintf("invalid idle source: %s (valid: auto, x11, mutter, none)", a.IdleSource),
		})
	}
	return errs
}

func validateForeground(f *ForegroundConfig) ValidationErrors {
	var errs ValidationErrors

	if f.PollIntervalMs < 50 || f.PollIntervalMs > 10000 {
		errs = append(errs, *RangeError("foreground.poll_interval_ms", 50, 10000))
	}
	for i, id := range f.IgnoredApplications {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("foreground.ignored_applications[%d]", i),
				Message: "identifier is empty",
			})
		}
	}
	return errs
}

func validateWindow(w *WindowConfig) ValidationErrors {
	var errs ValidationErrors

	positive := []struct {
		field string
		value float64
	}{
		{"window.pinned_width", w.PinnedWidth},
		{"window.pinned_height", w.PinnedHeight},
		{"window.default_width", w.DefaultWidth},
		{"window.default_height", w.DefaultHeight},
		{"window.safe_region", w.SafeRegion},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, ValidationError{Field: p.field, Message: "must be positive"})
		}
	}
	if w.Margin < 0 {
		errs = append(errs, ValidationError{Field: "window.margin", Message: "cannot be negative"})
	}
	if w.HostPID < 0 {
		errs = append(errs, ValidationError{Field: "window.host_pid", Message: "cannot be negative"})
	}
	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors

	if i.SocketPath == "" && i.WebSocketAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "ipc.socket_path",
			Message: "a socket path or websocket address is required",
		})
	}
	if i.WebSocketAddr != "" && !isHostPort(i.WebSocketAddr) {
		errs = append(errs, ValidationError{
			Field:   "ipc.websocket_addr",
			Message: fmt.Sprintf("invalid listen address: %s", i.WebSocketAddr),
		})
	}
	if i.MaxConnections < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.max_connections",
			Message: "max connections must be at least 1",
		})
	}
	if i.ReadTimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.read_timeout_sec",
			Message: "timeout must be at least 1 second",
		})
	}
	if i.WriteTimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.write_timeout_sec",
			Message: "timeout must be at least 1 second",
		})
	}
	if i.OutboxSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.outbox_size",
			Message: "outbox size must be at least 1",
		})
	}
	return errs
}

func validateJournal(j *JournalConfig) ValidationErrors {
	var errs ValidationErrors

	if !j.Enabled {
		return errs
	}
	if j.Path == "" {
		errs = append(errs, *RequiredFieldError("journal.path"))
	}
	if j.MaxEntries < 0 {
		errs = append(errs, ValidationError{Field: "journal.max_entries", Message: "cannot be negative"})
	}
	if j.BufferSize < 1 {
		errs = append(errs, ValidationError{Field: "journal.buffer_size", Message: "must be at least 1"})
	}
	if j.FlushIntervalMs < 10 {
		errs = append(errs, ValidationError{Field: "journal.flush_interval_ms", Message: "must be at least 10"})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors

	if m.Enabled && !isHostPort(m.ListenAddr) {
		errs = append(errs, ValidationError{
			Field:   "metrics.listen_addr",
			Message: fmt.Sprintf("invalid listen address: %s", m.ListenAddr),
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

func isHostPort(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	return err == nil && port != ""
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
