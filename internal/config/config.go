// Package config handles configuration loading, validation and hot reload
// for ringobridge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Activity configures the stroke-events normalizer.
	Activity ActivityConfig `toml:"activity" json:"activity" yaml:"activity"`

	// Foreground configures the foreground-app-events tracker.
	Foreground ForegroundConfig `toml:"foreground" json:"foreground" yaml:"foreground"`

	// Window configures the host window and the pinned overlay geometry.
	Window WindowConfig `toml:"window" json:"window" yaml:"window"`

	// Tint configures the glass tint.
	Tint TintConfig `toml:"tint" json:"tint" yaml:"tint"`

	// IPC configures the socket and WebSocket listeners.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Journal configures the diagnostic SQLite journal.
	Journal JournalConfig `toml:"journal" json:"journal" yaml:"journal"`

	// Metrics configures the HTTP metrics endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Daemon holds process-level settings.
	Daemon DaemonConfig `toml:"daemon" json:"daemon" yaml:"daemon"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// ActivityConfig holds the normalizer tunables. Both durations are
// applied to a running daemon on reload.
type ActivityConfig struct {
	// PollIntervalMs is the idle-source polling period.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`

	// DedupThresholdMs is the largest timestamp difference treated as the
	// same activity when the button state is unchanged.
	DedupThresholdMs int `toml:"dedup_threshold_ms" json:"dedup_threshold_ms" yaml:"dedup_threshold_ms"`

	// DisableMonitor skips the OS button monitor and relies on polling.
	DisableMonitor bool `toml:"disable_monitor" json:"disable_monitor" yaml:"disable_monitor"`

	// IdleSource selects the idle backend: "auto", "x11", "mutter" or "none".
	IdleSource string `toml:"idle_source" json:"idle_source" yaml:"idle_source"`
}

// ForegroundConfig holds tracker settings.
type ForegroundConfig struct {
	// PollIntervalMs is the activation polling period on platforms without
	// activation notifications.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`

	// IgnoredApplications are identifiers whose activations are not
	// forwarded.
	IgnoredApplications []string `toml:"ignored_applications" json:"ignored_applications" yaml:"ignored_applications"`
}

// WindowConfig identifies the host window and sizes the pinned overlay.
type WindowConfig struct {
	// Display is the X11 display name. Empty means $DISPLAY.
	Display string `toml:"display" json:"display" yaml:"display"`

	// HostClass is the WM_CLASS (X11) or window class (Windows) of the
	// host application's window.
	HostClass string `toml:"host_class" json:"host_class" yaml:"host_class"`

	// HostTitle is matched against the window title on Windows.
	HostTitle string `toml:"host_title" json:"host_title" yaml:"host_title"`

	// HostPID selects the host window by owning process on X11.
	HostPID int `toml:"host_pid" json:"host_pid" yaml:"host_pid"`

	PinnedWidth   float64 `toml:"pinned_width" json:"pinned_width" yaml:"pinned_width"`
	PinnedHeight  float64 `toml:"pinned_height" json:"pinned_height" yaml:"pinned_height"`
	Margin        float64 `toml:"margin" json:"margin" yaml:"margin"`
	DefaultWidth  float64 `toml:"default_width" json:"default_width" yaml:"default_width"`
	DefaultHeight float64 `toml:"default_height" json:"default_height" yaml:"default_height"`

	// SafeRegion is the side of the pin and lock button areas in DIPs.
	SafeRegion float64 `toml:"safe_region" json:"safe_region" yaml:"safe_region"`

	// Animate requests animated frame changes.
	Animate bool `toml:"animate" json:"animate" yaml:"animate"`
}

// TintConfig holds glass tint settings.
type TintConfig struct {
	// Enabled lets tint calls reach the platform. When false they are
	// recorded only.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// IPCConfig holds inter-process communication configuration.
type IPCConfig struct {
	// SocketPath is the path to the Unix socket.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// WebSocketAddr enables the WebSocket listener on host:port.
	WebSocketAddr string `toml:"websocket_addr" json:"websocket_addr" yaml:"websocket_addr"`

	// AllowedOrigins are accepted WebSocket origins besides loopback.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`

	// MaxConnections is the maximum concurrent connections.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// ReadTimeoutSec is the idle time before a client is pinged.
	ReadTimeoutSec int `toml:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec"`

	// WriteTimeoutSec bounds a single write to a client.
	WriteTimeoutSec int `toml:"write_timeout_sec" json:"write_timeout_sec" yaml:"write_timeout_sec"`

	// OutboxSize is the number of queued events per client before the
	// client is disconnected as slow.
	OutboxSize int `toml:"outbox_size" json:"outbox_size" yaml:"outbox_size"`

	// RequireSameUser rejects socket peers owned by another user.
	RequireSameUser bool `toml:"require_same_user" json:"require_same_user" yaml:"require_same_user"`
}

// JournalConfig holds diagnostic journal settings.
type JournalConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`

	// MaxEntries caps the table size. Zero keeps everything.
	MaxEntries int `toml:"max_entries" json:"max_entries" yaml:"max_entries"`

	// BufferSize is the number of pending entries before new ones are
	// dropped.
	BufferSize int `toml:"buffer_size" json:"buffer_size" yaml:"buffer_size"`

	FlushIntervalMs int `toml:"flush_interval_ms" json:"flush_interval_ms" yaml:"flush_interval_ms"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	MaxSizeMB  int  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `toml:"compress" json:"compress" yaml:"compress"`

	// RedactWindowTitles hides window titles in log records.
	RedactWindowTitles bool `toml:"redact_window_titles" json:"redact_window_titles" yaml:"redact_window_titles"`
}

// DaemonConfig holds process-level settings.
type DaemonConfig struct {
	// DataDir holds the socket, journal and PID file by default.
	DataDir string `toml:"data_dir" json:"data_dir" yaml:"data_dir"`

	// PidFile is written at startup and removed on exit.
	PidFile string `toml:"pid_file" json:"pid_file" yaml:"pid_file"`

	// WatchConfig reloads the configuration file when it changes.
	WatchConfig bool `toml:"watch_config" json:"watch_config" yaml:"watch_config"`
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	paths := GetDefaultPaths()
	return &Config{
		Version: Version,
		Activity: ActivityConfig{
			PollIntervalMs:   1000,
			DedupThresholdMs: 50,
			IdleSource:       "auto",
		},
		Foreground: ForegroundConfig{
			PollIntervalMs: 250,
		},
		Window: WindowConfig{
			PinnedWidth:   360,
			PinnedHeight:  220,
			Margin:        16,
			DefaultWidth:  1440,
			DefaultHeight: 900,
			SafeRegion:    80,
			Animate:       true,
		},
		Tint: TintConfig{Enabled: true},
		IPC: IPCConfig{
			SocketPath:      paths.SocketPath,
			MaxConnections:  16,
			ReadTimeoutSec:  60,
			WriteTimeoutSec: 10,
			OutboxSize:      256,
			RequireSameUser: true,
		},
		Journal: JournalConfig{
			Path:            paths.JournalFile,
			MaxEntries:      100000,
			BufferSize:      1024,
			FlushIntervalMs: 1000,
		},
		Metrics: MetricsConfig{
			ListenAddr: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(paths.LogDir, "ringobridge.log"),
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Daemon: DaemonConfig{
			DataDir:     paths.DataDir,
			PidFile:     paths.PIDFile,
			WatchConfig: true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if envPath := os.Getenv("RINGOBRIDGE_CONFIG"); envPath != "" {
		return envPath
	}
	return GetDefaultPaths().ConfigFile
}

// Load reads configuration from path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Daemon.DataDir,
		filepath.Dir(c.IPC.SocketPath),
		filepath.Dir(c.Daemon.PidFile),
	}
	if c.Journal.Enabled {
		dirs = append(dirs, filepath.Dir(c.Journal.Path))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// envOverrides maps RINGOBRIDGE_* variables to setters.
var envOverrides = map[string]func(c *Config, v string) error{
	"RINGOBRIDGE_POLL_INTERVAL_MS":   intSetter(func(c *Config) *int { return &c.Activity.PollIntervalMs }),
	"RINGOBRIDGE_DEDUP_THRESHOLD_MS": intSetter(func(c *Config) *int { return &c.Activity.DedupThresholdMs }),
	"RINGOBRIDGE_DISABLE_MONITOR":    boolSetter(func(c *Config) *bool { return &c.Activity.DisableMonitor }),
	"RINGOBRIDGE_IDLE_SOURCE":        stringSetter(func(c *Config) *string { return &c.Activity.IdleSource }),
	"RINGOBRIDGE_DISPLAY":            stringSetter(func(c *Config) *string { return &c.Window.Display }),
	"RINGOBRIDGE_HOST_CLASS":         stringSetter(func(c *Config) *string { return &c.Window.HostClass }),
	"RINGOBRIDGE_HOST_TITLE":         stringSetter(func(c *Config) *string { return &c.Window.HostTitle }),
	"RINGOBRIDGE_HOST_PID":           intSetter(func(c *Config) *int { return &c.Window.HostPID }),
	"RINGOBRIDGE_SOCKET_PATH":        stringSetter(func(c *Config) *string { return &c.IPC.SocketPath }),
	"RINGOBRIDGE_WEBSOCKET_ADDR":     stringSetter(func(c *Config) *string { return &c.IPC.WebSocketAddr }),
	"RINGOBRIDGE_JOURNAL_ENABLED":    boolSetter(func(c *Config) *bool { return &c.Journal.Enabled }),
	"RINGOBRIDGE_JOURNAL_PATH":       stringSetter(func(c *Config) *string { return &c.Journal.Path }),
	"RINGOBRIDGE_METRICS_ENABLED":    boolSetter(func(c *Config) *bool { return &c.Metrics.Enabled }),
	"RINGOBRIDGE_METRICS_ADDR":       stringSetter(func(c *Config) *string { return &c.Metrics.ListenAddr }),
	"RINGOBRIDGE_LOG_LEVEL":          stringSetter(func(c *Config) *string { return &c.Logging.Level }),
	"RINGOBRIDGE_LOG_FORMAT":         stringSetter(func(c *Config) *string { return &c.Logging.Format }),
	"RINGOBRIDGE_LOG_PATH":           stringSetter(func(c *Config) *string { return &c.Logging.FilePath }),
	"RINGOBRIDGE_DATA_DIR":           stringSetter(func(c *Config) *string { return &c.Daemon.DataDir }),
}

func stringSetter(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// ApplyEnvOverrides applies RINGOBRIDGE_* environment variables. Values
// that fail to parse are ignored and reported in the returned slice.
func (c *Config) ApplyEnvOverrides() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ignored []string
	for name, set := range envOverrides {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if err := set(c, v); err != nil {
			ignored = append(ignored, name)
		}
	}
	return ignored
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:    c.Version,
		Activity:   c.Activity,
		Foreground: c.Foreground,
		Window:     c.Window,
		Tint:       c.Tint,
		IPC:        c.IPC,
		Journal:    c.Journal,
		Metrics:    c.Metrics,
		Logging:    c.Logging,
		Daemon:     c.Daemon,
	}
	clone.Foreground.IgnoredApplications = append([]string(nil), c.Foreground.IgnoredApplications...)
	clone.IPC.AllowedOrigins = append([]string(nil), c.IPC.AllowedOrigins...)
	return clone
}

// PollInterval returns the activity poll interval.
func (a ActivityConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalMs) * time.Millisecond
}

// DedupThreshold returns the activity dedup threshold.
func (a ActivityConfig) DedupThreshold() time.Duration {
	return time.Duration(a.DedupThresholdMs) * time.Millisecond
}

// PollInterval returns the foreground poll interval.
func (f ForegroundConfig) PollInterval() time.Duration {
	return time.Duration(f.PollIntervalMs) * time.Millisecond
}

// FlushInterval returns the journal flush interval.
func (j JournalConfig) FlushInterval() time.Duration {
	return time.Duration(j.FlushIntervalMs) * time.Millisecond
}
