package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	"ringobridge/internal/activity"
	"ringobridge/internal/bridge"
	"ringobridge/internal/clock"
	"ringobridge/internal/config"
	"ringobridge/internal/foreground"
	"ringobridge/internal/health"
	"ringobridge/internal/ipc"
	"ringobridge/internal/journal"
	"ringobridge/internal/logging"
	"ringobridge/internal/metrics"
	"ringobridge/internal/platform"
	"ringobridge/internal/stream"
	"ringobridge/internal/window"
)

// daemon owns every long-lived component of a running ringobridge.
type daemon struct {
	cfg    *config.Config
	log    *logging.Logger
	logger *slog.Logger

	backend  *platform.Backend
	queue    *stream.Queue
	detector *activity.Detector
	tracker  *foreground.Tracker
	machine  *window.Machine
	tint     *window.Tint
	router   *bridge.Router
	server   *ipc.Server

	metrics    *metrics.BridgeMetrics
	metricsSrv *metrics.Server
	health     *health.Checker

	store     *journal.Store
	recorder  *journal.Recorder
	sessionID string

	pidFile string
}

func newDaemon(cfg *config.Config, log *logging.Logger) *daemon {
	return &daemon{
		cfg:    cfg,
		log:    log,
		logger: log.WithComponent("daemon"),
	}
}

func (d *daemon) start() error {
	cfg := d.cfg
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if err := d.writePidFile(); err != nil {
		return err
	}

	d.backend = platform.Open(platformOptions(cfg), d.log.Logger)
	d.queue = stream.NewQueue(0, d.log.WithComponent("queue"))

	if cfg.Metrics.Enabled {
		d.metrics = metrics.NewBridgeMetrics(metrics.NewRegistry("ringobridge"))
	}
	if cfg.Journal.Enabled {
		if err := d.openJournal(); err != nil {
			// The journal is diagnostic only.
			d.logger.Warn("journal disabled", "path", cfg.Journal.Path, "error", err)
		}
	}

	detectorOpts := []activity.Option{activity.WithLogger(d.log.WithComponent("activity"))}
	if d.metrics != nil {
		detectorOpts = append(detectorOpts, activity.WithObserver(d.metrics))
	}
	if d.recorder != nil {
		detectorOpts = append(detectorOpts, activity.WithObserver(d.recorder))
	}
	d.detector = activity.NewDetector(activityConfig(cfg), d.backend.Monitor, d.backend.Idle, d.queue, detectorOpts...)

	d.tracker = foreground.NewTracker(
		foreground.Config{IgnoredApplications: cfg.Foreground.IgnoredApplications},
		d.backend.Workspace, d.queue, clock.SystemClock{}, d.log.WithComponent("foreground"))

	d.machine = window.NewMachine(windowConfig(cfg), d.backend.Window, d.backend.Displays, d.log.WithComponent("window"))

	var tinter window.Tinter
	if cfg.Tint.Enabled {
		tinter = d.backend.Tinter
	}
	d.tint = window.NewTint(tinter, d.log.WithComponent("tint"))

	if d.metrics != nil {
		d.tracker.AddObserver(d.metrics)
		d.machine.AddObserver(d.metrics)
	}
	if d.recorder != nil {
		d.tracker.AddObserver(d.recorder)
		d.machine.AddObserver(d.recorder)
	}

	router, err := bridge.NewRouter(bridge.Config{
		Modes:    d.machine,
		Tint:     d.tint,
		Prober:   d.tracker,
		Executor: d.queue,
		Logger:   d.log.WithComponent("bridge"),
	})
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}
	router.RegisterStream(stream.New[activity.Event](bridge.ChannelStrokeEvents, d.queue, d.detector, d.log.Logger))
	router.RegisterStream(stream.New[foreground.Event](bridge.ChannelForegroundEvents, d.queue, d.tracker, d.log.Logger))
	d.router = router

	var backend ipc.Backend = router
	if d.metrics != nil {
		backend = &meteredBackend{Backend: router, metrics: d.metrics}
	}

	sc := serverConfig(cfg, d.backend.Name, d.log.WithComponent("ipc"))
	if d.metrics != nil {
		sc.Observer = d.metrics
	}
	server, err := ipc.NewServer(sc, backend)
	if err != nil {
		return fmt.Errorf("create ipc server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	d.server = server

	d.health = d.newHealthChecker()
	d.health.SetReady(true)

	if d.metrics != nil {
		srv, err := metrics.Serve(cfg.Metrics.ListenAddr, d.metrics.Registry(), d.log.Logger,
			metrics.Route{Pattern: "/healthz", Handler: d.health.HealthHandler()},
			metrics.Route{Pattern: "/readyz", Handler: d.health.ReadinessHandler()},
			metrics.Route{Pattern: "/livez", Handler: d.health.LivenessHandler()})
		if err != nil {
			d.logger.Warn("metrics endpoint disabled", "error", err)
		} else {
			d.metricsSrv = srv
		}
	}

	d.logger.Info("ringobridge started",
		"version", Version,
		"socket", server.SocketPath(),
		"websocket", server.WebSocketAddr(),
		"channels", router.Channels())
	return nil
}

// newHealthChecker registers the component checks served next to the
// metrics. Only the queue is critical; missing platform pieces degrade.
func (d *daemon) newHealthChecker() *health.Checker {
	c := health.NewChecker()
	c.RegisterFunc("queue", true, health.SyncCheck(d.queue.Sync))
	c.RegisterFunc("workspace", false, health.CapabilityCheck(d.backend.Workspace.Available))
	c.RegisterFunc("window", false, health.CapabilityCheck(func() (bool, string) {
		if d.backend.Window == nil {
			return false, "no host window"
		}
		return true, fmt.Sprintf("%T", d.backend.Window)
	}))
	if d.store != nil {
		c.RegisterFunc("journal", false, health.PingCheck("journal", d.store.Ping))
	}
	return c
}

func (d *daemon) openJournal() error {
	store, err := journal.Open(d.cfg.Journal.Path)
	if err != nil {
		return err
	}
	session, err := store.BeginSession(Version, d.backend.Name)
	if err != nil {
		store.Close()
		return err
	}
	d.store = store
	d.sessionID = session
	d.recorder = journal.NewRecorder(store, journal.RecorderConfig{
		Buffer:            d.cfg.Journal.BufferSize,
		FlushInterval:     d.cfg.Journal.FlushInterval(),
		MaxEntries:        int64(d.cfg.Journal.MaxEntries),
		SessionID:         session,
		StrokeChannel:     bridge.ChannelStrokeEvents,
		ForegroundChannel: bridge.ChannelForegroundEvents,
		WindowChannel:     bridge.ChannelWindowPin,
	}, d.log.WithComponent("journal"))
	return nil
}

// wait blocks until a termination signal. Reload signals re-read the
// configuration file.
func (d *daemon) wait(loader *config.Loader) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, terminateSignals...)
	defer signal.Stop(sigChan)

	reloadChan := make(chan os.Signal, 1)
	if len(reloadSignals) > 0 {
		signal.Notify(reloadChan, reloadSignals...)
		defer signal.Stop(reloadChan)
	}

	for {
		select {
		case sig := <-sigChan:
			d.logger.Info("shutting down", "signal", sig.String())
			return
		case <-reloadChan:
			if err := loader.Reload(); err != nil {
				d.logger.Warn("config reload rejected", "error", err)
			}
		}
	}
}

// applyConfig takes the tunables that can change at runtime and reports
// the rest as needing a restart.
func (d *daemon) applyConfig(old, new *config.Config) {
	if d.detector != nil {
		d.detector.Reconfigure(activityConfig(new))
	}
	if level, err := logging.ParseLevel(new.Logging.Level); err == nil && level != d.log.Level() {
		d.log.SetLevel(level)
		d.logger.Info("log level changed", "level", new.Logging.Level)
	}
	if old == nil {
		return
	}
	if fields := restartRequired(old, new); len(fields) > 0 {
		d.logger.Warn("config changes take effect after restart", "sections", fields)
	}
}

func restartRequired(old, new *config.Config) []string {
	var fields []string
	if old.Activity.DisableMonitor != new.Activity.DisableMonitor || old.Activity.IdleSource != new.Activity.IdleSource {
		fields = append(fields, "activity")
	}
	if old.Foreground.PollIntervalMs != new.Foreground.PollIntervalMs ||
		!slices.Equal(old.Foreground.IgnoredApplications, new.Foreground.IgnoredApplications) {
		fields = append(fields, "foreground")
	}
	if old.Window != new.Window {
		fields = append(fields, "window")
	}
	if old.Tint != new.Tint {
		fields = append(fields, "tint")
	}
	if old.IPC.SocketPath != new.IPC.SocketPath || old.IPC.WebSocketAddr != new.IPC.WebSocketAddr ||
		old.IPC.MaxConnections != new.IPC.MaxConnections || old.IPC.OutboxSize != new.IPC.OutboxSize ||
		old.IPC.ReadTimeoutSec != new.IPC.ReadTimeoutSec || old.IPC.WriteTimeoutSec != new.IPC.WriteTimeoutSec ||
		old.IPC.RequireSameUser != new.IPC.RequireSameUser ||
		!slices.Equal(old.IPC.AllowedOrigins, new.IPC.AllowedOrigins) {
		fields = append(fields, "ipc")
	}
	if old.Journal != new.Journal {
		fields = append(fields, "journal")
	}
	if old.Metrics != new.Metrics {
		fields = append(fields, "metrics")
	}
	if old.Logging.Format != new.Logging.Format || old.Logging.Output != new.Logging.Output ||
		old.Logging.FilePath != new.Logging.FilePath {
		fields = append(fields, "logging")
	}
	return fields
}

// stop tears components down in reverse order. It tolerates a partial
// start.
func (d *daemon) stop() {
	if d.health != nil {
		d.health.SetReady(false)
	}
	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			d.logger.Warn("ipc server stop", "error", err)
		}
	}
	if d.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		d.metricsSrv.Shutdown(ctx)
		cancel()
	}

	if d.queue != nil {
		// Leave the host window in its normal presentation.
		err := d.queue.Sync(func() {
			if d.machine != nil {
				d.machine.ExitPinnedMode()
				d.machine.Release()
			}
			if d.tint != nil {
				d.tint.Release()
			}
		})
		if err != nil && !errors.Is(err, stream.ErrQueueClosed) {
			d.logger.Warn("window release", "error", err)
		}
		d.queue.Close()
	}

	if d.recorder != nil {
		d.recorder.Close()
		d.logger.Info("journal closed", "written", d.recorder.Written(), "dropped", d.recorder.Dropped())
	}
	if d.store != nil {
		if err := d.store.EndSession(d.sessionID); err != nil {
			d.logger.Warn("journal end session", "error", err)
		}
		d.store.Close()
	}
	if d.backend != nil {
		d.backend.Close()
	}
	d.removePidFile()
}

func (d *daemon) writePidFile() error {
	path := d.cfg.Daemon.PidFile
	if path == "" {
		return nil
	}
	if pid, ok := readPid(path); ok && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("ringobridge already running (pid %d, %s)", pid, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	d.pidFile = path
	return nil
}

func (d *daemon) removePidFile() {
	if d.pidFile == "" {
		return
	}
	if pid, ok := readPid(d.pidFile); ok && pid == os.Getpid() {
		os.Remove(d.pidFile)
	}
	d.pidFile = ""
}

func activityConfig(cfg *config.Config) activity.Config {
	return activity.Config{
		PollInterval:   cfg.Activity.PollInterval(),
		DedupThreshold: cfg.Activity.DedupThreshold(),
	}
}

func windowConfig(cfg *config.Config) window.Config {
	w := cfg.Window
	return window.Config{
		PinnedSize:  window.Size{Width: w.PinnedWidth, Height: w.PinnedHeight},
		Margin:      w.Margin,
		DefaultSize: window.Size{Width: w.DefaultWidth, Height: w.DefaultHeight},
		SafeRegion:  w.SafeRegion,
		Animate:     w.Animate,
	}
}

func serverConfig(cfg *config.Config, platformName string, logger *slog.Logger) ipc.ServerConfig {
	sc := ipc.DefaultServerConfig(cfg.Daemon.DataDir)
	sc.SocketPath = cfg.IPC.SocketPath
	sc.WebSocketAddr = cfg.IPC.WebSocketAddr
	sc.AllowedOrigins = cfg.IPC.AllowedOrigins
	sc.MaxConnections = cfg.IPC.MaxConnections
	sc.ReadTimeout = time.Duration(cfg.IPC.ReadTimeoutSec) * time.Second
	sc.WriteTimeout = time.Duration(cfg.IPC.WriteTimeoutSec) * time.Second
	sc.OutboxSize = cfg.IPC.OutboxSize
	sc.RequireSameUser = cfg.IPC.RequireSameUser
	sc.Version = Version
	sc.Platform = platformName
	sc.Logger = logger
	return sc
}
