package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringobridge/internal/bridge"
	"ringobridge/internal/config"
	"ringobridge/internal/ipc"
	"ringobridge/internal/journal"
	"ringobridge/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir, err := os.MkdirTemp("", "rbd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.DefaultConfig()
	cfg.Activity.DisableMonitor = true
	cfg.Activity.IdleSource = "none"
	cfg.Window.Display = ":rb-test-none"
	cfg.Daemon.DataDir = dir
	cfg.Daemon.PidFile = filepath.Join(dir, "rb.pid")
	cfg.IPC.SocketPath = filepath.Join(dir, "rb.sock")
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.Journal.FlushIntervalMs = 20
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())
	return cfg
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(&logging.Config{Level: logging.LevelDebug, Writer: io.Discard})
	require.NoError(t, err)
	return log
}

func TestDaemonServesChannels(t *testing.T) {
	cfg := testConfig(t)
	d := newDaemon(cfg, testLogger(t))
	require.NoError(t, d.start())
	stopped := false
	defer func() {
		if !stopped {
			d.stop()
		}
	}()

	pid, ok := readPid(cfg.Daemon.PidFile)
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)

	cc := ipc.DefaultClientConfig(cfg.Daemon.DataDir)
	cc.SocketPath = cfg.IPC.SocketPath
	client := ipc.NewClient(cc)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()
	ctx := context.Background()

	assert.ElementsMatch(t, []string{
		bridge.ChannelForegroundEvents,
		bridge.ChannelStrokeEvents,
		bridge.ChannelWindowPin,
		bridge.ChannelGlassTint,
		bridge.ChannelForeground,
	}, client.Channels())

	// No host window is configured.
	_, err := client.Call(ctx, bridge.ChannelWindowPin, bridge.MethodIsPinned, nil)
	var re *ipc.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, string(bridge.CodeUnavailable), re.Code)

	_, err = client.Subscribe(ctx, bridge.ChannelStrokeEvents)
	require.NoError(t, err)
	select {
	case ev := <-client.Events():
		assert.Equal(t, bridge.ChannelStrokeEvents, ev.Channel)
		assert.Contains(t, string(ev.Data), `"isDown":false`)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial stroke event")
	}

	snap := d.metrics.Registry().Snapshot()
	assert.Equal(t, uint64(1), snap[`ringobridge_stroke_events_emitted_total{origin="initial"}`])
	assert.Equal(t, uint64(1),
		snap[`ringobridge_commands_total{channel="window-pin",code="UNAVAILABLE",method="isPinned"}`])

	require.NotNil(t, d.metricsSrv)
	resp, err := http.Get("http://" + d.metricsSrv.Addr() + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + d.metricsSrv.Addr() + "/healthz")
	require.NoError(t, err)
	var report struct {
		Components map[string]struct {
			Status string `json:"status"`
		} `json:"components"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	assert.Equal(t, "healthy", report.Components["queue"].Status)
	assert.Equal(t, "healthy", report.Components["journal"].Status)
	assert.Equal(t, "degraded", report.Components["window"].Status)

	client.Close()
	d.stop()
	stopped = true

	_, err = os.Stat(cfg.Daemon.PidFile)
	assert.True(t, os.IsNotExist(err), "pid file should be removed")

	store, err := journal.Open(cfg.Journal.Path)
	require.NoError(t, err)
	defer store.Close()
	entries, err := store.Tail(10, journal.KindStroke)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, bridge.ChannelStrokeEvents, entries[0].Channel)

	session, err := store.LastSession()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, Version, session.Version)
}

func TestDaemonRefusesLivePidFile(t *testing.T) {
	cfg := testConfig(t)
	// The parent process is alive and is not us.
	require.NoError(t, os.WriteFile(cfg.Daemon.PidFile, []byte(strconv.Itoa(os.Getppid())), 0600))

	d := newDaemon(cfg, testLogger(t))
	err := d.start()
	d.stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	// A refused start leaves the other process's pid file alone.
	pid, ok := readPid(cfg.Daemon.PidFile)
	require.True(t, ok)
	assert.Equal(t, os.Getppid(), pid)
}

func TestRestartRequired(t *testing.T) {
	old := config.DefaultConfig()

	tunables := old.Clone()
	tunables.Activity.PollIntervalMs = 250
	tunables.Activity.DedupThresholdMs = 10
	tunables.Logging.Level = "debug"
	assert.Empty(t, restartRequired(old, tunables))

	structural := old.Clone()
	structural.Window.HostClass = "ringo"
	structural.IPC.WebSocketAddr = "127.0.0.1:7000"
	structural.Journal.Enabled = true
	assert.Equal(t, []string{"window", "ipc", "journal"}, restartRequired(old, structural))
}

func TestApplyConfigReconfiguresLogger(t *testing.T) {
	cfg := testConfig(t)
	log := testLogger(t)
	log.SetLevel(logging.LevelInfo)
	d := newDaemon(cfg, log)

	next := cfg.Clone()
	next.Logging.Level = "error"
	d.applyConfig(cfg, next)
	assert.Equal(t, logging.LevelError, log.Level())
}

func TestReadPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.pid")
	_, ok := readPid(path)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
	_, ok = readPid(path)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("1234\n"), 0600))
	pid, ok := readPid(path)
	assert.True(t, ok)
	assert.Equal(t, 1234, pid)
}
