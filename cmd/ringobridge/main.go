// ringobridge - desktop host bridge daemon
//
// ringobridge turns pointer activity and foreground application changes
// into event streams and exposes window pin and glass tint commands to the
// application over a local socket.
//
//	ringobridge [run]          Run the daemon in the foreground
//	ringobridge config init    Write a default config file
//	ringobridge config show    Print the effective configuration
//	ringobridge backend        Describe the detected platform backend
//	ringobridge version        Print the version
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ringobridge/internal/config"
	"ringobridge/internal/logging"
	"ringobridge/internal/platform"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Usage = usage
	flag.Parse()

	cmd := "run"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	switch cmd {
	case "run":
		cmdRun()
	case "config":
		cmdConfig(flag.Args()[min(1, flag.NArg()):])
	case "backend":
		cmdBackend()
	case "version":
		fmt.Printf("ringobridge %s\n", Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `ringobridge - Desktop host bridge daemon

USAGE:
    ringobridge [options] [command]

COMMANDS:
    run                 Run the daemon in the foreground (default)
    config init [path]  Write a default config file
    config show         Print the effective configuration as TOML
    config path         Print the config file location
    backend             Describe the detected platform backend
    version             Print the version
    help                Show this help message

OPTIONS:
    -config <path>      Config file (TOML, JSON or YAML by extension)

ENVIRONMENT:
    RINGOBRIDGE_CONFIG, RINGOBRIDGE_LOG_LEVEL, RINGOBRIDGE_HOST_CLASS,
    RINGOBRIDGE_SOCKET_PATH and the other RINGOBRIDGE_* overrides.`)
}

func resolveConfigPath() string {
	if *configPath != "" {
		return *configPath
	}
	if env := os.Getenv("RINGOBRIDGE_CONFIG"); env != "" {
		return env
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Logging.Output
	lc.FilePath = cfg.Logging.FilePath
	lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	lc.MaxBackups = cfg.Logging.MaxBackups
	lc.MaxAge = cfg.Logging.MaxAgeDays
	lc.Compress = cfg.Logging.Compress
	if cfg.Logging.RedactWindowTitles {
		lc.RedactKeys = []string{"title"}
	}
	return logging.New(lc)
}

func cmdRun() {
	path := resolveConfigPath()
	cfg := loadConfig()

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	slog.SetDefault(log.Logger)

	// The loader keeps the baseline that reloads are compared against.
	loader := config.NewLoader(path, log.Logger)
	defer loader.Close()
	if _, err := loader.Load(); err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	d := newDaemon(cfg, log)
	if err := d.start(); err != nil {
		log.Error("daemon failed to start", "error", err)
		d.stop()
		os.Exit(1)
	}

	loader.OnChange(d.applyConfig)
	if cfg.Daemon.WatchConfig {
		if err := loader.Watch(); err != nil {
			log.Warn("config watch unavailable", "error", err)
		}
	}

	d.wait(loader)
	d.stop()
}

func cmdConfig(args []string) {
	action := "show"
	if len(args) > 0 {
		action = args[0]
	}

	switch action {
	case "init":
		path := resolveConfigPath()
		if len(args) > 1 {
			path = args[1]
		}
		_, created, err := config.LoadOrCreate(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if created {
			fmt.Printf("Wrote default config to %s\n", path)
		} else {
			fmt.Printf("Config already exists at %s\n", path)
		}
	case "show":
		cfg := loadConfig()
		data, err := config.Encode(cfg, ".toml")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
	case "path":
		path := resolveConfigPath()
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}
		fmt.Println(path)
	default:
		fmt.Fprintln(os.Stderr, "Usage: ringobridge config <init [path]|show|path>")
		os.Exit(1)
	}
}

func cmdBackend() {
	cfg := loadConfig()
	b := platform.Open(platformOptions(cfg), nil)
	defer b.Close()

	attrs := b.LogAttrs()
	for i := 0; i+1 < len(attrs); i += 2 {
		fmt.Printf("  %-18s %v\n", strings.ReplaceAll(fmt.Sprint(attrs[i]), "_", " "), attrs[i+1])
	}
}

func platformOptions(cfg *config.Config) platform.Options {
	return platform.Options{
		Display:        cfg.Window.Display,
		HostClass:      cfg.Window.HostClass,
		HostTitle:      cfg.Window.HostTitle,
		HostPID:        cfg.Window.HostPID,
		ForegroundPoll: cfg.Foreground.PollInterval(),
		DisableMonitor: cfg.Activity.DisableMonitor,
		IdleSource:     cfg.Activity.IdleSource,
	}
}
