// ringoctl is the control CLI for ringobridge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"ringobridge/internal/bridge"
	"ringobridge/internal/config"
	"ringobridge/internal/ipc"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath = flag.String("config", "", "path to config file")
	wsURL      = flag.String("ws", "", "connect over WebSocket (ws://host:port/ws) instead of the socket")
	timeout    = flag.Duration("timeout", 10*time.Second, "request timeout")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "status":
		cmdStatus()
	case "ping":
		cmdPing()
	case "pin":
		cmdBool("Pinned", bridge.ChannelWindowPin, bridge.MethodEnterPinnedMode, nil)
	case "unpin":
		cmdBool("Unpinned", bridge.ChannelWindowPin, bridge.MethodExitPinnedMode, nil)
	case "pinned":
		cmdBool("Pinned", bridge.ChannelWindowPin, bridge.MethodIsPinned, nil)
	case "lock":
		cmdBool("Locked", bridge.ChannelWindowPin, bridge.MethodSetLocked, map[string]bool{"locked": true})
	case "unlock":
		cmdBool("Locked", bridge.ChannelWindowPin, bridge.MethodSetLocked, map[string]bool{"locked": false})
	case "locked":
		cmdBool("Locked", bridge.ChannelWindowPin, bridge.MethodIsLocked, nil)
	case "close":
		cmdBool("Closed", bridge.ChannelWindowPin, bridge.MethodPrepareClose, nil)
	case "hittest":
		hit, err := parseHitTest(args)
		if err != nil {
			fatalf("%v\nUsage: ringoctl hittest <x> <y> <width> <height> [scale]", err)
		}
		cmdValue(bridge.ChannelWindowPin, bridge.MethodHitTest, hit)
	case "tint":
		color, err := parseColor(args)
		if err != nil {
			fatalf("%v\nUsage: ringoctl tint <r> <g> <b>", err)
		}
		cmdBool("Applied", bridge.ChannelGlassTint, bridge.MethodSetTintColor, color)
	case "tint-reset":
		cmdBool("Applied", bridge.ChannelGlassTint, bridge.MethodResetTintColor, nil)
	case "probe":
		cmdValue(bridge.ChannelForeground, bridge.MethodProbe, nil)
	case "watch":
		channel, err := watchChannel(args)
		if err != nil {
			fatalf("%v\nUsage: ringoctl watch [stroke|foreground]", err)
		}
		cmdWatch(channel)
	case "journal":
		cmdJournal(args)
	case "version":
		fmt.Printf("ringoctl %s\n", Version)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `ringoctl - Control utility for ringobridge

Usage: ringoctl [options] <command> [args]

Commands:
  status                      Show daemon status and channels
  ping                        Measure round trip to the daemon
  pin | unpin                 Enter or exit pinned mode
  pinned                      Report whether the window is pinned
  lock | unlock | locked      Set or report the pinned-window lock
  close                       Restore the window for closing
  hittest <x> <y> <w> <h> [s] Classify a point in the pinned window
  tint <r> <g> <b>            Set the glass tint (components 0..1)
  tint-reset                  Restore the default tint
  probe                       Print the current foreground application
  watch [stroke|foreground]   Subscribe and print events until interrupted
  journal [n] [kind]          Print the last n journal entries
  version                     Show version
  help                        Show this help message

Options:
  -config <path>  Path to config file
  -ws <url>       Connect over WebSocket
  -timeout <dur>  Request timeout (default 10s)`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func loadConfig() *config.Config {
	path := *configPath
	if path == "" {
		path = os.Getenv("RINGOBRIDGE_CONFIG")
	}
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatalf("loading config: %v", err)
	}
	return cfg
}

func connect() *ipc.IPCClient {
	cfg := loadConfig()
	cc := ipc.DefaultClientConfig(cfg.Daemon.DataDir)
	cc.SocketPath = cfg.IPC.SocketPath
	cc.WebSocketURL = *wsURL
	cc.ClientName = "ringoctl"
	cc.ClientVersion = Version
	cc.RequestTimeout = *timeout

	client := ipc.NewClient(cc)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			fatalf("ringobridge is not running (start it with: ringobridge run)")
		}
		fatalf("cannot connect to daemon: %v", err)
	}
	return client
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), *timeout)
}
