package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"ringobridge/internal/activity"
	"ringobridge/internal/bridge"
	"ringobridge/internal/foreground"
	"ringobridge/internal/ipc"
	"ringobridge/internal/window"
)

// Exit codes. NOT_IMPLEMENTED and UNAVAILABLE are kept apart so scripts
// can tell a missing channel from a missing platform capability.
const (
	exitFailure        = 1
	exitUnavailable    = 2
	exitNotImplemented = 3
)

func cmdStatus() {
	client := connect()
	defer client.Close()

	ctx, cancel := requestContext()
	defer cancel()
	status, err := client.Status(ctx)
	if err != nil {
		failCall("status", err)
	}

	fmt.Println("=== ringobridge Status ===")
	fmt.Println()
	fmt.Printf("Version:   %s\n", status.Version)
	fmt.Printf("Platform:  %s\n", status.Platform)
	fmt.Printf("Started:   %s\n", status.StartedAt.Format(time.RFC3339))
	fmt.Printf("Uptime:    %s\n", status.Uptime.Round(time.Second))
	fmt.Printf("Clients:   %d\n", status.Clients)
	fmt.Println()
	fmt.Println("Channels:")
	for _, ch := range status.Channels {
		fmt.Printf("  %s\n", ch)
	}
	if len(status.Streams) > 0 {
		fmt.Println()
		fmt.Println("Streams:")
		for _, s := range status.Streams {
			state := "idle"
			if s.Active {
				state = "subscribed"
			}
			fmt.Printf("  %-24s %s\n", s.Channel, state)
		}
	}
}

func cmdPing() {
	client := connect()
	defer client.Close()

	ctx, cancel := requestContext()
	defer cancel()
	rtt, err := client.Ping(ctx)
	if err != nil {
		failCall("ping", err)
	}
	fmt.Printf("pong in %s\n", rtt.Round(time.Microsecond))
}

func cmdBool(label, channel, method string, args any) {
	client := connect()
	defer client.Close()

	ctx, cancel := requestContext()
	defer cancel()
	ok, err := client.CallBool(ctx, channel, method, args)
	if err != nil {
		failCall(channel+"/"+method, err)
	}
	fmt.Printf("%s: %t\n", label, ok)
}

func cmdValue(channel, method string, args any) {
	client := connect()
	defer client.Close()

	ctx, cancel := requestContext()
	defer cancel()
	raw, err := client.Call(ctx, channel, method, args)
	if err != nil {
		failCall(channel+"/"+method, err)
	}
	fmt.Println(string(raw))
}

func cmdWatch(channel string) {
	client := connect()
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reqCtx, cancel := requestContext()
	id, err := client.Subscribe(reqCtx, channel)
	cancel()
	if err != nil {
		failCall("subscribe "+channel, err)
	}
	fmt.Fprintf(os.Stderr, "Watching %s (subscription %s), Ctrl+C to stop\n", channel, id)

	// A dropped connection does not close Events.
	alive := time.NewTicker(time.Second)
	defer alive.Stop()

	for {
		select {
		case <-alive.C:
			if !client.IsConnected() {
				fatalf("connection to daemon lost")
			}
		case <-ctx.Done():
			reqCtx, cancel := requestContext()
			client.Unsubscribe(reqCtx, channel)
			cancel()
			if n := client.Dropped(); n > 0 {
				fmt.Fprintf(os.Stderr, "%d events dropped by the client buffer\n", n)
			}
			return
		case ev, ok := <-client.Events():
			if !ok {
				fatalf("connection to daemon lost")
			}
			fmt.Println(formatEvent(ev))
		}
	}
}

// formatEvent renders known stream payloads as one line.
func formatEvent(ev *ipc.Event) string {
	switch ev.Channel {
	case bridge.ChannelStrokeEvents:
		var e activity.Event
		if err := json.Unmarshal(ev.Data, &e); err == nil {
			state := "up"
			if e.IsButtonDown {
				state = "down"
			}
			return fmt.Sprintf("%s  stroke  %s", formatMillis(e.TimestampMillis), state)
		}
	case bridge.ChannelForegroundEvents:
		var e foreground.Event
		if err := json.Unmarshal(ev.Data, &e); err == nil {
			return fmt.Sprintf("%s  app     %s", formatMillis(e.TimestampMillis), e.AppID)
		}
	}
	return fmt.Sprintf("%s  %s", ev.Channel, string(ev.Data))
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format("15:04:05.000")
}

// failCall prints a call error and exits with a code for its class.
func failCall(what string, err error) {
	var re *ipc.RemoteError
	switch {
	case errors.Is(err, ipc.ErrNotImplemented):
		fmt.Fprintf(os.Stderr, "Error: %s is not implemented by this daemon\n", what)
		os.Exit(exitNotImplemented)
	case errors.As(err, &re) && re.Code == string(bridge.CodeUnavailable):
		fmt.Fprintf(os.Stderr, "Error: %s unavailable: %s\n", what, re.Message)
		os.Exit(exitUnavailable)
	case errors.As(err, &re) && re.Field != "":
		fmt.Fprintf(os.Stderr, "Error: %s: invalid %q: %s\n", what, re.Field, re.Message)
	default:
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", what, err)
	}
	os.Exit(exitFailure)
}

func watchChannel(args []string) (string, error) {
	if len(args) == 0 {
		return bridge.ChannelStrokeEvents, nil
	}
	switch args[0] {
	case "stroke", bridge.ChannelStrokeEvents:
		return bridge.ChannelStrokeEvents, nil
	case "foreground", bridge.ChannelForegroundEvents:
		return bridge.ChannelForegroundEvents, nil
	}
	return "", fmt.Errorf("unknown stream %q", args[0])
}

func parseFloats(args []string, names ...string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", names[i], a)
		}
		out[i] = v
	}
	return out, nil
}

func parseColor(args []string) (window.Color, error) {
	if len(args) != 3 {
		return window.Color{}, fmt.Errorf("expected 3 components, got %d", len(args))
	}
	v, err := parseFloats(args, "r", "g", "b")
	if err != nil {
		return window.Color{}, err
	}
	return window.Color{R: v[0], G: v[1], B: v[2]}, nil
}

type hitTestArgs struct {
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Scale  *float64 `json:"scale,omitempty"`
}

func parseHitTest(args []string) (hitTestArgs, error) {
	if len(args) != 4 && len(args) != 5 {
		return hitTestArgs{}, fmt.Errorf("expected 4 or 5 arguments, got %d", len(args))
	}
	v, err := parseFloats(args, "x", "y", "width", "height", "scale")
	if err != nil {
		return hitTestArgs{}, err
	}
	hit := hitTestArgs{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if len(v) == 5 {
		hit.Scale = &v[4]
	}
	return hit, nil
}
