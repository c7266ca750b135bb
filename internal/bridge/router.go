// Package bridge maps channel and method names onto the core objects of
// the host process. It is the only place that knows the channel names
// used by the application layer.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"ringobridge/internal/foreground"
	"ringobridge/internal/stream"
	"ringobridge/internal/window"
)

// Channel names.
const (
	ChannelForegroundEvents = "foreground-app-events"
	ChannelStrokeEvents     = "stroke-events"
	ChannelWindowPin        = "window-pin"
	ChannelGlassTint        = "glass-tint"
	ChannelForeground       = "foreground-app"
)

// Method names.
const (
	MethodEnterPinnedMode = "enterPinnedMode"
	MethodExitPinnedMode  = "exitPinnedMode"
	MethodIsPinned        = "isPinned"
	MethodSetLocked       = "setLocked"
	MethodIsLocked        = "isLocked"
	MethodPrepareClose    = "prepareClose"
	MethodHitTest         = "hitTest"
	MethodSetTintColor    = "setTintColor"
	MethodResetTintColor  = "resetTintColor"
	MethodProbe           = "probe"
)

// Modes is the window-mode machine as seen by the router.
type Modes interface {
	EnterPinnedMode() (bool, error)
	ExitPinnedMode() (bool, error)
	IsPinned() (bool, error)
	SetLocked(locked bool) (bool, error)
	Locked() bool
	Close() (bool, error)
	HitTest(p window.Point, client window.Size, scale float64) (window.Hit, error)
}

// Tint is the glass tint controller as seen by the router.
type Tint interface {
	SetColor(c window.Color) (bool, error)
	Reset() (bool, error)
	Release()
}

// Prober answers one-shot foreground lookups.
type Prober interface {
	Probe() foreground.Probe
}

// Executor runs fn on the UI queue and waits for it.
type Executor interface {
	Sync(fn func()) error
}

// Config wires the router. Nil fields leave their channel unimplemented.
type Config struct {
	Modes    Modes
	Tint     Tint
	Prober   Prober
	Executor Executor
	Logger   *slog.Logger
}

type handler func(ctx context.Context, args json.RawMessage) (any, error)

// Router dispatches calls and hands out streams.
type Router struct {
	cfg      Config
	logger   *slog.Logger
	validate *validator
	handlers map[string]map[string]handler

	mu      sync.RWMutex
	streams map[string]stream.Subscribable
}

// NewRouter builds a router over cfg.
func NewRouter(cfg Config) (*Router, error) {
	v, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		cfg:      cfg,
		logger:   logger.With("component", "bridge"),
		validate: v,
		handlers: make(map[string]map[string]handler),
		streams:  make(map[string]stream.Subscribable),
	}

	if cfg.Modes != nil {
		r.handle(ChannelWindowPin, MethodEnterPinnedMode, r.enterPinnedMode)
		r.handle(ChannelWindowPin, MethodExitPinnedMode, r.exitPinnedMode)
		r.handle(ChannelWindowPin, MethodIsPinned, r.isPinned)
		r.handle(ChannelWindowPin, MethodSetLocked, r.setLocked)
		r.handle(ChannelWindowPin, MethodIsLocked, r.isLocked)
		r.handle(ChannelWindowPin, MethodPrepareClose, r.prepareClose)
		r.handle(ChannelWindowPin, MethodHitTest, r.hitTest)
	}
	if cfg.Tint != nil {
		r.handle(ChannelGlassTint, MethodSetTintColor, r.setTintColor)
		r.handle(ChannelGlassTint, MethodResetTintColor, r.resetTintColor)
	}
	if cfg.Prober != nil {
		r.handle(ChannelForeground, MethodProbe, r.probe)
	}
	return r, nil
}

func (r *Router) handle(channel, method string, h handler) {
	m, ok := r.handlers[channel]
	if !ok {
		m = make(map[string]handler)
		r.handlers[channel] = m
	}
	m[method] = h
}

// RegisterStream exposes s under its name.
func (r *Router) RegisterStream(s stream.Subscribable) {
	r.mu.Lock()
	r.streams[s.Name()] = s
	r.mu.Unlock()
}

// Stream looks up a stream by channel name.
func (r *Router) Stream(name string) (stream.Subscribable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[name]
	return s, ok
}

// Channels lists every channel with at least one method or a stream.
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers)+len(r.streams))
	for name := range r.handlers {
		names = append(names, name)
	}
	for name := range r.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes method on channel. Errors are always *Error.
func (r *Router) Call(ctx context.Context, channel, method string, args json.RawMessage) (any, error) {
	methods, ok := r.handlers[channel]
	if !ok {
		return nil, NotImplemented(channel, "")
	}
	h, ok := methods[method]
	if !ok {
		return nil, NotImplemented(channel, method)
	}
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(err.Error())
	}

	result, err := h(ctx, args)
	if err != nil {
		be := AsError(err)
		r.logger.Debug("call failed", "channel", channel, "method", method, "code", be.Code, "error", be.Message)
		return nil, be
	}
	return result, nil
}

// onQueue runs fn through the executor when there is one.
func (r *Router) onQueue(fn func()) error {
	if r.cfg.Executor == nil {
		fn()
		return nil
	}
	return r.cfg.Executor.Sync(fn)
}

func (r *Router) boolCall(fn func() (bool, error)) (any, error) {
	var (
		ok  bool
		err error
	)
	if qerr := r.onQueue(func() { ok, err = fn() }); qerr != nil {
		return nil, qerr
	}
	if err != nil {
		return nil, err
	}
	return ok, nil
}

func (r *Router) enterPinnedMode(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.boolCall(r.cfg.Modes.EnterPinnedMode)
}

func (r *Router) exitPinnedMode(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.boolCall(r.cfg.Modes.ExitPinnedMode)
}

func (r *Router) isPinned(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.boolCall(r.cfg.Modes.IsPinned)
}

type setLockedArgs struct {
	Locked bool `json:"locked"`
}

func (r *Router) setLocked(ctx context.Context, raw json.RawMessage) (any, error) {
	var args setLockedArgs
	if err := r.validate.decode(ChannelWindowPin+"/"+MethodSetLocked, raw, &args); err != nil {
		return nil, err
	}
	return r.boolCall(func() (bool, error) { return r.cfg.Modes.SetLocked(args.Locked) })
}

func (r *Router) isLocked(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.boolCall(func() (bool, error) {
		if _, err := r.cfg.Modes.IsPinned(); err != nil {
			return false, err
		}
		return r.cfg.Modes.Locked(), nil
	})
}

// prepareClose also releases the tint: the glass goes with the window.
func (r *Router) prepareClose(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.boolCall(func() (bool, error) {
		ok, err := r.cfg.Modes.Close()
		if err == nil && r.cfg.Tint != nil {
			r.cfg.Tint.Release()
		}
		return ok, err
	})
}

type hitTestArgs struct {
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Scale  *float64 `json:"scale,omitempty"`
}

func (r *Router) hitTest(ctx context.Context, raw json.RawMessage) (any, error) {
	var args hitTestArgs
	if err := r.validate.decode(ChannelWindowPin+"/"+MethodHitTest, raw, &args); err != nil {
		return nil, err
	}
	scale := 1.0
	if args.Scale != nil {
		scale = *args.Scale
	}
	var (
		hit window.Hit
		err error
	)
	qerr := r.onQueue(func() {
		hit, err = r.cfg.Modes.HitTest(
			window.Point{X: args.X, Y: args.Y},
			window.Size{Width: args.Width, Height: args.Height},
			scale)
	})
	if qerr != nil {
		return nil, qerr
	}
	if err != nil {
		return nil, err
	}
	return hit.String(), nil
}

func (r *Router) setTintColor(ctx context.Context, raw json.RawMessage) (any, error) {
	var c window.Color
	if err := r.validate.decode(ChannelGlassTint+"/"+MethodSetTintColor, raw, &c); err != nil {
		return nil, err
	}
	return r.boolCall(func() (bool, error) { return r.cfg.Tint.SetColor(c) })
}

func (r *Router) resetTintColor(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.boolCall(r.cfg.Tint.Reset)
}

func (r *Router) probe(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.cfg.Prober.Probe(), nil
}
