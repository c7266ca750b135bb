package x11

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jezek/xgb/xproto"

	"ringobridge/internal/foreground"
)

// Workspace reports the active X11 window's application.
type Workspace struct {
	display string
	logger  *slog.Logger

	mu sync.Mutex
	c  *client
}

// NewWorkspace connects to display ("" means $DISPLAY).
func NewWorkspace(display string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := dial(display)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", foreground.ErrNotAvailable, err)
	}
	return &Workspace{display: display, c: c, logger: logger.With("component", "x11-workspace")}, nil
}

// Available reports whether the connection is up.
func (w *Workspace) Available() (bool, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c == nil {
		return false, "x11 connection closed"
	}
	return Available()
}

// Frontmost returns the application owning _NET_ACTIVE_WINDOW.
func (w *Workspace) Frontmost() (*foreground.AppInfo, error) {
	w.mu.Lock()
	c := w.c
	w.mu.Unlock()
	if c == nil {
		return nil, foreground.ErrNotAvailable
	}
	return appInfo(c, c.activeWindow())
}

func appInfo(c *client, win xproto.Window) (*foreground.AppInfo, error) {
	if win == 0 {
		return nil, &foreground.ProbeError{Code: foreground.ProbeNoForegroundWindow}
	}
	instance, class := c.wmClass(win)
	id := class
	if id == "" {
		id = instance
	}
	pid, _ := c.cardinal(win, "_NET_WM_PID")
	app := &foreground.AppInfo{
		Identifier: id,
		Name:       instance,
		PID:        int(pid),
		ExePath:    exePath(pid),
		Title:      c.title(win),
	}
	if pid != 0 && app.ExePath == "" {
		return app, &foreground.ProbeError{Code: foreground.ProbeQueryPathFailed}
	}
	return app, nil
}

// Watch listens for _NET_ACTIVE_WINDOW changes on the root window. It uses
// its own connection so that closing it unblocks the event loop.
func (w *Workspace) Watch(handler func(foreground.AppInfo)) (func(), error) {
	ec, err := dial(w.display)
	if err != nil {
		return nil, err
	}
	err = xproto.ChangeWindowAttributesChecked(ec.conn, ec.root,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		ec.close()
		return nil, fmt.Errorf("x11: select root events: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var last xproto.Window
		for {
			ev, xerr := ec.conn.WaitForEvent()
			if ev == nil && xerr == nil {
				return
			}
			if xerr != nil {
				w.logger.Debug("x11 event error", "error", xerr)
				continue
			}
			pn, ok := ev.(xproto.PropertyNotifyEvent)
			if !ok || pn.Atom != ec.atoms["_NET_ACTIVE_WINDOW"] {
				continue
			}
			win := ec.activeWindow()
			if win == 0 || win == last {
				continue
			}
			last = win
			if app, _ := appInfo(ec, win); app != nil {
				handler(*app)
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			ec.close()
			<-done
		})
	}
	return stop, nil
}

// Close releases the query connection.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c != nil {
		w.c.close()
		w.c = nil
	}
}
