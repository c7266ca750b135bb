// Package x11 implements the foreground, idle and window backends for X11
// sessions using the X protocol directly.
package x11

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// ErrNoDisplay is returned when no X server can be reached.
var ErrNoDisplay = errors.New("x11: no display")

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_CLIENT_LIST",
	"_NET_CURRENT_DESKTOP",
	"_NET_WORKAREA",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"_NET_WM_STATE",
	"_NET_WM_STATE_ABOVE",
	"_NET_WM_STATE_STICKY",
	"_MOTIF_WM_HINTS",
	"WM_NAME",
	"WM_CLASS",
	"UTF8_STRING",
}

// client is one X connection with the atoms the backends use.
type client struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	atoms  map[string]xproto.Atom
}

// Available reports whether an X display is configured.
func Available() (bool, string) {
	display := os.Getenv("DISPLAY")
	if display == "" {
		return false, "DISPLAY is not set"
	}
	if strings.EqualFold(os.Getenv("XDG_SESSION_TYPE"), "wayland") {
		return true, "XWayland display " + display
	}
	return true, "X11 display " + display
}

func dial(display string) (*client, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDisplay, err)
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)
	c := &client{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		atoms:  make(map[string]xproto.Atom, len(atomNames)),
	}
	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("x11: intern %s: %w", name, err)
		}
		c.atoms[name] = reply.Atom
	}
	return c, nil
}

func (c *client) close() {
	c.conn.Close()
}

func (c *client) property(win xproto.Window, name string, typ xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(c.conn, false, win, c.atoms[name], typ, 0, length).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (c *client) cardinal(win xproto.Window, name string) (uint32, bool) {
	data, err := c.property(win, name, xproto.AtomCardinal, 1)
	if err != nil || len(data) < 4 {
		return 0, false
	}
	return uint32s(data)[0], true
}

func (c *client) windows(win xproto.Window, name string, max uint32) []uint32 {
	data, err := c.property(win, name, xproto.AtomWindow, max)
	if err != nil {
		return nil
	}
	return uint32s(data)
}

func (c *client) activeWindow() xproto.Window {
	if ids := c.windows(c.root, "_NET_ACTIVE_WINDOW", 1); len(ids) > 0 && ids[0] != 0 {
		return xproto.Window(ids[0])
	}
	reply, err := xproto.GetInputFocus(c.conn).Reply()
	if err != nil || reply.Focus == c.root {
		return 0
	}
	return c.topLevel(reply.Focus)
}

func (c *client) topLevel(win xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(c.conn, win).Reply()
		if err != nil || reply.Parent == c.root || reply.Parent == 0 {
			return win
		}
		win = reply.Parent
	}
}

func (c *client) wmClass(win xproto.Window) (instance, class string) {
	data, err := c.property(win, "WM_CLASS", xproto.AtomString, 256)
	if err != nil || len(data) == 0 {
		return "", ""
	}
	return parseWMClass(data)
}

func (c *client) title(win xproto.Window) string {
	if data, err := c.property(win, "_NET_WM_NAME", c.atoms["UTF8_STRING"], 256); err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}
	if data, err := c.property(win, "WM_NAME", xproto.AtomString, 256); err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}
	return ""
}

func exePath(pid uint32) string {
	if pid == 0 {
		return ""
	}
	path, err := os.Readlink("/proc/" + strconv.FormatUint(uint64(pid), 10) + "/exe")
	if err != nil {
		return ""
	}
	return path
}
