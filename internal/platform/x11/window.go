package x11

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jezek/xgb/xproto"

	"ringobridge/internal/window"
)

// _NET_WM_STATE client message actions.
const (
	netWMStateRemove = 0
	netWMStateAdd    = 1
)

// HostWindow drives the host application's top-level window through EWMH
// hints. The window is looked up in _NET_CLIENT_LIST by WM_CLASS or pid on
// every call, so a restarted host is picked up and a closed one reads as
// not alive.
type HostWindow struct {
	c      *client
	class  string
	pid    int
	logger *slog.Logger

	mu  sync.Mutex
	win xproto.Window
}

var (
	_ window.Window   = (*HostWindow)(nil)
	_ window.Displays = (*HostWindow)(nil)
)

// NewHostWindow connects to display and matches the host by WM_CLASS
// (case-insensitive, instance or class) or by pid.
func NewHostWindow(display, class string, pid int, logger *slog.Logger) (*HostWindow, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := dial(display)
	if err != nil {
		return nil, err
	}
	return &HostWindow{c: c, class: class, pid: pid, logger: logger.With("component", "x11-window")}, nil
}

// Close releases the connection.
func (h *HostWindow) Close() {
	h.c.close()
}

func (h *HostWindow) resolve() (xproto.Window, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range h.c.windows(h.c.root, "_NET_CLIENT_LIST", 4096) {
		win := xproto.Window(id)
		instance, class := h.c.wmClass(win)
		pid, _ := h.c.cardinal(win, "_NET_WM_PID")
		if matchesHost(instance, class, pid, h.class, h.pid) {
			if win != h.win {
				h.logger.Debug("host window resolved", "window", uint32(win), "class", class)
			}
			h.win = win
			return win, true
		}
	}
	h.win = 0
	return 0, false
}

// Alive reports whether the host window is mapped in the client list.
func (h *HostWindow) Alive() bool {
	_, ok := h.resolve()
	return ok
}

// Primary returns the default screen.
func (h *HostWindow) Primary() (window.Display, bool) {
	s := h.c.screen
	d := window.Display{
		ID:    fmt.Sprintf("x11:%d", uint32(h.c.root)),
		Frame: window.Rect{Width: float64(s.WidthInPixels), Height: float64(s.HeightInPixels)},
		Scale: 1,
	}
	desktop, _ := h.c.cardinal(h.c.root, "_NET_CURRENT_DESKTOP")
	if data, err := h.c.property(h.c.root, "_NET_WORKAREA", xproto.AtomCardinal, 4*64); err == nil {
		if wa, ok := workArea(data, int(desktop)); ok {
			d.Usable = window.Rect{X: float64(wa[0]), Y: float64(wa[1]), Width: float64(wa[2]), Height: float64(wa[3])}
		}
	}
	return d, true
}

// Screen returns the default screen. X11 treats a multi-head setup as one
// root window.
func (h *HostWindow) Screen() (window.Display, bool) {
	if _, ok := h.resolve(); !ok {
		return window.Display{}, false
	}
	return h.Primary()
}

// Frame returns the window rectangle in root coordinates.
func (h *HostWindow) Frame() (window.Rect, bool) {
	win, ok := h.resolve()
	if !ok {
		return window.Rect{}, false
	}
	geom, err := xproto.GetGeometry(h.c.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return window.Rect{}, false
	}
	pos, err := xproto.TranslateCoordinates(h.c.conn, win, h.c.root, 0, 0).Reply()
	if err != nil {
		return window.Rect{}, false
	}
	return window.Rect{
		X:      float64(pos.DstX),
		Y:      float64(pos.DstY),
		Width:  float64(geom.Width),
		Height: float64(geom.Height),
	}, true
}

// SetFrame moves and resizes the window. X11 has no animated resize.
func (h *HostWindow) SetFrame(r window.Rect, _ bool) error {
	win, ok := h.resolve()
	if !ok {
		return window.ErrUnavailable
	}
	mask := uint16(xproto.ConfigWindowX | xproto.ConfigWindowY | xproto.ConfigWindowWidth | xproto.ConfigWindowHeight)
	values := []uint32{
		uint32(int32(r.X)),
		uint32(int32(r.Y)),
		uint32(max(1, int32(r.Width))),
		uint32(max(1, int32(r.Height))),
	}
	return xproto.ConfigureWindowChecked(h.c.conn, win, mask, values).Check()
}

func (h *HostWindow) hasState(name string) (bool, bool) {
	win, ok := h.resolve()
	if !ok {
		return false, false
	}
	data, err := h.c.property(win, "_NET_WM_STATE", xproto.AtomAtom, 64)
	if err != nil {
		return false, false
	}
	return containsAtom(uint32s(data), uint32(h.c.atoms[name])), true
}

func (h *HostWindow) setState(name string, on bool) error {
	win, ok := h.resolve()
	if !ok {
		return window.ErrUnavailable
	}
	action := uint32(netWMStateRemove)
	if on {
		action = netWMStateAdd
	}
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   h.c.atoms["_NET_WM_STATE"],
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{action, uint32(h.c.atoms[name]), 0, 1, 0}),
	}
	mask := uint32(xproto.EventMaskSubstructureRedirect | xproto.EventMaskSubstructureNotify)
	return xproto.SendEventChecked(h.c.conn, false, h.c.root, mask, string(ev.Bytes())).Check()
}

// Level maps _NET_WM_STATE_ABOVE to the floating level.
func (h *HostWindow) Level() (window.Level, bool) {
	above, ok := h.hasState("_NET_WM_STATE_ABOVE")
	if !ok {
		return 0, false
	}
	if above {
		return window.LevelFloating, true
	}
	return window.LevelNormal, true
}

// SetLevel adds or removes _NET_WM_STATE_ABOVE.
func (h *HostWindow) SetLevel(l window.Level) error {
	return h.setState("_NET_WM_STATE_ABOVE", l > window.LevelNormal)
}

// Collection maps _NET_WM_STATE_STICKY to joining all workspaces.
func (h *HostWindow) Collection() (window.Collection, bool) {
	sticky, ok := h.hasState("_NET_WM_STATE_STICKY")
	if !ok {
		return 0, false
	}
	if sticky {
		return window.CollectionCanJoinAllSpaces, true
	}
	return window.CollectionDefault, true
}

// SetCollection adds or removes _NET_WM_STATE_STICKY.
func (h *HostWindow) SetCollection(c window.Collection) error {
	return h.setState("_NET_WM_STATE_STICKY", c&window.CollectionCanJoinAllSpaces != 0)
}

func (h *HostWindow) motif(win xproto.Window) motifHints {
	data, err := h.c.property(win, "_MOTIF_WM_HINTS", h.c.atoms["_MOTIF_WM_HINTS"], motifHintsLen)
	if err != nil {
		return motifHints{}
	}
	hints, _ := parseMotifHints(data)
	return hints
}

// Style reports a decorated window as titled and resizable, an
// undecorated one as borderless with full-size content.
func (h *HostWindow) Style() (window.StyleMask, bool) {
	win, ok := h.resolve()
	if !ok {
		return 0, false
	}
	if h.motif(win).decorated() {
		return window.StyleTitled | window.StyleClosable | window.StyleMiniaturizable | window.StyleResizable, true
	}
	return window.StyleBorderless | window.StyleFullSizeContentView, true
}

// SetStyle turns window-manager decorations on for titled styles without
// full-size content, and off otherwise.
func (h *HostWindow) SetStyle(s window.StyleMask) error {
	win, ok := h.resolve()
	if !ok {
		return window.ErrUnavailable
	}
	on := s&window.StyleTitled != 0 && s&window.StyleFullSizeContentView == 0
	hints := withDecorations(h.motif(win), on)
	atom := h.c.atoms["_MOTIF_WM_HINTS"]
	return xproto.ChangePropertyChecked(h.c.conn, xproto.PropModeReplace, win, atom, atom,
		32, motifHintsLen, hints.bytes()).Check()
}

// The remaining attributes are drawn by the window manager and have no
// EWMH control.

func (h *HostWindow) TitleVisible() (bool, bool)                 { return false, false }
func (h *HostWindow) SetTitleVisible(bool) error                 { return window.ErrUnsupported }
func (h *HostWindow) TitlebarTransparent() (bool, bool)          { return false, false }
func (h *HostWindow) SetTitlebarTransparent(bool) error          { return window.ErrUnsupported }
func (h *HostWindow) MovableByBackground() (bool, bool)          { return false, false }
func (h *HostWindow) SetMovableByBackground(bool) error          { return window.ErrUnsupported }
func (h *HostWindow) ButtonVisible(window.Button) (bool, bool)   { return false, false }
func (h *HostWindow) SetButtonVisible(window.Button, bool) error { return window.ErrUnsupported }
