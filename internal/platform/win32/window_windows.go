//go:build windows

package win32

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"ringobridge/internal/window"
)

// HostWindow drives the host application's top-level window. It is found
// by class name and title with FindWindowW and looked up again whenever
// the cached handle stops being a window.
type HostWindow struct {
	class  *uint16
	title  *uint16
	logger *slog.Logger

	mu      sync.Mutex
	hwnd    uintptr
	corners window.Corners // DWM has no getter for the preference
}

var (
	_ window.Window       = (*HostWindow)(nil)
	_ window.CornerWindow = (*HostWindow)(nil)
	_ window.Displays     = (*HostWindow)(nil)
	_ window.Tinter       = (*HostWindow)(nil)
)

// NewHostWindow matches the host by window class and/or title. Empty
// strings match any.
func NewHostWindow(class, title string, logger *slog.Logger) (*HostWindow, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HostWindow{logger: logger.With("component", "win32-window")}
	var err error
	if class != "" {
		if h.class, err = windows.UTF16PtrFromString(class); err != nil {
			return nil, fmt.Errorf("win32: host class: %w", err)
		}
	}
	if title != "" {
		if h.title, err = windows.UTF16PtrFromString(title); err != nil {
			return nil, fmt.Errorf("win32: host title: %w", err)
		}
	}
	if h.class == nil && h.title == nil {
		return nil, fmt.Errorf("win32: host window needs a class or title")
	}
	return h, nil
}

func (h *HostWindow) resolve() (uintptr, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hwnd != 0 {
		if ok, _, _ := procIsWindow.Call(h.hwnd); ok != 0 {
			return h.hwnd, true
		}
	}
	hwnd, _, _ := procFindWindowW.Call(uintptr(unsafe.Pointer(h.class)), uintptr(unsafe.Pointer(h.title)))
	if hwnd != 0 && hwnd != h.hwnd {
		h.logger.Debug("host window resolved", "hwnd", hwnd)
	}
	h.hwnd = hwnd
	return hwnd, hwnd != 0
}

// Alive reports whether the host window exists.
func (h *HostWindow) Alive() bool {
	_, ok := h.resolve()
	return ok
}

func (h *HostWindow) scale(hwnd uintptr) float64 {
	if procGetDpiForWindow.Find() != nil {
		return 1
	}
	dpi, _, _ := procGetDpiForWindow.Call(hwnd)
	if dpi == 0 {
		return 1
	}
	return float64(dpi) / defaultDPI
}

func display(hmon uintptr, scale float64) (window.Display, bool) {
	if hmon == 0 {
		return window.Display{}, false
	}
	info := monitorInfo{CbSize: uint32(unsafe.Sizeof(monitorInfo{}))}
	if r, _, _ := procGetMonitorInfoW.Call(hmon, uintptr(unsafe.Pointer(&info))); r == 0 {
		return window.Display{}, false
	}
	m, w := info.RcMonitor, info.RcWork
	return window.Display{
		ID:     fmt.Sprintf("hmonitor:%#x", hmon),
		Frame:  rectToDIP(m.Left, m.Top, m.Right, m.Bottom, scale),
		Usable: rectToDIP(w.Left, w.Top, w.Right, w.Bottom, scale),
		Scale:  scale,
	}, true
}

// Screen returns the monitor the window is on.
func (h *HostWindow) Screen() (window.Display, bool) {
	hwnd, ok := h.resolve()
	if !ok {
		return window.Display{}, false
	}
	hmon, _, _ := procMonitorFromWindow.Call(hwnd, monitorDefaultToNull)
	return display(hmon, h.scale(hwnd))
}

// Primary returns the primary monitor.
func (h *HostWindow) Primary() (window.Display, bool) {
	scale := 1.0
	if hwnd, ok := h.resolve(); ok {
		scale = h.scale(hwnd)
	}
	// MonitorFromPoint takes a POINT by value; {0,0} packs to zero.
	hmon, _, _ := procMonitorFromPoint.Call(0, monitorDefaultToPrimary)
	return display(hmon, scale)
}

// Frame returns the window rectangle in device-independent units.
func (h *HostWindow) Frame() (window.Rect, bool) {
	hwnd, ok := h.resolve()
	if !ok {
		return window.Rect{}, false
	}
	var r rect
	if ok, _, _ := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r))); ok == 0 {
		return window.Rect{}, false
	}
	return rectToDIP(r.Left, r.Top, r.Right, r.Bottom, h.scale(hwnd)), true
}

// SetFrame moves and resizes the window. Animation is not available.
func (h *HostWindow) SetFrame(r window.Rect, _ bool) error {
	hwnd, ok := h.resolve()
	if !ok {
		return window.ErrUnavailable
	}
	x, y, w, ht := rectToPixels(r, h.scale(hwnd))
	return setWindowPos(hwnd, 0, x, y, w, ht, swpNoZOrder|swpNoActivate)
}

func setWindowPos(hwnd, after uintptr, x, y, w, h int32, flags uint32) error {
	ok, _, err := procSetWindowPos.Call(hwnd, after,
		uintptr(x), uintptr(y), uintptr(w), uintptr(h), uintptr(flags))
	if ok == 0 {
		return fmt.Errorf("win32: SetWindowPos: %w", err)
	}
	return nil
}

// Level maps WS_EX_TOPMOST to the floating level.
func (h *HostWindow) Level() (window.Level, bool) {
	hwnd, ok := h.resolve()
	if !ok {
		return 0, false
	}
	ex, err := getWindowLong(hwnd, gwlExStyle)
	if err != nil {
		return 0, false
	}
	if ex&wsExTopmost != 0 {
		return window.LevelFloating, true
	}
	return window.LevelNormal, true
}

// SetLevel moves the window in or out of the topmost band.
func (h *HostWindow) SetLevel(l window.Level) error {
	hwnd, ok := h.resolve()
	if !ok {
		return window.ErrUnavailable
	}
	after := hwndNoTopmost
	if l > window.LevelNormal {
		after = hwndTopmost
	}
	return setWindowPos(hwnd, after, 0, 0, 0, 0, swpNoMove|swpNoSize|swpNoActivate)
}

// Style maps GWL_STYLE to a StyleMask.
func (h *HostWindow) Style() (window.StyleMask, bool) {
	bits, ok := h.styleBits()
	if !ok {
		return 0, false
	}
	return styleFromBits(bits), true
}

func (h *HostWindow) styleBits() (uint32, bool) {
	hwnd, ok := h.resolve()
	if !ok {
		return 0, false
	}
	bits, err := getWindowLong(hwnd, gwlStyle)
	if err != nil || bits == 0 {
		return 0, false
	}
	return bits, true
}

// SetStyle rewrites the caption and frame bits. A zero style is never
// written.
func (h *HostWindow) SetStyle(s window.StyleMask) error {
	return h.updateStyle(func(bits uint32) uint32 { return applyStyleBits(bits, s) })
}

func (h *HostWindow) updateStyle(f func(uint32) uint32) error {
	hwnd, ok := h.resolve()
	if !ok {
		return window.ErrUnavailable
	}
	bits, ok := h.styleBits()
	if !ok {
		return fmt.Errorf("win32: read window style")
	}
	next := f(bits)
	if next == 0 || next == bits {
		return nil
	}
	if err := setWindowLong(hwnd, gwlStyle, next); err != nil {
		return fmt.Errorf("win32: SetWindowLongPtrW: %w", err)
	}
	return setWindowPos(hwnd, 0, 0, 0, 0, 0, swpNoMove|swpNoSize|swpNoZOrder|swpNoActivate|swpFrameChanged)
}

// TitleVisible reports the caption bit.
func (h *HostWindow) TitleVisible() (bool, bool) {
	bits, ok := h.styleBits()
	if !ok {
		return false, false
	}
	return bits&wsCaption == wsCaption, true
}

// SetTitleVisible sets or clears the caption bit.
func (h *HostWindow) SetTitleVisible(visible bool) error {
	return h.updateStyle(func(bits uint32) uint32 {
		if visible {
			return bits | wsCaption
		}
		return bits &^ wsCaption
	})
}

func buttonBit(b window.Button) (uint32, bool) {
	switch b {
	case window.MinimizeButton:
		return wsMinimizeBox, true
	case window.MaximizeButton:
		return wsMaximizeBox, true
	default:
		return 0, false
	}
}

// ButtonVisible reports the minimize and maximize box bits. The close
// button has no style bit of its own.
func (h *HostWindow) ButtonVisible(b window.Button) (bool, bool) {
	bit, ok := buttonBit(b)
	if !ok {
		return false, false
	}
	bits, ok := h.styleBits()
	if !ok {
		return false, false
	}
	return bits&bit != 0, true
}

// SetButtonVisible sets or clears a box bit.
func (h *HostWindow) SetButtonVisible(b window.Button, visible bool) error {
	bit, ok := buttonBit(b)
	if !ok {
		return window.ErrUnsupported
	}
	return h.updateStyle(func(bits uint32) uint32 {
		if visible {
			return bits | bit
		}
		return bits &^ bit
	})
}

// Windows has no workspace collections, transparent title bars or
// background dragging at this level.

func (h *HostWindow) Collection() (window.Collection, bool) { return 0, false }
func (h *HostWindow) SetCollection(window.Collection) error { return window.ErrUnsupported }
func (h *HostWindow) TitlebarTransparent() (bool, bool)     { return false, false }
func (h *HostWindow) SetTitlebarTransparent(bool) error     { return window.ErrUnsupported }
func (h *HostWindow) MovableByBackground() (bool, bool)     { return false, false }
func (h *HostWindow) SetMovableByBackground(bool) error     { return window.ErrUnsupported }

// Corners returns the last corner preference set through SetCorners.
func (h *HostWindow) Corners() (window.Corners, bool) {
	if !h.Alive() {
		return 0, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.corners, true
}

// SetCorners sets DWMWA_WINDOW_CORNER_PREFERENCE. Builds before Windows 11
// reject the attribute and report ErrUnsupported.
func (h *HostWindow) SetCorners(c window.Corners) error {
	hwnd, ok := h.resolve()
	if !ok {
		return window.ErrUnavailable
	}
	if procDwmSetWindowAttribute.Find() != nil {
		return window.ErrUnsupported
	}
	pref := cornerPreference(c)
	hr, _, _ := procDwmSetWindowAttribute.Call(hwnd, dwmwaWindowCornerPreference,
		uintptr(unsafe.Pointer(&pref)), unsafe.Sizeof(pref))
	if hr != 0 {
		return fmt.Errorf("%w: DwmSetWindowAttribute: 0x%08x", window.ErrUnsupported, uint32(hr))
	}
	h.mu.Lock()
	h.corners = c
	h.mu.Unlock()
	return nil
}

// ApplyTint sets an acrylic accent, falling back to plain blur-behind on
// builds without acrylic.
func (h *HostWindow) ApplyTint(r, g, b, alpha uint8) error {
	hwnd, ok := h.resolve()
	if !ok {
		return window.ErrUnavailable
	}
	if procSetWindowCompositionAttribute.Find() != nil {
		return window.ErrUnsupported
	}
	color := gradientColor(r, g, b, alpha)
	var err error
	for _, state := range []uint32{accentEnableAcrylicBlurBehind, accentEnableBlurBehind} {
		if err = setAccent(hwnd, state, color); err == nil {
			return nil
		}
	}
	return err
}

func setAccent(hwnd uintptr, state, color uint32) error {
	policy := accentPolicy{AccentState: state, AccentFlags: 2, GradientColor: color}
	data := windowCompositionAttribData{
		Attrib: wcaAccentPolicy,
		PvData: unsafe.Pointer(&policy),
		CbData: unsafe.Sizeof(policy),
	}
	ok, _, err := procSetWindowCompositionAttribute.Call(hwnd, uintptr(unsafe.Pointer(&data)))
	if ok == 0 {
		return fmt.Errorf("win32: SetWindowCompositionAttribute(%d): %w", state, err)
	}
	return nil
}
