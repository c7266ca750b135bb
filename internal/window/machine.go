package window

import (
	"errors"
	"log/slog"
	"sync"
)

// Config holds the window-mode geometry.
type Config struct {
	// PinnedSize is the size of the pinned overlay.
	PinnedSize Size

	// Margin is the inset from the top and right edges of the usable area.
	Margin float64

	// DefaultSize is the size the window is reset to when it closes.
	DefaultSize Size

	// SafeRegion is the side length, in device-independent pixels, of the
	// pin and lock button areas that stay clickable while dragging.
	SafeRegion float64

	// Animate requests animated frame changes where the platform has them.
	Animate bool
}

// DefaultConfig returns the stock geometry: a 360x220 overlay inset by 16,
// and a 1440x900 default window.
func DefaultConfig() Config {
	return Config{
		PinnedSize:  Size{Width: 360, Height: 220},
		Margin:      16,
		DefaultSize: Size{Width: 1440, Height: 900},
		SafeRegion:  80,
		Animate:     true,
	}
}

// Observer is told about mode transitions.
type Observer interface {
	ModeChanged(from, to Mode)
}

// Machine owns the presentation mode and the snapshot taken on entry.
type Machine struct {
	mu       sync.Mutex
	win      Window
	displays Displays
	cfg      Config
	logger   *slog.Logger

	mode      Mode
	snap      *Snapshot
	locked    bool
	released  bool
	observers []Observer
}

// NewMachine creates a machine in Normal mode. displays may be nil.
func NewMachine(cfg Config, win Window, displays Displays, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		win:      win,
		displays: displays,
		cfg:      cfg,
		logger:   logger.With("component", "window"),
	}
}

// AddObserver attaches an Observer.
func (m *Machine) AddObserver(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// IsPinned reports whether the window is pinned.
func (m *Machine) IsPinned() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.availableLocked(); err != nil {
		return false, err
	}
	return m.mode == ModePinned, nil
}

// EnterPinnedMode shrinks the window into the top-right corner and floats
// it above other windows. It returns true when the window is pinned
// afterwards and false when no display could be resolved.
func (m *Machine) EnterPinnedMode() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.availableLocked(); err != nil {
		return false, err
	}
	if m.mode == ModePinned {
		return true, nil
	}

	display, ok := m.resolveDisplay()
	if !ok {
		m.logger.Warn("cannot pin: no display for window")
		return false, nil
	}

	snap := Capture(m.win)
	current, haveCurrent := snap.Frame()
	target := PinnedFrame(usableArea(display, current, haveCurrent), m.cfg.PinnedSize, m.cfg.Margin)

	m.apply(AttrFrame, m.win.SetFrame(target, m.cfg.Animate))
	m.apply(AttrTitleVisible, m.win.SetTitleVisible(false))
	m.apply(AttrTitlebarTransparent, m.win.SetTitlebarTransparent(true))
	if style, ok := snap.Style(); ok {
		m.apply(AttrStyle, m.win.SetStyle(style|StyleFullSizeContentView))
	}
	for _, b := range Buttons {
		m.apply(buttonAttr(b), m.win.SetButtonVisible(b, false))
	}
	m.apply(AttrCollection, m.win.SetCollection(collectionPinned))
	m.apply(AttrLevel, m.win.SetLevel(LevelFloating))
	m.apply(AttrMovableByBackground, m.win.SetMovableByBackground(true))
	if cw, ok := m.win.(CornerWindow); ok {
		m.apply(AttrCorners, cw.SetCorners(CornersRoundSmall))
	}

	m.snap = &snap
	m.logger.Info("entered pinned mode",
		"display", display.ID,
		"frame", target,
		"captured", snap.Present().String())
	m.transitionLocked(ModePinned)
	return true, nil
}

// ExitPinnedMode restores the snapshot taken on entry.
func (m *Machine) ExitPinnedMode() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.availableLocked(); err != nil {
		return false, err
	}
	if m.mode == ModeNormal {
		return true, nil
	}

	snap := m.snap
	if snap == nil {
		snap = &Snapshot{}
	}
	if err := snap.Restore(m.win, m.cfg.Animate); err != nil {
		var re *RestoreError
		if errors.As(err, &re) {
			for attr, aerr := range re.Failed {
				m.apply(attr, aerr)
			}
		}
	}

	m.snap = nil
	m.logger.Info("exited pinned mode")
	m.transitionLocked(ModeNormal)
	return true, nil
}

// SetLocked turns lock mode on or off. While locked the pinned window is
// not draggable from its body.
func (m *Machine) SetLocked(locked bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.availableLocked(); err != nil {
		return false, err
	}
	m.locked = locked
	return true, nil
}

// Locked reports whether lock mode is on.
func (m *Machine) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// Close applies the close policy, resizing the window to the default size
// centered on its display, and then releases the machine.
func (m *Machine) Close() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.availableLocked(); err != nil {
		return false, err
	}

	current, haveCurrent := m.win.Frame()
	display, ok := m.resolveDisplay()
	if !ok {
		display = Display{}
	}
	target := CenteredFrame(usableArea(display, current, haveCurrent), m.cfg.DefaultSize)
	m.apply(AttrFrame, m.win.SetFrame(target, false))

	m.snap = nil
	m.releaseLocked()
	m.logger.Info("window closed", "frame", target)
	return true, nil
}

// Release marks the host window as gone. Every later command returns
// ErrUnavailable.
func (m *Machine) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func (m *Machine) releaseLocked() {
	if m.released {
		return
	}
	m.released = true
	if m.mode != ModeNormal {
		m.transitionLocked(ModeNormal)
	}
}

func (m *Machine) availableLocked() error {
	if m.released || m.win == nil || !m.win.Alive() {
		return ErrUnavailable
	}
	return nil
}

// resolveDisplay returns the window's screen, falling back to the primary
// display.
func (m *Machine) resolveDisplay() (Display, bool) {
	if d, ok := m.win.Screen(); ok {
		return d, true
	}
	if m.displays != nil {
		return m.displays.Primary()
	}
	return Display{}, false
}

func (m *Machine) transitionLocked(to Mode) {
	from := m.mode
	m.mode = to
	for _, o := range m.observers {
		o.ModeChanged(from, to)
	}
}

// apply logs a failed setter. Unsupported attributes are expected on some
// platforms and only logged at debug.
func (m *Machine) apply(attr Attr, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrUnsupported):
		m.logger.Debug("attribute not supported", "attr", attr.String())
	default:
		m.logger.Warn("set window attribute", "attr", attr.String(), "error", err)
	}
}
