package window

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWindow records attribute values. Attributes listed in unreadable
// report ok=false from their getter; attributes in failing make their
// setter fail.
type fakeWindow struct {
	alive      bool
	screen     *Display
	frame      Rect
	level      Level
	collection Collection
	style      StyleMask
	title      bool
	transp     bool
	movable    bool
	buttons    [buttonCount]bool

	unreadable Attr
	failing    Attr
	animated   []bool
	setCalls   map[Attr]int
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{
		alive:      true,
		screen:     &Display{ID: "main", Frame: Rect{0, 0, 1920, 1080}, Usable: Rect{0, 25, 1920, 1055}, Scale: 2},
		frame:      Rect{100, 120, 1200, 800},
		level:      LevelNormal,
		collection: CollectionManaged,
		style:      StyleTitled | StyleClosable | StyleMiniaturizable | StyleResizable,
		title:      true,
		buttons:    [buttonCount]bool{true, true, true},
		setCalls:   make(map[Attr]int),
	}
}

var errSetter = errors.New("setter failed")

func (w *fakeWindow) set(a Attr) error {
	w.setCalls[a]++
	if w.failing&a != 0 {
		return errSetter
	}
	return nil
}

func (w *fakeWindow) readable(a Attr) bool { return w.unreadable&a == 0 }

func (w *fakeWindow) Alive() bool { return w.alive }

func (w *fakeWindow) Screen() (Display, bool) {
	if w.screen == nil {
		return Display{}, false
	}
	return *w.screen, true
}

func (w *fakeWindow) Frame() (Rect, bool) { return w.frame, w.readable(AttrFrame) }
func (w *fakeWindow) SetFrame(r Rect, animate bool) error {
	if err := w.set(AttrFrame); err != nil {
		return err
	}
	w.frame = r
	w.animated = append(w.animated, animate)
	return nil
}

func (w *fakeWindow) Level() (Level, bool) { return w.level, w.readable(AttrLevel) }
func (w *fakeWindow) SetLevel(l Level) error {
	if err := w.set(AttrLevel); err != nil {
		return err
	}
	w.level = l
	return nil
}

func (w *fakeWindow) Collection() (Collection, bool) { return w.collection, w.readable(AttrCollection) }
func (w *fakeWindow) SetCollection(c Collection) error {
	if err := w.set(AttrCollection); err != nil {
		return err
	}
	w.collection = c
	return nil
}

func (w *fakeWindow) Style() (StyleMask, bool) { return w.style, w.readable(AttrStyle) }
func (w *fakeWindow) SetStyle(s StyleMask) error {
	if err := w.set(AttrStyle); err != nil {
		return err
	}
	w.style = s
	return nil
}

func (w *fakeWindow) TitleVisible() (bool, bool) { return w.title, w.readable(AttrTitleVisible) }
func (w *fakeWindow) SetTitleVisible(v bool) error {
	if err := w.set(AttrTitleVisible); err != nil {
		return err
	}
	w.title = v
	return nil
}

func (w *fakeWindow) TitlebarTransparent() (bool, bool) {
	return w.transp, w.readable(AttrTitlebarTransparent)
}
func (w *fakeWindow) SetTitlebarTransparent(v bool) error {
	if err := w.set(AttrTitlebarTransparent); err != nil {
		return err
	}
	w.transp = v
	return nil
}

func (w *fakeWindow) MovableByBackground() (bool, bool) {
	return w.movable, w.readable(AttrMovableByBackground)
}
func (w *fakeWindow) SetMovableByBackground(v bool) error {
	if err := w.set(AttrMovableByBackground); err != nil {
		return err
	}
	w.movable = v
	return nil
}

func (w *fakeWindow) ButtonVisible(b Button) (bool, bool) {
	return w.buttons[b], w.readable(buttonAttr(b))
}
func (w *fakeWindow) SetButtonVisible(b Button, v bool) error {
	if err := w.set(buttonAttr(b)); err != nil {
		return err
	}
	w.buttons[b] = v
	return nil
}

type fakeDisplays struct {
	primary *Display
}

func (d fakeDisplays) Primary() (Display, bool) {
	if d.primary == nil {
		return Display{}, false
	}
	return *d.primary, true
}

type modeLog struct {
	transitions [][2]Mode
}

func (l *modeLog) ModeChanged(from, to Mode) {
	l.transitions = append(l.transitions, [2]Mode{from, to})
}

type attrs struct {
	frame      Rect
	level      Level
	collection Collection
	style      StyleMask
	title      bool
	transp     bool
	movable    bool
	buttons    [buttonCount]bool
}

func (w *fakeWindow) attrs() attrs {
	return attrs{w.frame, w.level, w.collection, w.style, w.title, w.transp, w.movable, w.buttons}
}

func TestEnterPinnedModeLayout(t *testing.T) {
	w := newFakeWindow()
	m := NewMachine(DefaultConfig(), w, nil, nil)

	ok, err := m.EnterPinnedMode()
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, ModePinned, m.Mode())
	assert.Equal(t, Rect{X: 1920 - 360 - 16, Y: 25 + 16, Width: 360, Height: 220}, w.frame)
	assert.Equal(t, LevelFloating, w.level)
	assert.Equal(t, collectionPinned, w.collection)
	assert.False(t, w.title)
	assert.True(t, w.transp)
	assert.True(t, w.movable)
	assert.NotZero(t, w.style&StyleFullSizeContentView)
	assert.Equal(t, [buttonCount]bool{}, w.buttons)
	assert.Equal(t, []bool{true}, w.animated)
}

func TestRoundTripRestoresEveryAttribute(t *testing.T) {
	w := newFakeWindow()
	before := w.attrs()
	log := &modeLog{}
	m := NewMachine(DefaultConfig(), w, nil, nil)
	m.AddObserver(log)

	_, err := m.EnterPinnedMode()
	require.NoError(t, err)
	ok, err := m.ExitPinnedMode()
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, before, w.attrs())
	assert.Equal(t, ModeNormal, m.Mode())
	assert.Equal(t, [][2]Mode{{ModeNormal, ModePinned}, {ModePinned, ModeNormal}}, log.transitions)
}

// roundedWindow adds settable corner rounding to fakeWindow.
type roundedWindow struct {
	*fakeWindow
	corners Corners
	history []Corners
}

func (w *roundedWindow) Corners() (Corners, bool) { return w.corners, true }

func (w *roundedWindow) SetCorners(c Corners) error {
	if err := w.set(AttrCorners); err != nil {
		return err
	}
	w.corners = c
	w.history = append(w.history, c)
	return nil
}

func TestPinnedModeRoundsCorners(t *testing.T) {
	w := &roundedWindow{fakeWindow: newFakeWindow()}
	m := NewMachine(DefaultConfig(), w, nil, nil)

	_, err := m.EnterPinnedMode()
	require.NoError(t, err)
	assert.Equal(t, CornersRoundSmall, w.corners)

	_, err = m.ExitPinnedMode()
	require.NoError(t, err)
	assert.Equal(t, CornersDefault, w.corners)
	assert.Equal(t, []Corners{CornersRoundSmall, CornersDefault}, w.history)

	// Plain windows have no corner attribute to capture.
	snap := Capture(newFakeWindow())
	assert.False(t, snap.Has(AttrCorners))
	assert.Equal(t, "maximize_button|corners", (AttrMaximizeButton | AttrCorners).String())
}

func TestEnterAndExitAreIdempotent(t *testing.T) {
	w := newFakeWindow()
	log := &modeLog{}
	m := NewMachine(DefaultConfig(), w, nil, nil)
	m.AddObserver(log)

	ok, err := m.ExitPinnedMode()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, w.setCalls[AttrFrame])

	_, err = m.EnterPinnedMode()
	require.NoError(t, err)
	pinned := w.attrs()

	ok, err = m.EnterPinnedMode()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pinned, w.attrs())
	assert.Equal(t, 1, w.setCalls[AttrFrame])
	assert.Len(t, log.transitions, 1)
}

func TestPartialSnapshotSkipsAbsentAttributes(t *testing.T) {
	w := newFakeWindow()
	w.unreadable = AttrStyle | AttrMinimizeButton
	m := NewMachine(DefaultConfig(), w, nil, nil)

	_, err := m.EnterPinnedMode()
	require.NoError(t, err)

	// Style was unreadable, so entry left it alone.
	assert.Zero(t, w.setCalls[AttrStyle])

	_, err = m.ExitPinnedMode()
	require.NoError(t, err)

	assert.Zero(t, w.setCalls[AttrStyle])
	// Minimize was hidden on entry and, being absent, stays hidden.
	assert.False(t, w.buttons[MinimizeButton])
	assert.True(t, w.buttons[CloseButton])
	assert.True(t, w.buttons[MaximizeButton])
	assert.True(t, w.title)
}

func TestAbsentFrameFallsBackToCurrent(t *testing.T) {
	w := newFakeWindow()
	snap := Capture(w)
	var partial Snapshot
	if l, ok := snap.Level(); ok {
		partial.SetLevel(l)
	}
	w.frame = Rect{5, 5, 300, 300}

	require.NoError(t, partial.Restore(w, true))
	assert.Equal(t, Rect{5, 5, 300, 300}, w.frame)
	assert.Equal(t, 1, w.setCalls[AttrFrame])
	assert.Equal(t, []bool{false}, w.animated)
	assert.Zero(t, w.setCalls[AttrStyle])
	assert.Equal(t, 1, w.setCalls[AttrCollection])
}

func TestUnreadableLevelIsLeftAlone(t *testing.T) {
	w := newFakeWindow()
	w.unreadable = AttrLevel
	m := NewMachine(DefaultConfig(), w, nil, nil)

	_, err := m.EnterPinnedMode()
	require.NoError(t, err)
	_, err = m.ExitPinnedMode()
	require.NoError(t, err)

	assert.Equal(t, LevelFloating, w.level)
	assert.Equal(t, 1, w.setCalls[AttrLevel])
}

func TestSetterFailuresDoNotAbortRestore(t *testing.T) {
	w := newFakeWindow()
	before := w.attrs()
	m := NewMachine(DefaultConfig(), w, nil, nil)

	_, err := m.EnterPinnedMode()
	require.NoError(t, err)

	w.failing = AttrLevel
	ok, err := m.ExitPinnedMode()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ModeNormal, m.Mode())
	assert.Equal(t, before.frame, w.frame)
	assert.Equal(t, before.style, w.style)
	assert.Equal(t, LevelFloating, w.level)
}

func TestEnterFallsBackToPrimaryDisplay(t *testing.T) {
	w := newFakeWindow()
	w.screen = nil
	primary := &Display{ID: "primary", Usable: Rect{0, 0, 2560, 1440}}
	m := NewMachine(DefaultConfig(), w, fakeDisplays{primary: primary}, nil)

	ok, err := m.EnterPinnedMode()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Rect{2560 - 376, 16, 360, 220}, w.frame)
}

func TestEnterWithoutDisplayFails(t *testing.T) {
	w := newFakeWindow()
	w.screen = nil
	before := w.attrs()
	m := NewMachine(DefaultConfig(), w, fakeDisplays{}, nil)

	ok, err := m.EnterPinnedMode()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ModeNormal, m.Mode())
	assert.Equal(t, before, w.attrs())
	assert.Empty(t, w.setCalls)
}

func TestUsableAreaFallbackChain(t *testing.T) {
	current := Rect{10, 20, 800, 600}
	tests := []struct {
		name        string
		display     Display
		haveCurrent bool
		want        Rect
	}{
		{"usable", Display{Usable: Rect{0, 30, 1000, 700}, Frame: Rect{0, 0, 1000, 730}}, true, Rect{0, 30, 1000, 700}},
		{"frame", Display{Frame: Rect{0, 0, 1000, 730}}, true, Rect{0, 0, 1000, 730}},
		{"window", Display{}, true, current},
		{"default", Display{}, false, Rect{0, 0, 1280, 720}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, usableArea(tt.display, current, tt.haveCurrent))
		})
	}
}

func TestCloseCentersDefaultSizeAndReleases(t *testing.T) {
	w := newFakeWindow()
	m := NewMachine(DefaultConfig(), w, nil, nil)

	_, err := m.EnterPinnedMode()
	require.NoError(t, err)

	ok, err := m.Close()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Rect{240, 103, 1440, 900}, w.frame)
	assert.Equal(t, ModeNormal, m.Mode())

	_, err = m.EnterPinnedMode()
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = m.ExitPinnedMode()
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = m.IsPinned()
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = m.Close()
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDeadWindowIsUnavailable(t *testing.T) {
	w := newFakeWindow()
	w.alive = false
	m := NewMachine(DefaultConfig(), w, nil, nil)

	_, err := m.EnterPinnedMode()
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = m.SetLocked(true)
	assert.ErrorIs(t, err, ErrUnavailable)

	m = NewMachine(DefaultConfig(), nil, nil, nil)
	_, err = m.IsPinned()
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHitTest(t *testing.T) {
	w := newFakeWindow()
	m := NewMachine(DefaultConfig(), w, nil, nil)
	client := Size{Width: 360, Height: 220}

	assert.Equal(t, HitClient, hit(t, m, Point{10, 100}, client, 1), "normal mode never drags")

	_, err := m.EnterPinnedMode()
	require.NoError(t, err)

	tests := []struct {
		name  string
		p     Point
		scale float64
		want  Hit
	}{
		{"body", Point{10, 100}, 1, HitDrag},
		{"pin region", Point{300, 10}, 1, HitClient},
		{"pin region edge", Point{280, 80}, 1, HitClient},
		{"just left of pin region", Point{279, 10}, 1, HitDrag},
		{"lock region", Point{340, 200}, 1, HitClient},
		{"right edge middle", Point{350, 110}, 1, HitDrag},
		{"pin region at 1.5x", Point{250, 100}, 1.5, HitClient},
		{"body at 1.5x", Point{239, 110}, 1.5, HitDrag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hit(t, m, tt.p, client, tt.scale))
		})
	}

	_, err = m.SetLocked(true)
	require.NoError(t, err)
	assert.True(t, m.Locked())
	assert.Equal(t, HitClient, hit(t, m, Point{10, 100}, client, 1), "locked window never drags")
}

func hit(t *testing.T, m *Machine, p Point, client Size, scale float64) Hit {
	t.Helper()
	h, err := m.HitTest(p, client, scale)
	require.NoError(t, err)
	return h
}

func TestHitTestAfterClose(t *testing.T) {
	w := newFakeWindow()
	m := NewMachine(DefaultConfig(), w, nil, nil)
	_, err := m.EnterPinnedMode()
	require.NoError(t, err)
	_, err = m.Close()
	require.NoError(t, err)

	h, err := m.HitTest(Point{10, 100}, Size{Width: 360, Height: 220}, 1)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, HitClient, h)
}

func TestScaleToDPI(t *testing.T) {
	assert.Equal(t, 80.0, ScaleToDPI(80, 1))
	assert.Equal(t, 120.0, ScaleToDPI(80, 1.5))
	assert.Equal(t, 1.0, ScaleToDPI(80, 0.001))
	assert.Equal(t, 80.0, ScaleToDPI(80, 0))
}

func TestSnapshotRestoreError(t *testing.T) {
	w := newFakeWindow()
	snap := Capture(w)
	w.failing = AttrFrame | AttrCloseButton

	err := snap.Restore(w, false)
	var re *RestoreError
	require.ErrorAs(t, err, &re)
	assert.Len(t, re.Failed, 2)
	assert.Equal(t, "window: restore: frame: setter failed; close_button: setter failed", err.Error())
}

func TestAttrString(t *testing.T) {
	assert.Equal(t, "frame", AttrFrame.String())
	assert.Equal(t, "level|style", (AttrLevel | AttrStyle).String())
	assert.Equal(t, "titled|closable", (StyleTitled | StyleClosable).String())
}
