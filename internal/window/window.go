// Package window implements the Normal/Pinned presentation modes of the
// host window.
//
// Entering pinned mode captures a Snapshot of every attribute it is about
// to change, shrinks the window into the top-right corner of the usable
// area and makes it float above other windows on every workspace. Exiting
// restores the snapshot. Backends implement Window; attributes a backend
// cannot read are left out of the snapshot and skipped on restore.
package window

import (
	"errors"
	"strings"
)

var (
	// ErrUnavailable is returned once the host window is gone.
	ErrUnavailable = errors.New("window: host window unavailable")

	// ErrUnsupported is returned by setters a backend cannot honour.
	ErrUnsupported = errors.New("window: attribute not supported")
)

// Mode is the presentation mode of the host window.
type Mode int

const (
	ModeNormal Mode = iota
	ModePinned
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModePinned {
		return "pinned"
	}
	return "normal"
}

// Level is the window's stacking level.
type Level int

const (
	LevelNormal   Level = 0
	LevelFloating Level = 3
)

// Collection is the set of workspace-visibility behaviours.
type Collection uint32

const (
	CollectionDefault             Collection = 0
	CollectionCanJoinAllSpaces    Collection = 1 << 0
	CollectionMoveToActiveSpace   Collection = 1 << 1
	CollectionManaged             Collection = 1 << 2
	CollectionFullScreenAuxiliary Collection = 1 << 8
)

const collectionPinned = CollectionCanJoinAllSpaces | CollectionFullScreenAuxiliary

// StyleMask holds window chrome flags.
type StyleMask uint32

const (
	StyleBorderless          StyleMask = 0
	StyleTitled              StyleMask = 1 << 0
	StyleClosable            StyleMask = 1 << 1
	StyleMiniaturizable      StyleMask = 1 << 2
	StyleResizable           StyleMask = 1 << 3
	StyleFullSizeContentView StyleMask = 1 << 15
)

// String lists the set flags.
func (s StyleMask) String() string {
	if s == StyleBorderless {
		return "borderless"
	}
	var parts []string
	for _, f := range []struct {
		bit  StyleMask
		name string
	}{
		{StyleTitled, "titled"},
		{StyleClosable, "closable"},
		{StyleMiniaturizable, "miniaturizable"},
		{StyleResizable, "resizable"},
		{StyleFullSizeContentView, "full-size-content"},
	} {
		if s&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Button is one of the standard title-bar buttons.
type Button int

const (
	CloseButton Button = iota
	MinimizeButton
	MaximizeButton
	buttonCount
)

// Buttons lists the standard buttons in order.
var Buttons = [...]Button{CloseButton, MinimizeButton, MaximizeButton}

// String returns the button name.
func (b Button) String() string {
	switch b {
	case CloseButton:
		return "close"
	case MinimizeButton:
		return "minimize"
	case MaximizeButton:
		return "maximize"
	default:
		return "unknown"
	}
}

// Window is the host window as seen through a platform backend.
//
// Getters return ok=false when the attribute cannot be read. Setters
// return ErrUnsupported for attributes the platform has no notion of.
type Window interface {
	// Alive reports whether the window still exists.
	Alive() bool

	// Screen returns the display the window is on.
	Screen() (Display, bool)

	Frame() (Rect, bool)
	SetFrame(r Rect, animate bool) error

	Level() (Level, bool)
	SetLevel(l Level) error

	Collection() (Collection, bool)
	SetCollection(c Collection) error

	Style() (StyleMask, bool)
	SetStyle(s StyleMask) error

	TitleVisible() (bool, bool)
	SetTitleVisible(visible bool) error

	TitlebarTransparent() (bool, bool)
	SetTitlebarTransparent(transparent bool) error

	MovableByBackground() (bool, bool)
	SetMovableByBackground(movable bool) error

	ButtonVisible(b Button) (bool, bool)
	SetButtonVisible(b Button, visible bool) error
}

// Corners is the rounding of a window's corners.
type Corners int

const (
	CornersDefault Corners = iota
	CornersRoundSmall
)

// CornerWindow is implemented by windows whose corner rounding can be
// set. Pinned mode asks for small corners where it is available.
type CornerWindow interface {
	Corners() (Corners, bool)
	SetCorners(c Corners) error
}

// Displays enumerates screens.
type Displays interface {
	Primary() (Display, bool)
}
