package window

import (
	"fmt"
	"strings"
)

// Attr names one attribute held by a Snapshot.
type Attr uint16

const (
	AttrFrame Attr = 1 << iota
	AttrLevel
	AttrCollection
	AttrStyle
	AttrTitleVisible
	AttrTitlebarTransparent
	AttrMovableByBackground
	AttrCloseButton
	AttrMinimizeButton
	AttrMaximizeButton
	AttrCorners

	attrLast = AttrCorners
)

var attrNames = map[Attr]string{
	AttrFrame:               "frame",
	AttrLevel:               "level",
	AttrCollection:          "collection",
	AttrStyle:               "style",
	AttrTitleVisible:        "title_visible",
	AttrTitlebarTransparent: "titlebar_transparent",
	AttrMovableByBackground: "movable_by_background",
	AttrCloseButton:         "close_button",
	AttrMinimizeButton:      "minimize_button",
	AttrMaximizeButton:      "maximize_button",
	AttrCorners:             "corners",
}

// String returns the attribute name, or a |-joined list for a set.
func (a Attr) String() string {
	if name, ok := attrNames[a]; ok {
		return name
	}
	var parts []string
	for bit := AttrFrame; bit <= attrLast; bit <<= 1 {
		if a&bit != 0 {
			parts = append(parts, attrNames[bit])
		}
	}
	return strings.Join(parts, "|")
}

func buttonAttr(b Button) Attr {
	return AttrCloseButton << Attr(b)
}

// Snapshot is a partial record of window attributes taken before entering
// pinned mode. Each attribute is either present with a value or absent.
type Snapshot struct {
	present Attr

	frame               Rect
	level               Level
	collection          Collection
	style               StyleMask
	titleVisible        bool
	titlebarTransparent bool
	movable             bool
	buttons             [buttonCount]bool
	corners             Corners
}

// Capture reads every attribute w can report. Unreadable attributes are
// left absent.
func Capture(w Window) Snapshot {
	var s Snapshot
	if v, ok := w.Frame(); ok {
		s.SetFrame(v)
	}
	if v, ok := w.Level(); ok {
		s.SetLevel(v)
	}
	if v, ok := w.Collection(); ok {
		s.SetCollection(v)
	}
	if v, ok := w.Style(); ok {
		s.SetStyle(v)
	}
	if v, ok := w.TitleVisible(); ok {
		s.SetTitleVisible(v)
	}
	if v, ok := w.TitlebarTransparent(); ok {
		s.SetTitlebarTransparent(v)
	}
	if v, ok := w.MovableByBackground(); ok {
		s.SetMovableByBackground(v)
	}
	for _, b := range Buttons {
		if v, ok := w.ButtonVisible(b); ok {
			s.SetButtonVisible(b, v)
		}
	}
	if cw, ok := w.(CornerWindow); ok {
		if v, ok := cw.Corners(); ok {
			s.SetCorners(v)
		}
	}
	return s
}

// Has reports whether every attribute in a is present.
func (s *Snapshot) Has(a Attr) bool { return s.present&a == a }

// Present returns the set of present attributes.
func (s *Snapshot) Present() Attr { return s.present }

func (s *Snapshot) SetFrame(r Rect)            { s.frame = r; s.present |= AttrFrame }
func (s *Snapshot) SetLevel(l Level)           { s.level = l; s.present |= AttrLevel }
func (s *Snapshot) SetCollection(c Collection) { s.collection = c; s.present |= AttrCollection }
func (s *Snapshot) SetStyle(m StyleMask)       { s.style = m; s.present |= AttrStyle }
func (s *Snapshot) SetTitleVisible(v bool)     { s.titleVisible = v; s.present |= AttrTitleVisible }
func (s *Snapshot) SetTitlebarTransparent(v bool) {
	s.titlebarTransparent = v
	s.present |= AttrTitlebarTransparent
}
func (s *Snapshot) SetMovableByBackground(v bool) {
	s.movable = v
	s.present |= AttrMovableByBackground
}

// SetButtonVisible records the visibility of b.
func (s *Snapshot) SetButtonVisible(b Button, v bool) {
	s.buttons[b] = v
	s.present |= buttonAttr(b)
}

// SetCorners records the corner rounding.
func (s *Snapshot) SetCorners(c Corners) {
	s.corners = c
	s.present |= AttrCorners
}

// Frame returns the recorded frame.
func (s *Snapshot) Frame() (Rect, bool) { return s.frame, s.Has(AttrFrame) }

// Level returns the recorded level.
func (s *Snapshot) Level() (Level, bool) { return s.level, s.Has(AttrLevel) }

// Collection returns the recorded collection behaviour.
func (s *Snapshot) Collection() (Collection, bool) { return s.collection, s.Has(AttrCollection) }

// Style returns the recorded style mask.
func (s *Snapshot) Style() (StyleMask, bool) { return s.style, s.Has(AttrStyle) }

// ButtonVisible returns the recorded visibility of b.
func (s *Snapshot) ButtonVisible(b Button) (bool, bool) {
	return s.buttons[b], s.Has(buttonAttr(b))
}

// Corners returns the recorded corner rounding.
func (s *Snapshot) Corners() (Corners, bool) { return s.corners, s.Has(AttrCorners) }

// RestoreError collects the setters that failed during Restore.
type RestoreError struct {
	Failed map[Attr]error
}

func (e *RestoreError) Error() string {
	var parts []string
	for bit := AttrFrame; bit <= attrLast; bit <<= 1 {
		if err, ok := e.Failed[bit]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", bit, err))
		}
	}
	return "window: restore: " + strings.Join(parts, "; ")
}

// Restore writes the snapshot back to w.
//
// Frame, level and collection fall back to the window's current value
// when absent. Every other attribute is only written when present.
// All setters are attempted; failures are collected in a *RestoreError.
func (s *Snapshot) Restore(w Window, animate bool) error {
	failed := make(map[Attr]error)
	note := func(a Attr, err error) {
		if err != nil {
			failed[a] = err
		}
	}

	if r, ok := s.Frame(); ok {
		note(AttrFrame, w.SetFrame(r, animate))
	} else if r, ok := w.Frame(); ok {
		note(AttrFrame, w.SetFrame(r, false))
	}
	if l, ok := s.Level(); ok {
		note(AttrLevel, w.SetLevel(l))
	} else if l, ok := w.Level(); ok {
		note(AttrLevel, w.SetLevel(l))
	}
	if c, ok := s.Collection(); ok {
		note(AttrCollection, w.SetCollection(c))
	} else if c, ok := w.Collection(); ok {
		note(AttrCollection, w.SetCollection(c))
	}

	if m, ok := s.Style(); ok {
		note(AttrStyle, w.SetStyle(m))
	}
	if s.Has(AttrTitleVisible) {
		note(AttrTitleVisible, w.SetTitleVisible(s.titleVisible))
	}
	if s.Has(AttrTitlebarTransparent) {
		note(AttrTitlebarTransparent, w.SetTitlebarTransparent(s.titlebarTransparent))
	}
	if s.Has(AttrMovableByBackground) {
		note(AttrMovableByBackground, w.SetMovableByBackground(s.movable))
	}
	for _, b := range Buttons {
		if v, ok := s.ButtonVisible(b); ok {
			note(buttonAttr(b), w.SetButtonVisible(b, v))
		}
	}
	if c, ok := s.Corners(); ok {
		if cw, ok := w.(CornerWindow); ok {
			note(AttrCorners, cw.SetCorners(c))
		}
	}

	if len(failed) > 0 {
		return &RestoreError{Failed: failed}
	}
	return nil
}
