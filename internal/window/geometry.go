package window

import "math"

// Point is a position in window or screen coordinates.
type Point struct {
	X, Y float64
}

// Size is a width and height.
type Size struct {
	Width, Height float64
}

// Rect is an axis-aligned rectangle. The origin is the top-left corner and
// Y grows downwards; backends with a different convention convert at the
// boundary.
type Rect struct {
	X, Y, Width, Height float64
}

// MaxX returns the right edge.
func (r Rect) MaxX() float64 { return r.X + r.Width }

// MaxY returns the bottom edge.
func (r Rect) MaxY() float64 { return r.Y + r.Height }

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Size returns the rectangle's size.
func (r Rect) Size() Size { return Size{Width: r.Width, Height: r.Height} }

// ApproxEqual compares two rectangles with a half-pixel tolerance.
func (r Rect) ApproxEqual(o Rect) bool {
	const eps = 0.5
	return math.Abs(r.X-o.X) <= eps && math.Abs(r.Y-o.Y) <= eps &&
		math.Abs(r.Width-o.Width) <= eps && math.Abs(r.Height-o.Height) <= eps
}

// Display describes one screen.
type Display struct {
	ID string

	// Frame is the full screen rectangle.
	Frame Rect

	// Usable is Frame minus menu bars, docks and panels.
	Usable Rect

	// Scale is the backing scale factor (DPI / 96 on Windows).
	Scale float64
}

// fallbackArea is used when neither the display nor the window can tell us
// where to place things.
var fallbackArea = Rect{Width: 1280, Height: 720}

// usableArea picks the area to lay the window out in: the display's usable
// area, then its frame, then the current window frame, then 1280x720.
func usableArea(d Display, current Rect, haveCurrent bool) Rect {
	switch {
	case !d.Usable.Empty():
		return d.Usable
	case !d.Frame.Empty():
		return d.Frame
	case haveCurrent && !current.Empty():
		return current
	default:
		return fallbackArea
	}
}

// PinnedFrame places a size.Width x size.Height rectangle in the top-right
// corner of area, inset by margin on both edges.
func PinnedFrame(area Rect, size Size, margin float64) Rect {
	return Rect{
		X:      area.MaxX() - size.Width - margin,
		Y:      area.Y + margin,
		Width:  size.Width,
		Height: size.Height,
	}
}

// CenteredFrame centers a rectangle of the given size in area.
func CenteredFrame(area Rect, size Size) Rect {
	return Rect{
		X:      math.Round(area.X + (area.Width-size.Width)/2),
		Y:      math.Round(area.Y + (area.Height-size.Height)/2),
		Width:  size.Width,
		Height: size.Height,
	}
}

// ScaleToDPI converts a device-independent length to pixels, never
// returning less than one.
func ScaleToDPI(v, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	scaled := math.Trunc(v * scale)
	if scaled <= 0 {
		return 1
	}
	return scaled
}
