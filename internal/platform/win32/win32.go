// Package win32 implements the Windows backends: a low-level mouse hook,
// GetLastInputInfo idle sampling, foreground lookup, host window control
// and the acrylic glass tint.
//
// The conversions in this file are plain arithmetic and build everywhere;
// the API calls live in the _windows files.
package win32

import (
	"math"
	"time"

	"ringobridge/internal/activity"
	"ringobridge/internal/clock"
	"ringobridge/internal/window"
)

// Window styles (GWL_STYLE).
const (
	wsCaption     = 0x00C00000
	wsSysMenu     = 0x00080000
	wsThickFrame  = 0x00040000
	wsMinimizeBox = 0x00020000
	wsMaximizeBox = 0x00010000
)

// DWM_WINDOW_CORNER_PREFERENCE values.
const (
	dwmwcpDefault    = 0
	dwmwcpRoundSmall = 3
)

// Extended window styles (GWL_EXSTYLE).
const wsExTopmost = 0x00000008

// Low-level mouse hook messages.
const (
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
)

// Pen and touch input is promoted to mouse messages whose extra info
// carries this signature.
const (
	miWPSignature = 0xFF515700
	signatureMask = 0xFFFFFF00
)

// Accent states for SetWindowCompositionAttribute.
const (
	accentEnableBlurBehind        = 3
	accentEnableAcrylicBlurBehind = 4
)

// styleFromBits maps GWL_STYLE bits to a StyleMask.
func styleFromBits(bits uint32) window.StyleMask {
	var s window.StyleMask
	if bits&wsCaption == wsCaption {
		s |= window.StyleTitled
	} else {
		s |= window.StyleFullSizeContentView
	}
	if bits&wsSysMenu != 0 {
		s |= window.StyleClosable
	}
	if bits&wsMinimizeBox != 0 {
		s |= window.StyleMiniaturizable
	}
	if bits&wsThickFrame != 0 {
		s |= window.StyleResizable
	}
	return s
}

// applyStyleBits returns current with the bits a StyleMask controls
// replaced. A titled mask with full-size content drops the caption.
func applyStyleBits(current uint32, s window.StyleMask) uint32 {
	bits := current &^ (wsCaption | wsSysMenu | wsThickFrame | wsMinimizeBox)
	if s&window.StyleTitled != 0 && s&window.StyleFullSizeContentView == 0 {
		bits |= wsCaption
	}
	if s&window.StyleClosable != 0 {
		bits |= wsSysMenu
	}
	if s&window.StyleMiniaturizable != 0 {
		bits |= wsMinimizeBox
	}
	if s&window.StyleResizable != 0 {
		bits |= wsThickFrame
	}
	return bits
}

// cornerPreference maps corner rounding to the DWM preference value.
func cornerPreference(c window.Corners) uint32 {
	if c == window.CornersRoundSmall {
		return dwmwcpRoundSmall
	}
	return dwmwcpDefault
}

// gradientColor packs a color as the ABGR value the accent policy takes.
func gradientColor(r, g, b, a uint8) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(g)<<8 | uint32(r)
}

// buttonFromMessage decodes a low-level mouse hook message.
func buttonFromMessage(msg uint32, extra uintptr) (b activity.Button, down, ok bool) {
	switch msg {
	case wmLButtonDown, wmLButtonUp:
		b = activity.ButtonPrimary
		if uint32(extra)&signatureMask == miWPSignature {
			b = activity.ButtonStylus
		}
	case wmRButtonDown, wmRButtonUp:
		b = activity.ButtonSecondary
	case wmMButtonDown, wmMButtonUp:
		b = activity.ButtonAuxiliary
	default:
		return 0, false, false
	}
	down = msg == wmLButtonDown || msg == wmRButtonDown || msg == wmMButtonDown
	return b, down, true
}

// tickTime converts a GetTickCount value to wall time. Unsigned
// subtraction keeps the result right across the 49.7 day wrap.
func tickTime(now time.Time, nowTick, evTick uint32) time.Time {
	return now.Add(-time.Duration(nowTick-evTick) * time.Millisecond)
}

// buttonSample filters the any-input idle counter through b. A non-zero
// hookAt, the hook's last button message, overrides the filtered time.
func buttonSample(b *clock.ButtonClock, now time.Time, idle time.Duration, down bool, hookAt time.Time) clock.IdleSample {
	s := b.Sample(now, idle, down)
	if !hookAt.IsZero() {
		secs := math.Max(now.Sub(hookAt).Seconds(), 0)
		s.SinceButtonDown, s.SinceButtonDrag = secs, secs
	}
	return s
}

// rectToDIP converts a pixel rectangle to device-independent units.
func rectToDIP(left, top, right, bottom int32, scale float64) window.Rect {
	if scale <= 0 {
		scale = 1
	}
	return window.Rect{
		X:      float64(left) / scale,
		Y:      float64(top) / scale,
		Width:  float64(right-left) / scale,
		Height: float64(bottom-top) / scale,
	}
}

// rectToPixels is the inverse of rectToDIP. Sizes never drop below one
// pixel.
func rectToPixels(r window.Rect, scale float64) (x, y, w, h int32) {
	if scale <= 0 {
		scale = 1
	}
	return int32(r.X * scale), int32(r.Y * scale),
		int32(window.ScaleToDPI(r.Width, scale)), int32(window.ScaleToDPI(r.Height, scale))
}
