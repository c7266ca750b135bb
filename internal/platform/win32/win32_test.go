package win32

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ringobridge/internal/activity"
	"ringobridge/internal/clock"
	"ringobridge/internal/window"
)

func TestStyleMapping(t *testing.T) {
	overlapped := uint32(wsCaption | wsSysMenu | wsThickFrame | wsMinimizeBox | wsMaximizeBox)
	s := styleFromBits(overlapped)
	assert.Equal(t, window.StyleTitled|window.StyleClosable|window.StyleMiniaturizable|window.StyleResizable, s)

	pinned := applyStyleBits(overlapped, s|window.StyleFullSizeContentView)
	assert.Zero(t, pinned&wsCaption)
	assert.NotZero(t, pinned&wsMaximizeBox, "unmanaged bits are kept")

	assert.Equal(t, overlapped, applyStyleBits(pinned, s))
	assert.Equal(t, window.StyleFullSizeContentView, styleFromBits(0))
}

func TestGradientColor(t *testing.T) {
	assert.Equal(t, uint32(0x990080FF), gradientColor(0xFF, 0x80, 0x00, 0x99))
}

func TestButtonFromMessage(t *testing.T) {
	tests := []struct {
		msg   uint32
		extra uintptr
		want  activity.Button
		down  bool
		ok    bool
	}{
		{wmLButtonDown, 0, activity.ButtonPrimary, true, true},
		{wmLButtonUp, 0, activity.ButtonPrimary, false, true},
		{wmLButtonDown, 0xFF515780, activity.ButtonStylus, true, true},
		{wmRButtonUp, 0, activity.ButtonSecondary, false, true},
		{wmMButtonDown, 0, activity.ButtonAuxiliary, true, true},
		{0x0200, 0, 0, false, false}, // WM_MOUSEMOVE
	}
	for _, tt := range tests {
		b, down, ok := buttonFromMessage(tt.msg, tt.extra)
		assert.Equal(t, tt.ok, ok, "msg %#x", tt.msg)
		if tt.ok {
			assert.Equal(t, tt.want, b, "msg %#x", tt.msg)
			assert.Equal(t, tt.down, down, "msg %#x", tt.msg)
		}
	}
}

func TestTickTime(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	assert.Equal(t, now.Add(-250*time.Millisecond), tickTime(now, 10_250, 10_000))

	// Event just before the counter wrapped.
	assert.Equal(t, now.Add(-20*time.Millisecond), tickTime(now, 10, 0xFFFFFFF6))
}

func TestCornerPreference(t *testing.T) {
	assert.Equal(t, uint32(dwmwcpRoundSmall), cornerPreference(window.CornersRoundSmall))
	assert.Equal(t, uint32(dwmwcpDefault), cornerPreference(window.CornersDefault))
}

func TestButtonSample(t *testing.T) {
	var b clock.ButtonClock
	t0 := time.Unix(500, 0)

	// Keyboard input with no hook and no click yet.
	s := buttonSample(&b, t0, 100*time.Millisecond, false, time.Time{})
	assert.False(t, s.Valid())

	s = buttonSample(&b, t0.Add(time.Second), 0, true, time.Time{})
	assert.True(t, s.ButtonDown)
	assert.InDelta(t, 0, s.Idle(), 1e-9)

	// The hook's click time wins over the input counter.
	hookAt := t0.Add(1500 * time.Millisecond)
	s = buttonSample(&b, t0.Add(4*time.Second), 20*time.Millisecond, false, hookAt)
	assert.InDelta(t, 2.5, s.SinceButtonDown, 1e-9)
	assert.Equal(t, s.SinceButtonDown, s.SinceButtonDrag)
	assert.True(t, s.ButtonKnown)
}

func TestRectConversion(t *testing.T) {
	r := rectToDIP(300, 150, 840, 480, 1.5)
	assert.Equal(t, window.Rect{X: 200, Y: 100, Width: 360, Height: 220}, r)

	x, y, w, h := rectToPixels(r, 1.5)
	assert.Equal(t, []int32{300, 150, 540, 330}, []int32{x, y, w, h})

	_, _, w, h = rectToPixels(window.Rect{}, 0)
	assert.Equal(t, int32(1), w)
	assert.Equal(t, int32(1), h)
}
