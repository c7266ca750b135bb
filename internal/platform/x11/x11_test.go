package x11

import (
	"testing"
	"time"

	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringobridge/internal/clock"
)

func TestParseWMClass(t *testing.T) {
	instance, class := parseWMClass([]byte("ringo\x00Ringo\x00"))
	assert.Equal(t, "ringo", instance)
	assert.Equal(t, "Ringo", class)

	instance, class = parseWMClass([]byte("solo"))
	assert.Equal(t, "solo", instance)
	assert.Empty(t, class)
}

func TestMotifHints(t *testing.T) {
	_, ok := parseMotifHints([]byte{1, 2, 3})
	assert.False(t, ok)

	// No decoration flag: the window manager decides, treat as decorated.
	assert.True(t, motifHints{}.decorated())

	off := withDecorations(motifHints{Functions: 7}, false)
	assert.False(t, off.decorated())
	assert.Equal(t, uint32(7), off.Functions)

	parsed, ok := parseMotifHints(off.bytes())
	require.True(t, ok)
	assert.Equal(t, off, parsed)

	assert.True(t, withDecorations(off, true).decorated())
}

func TestWorkArea(t *testing.T) {
	data := putUint32s([]uint32{0, 32, 1920, 1048, 0, 0, 2560, 1440})

	wa, ok := workArea(data, 1)
	require.True(t, ok)
	assert.Equal(t, [4]uint32{0, 0, 2560, 1440}, wa)

	// Out-of-range desktop falls back to the first entry.
	wa, ok = workArea(data, 5)
	require.True(t, ok)
	assert.Equal(t, [4]uint32{0, 32, 1920, 1048}, wa)

	_, ok = workArea(nil, 0)
	assert.False(t, ok)
}

func TestMatchesHost(t *testing.T) {
	assert.True(t, matchesHost("ringo", "Ringo", 0, "ringo", 0))
	assert.True(t, matchesHost("main", "RINGO", 0, "ringo", 0))
	assert.True(t, matchesHost("other", "Other", 4242, "ringo", 4242))
	assert.False(t, matchesHost("other", "Other", 1, "ringo", 4242))
	assert.False(t, matchesHost("", "", 0, "", 0))
}

func TestIdleSampleFollowsButtons(t *testing.T) {
	var b clock.ButtonClock
	t0 := time.Unix(1_000, 0)

	s := idleSample(&b, t0, 0, xproto.KeyButMaskButton1|xproto.KeyButMaskShift)
	assert.True(t, s.ButtonDown)
	assert.True(t, s.Valid())

	s = idleSample(&b, t0.Add(time.Second), 250, 0)
	assert.False(t, s.ButtonDown)
	assert.InDelta(t, 0.25, s.SinceButtonDown, 1e-9)

	// Shift alone is keyboard input.
	s = idleSample(&b, t0.Add(2*time.Second), 0, xproto.KeyButMaskShift)
	assert.False(t, s.ButtonDown)
	assert.InDelta(t, 1.25, s.SinceButtonDown, 1e-9)
}

func TestContainsAtom(t *testing.T) {
	assert.True(t, containsAtom([]uint32{3, 9, 12}, 9))
	assert.False(t, containsAtom(nil, 9))
}
