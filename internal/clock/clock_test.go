package clock

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClock(t *testing.T) {
	start := time.UnixMilli(1_000)
	c := NewManual(start)

	assert.Equal(t, int64(1_000), Millis(c.Now()))
	c.Advance(250 * time.Millisecond)
	assert.Equal(t, int64(1_250), Millis(c.Now()))
	c.Set(FromMillis(42))
	assert.Equal(t, int64(42), Millis(c.Now()))
}

func TestIdleSampleValid(t *testing.T) {
	tests := []struct {
		name   string
		sample IdleSample
		valid  bool
	}{
		{"both finite", IdleSample{SinceButtonDown: 0.5, SinceButtonDrag: 2}, true},
		{"never dragged", IdleSample{SinceButtonDown: 0.2, SinceButtonDrag: math.Inf(1)}, true},
		{"never pressed", IdleSample{SinceButtonDown: math.Inf(1), SinceButtonDrag: math.Inf(1)}, false},
		{"nan", IdleSample{SinceButtonDown: math.NaN(), SinceButtonDrag: 1}, false},
		{"negative", IdleSample{SinceButtonDown: -1, SinceButtonDrag: 3}, false},
		{"zero", IdleSample{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.sample.Valid())
		})
	}
}

func TestIdleSampleInferredAt(t *testing.T) {
	now := time.UnixMilli(1_000)

	at, ok := IdleSample{SinceButtonDown: 0.2, SinceButtonDrag: 5}.InferredAt(now)
	require.True(t, ok)
	assert.Equal(t, int64(800), Millis(at))

	_, ok = IdleSample{SinceButtonDown: math.NaN(), SinceButtonDrag: math.NaN()}.InferredAt(now)
	assert.False(t, ok)
}

func TestButtonClock(t *testing.T) {
	var b ButtonClock
	t0 := time.Unix(1_000, 0)

	// Typing before any click is not button activity.
	s := b.Sample(t0, 200*time.Millisecond, false)
	assert.True(t, s.ButtonKnown)
	assert.False(t, s.Valid())

	s = b.Sample(t0.Add(time.Second), 0, true)
	assert.True(t, s.ButtonDown)
	assert.InDelta(t, 0, s.SinceButtonDown, 1e-9)
	assert.Equal(t, s.SinceButtonDown, s.SinceButtonDrag)

	// Dragging keeps the counter live.
	s = b.Sample(t0.Add(2*time.Second), 100*time.Millisecond, true)
	assert.InDelta(t, 0.1, s.SinceButtonDown, 1e-9)

	// Released 300ms before the next read.
	s = b.Sample(t0.Add(3*time.Second), 300*time.Millisecond, false)
	assert.False(t, s.ButtonDown)
	assert.InDelta(t, 0.3, s.SinceButtonDown, 1e-9)

	// Later keyboard input resets the counter but not the sample.
	for i, idle := range []time.Duration{10 * time.Millisecond, 0, 40 * time.Millisecond} {
		s = b.Sample(t0.Add(time.Duration(4+i)*time.Second), idle, false)
		assert.InDelta(t, float64(1+i)+0.3, s.SinceButtonDown, 1e-9)
	}
}
