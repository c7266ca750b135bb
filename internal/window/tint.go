package window

import (
	"log/slog"
	"math"
	"sync"
)

// Alpha values used for the glass background.
const (
	TintAlpha  uint8 = 0x99
	ResetAlpha uint8 = 0xC0
)

// Color is an RGB color with components in [0, 1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// White is the reset tint color.
var White = Color{R: 1, G: 1, B: 1}

// RGB8 converts the color to 8-bit components, clamping out-of-range
// values.
func (c Color) RGB8() (r, g, b uint8) {
	return channel(c.R), channel(c.G), channel(c.B)
}

func channel(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

// Tinter renders a translucent background color behind the window.
type Tinter interface {
	ApplyTint(r, g, b, alpha uint8) error
}

// TintState is the last requested tint.
type TintState struct {
	Color  Color `json:"color"`
	Alpha  uint8 `json:"alpha"`
	Custom bool  `json:"custom"`
}

// Tint keeps the glass tint state and forwards it to a Tinter.
type Tint struct {
	mu       sync.Mutex
	tinter   Tinter
	state    TintState
	released bool
	logger   *slog.Logger
}

// NewTint creates a tint controller. tinter may be nil; the state is then
// still recorded but every call reports false.
func NewTint(tinter Tinter, logger *slog.Logger) *Tint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tint{
		tinter: tinter,
		state:  TintState{Color: White, Alpha: ResetAlpha},
		logger: logger.With("component", "tint"),
	}
}

// SetColor applies c with the standard tint alpha.
func (t *Tint) SetColor(c Color) (bool, error) {
	return t.set(TintState{Color: c, Alpha: TintAlpha, Custom: true})
}

// Reset applies the default white glass.
func (t *Tint) Reset() (bool, error) {
	return t.set(TintState{Color: White, Alpha: ResetAlpha})
}

// State returns the last requested tint.
func (t *Tint) State() TintState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Release marks the host window as gone.
func (t *Tint) Release() {
	t.mu.Lock()
	t.released = true
	t.mu.Unlock()
}

func (t *Tint) set(s TintState) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return false, ErrUnavailable
	}
	t.state = s
	if t.tinter == nil {
		return false, nil
	}

	r, g, b := s.Color.RGB8()
	if err := t.tinter.ApplyTint(r, g, b, s.Alpha); err != nil {
		t.logger.Warn("apply tint", "error", err)
		return false, nil
	}
	return true, nil
}
