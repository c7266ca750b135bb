//go:build windows

package win32

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"ringobridge/internal/clock"
)

// IdleSource samples GetLastInputInfo and the mouse button key states.
// GetLastInputInfo counts all input, so while hook is installed its last
// button time is used instead.
type IdleSource struct {
	hook *Monitor

	mu      sync.Mutex
	buttons clock.ButtonClock
}

// NewIdleSource returns the Windows idle source. hook may be nil.
func NewIdleSource(hook *Monitor) *IdleSource { return &IdleSource{hook: hook} }

// Sample returns seconds since the last button activity.
func (s *IdleSource) Sample() (clock.IdleSample, error) {
	info := lastInputInfo{CbSize: uint32(unsafe.Sizeof(lastInputInfo{}))}
	r, _, err := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if r == 0 {
		return clock.IdleSample{}, fmt.Errorf("win32: GetLastInputInfo: %w", err)
	}
	idle := time.Duration(tickCount()-info.DwTime) * time.Millisecond
	down := keyDown(vkLButton) || keyDown(vkRButton) || keyDown(vkMButton)

	s.mu.Lock()
	defer s.mu.Unlock()
	return buttonSample(&s.buttons, time.Now(), idle, down, s.hook.LastButton()), nil
}

func keyDown(vk uintptr) bool {
	r, _, _ := procGetAsyncKeyState.Call(vk)
	return r&keyStateDownBit != 0
}
