//go:build windows

package win32

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"ringobridge/internal/activity"
)

// Callbacks created by windows.NewCallback are never freed, so the hook
// procedure is created once and dispatches to the running monitor.
var (
	hookProcOnce sync.Once
	hookProc     uintptr
	activeHook   atomic.Pointer[Monitor]
)

// Monitor installs a WH_MOUSE_LL hook on a dedicated, locked OS thread
// and reports button transitions.
type Monitor struct {
	logger *slog.Logger

	mu       sync.Mutex
	handler  func(activity.Transition)
	hook     uintptr
	threadID uint32
	done     chan struct{}

	// Unix nanoseconds of the last button message, zero when none.
	lastButton atomic.Int64
}

// NewMonitor creates a mouse hook monitor.
func NewMonitor(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{logger: logger.With("component", "win32-hook")}
}

// Start installs the hook. Only one monitor can be active per process.
func (m *Monitor) Start(handler func(activity.Transition)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return errors.New("win32: hook already running")
	}
	if !activeHook.CompareAndSwap(nil, m) {
		return fmt.Errorf("%w: another mouse hook is active", activity.ErrNotAvailable)
	}
	hookProcOnce.Do(func() { hookProc = windows.NewCallback(lowLevelMouseProc) })

	m.handler = handler
	ready := make(chan error, 1)
	done := make(chan struct{})
	go m.run(ready, done)
	if err := <-ready; err != nil {
		activeHook.Store(nil)
		return err
	}
	m.done = done
	m.logger.Info("mouse hook installed")
	return nil
}

func (m *Monitor) run(ready chan<- error, done chan struct{}) {
	defer close(done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	h, _, err := procSetWindowsHookExW.Call(whMouseLL, hookProc, 0, 0)
	if h == 0 {
		ready <- fmt.Errorf("%w: SetWindowsHookExW: %v", activity.ErrNotAvailable, err)
		return
	}
	m.hook = h
	m.threadID = windows.GetCurrentThreadId()
	ready <- nil

	var message msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&message)), 0, 0, 0)
		if int32(r) <= 0 {
			break
		}
	}
	procUnhookWindowsHookEx.Call(h)
}

// Stop removes the hook and waits for the hook thread to exit.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	done := m.done
	m.done = nil
	tid := m.threadID
	m.mu.Unlock()
	if done == nil {
		return nil
	}

	procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		m.logger.Warn("mouse hook thread did not exit")
	}
	activeHook.CompareAndSwap(m, nil)
	m.lastButton.Store(0)
	return nil
}

// LastButton returns the time of the last button message seen by the
// installed hook, or the zero time.
func (m *Monitor) LastButton() time.Time {
	if m == nil || activeHook.Load() != m {
		return time.Time{}
	}
	if ns := m.lastButton.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}

func lowLevelMouseProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) == hcAction {
		if m := activeHook.Load(); m != nil {
			info := (*msllHookStruct)(unsafe.Pointer(lParam))
			if b, down, ok := buttonFromMessage(uint32(wParam), info.DwExtraInfo); ok {
				ts := tickTime(time.Now(), tickCount(), info.Time)
				m.lastButton.Store(ts.UnixNano())
				m.handler(activity.Transition{
					Timestamp: ts,
					Button:    b,
					Down:      down,
				})
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return r
}
