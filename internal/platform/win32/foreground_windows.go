//go:build windows

package win32

import (
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"ringobridge/internal/foreground"
)

// Workspace reports the foreground window's process. Windows has no
// activation notification without a message window, so Watch polls.
type Workspace struct {
	poller *foreground.Poller
}

// NewWorkspace creates a workspace polling every interval.
func NewWorkspace(interval time.Duration) *Workspace {
	return &Workspace{poller: foreground.NewPoller(Frontmost, interval)}
}

// Available always reports true on Windows.
func (*Workspace) Available() (bool, string) {
	return true, "GetForegroundWindow"
}

// Frontmost looks up the foreground window's process.
func (*Workspace) Frontmost() (*foreground.AppInfo, error) {
	return Frontmost()
}

// Watch polls Frontmost for changes.
func (w *Workspace) Watch(handler func(foreground.AppInfo)) (func(), error) {
	return w.poller.Watch(handler)
}

// Frontmost returns the foreground application. Each failing step is
// reported with its ProbeCode together with whatever was found so far.
func Frontmost() (*foreground.AppInfo, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return nil, &foreground.ProbeError{Code: foreground.ProbeNoForegroundWindow}
	}

	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	app := &foreground.AppInfo{PID: int(pid)}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return app, &foreground.ProbeError{Code: foreground.ProbeOpenProcessFailed, Err: err}
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return app, &foreground.ProbeError{Code: foreground.ProbeQueryPathFailed, Err: err}
	}
	app.ExePath = windows.UTF16ToString(buf[:size])

	title, err := windowText(hwnd)
	if err != nil {
		return app, &foreground.ProbeError{Code: foreground.ProbeWindowTitleFailed, Err: err}
	}
	app.Title = title
	return app, nil
}

func windowText(hwnd uintptr) (string, error) {
	procSetLastError.Call(0)
	n, _, err := procGetWindowTextLengthW.Call(hwnd)
	if n == 0 {
		if err != windows.ERROR_SUCCESS {
			return "", err
		}
		return "", nil
	}
	buf := make([]uint16, n+1)
	got, _, err := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), n+1)
	if got == 0 && err != windows.ERROR_SUCCESS {
		return "", err
	}
	return windows.UTF16ToString(buf[:got]), nil
}
