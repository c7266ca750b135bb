//go:build windows

package win32

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")
	dwmapi   = windows.NewLazySystemDLL("dwmapi.dll")

	procGetLastInputInfo              = user32.NewProc("GetLastInputInfo")
	procGetAsyncKeyState              = user32.NewProc("GetAsyncKeyState")
	procSetWindowsHookExW             = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx           = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx                = user32.NewProc("CallNextHookEx")
	procGetMessageW                   = user32.NewProc("GetMessageW")
	procPostThreadMessageW            = user32.NewProc("PostThreadMessageW")
	procGetForegroundWindow           = user32.NewProc("GetForegroundWindow")
	procGetWindowThreadProcessId      = user32.NewProc("GetWindowThreadProcessId")
	procGetWindowTextW                = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW          = user32.NewProc("GetWindowTextLengthW")
	procFindWindowW                   = user32.NewProc("FindWindowW")
	procIsWindow                      = user32.NewProc("IsWindow")
	procGetWindowRect                 = user32.NewProc("GetWindowRect")
	procSetWindowPos                  = user32.NewProc("SetWindowPos")
	procGetWindowLongPtrW             = user32.NewProc("GetWindowLongPtrW")
	procSetWindowLongPtrW             = user32.NewProc("SetWindowLongPtrW")
	procGetWindowLongW                = user32.NewProc("GetWindowLongW")
	procSetWindowLongW                = user32.NewProc("SetWindowLongW")
	procMonitorFromWindow             = user32.NewProc("MonitorFromWindow")
	procMonitorFromPoint              = user32.NewProc("MonitorFromPoint")
	procGetMonitorInfoW               = user32.NewProc("GetMonitorInfoW")
	procGetDpiForWindow               = user32.NewProc("GetDpiForWindow")
	procSetWindowCompositionAttribute = user32.NewProc("SetWindowCompositionAttribute")
	procGetTickCount                  = kernel32.NewProc("GetTickCount")
	procSetLastError                  = kernel32.NewProc("SetLastError")
	procDwmSetWindowAttribute         = dwmapi.NewProc("DwmSetWindowAttribute")
)

const (
	gwlStyle   = -16
	gwlExStyle = -20

	whMouseLL = 14
	hcAction  = 0
	wmQuit    = 0x0012

	monitorDefaultToNull    = 0
	monitorDefaultToPrimary = 1

	swpNoSize       = 0x0001
	swpNoMove       = 0x0002
	swpNoZOrder     = 0x0004
	swpNoActivate   = 0x0010
	swpFrameChanged = 0x0020

	hwndTopmost   = ^uintptr(0)     // (HWND)-1
	hwndNoTopmost = ^uintptr(0) - 1 // (HWND)-2

	wcaAccentPolicy = 19

	dwmwaWindowCornerPreference = 33

	vkLButton       = 0x01
	vkRButton       = 0x02
	vkMButton       = 0x04
	keyStateDownBit = 0x8000

	defaultDPI = 96
)

type rect struct {
	Left, Top, Right, Bottom int32
}

type point struct {
	X, Y int32
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
}

type monitorInfo struct {
	CbSize    uint32
	RcMonitor rect
	RcWork    rect
	DwFlags   uint32
}

type msllHookStruct struct {
	Pt          point
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type lastInputInfo struct {
	CbSize uint32
	DwTime uint32
}

type accentPolicy struct {
	AccentState   uint32
	AccentFlags   uint32
	GradientColor uint32
	AnimationID   uint32
}

type windowCompositionAttribData struct {
	Attrib uint32
	PvData unsafe.Pointer
	CbData uintptr
}

func tickCount() uint32 {
	r, _, _ := procGetTickCount.Call()
	return uint32(r)
}

// getWindowLong reads GWL_* values, using the 32-bit entry point where the
// Ptr variant is not exported.
func getWindowLong(hwnd uintptr, index int32) (uint32, error) {
	proc := procGetWindowLongPtrW
	if proc.Find() != nil {
		proc = procGetWindowLongW
	}
	procSetLastError.Call(0)
	r, _, err := proc.Call(hwnd, uintptr(index))
	if r == 0 && err != windows.ERROR_SUCCESS {
		return 0, err
	}
	return uint32(r), nil
}

func setWindowLong(hwnd uintptr, index int32, value uint32) error {
	proc := procSetWindowLongPtrW
	if proc.Find() != nil {
		proc = procSetWindowLongW
	}
	procSetLastError.Call(0)
	r, _, err := proc.Call(hwnd, uintptr(index), uintptr(value))
	if r == 0 && err != windows.ERROR_SUCCESS {
		return err
	}
	return nil
}
