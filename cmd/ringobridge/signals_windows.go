//go:build windows

package main

import (
	"os"

	"golang.org/x/sys/windows"
)

var (
	terminateSignals = []os.Signal{os.Interrupt}
	reloadSignals    []os.Signal
)

func processAlive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	const stillActive = 259
	return code == stillActive
}
