//go:build !windows

package main

import (
	"os"
	"syscall"
)

var (
	terminateSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	reloadSignals    = []os.Signal{syscall.SIGHUP}
)

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 checks existence.
	return process.Signal(syscall.Signal(0)) == nil
}
