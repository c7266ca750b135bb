// Package null provides backends for systems without native support.
// Everything reports unavailable; the streams still deliver their initial
// events because those do not depend on a backend.
package null

import (
	"runtime"

	"ringobridge/internal/activity"
	"ringobridge/internal/clock"
	"ringobridge/internal/foreground"
)

// Monitor never installs.
type Monitor struct{}

func (Monitor) Start(func(activity.Transition)) error { return activity.ErrNotAvailable }
func (Monitor) Stop() error                           { return nil }

// IdleSource never answers.
type IdleSource struct{}

func (IdleSource) Sample() (clock.IdleSample, error) {
	return clock.IdleSample{}, activity.ErrNotAvailable
}

// Workspace has no frontmost application.
type Workspace struct{}

func (Workspace) Frontmost() (*foreground.AppInfo, error) { return nil, nil }

func (Workspace) Watch(func(foreground.AppInfo)) (func(), error) {
	return nil, foreground.ErrNotAvailable
}

func (Workspace) Available() (bool, string) {
	return false, "no foreground backend for " + runtime.GOOS
}
