// Package foreground tracks which application is frontmost and streams
// each activation to the subscriber.
//
// Platform backends implement Workspace. Backends without an activation
// notification can wrap their lookup in a Poller.
package foreground

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// UnknownApp is reported when the frontmost application has no identifier.
const UnknownApp = "unknown"

// ErrNotAvailable is returned by workspaces that cannot run on this system.
var ErrNotAvailable = errors.New("foreground: workspace not available")

// Event is one foreground activation delivered to the application.
type Event struct {
	AppID           string `json:"appId"`
	TimestampMillis int64  `json:"timestamp"`
}

// AppInfo describes the frontmost application as reported by a backend.
type AppInfo struct {
	// Identifier is the stable application id: a bundle id, an X11
	// WM_CLASS class, or an executable name.
	Identifier string

	// Name is the human-readable application name, if known.
	Name string

	// PID is the owning process id, 0 if unknown.
	PID int

	// ExePath is the resolved executable path, if known.
	ExePath string

	// Title is the focused window title, if known.
	Title string
}

// AppID returns Identifier, falling back to the executable base name and
// then to UnknownApp.
func (a AppInfo) AppID() string {
	if id := strings.TrimSpace(a.Identifier); id != "" {
		return id
	}
	if a.ExePath != "" {
		return filepath.Base(a.ExePath)
	}
	return UnknownApp
}

// Workspace is the platform view of running applications.
type Workspace interface {
	// Frontmost returns the current frontmost application, or nil if there
	// is none. A backend may return partial info together with a
	// *ProbeError describing the step that failed.
	Frontmost() (*AppInfo, error)

	// Watch registers handler for activation notifications. handler may be
	// called from any goroutine until stop returns.
	Watch(handler func(AppInfo)) (stop func(), err error)

	// Available reports whether the workspace works on this system, with a
	// short description.
	Available() (bool, string)
}

// ProbeCode classifies a failed foreground lookup.
type ProbeCode int

const (
	ProbeOK ProbeCode = iota
	ProbeNoForegroundWindow
	ProbeOpenProcessFailed
	ProbeQueryPathFailed
	ProbeWindowTitleFailed
)

// String returns a short description of the code.
func (c ProbeCode) String() string {
	switch c {
	case ProbeOK:
		return "ok"
	case ProbeNoForegroundWindow:
		return "no foreground window"
	case ProbeOpenProcessFailed:
		return "open process failed"
	case ProbeQueryPathFailed:
		return "query executable path failed"
	case ProbeWindowTitleFailed:
		return "get window title failed"
	default:
		return fmt.Sprintf("probe code %d", int(c))
	}
}

// ProbeError reports which lookup step failed.
type ProbeError struct {
	Code ProbeCode
	Err  error
}

func (e *ProbeError) Error() string {
	if e.Err == nil {
		return "foreground: " + e.Code.String()
	}
	return fmt.Sprintf("foreground: %s: %v", e.Code, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Probe is the one-shot diagnostic lookup result.
type Probe struct {
	TimestampMillis int64     `json:"timestamp"`
	AppID           string    `json:"appId"`
	PID             int       `json:"pid"`
	ExePath         string    `json:"exePath"`
	WindowTitle     string    `json:"windowTitle"`
	IsError         bool      `json:"isError"`
	ErrorCode       ProbeCode `json:"errorCode"`
}

// NewProbe builds a Probe from a Workspace.Frontmost answer.
func NewProbe(at time.Time, app *AppInfo, err error) Probe {
	p := Probe{TimestampMillis: at.UnixMilli()}
	if app != nil {
		p.AppID = app.AppID()
		p.PID = app.PID
		p.ExePath = app.ExePath
		p.WindowTitle = app.Title
	}

	var pe *ProbeError
	switch {
	case errors.As(err, &pe):
		p.ErrorCode = pe.Code
	case err != nil, app == nil:
		p.ErrorCode = ProbeNoForegroundWindow
	}
	p.IsError = p.ErrorCode != ProbeOK
	return p
}
