// Package evdev reports pointer-button transitions read directly from the
// Linux input subsystem. Reading /dev/input/event* needs membership of the
// input group; without it Start fails and the detector falls back to idle
// polling.
package evdev

import (
	"bufio"
	"io"
	"strings"
)

// Device is one entry of /proc/bus/input/devices.
type Device struct {
	Name     string
	Handlers []string
	Event    string // e.g. "event5"
}

// Path returns the character device for d.
func (d Device) Path() string {
	return "/dev/input/" + d.Event
}

// IsPointer reports whether d looks like a mouse, touchpad or pen.
func (d Device) IsPointer() bool {
	if d.Event == "" {
		return false
	}
	for _, h := range d.Handlers {
		if strings.HasPrefix(h, "mouse") {
			return true
		}
	}
	name := strings.ToLower(d.Name)
	for _, hint := range []string{"mouse", "touchpad", "trackpad", "pen", "stylus", "wacom"} {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

// ParseDevices reads the /proc/bus/input/devices format.
func ParseDevices(r io.Reader) ([]Device, error) {
	var (
		devices []Device
		cur     Device
	)
	flush := func() {
		if cur.Name != "" || len(cur.Handlers) > 0 {
			devices = append(devices, cur)
		}
		cur = Device{}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "N: Name="):
			cur.Name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "H: Handlers="):
			cur.Handlers = strings.Fields(strings.TrimPrefix(line, "H: Handlers="))
			for _, h := range cur.Handlers {
				if strings.HasPrefix(h, "event") {
					cur.Event = h
				}
			}
		}
	}
	flush()
	return devices, scanner.Err()
}

// Pointers filters devices down to pointing devices.
func Pointers(devices []Device) []Device {
	var out []Device
	for _, d := range devices {
		if d.IsPointer() {
			out = append(out, d)
		}
	}
	return out
}
