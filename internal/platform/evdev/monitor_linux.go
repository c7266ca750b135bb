//go:build linux

package evdev

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"ringobridge/internal/activity"
)

const devicesFile = "/proc/bus/input/devices"

// eventSize is sizeof(struct input_event) on this architecture.
var eventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

// Monitor reads button events from every pointer device it can open.
type Monitor struct {
	logger *slog.Logger

	mu      sync.Mutex
	fds     []int
	wakeR   int
	wakeW   int
	done    chan struct{}
	running bool
}

// NewMonitor creates an evdev monitor.
func NewMonitor(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{logger: logger.With("component", "evdev")}
}

// Available reports whether at least one pointer device can be read.
func (m *Monitor) Available() (bool, string) {
	devices, err := pointerDevices()
	if err != nil {
		return false, fmt.Sprintf("cannot list input devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no pointer devices found"
	}
	for _, d := range devices {
		f, err := os.OpenFile(d.Path(), os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found pointer device: %s (%s)", d.Name, d.Path())
		}
	}
	return false, "cannot read pointer devices (need to be in 'input' group or run as root)"
}

func pointerDevices() ([]Device, error) {
	f, err := os.Open(devicesFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	devices, err := ParseDevices(f)
	if err != nil {
		return nil, err
	}
	return Pointers(devices), nil
}

// Start opens the pointer devices and begins reading.
func (m *Monitor) Start(handler func(activity.Transition)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("evdev: monitor already running")
	}

	devices, err := pointerDevices()
	if err != nil {
		return fmt.Errorf("%w: %v", activity.ErrNotAvailable, err)
	}

	var fds []int
	for _, d := range devices {
		fd, err := unix.Open(d.Path(), unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			m.logger.Debug("skip input device", "device", d.Path(), "name", d.Name, "error", err)
			continue
		}
		fds = append(fds, fd)
	}
	if len(fds) == 0 {
		return fmt.Errorf("%w: no readable pointer device", activity.ErrNotAvailable)
	}

	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		closeAll(fds)
		return fmt.Errorf("evdev: wake pipe: %w", err)
	}

	m.fds = fds
	m.wakeR, m.wakeW = pipe[0], pipe[1]
	m.done = make(chan struct{})
	m.running = true
	go m.readLoop(handler, fds, m.wakeR, m.done)

	m.logger.Info("button monitor started", "devices", len(fds))
	return nil
}

// Stop wakes the reader and waits for it to exit.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	unix.Write(m.wakeW, []byte{1})
	done := m.done
	m.mu.Unlock()

	<-done

	m.mu.Lock()
	closeAll(m.fds)
	unix.Close(m.wakeR)
	unix.Close(m.wakeW)
	m.fds = nil
	m.mu.Unlock()
	return nil
}

func (m *Monitor) readLoop(handler func(activity.Transition), fds []int, wake int, done chan struct{}) {
	defer close(done)

	pfds := make([]unix.PollFd, 0, len(fds)+1)
	pfds = append(pfds, unix.PollFd{Fd: int32(wake), Events: unix.POLLIN})
	for _, fd := range fds {
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}

	buf := make([]byte, eventSize*64)
	for {
		_, err := unix.Poll(pfds, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			m.logger.Warn("poll input devices", "error", err)
			return
		}
		if pfds[0].Revents != 0 {
			return
		}

		for i := 1; i < len(pfds); i++ {
			p := &pfds[i]
			if p.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				// Device unplugged; stop polling it.
				p.Fd = -1
				continue
			}
			if p.Revents&unix.POLLIN == 0 {
				continue
			}
			n, err := unix.Read(int(p.Fd), buf)
			if err != nil || n < eventSize {
				continue
			}
			for off := 0; off+eventSize <= n; off += eventSize {
				if tr, ok := decodeEvent(buf[off:off+eventSize], eventSize).transition(); ok {
					handler(tr)
				}
			}
		}
	}
}

func closeAll(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
