package foreground

import (
	"sync"
	"time"
)

// Lookup returns the frontmost application, like Workspace.Frontmost.
type Lookup func() (*AppInfo, error)

// Poller turns a Lookup into activation notifications by sampling it on an
// interval and reporting changes of application or process.
type Poller struct {
	lookup   Lookup
	interval time.Duration
}

// NewPoller creates a poller. A non-positive interval means 250ms.
func NewPoller(lookup Lookup, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Poller{lookup: lookup, interval: interval}
}

// Watch starts polling and calls handler on each change. The first sample
// only establishes the baseline.
func (p *Poller) Watch(handler func(AppInfo)) (func(), error) {
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.loop(handler, done)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
	return stop, nil
}

func (p *Poller) loop(handler func(AppInfo), done <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last *AppInfo
	if app, _ := p.lookup(); app != nil {
		last = app
	}

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		app, _ := p.lookup()
		if app == nil {
			last = nil
			continue
		}
		if last != nil && sameApp(*last, *app) {
			continue
		}
		last = app
		handler(*app)
	}
}

func sameApp(a, b AppInfo) bool {
	return a.AppID() == b.AppID() && a.PID == b.PID
}
