// Package stream implements single-subscriber event streams whose setup,
// teardown and deliveries all run on one serial queue.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrQueueClosed is returned when work is posted to a stopped queue.
var ErrQueueClosed = errors.New("stream: queue closed")

// DefaultQueueSize is the task buffer used when NewQueue gets size <= 0.
const DefaultQueueSize = 256

// Dispatcher accepts work for serial execution.
type Dispatcher interface {
	Post(fn func()) bool
	PostOr(fn func(), abort <-chan struct{}) bool
}

// Queue runs posted functions one at a time, in order, on a single
// goroutine. It stands in for the host toolkit's UI thread.
//
// Sync and Close must not be called from a function running on the queue.
type Queue struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewQueue starts a queue with the given task buffer.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		tasks:  make(chan func(), size),
		done:   make(chan struct{}),
		logger: logger.With("component", "queue"),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Post schedules fn. It blocks while the buffer is full and returns false
// once the queue is closed.
func (q *Queue) Post(fn func()) bool {
	return q.PostOr(fn, nil)
}

// PostOr is Post that also gives up, dropping fn, once abort is closed.
// Callbacks that a task on the queue may be waiting for must use it, or
// a full buffer deadlocks them against each other.
func (q *Queue) PostOr(fn func(), abort <-chan struct{}) bool {
	select {
	case <-q.done:
		return false
	case <-abort:
		return false
	default:
	}

	select {
	case q.tasks <- fn:
		return true
	case <-q.done:
		return false
	case <-abort:
		return false
	}
}

// Sync runs fn on the queue and waits for it to finish.
func (q *Queue) Sync(fn func()) error {
	finished := make(chan struct{})
	if !q.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrQueueClosed
	}

	select {
	case <-finished:
		return nil
	case <-q.done:
		// The task may have run before the loop stopped.
		select {
		case <-finished:
			return nil
		default:
			return ErrQueueClosed
		}
	}
}

// Close stops the loop after the running task. Pending tasks are dropped.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		select {
		case fn := <-q.tasks:
			q.exec(fn)
		case <-q.done:
			return
		}
	}
}

func (q *Queue) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
