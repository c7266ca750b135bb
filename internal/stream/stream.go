package stream

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrAlreadySubscribed is returned when a stream already has a sink.
	ErrAlreadySubscribed = errors.New("stream: already subscribed")

	// ErrNotSubscribed is returned when cancelling an unknown subscription.
	ErrNotSubscribed = errors.New("stream: not subscribed")
)

// Source produces the events of one stream.
//
// OnSubscribe and OnCancel are called on the stream's queue. emit must only
// be called on the queue as well; sources hop there with the Dispatcher
// they were built with.
type Source[T any] interface {
	OnSubscribe(emit func(T))
	OnCancel()
}

// Subscribable is the type-erased view used by the transport layer.
type Subscribable interface {
	Name() string
	SubscribeAny(sink func(any)) (string, error)
	Unsubscribe(id string) error
}

// Stream connects a Source to at most one sink.
type Stream[T any] struct {
	name   string
	queue  *Queue
	source Source[T]
	logger *slog.Logger

	// mu serialises Subscribe and Unsubscribe callers.
	mu sync.Mutex
	id string

	// sink is owned by the queue goroutine.
	sink func(T)

	delivered atomic.Uint64
}

// New creates a stream named name that runs source on q.
func New[T any](name string, q *Queue, source Source[T], logger *slog.Logger) *Stream[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream[T]{
		name:   name,
		queue:  q,
		source: source,
		logger: logger.With("component", "stream", "stream", name),
	}
}

// Name returns the channel name of the stream.
func (s *Stream[T]) Name() string {
	return s.name
}

// Subscribe installs sink and starts the source. Any events the source
// emits while starting are delivered before Subscribe returns.
func (s *Stream[T]) Subscribe(sink func(T)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" {
		return "", ErrAlreadySubscribed
	}

	id := uuid.NewString()
	err := s.queue.Sync(func() {
		s.sink = sink
		s.source.OnSubscribe(s.emit)
	})
	if err != nil {
		return "", err
	}

	s.id = id
	s.logger.Debug("subscribed", "subscription", id)
	return id, nil
}

// SubscribeAny is Subscribe for callers that do not know T.
func (s *Stream[T]) SubscribeAny(sink func(any)) (string, error) {
	return s.Subscribe(func(v T) { sink(v) })
}

// Unsubscribe stops the source and clears the sink. Nothing is delivered
// to the old sink after it returns.
func (s *Stream[T]) Unsubscribe(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" || s.id != id {
		return ErrNotSubscribed
	}

	err := s.queue.Sync(func() {
		s.source.OnCancel()
		s.sink = nil
	})
	s.id = ""
	s.logger.Debug("unsubscribed", "subscription", id)
	return err
}

// Close cancels the current subscription, if any.
func (s *Stream[T]) Close() error {
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()

	if id == "" {
		return nil
	}
	return s.Unsubscribe(id)
}

// Active reports whether a sink is installed.
func (s *Stream[T]) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id != ""
}

// Delivered returns the number of events handed to sinks so far.
func (s *Stream[T]) Delivered() uint64 {
	return s.delivered.Load()
}

func (s *Stream[T]) emit(v T) {
	if s.sink == nil {
		return
	}
	s.delivered.Add(1)
	s.sink(v)
}
