package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickSource emits one event on subscribe and more when poked.
type tickSource struct {
	q       *Queue
	emit    func(int)
	started int
	stopped int
}

func (s *tickSource) OnSubscribe(emit func(int)) {
	s.started++
	s.emit = emit
	emit(0)
}

func (s *tickSource) OnCancel() {
	s.stopped++
	s.emit = nil
}

// poke posts an emission the way platform callbacks do.
func (s *tickSource) poke(v int) {
	s.q.Post(func() {
		if s.emit != nil {
			s.emit(v)
		}
	})
}

func newTestStream(t *testing.T) (*Stream[int], *tickSource, *Queue) {
	t.Helper()
	q := NewQueue(0, nil)
	t.Cleanup(q.Close)
	src := &tickSource{q: q}
	return New[int]("ticks", q, src, nil), src, q
}

func TestSubscribeDeliversInitialEventSynchronously(t *testing.T) {
	s, src, _ := newTestStream(t)

	var got []int
	id, err := s.Subscribe(func(v int) { got = append(got, v) })
	require.NoError(t, err)
	require.NotEmpty(t, id)

	assert.Equal(t, []int{0}, got)
	assert.Equal(t, 1, src.started)
	assert.True(t, s.Active())
}

func TestSecondSubscriberRejected(t *testing.T) {
	s, _, _ := newTestStream(t)

	_, err := s.Subscribe(func(int) {})
	require.NoError(t, err)

	_, err = s.Subscribe(func(int) {})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestNoDeliveryAfterUnsubscribe(t *testing.T) {
	s, src, q := newTestStream(t)

	var mu sync.Mutex
	var got []int
	id, err := s.Subscribe(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	require.NoError(t, err)

	src.poke(1)
	require.NoError(t, q.Sync(func() {}))

	emit := src.emit
	require.NoError(t, s.Unsubscribe(id))
	assert.Equal(t, 1, src.stopped)

	// A callback that captured emit before cancel must be dropped.
	require.NoError(t, q.Sync(func() { emit(99) }))
	src.poke(2)
	require.NoError(t, q.Sync(func() {}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1}, got)
	assert.Equal(t, uint64(2), s.Delivered())
}

func TestResubscribeAfterCancel(t *testing.T) {
	s, src, _ := newTestStream(t)

	id, err := s.Subscribe(func(int) {})
	require.NoError(t, err)
	require.NoError(t, s.Unsubscribe(id))

	_, err = s.Subscribe(func(int) {})
	require.NoError(t, err)
	assert.Equal(t, 2, src.started)
}

func TestUnsubscribeUnknownID(t *testing.T) {
	s, _, _ := newTestStream(t)

	assert.ErrorIs(t, s.Unsubscribe("nope"), ErrNotSubscribed)

	_, err := s.Subscribe(func(int) {})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Unsubscribe("nope"), ErrNotSubscribed)
}

func TestSubscribeAny(t *testing.T) {
	s, _, _ := newTestStream(t)

	var sub Subscribable = s
	var got []any
	_, err := sub.SubscribeAny(func(v any) { got = append(got, v) })
	require.NoError(t, err)
	assert.Equal(t, []any{0}, got)
	assert.Equal(t, "ticks", sub.Name())
}

func TestQueueClosed(t *testing.T) {
	q := NewQueue(1, nil)
	q.Close()

	assert.False(t, q.Post(func() {}))
	assert.ErrorIs(t, q.Sync(func() {}), ErrQueueClosed)

	s := New[int]("x", q, &tickSource{q: q}, nil)
	_, err := s.Subscribe(func(int) {})
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.False(t, s.Active())
}

func TestQueuePostOrGivesUpOnAbort(t *testing.T) {
	q := NewQueue(1, nil)
	defer q.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, q.Post(func() {
		close(started)
		<-release
	}))
	<-started
	require.True(t, q.Post(func() {}))

	// The buffer is full; the post waits until abort closes.
	abort := make(chan struct{})
	result := make(chan bool, 1)
	go func() { result <- q.PostOr(func() { t.Error("aborted task ran") }, abort) }()
	close(abort)
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("PostOr ignored abort")
	}

	close(release)
	require.NoError(t, q.Sync(func() {}))
}

func TestQueueRecoversFromPanic(t *testing.T) {
	q := NewQueue(0, nil)
	defer q.Close()

	require.NoError(t, q.Sync(func() { panic("boom") }))

	ran := false
	require.NoError(t, q.Sync(func() { ran = true }))
	assert.True(t, ran)
}

func TestQueueOrder(t *testing.T) {
	q := NewQueue(0, nil)
	defer q.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Post(func() { got = append(got, i) })
	}
	require.NoError(t, q.Sync(func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}
