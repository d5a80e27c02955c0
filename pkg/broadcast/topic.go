// Package broadcast provides typed fan-out topics. Each subscriber gets its own
// buffered channel; publishing never blocks on a slow subscriber.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber buffer used when Options.Buffer is zero.
const DefaultBuffer = 16

// Options configures a Topic.
type Options struct {
	// Retain replays the last published value to new subscribers. Use it for
	// state-like topics where a late subscriber needs the current value.
	Retain bool
	// Buffer is the per-subscriber channel capacity.
	Buffer int
	// OnDrop is called whenever a pending value is discarded for a full subscriber.
	OnDrop func()
}

// Topic fans out values of type T to all current subscribers.
type Topic[T any] struct {
	mu          sync.RWMutex
	opts        Options
	subscribers map[string]*Subscription[T]
	last        T
	hasLast     bool
	closed      bool
	dropped     atomic.Uint64
}

// Subscription is one subscriber's view of a Topic.
type Subscription[T any] struct {
	id    string
	ch    chan T
	topic *Topic[T]
	once  sync.Once
}

// NewTopic creates an empty topic.
func NewTopic[T any](opts Options) *Topic[T] {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return &Topic[T]{
		opts:        opts,
		subscribers: make(map[string]*Subscription[T]),
	}
}

// Publish delivers v to every subscriber without blocking. When a
// subscriber's buffer is full its oldest pending value is discarded so the
// most recent value always gets through.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	if t.opts.Retain {
		t.last = v
		t.hasLast = true
	}

	for _, sub := range t.subscribers {
		t.deliver(sub, v)
	}
}

// deliver must be called with t.mu held.
func (t *Topic[T]) deliver(sub *Subscription[T], v T) {
	select {
	case sub.ch <- v:
		return
	default:
	}

	// Only publishers send, and they hold the lock, so after taking one value
	// out there is room for v.
	select {
	case <-sub.ch:
		t.dropped.Add(1)
		if t.opts.OnDrop != nil {
			t.opts.OnDrop()
		}
	default:
	}
	select {
	case sub.ch <- v:
	default:
	}
}

// Subscribe registers a new subscriber. Retained topics immediately queue the
// last published value.
func (t *Topic[T]) Subscribe() *Subscription[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := &Subscription[T]{
		id:    uuid.NewString(),
		ch:    make(chan T, t.opts.Buffer),
		topic: t,
	}
	if t.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	if t.opts.Retain && t.hasLast {
		sub.ch <- t.last
	}
	t.subscribers[sub.id] = sub
	return sub
}

// Last returns the last published value of a retained topic.
func (t *Topic[T]) Last() (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, t.hasLast
}

// Len returns the number of active subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers)
}

// Dropped returns how many pending values were discarded for full subscribers.
func (t *Topic[T]) Dropped() uint64 {
	return t.dropped.Load()
}

// Close unsubscribes everyone. Later publishes are ignored and later
// subscriptions start closed.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for id, sub := range t.subscribers {
		delete(t.subscribers, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (t *Topic[T]) remove(sub *Subscription[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.subscribers, sub.id)
	sub.once.Do(func() { close(sub.ch) })
}

// C returns the channel values are delivered on. It is closed by Unsubscribe.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// ID identifies the subscription.
func (s *Subscription[T]) ID() string {
	return s.id
}

// Unsubscribe stops delivery and closes C. It is safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.topic.remove(s)
}
