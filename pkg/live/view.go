// Package live folds snapshots and live hub events into one current value
// per dashboard view.
//
// Every view starts from a seed value and always has a value. A snapshot
// load replaces the value wholly; live events are folded into it one at a
// time, in arrival order. Published values are never modified afterwards, so
// folds must build new values instead of editing the current one.
package live

import (
	"context"
	"sync"

	"github.com/grovetools/pharmastock/logging"
	"github.com/grovetools/pharmastock/pkg/broadcast"
	"github.com/sirupsen/logrus"
)

// outputBuffer is small because every published value is a complete state.
const outputBuffer = 4

// ViewOptions configures a View.
type ViewOptions[T any] struct {
	// Loader fetches a snapshot. A view without a loader only follows events.
	Loader func(ctx context.Context) (T, error)
	Logger *logrus.Entry
}

// View holds the current value of one dashboard view.
type View[T any] struct {
	name   string
	loader func(ctx context.Context) (T, error)
	logger *logrus.Entry

	// mu serializes loads and folds.
	mu      sync.Mutex
	current T
	out     *broadcast.Topic[T]

	followMu sync.Mutex
	follows  []func()
	wg       sync.WaitGroup
	closed   bool
}

// NewView creates a view holding seed. Subscribers receive seed right away.
func NewView[T any](name string, seed T, opts ViewOptions[T]) *View[T] {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("live")
	}

	v := &View[T]{
		name:    name,
		loader:  opts.Loader,
		logger:  logger.WithField("view", name),
		current: seed,
		out:     broadcast.NewTopic[T](broadcast.Options{Retain: true, Buffer: outputBuffer}),
	}
	v.out.Publish(seed)
	return v
}

// Name returns the view name.
func (v *View[T]) Name() string {
	return v.name
}

// Current returns the current value.
func (v *View[T]) Current() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Subscribe delivers the current value and every later one.
func (v *View[T]) Subscribe() *broadcast.Subscription[T] {
	return v.out.Subscribe()
}

// Load fetches a snapshot and replaces the current value with it. On failure
// the current value stays and the error is returned.
func (v *View[T]) Load(ctx context.Context) error {
	if v.loader == nil {
		return nil
	}
	snapshot, err := v.loader(ctx)
	if err != nil {
		v.logger.WithError(err).Warn("Snapshot load failed")
		return err
	}
	v.Set(snapshot)
	v.logger.Debug("Snapshot loaded")
	return nil
}

// Refresh re-issues the snapshot load.
func (v *View[T]) Refresh(ctx context.Context) error {
	return v.Load(ctx)
}

// Set replaces the current value.
func (v *View[T]) Set(value T) {
	v.Update(func(T) T { return value })
}

// Update folds fn into the current value and publishes the result.
func (v *View[T]) Update(fn func(current T) T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.current = fn(v.current)
	v.out.Publish(v.current)
}

// Follow folds every event from sub into view until the view is closed or
// sub is unsubscribed. The view takes ownership of sub.
func Follow[T, E any](view *View[T], sub *broadcast.Subscription[E], fold func(current T, event E) T) {
	view.followMu.Lock()
	if view.closed {
		view.followMu.Unlock()
		sub.Unsubscribe()
		return
	}
	view.follows = append(view.follows, sub.Unsubscribe)
	view.wg.Add(1)
	view.followMu.Unlock()

	go func() {
		defer view.wg.Done()
		for event := range sub.C() {
			view.Update(func(current T) T { return fold(current, event) })
		}
	}()
}

// Close releases every followed subscription and closes the output
// subscriptions. The event source itself is left untouched.
func (v *View[T]) Close() {
	v.followMu.Lock()
	if v.closed {
		v.followMu.Unlock()
		return
	}
	v.closed = true
	follows := v.follows
	v.follows = nil
	v.followMu.Unlock()

	for _, unsubscribe := range follows {
		unsubscribe()
	}
	v.wg.Wait()
	v.out.Close()
}

// Replace is the fold for views whose events carry the whole new value.
func Replace[T any](_ T, event T) T {
	return event
}

// Prepend returns a fold that puts each event at the front of a list, newest
// first. An item whose key is already listed moves to the front instead of
// appearing twice. A positive capacity drops the oldest items beyond it.
func Prepend[T any, K comparable](capacity int, key func(T) K) func([]T, T) []T {
	return func(current []T, item T) []T {
		size := len(current) + 1
		if capacity > 0 && size > capacity {
			size = capacity
		}

		next := make([]T, 0, size)
		next = append(next, item)
		k := key(item)
		for _, existing := range current {
			if len(next) == cap(next) {
				break
			}
			if key(existing) == k {
				continue
			}
			next = append(next, existing)
		}
		return next
	}
}
