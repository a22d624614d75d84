// ABOUTME: Subscriber registry with stable IDs and per-callback isolation
// ABOUTME: A panicking subscriber is logged and skipped without stopping delivery

package fanout

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry holds callbacks keyed by a stable, never-reused ID.
type Registry[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(T)
	log    zerolog.Logger
}

// New creates an empty registry. Subscriber failures are reported to log.
func New[T any](log zerolog.Logger) *Registry[T] {
	return &Registry[T]{
		subs: make(map[uint64]func(T)),
		log:  log,
	}
}

// Add registers fn and returns an idempotent function that removes it.
func (r *Registry[T]) Add(fn func(T)) (remove func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.Remove(id) })
	}
}

// Remove deletes a subscriber by ID. Unknown IDs are ignored.
func (r *Registry[T]) Remove(id uint64) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// Publish invokes every subscriber registered at call time, in registration order.
// Subscribers may add or remove subscriptions from inside the callback; one
// removed by an earlier callback is skipped.
func (r *Registry[T]) Publish(v T) {
	for _, id := range r.snapshot() {
		r.invoke(id, v)
	}
}

// Len returns the number of subscribers.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Clear removes every subscriber.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	r.subs = make(map[uint64]func(T))
	r.mu.Unlock()
}

func (r *Registry[T]) snapshot() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint64, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry[T]) invoke(id uint64, v T) {
	r.mu.RLock()
	fn, ok := r.subs[id]
	r.mu.RUnlock()
	if !ok {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Err(fmt.Errorf("panic: %v", rec)).
				Uint64("subscriber_id", id).
				Msg("subscriber callback failed")
		}
	}()
	fn(v)
}
