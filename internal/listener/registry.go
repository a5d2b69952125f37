// Package listener holds in-process subscriptions to domain events.
//
// Registrations live for the lifetime of the process and are rebuilt at
// start-up by whichever module registers them. A Registry is owned by a
// dispatcher instance; there is no package-level registry.
package listener

import (
	"context"
	"reflect"
	"sync"

	"github.com/djlord-it/bizflow/internal/domain"
)

// Listener reacts to an emitted event. Implementations are compared by
// interface equality, so they should be pointer types.
type Listener interface {
	HandleEvent(ctx context.Context, event domain.Event) error
}

// FuncListener adapts a function to Listener with pointer identity.
type FuncListener struct {
	name string
	fn   func(ctx context.Context, event domain.Event) error
}

// Func wraps fn. Keep the returned pointer to unregister it later.
func Func(name string, fn func(ctx context.Context, event domain.Event) error) *FuncListener {
	return &FuncListener{name: name, fn: fn}
}

func (l *FuncListener) HandleEvent(ctx context.Context, event domain.Event) error {
	return l.fn(ctx, event)
}

func (l *FuncListener) String() string {
	return l.name
}

// Registration is a listener together with how it should be invoked.
type Registration struct {
	Listener Listener
	Async    bool
}

// Option configures a registration.
type Option func(*Registration)

// Async runs the listener on its own goroutine instead of inline.
func Async() Option {
	return func(r *Registration) {
		r.Async = true
	}
}

// Registry maps event types to ordered listener lists.
type Registry struct {
	mu        sync.RWMutex
	listeners map[domain.EventType][]Registration
}

func NewRegistry() *Registry {
	return &Registry{listeners: make(map[domain.EventType][]Registration)}
}

// On registers l for eventType. Registering the same listener again for the
// same event type is a no-op and keeps its original position and options.
// It reports whether the listener was added.
func (r *Registry) On(eventType domain.EventType, l Listener, opts ...Option) bool {
	if l == nil {
		return false
	}

	reg := Registration{Listener: l}
	for _, opt := range opts {
		opt(&reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.listeners[eventType] {
		if same(existing.Listener, l) {
			return false
		}
	}
	r.listeners[eventType] = append(r.listeners[eventType], reg)
	return true
}

// Off removes l from eventType. Removing a listener that is not registered
// is a no-op. It reports whether a listener was removed.
func (r *Registry) Off(eventType domain.EventType, l Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.listeners[eventType]
	for i, existing := range regs {
		if !same(existing.Listener, l) {
			continue
		}
		next := make([]Registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(r.listeners, eventType)
		} else {
			r.listeners[eventType] = next
		}
		return true
	}
	return false
}

// Listeners returns a snapshot of the registrations for eventType in
// registration order. Callers may invoke them without holding any lock.
func (r *Registry) Listeners(eventType domain.EventType) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.listeners[eventType]
	if len(regs) == 0 {
		return nil
	}
	out := make([]Registration, len(regs))
	copy(out, regs)
	return out
}

// Count returns the number of listeners registered for eventType.
func (r *Registry) Count(eventType domain.EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[eventType])
}

// same compares listeners by identity. Values whose dynamic type is not
// comparable are never considered equal.
func same(a, b Listener) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
