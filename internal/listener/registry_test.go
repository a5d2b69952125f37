package listener

import (
	"context"
	"sync"
	"testing"

	"github.com/djlord-it/bizflow/internal/domain"
)

func noop(ctx context.Context, event domain.Event) error { return nil }

func TestRegistry_OnIsIdempotent(t *testing.T) {
	r := NewRegistry()
	l := Func("project-created", noop)

	if !r.On(domain.EventProjectCreated, l) {
		t.Fatal("first registration should be added")
	}
	if r.On(domain.EventProjectCreated, l) {
		t.Fatal("second registration of the same listener should be a no-op")
	}

	if got := r.Count(domain.EventProjectCreated); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}

func TestRegistry_SameListenerDifferentEventTypes(t *testing.T) {
	r := NewRegistry()
	l := Func("shared", noop)

	r.On(domain.EventInvoicePaid, l)
	r.On(domain.EventInvoiceCreated, l)

	if r.Count(domain.EventInvoicePaid) != 1 || r.Count(domain.EventInvoiceCreated) != 1 {
		t.Error("listener should be registered once per event type")
	}
}

func TestRegistry_DistinctFuncsWithSameNameAreDistinct(t *testing.T) {
	r := NewRegistry()
	r.On(domain.EventInvoicePaid, Func("dup", noop))
	r.On(domain.EventInvoicePaid, Func("dup", noop))

	if got := r.Count(domain.EventInvoicePaid); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
}

func TestRegistry_Off(t *testing.T) {
	r := NewRegistry()
	a := Func("a", noop)
	b := Func("b", noop)
	c := Func("c", noop)

	r.On(domain.EventInvoicePaid, a)
	r.On(domain.EventInvoicePaid, b)
	r.On(domain.EventInvoicePaid, c)

	if !r.Off(domain.EventInvoicePaid, b) {
		t.Fatal("Off should report removal")
	}

	regs := r.Listeners(domain.EventInvoicePaid)
	if len(regs) != 2 {
		t.Fatalf("got %d listeners, want 2", len(regs))
	}
	if regs[0].Listener != a || regs[1].Listener != c {
		t.Error("remaining listeners should keep registration order")
	}
}

func TestRegistry_OffUnregisteredIsNoop(t *testing.T) {
	r := NewRegistry()
	if r.Off(domain.EventInvoicePaid, Func("ghost", noop)) {
		t.Error("removing an unregistered listener should report false")
	}

	r.On(domain.EventInvoicePaid, Func("a", noop))
	if r.Off(domain.EventInvoicePaid, Func("b", noop)) {
		t.Error("removing a different listener should report false")
	}
	if r.Count(domain.EventInvoicePaid) != 1 {
		t.Error("registered listener should survive")
	}
}

func TestRegistry_ListenersIsSnapshot(t *testing.T) {
	r := NewRegistry()
	a := Func("a", noop)
	r.On(domain.EventInvoicePaid, a)

	snap := r.Listeners(domain.EventInvoicePaid)
	r.On(domain.EventInvoicePaid, Func("b", noop))
	r.Off(domain.EventInvoicePaid, a)

	if len(snap) != 1 || snap[0].Listener != a {
		t.Error("snapshot should not observe later changes")
	}
}

func TestRegistry_AsyncOption(t *testing.T) {
	r := NewRegistry()
	r.On(domain.EventInvoicePaid, Func("bg", noop), Async())

	regs := r.Listeners(domain.EventInvoicePaid)
	if len(regs) != 1 || !regs[0].Async {
		t.Error("registration should be marked async")
	}
}

func TestRegistry_NilListenerIgnored(t *testing.T) {
	r := NewRegistry()
	if r.On(domain.EventInvoicePaid, nil) {
		t.Error("nil listener should not be registered")
	}
}

type valueListener struct{ fn func() }

func (v valueListener) HandleEvent(ctx context.Context, event domain.Event) error { return nil }

func TestRegistry_NonComparableListenerDoesNotPanic(t *testing.T) {
	r := NewRegistry()
	r.On(domain.EventInvoicePaid, valueListener{})
	r.On(domain.EventInvoicePaid, valueListener{})
	r.Off(domain.EventInvoicePaid, valueListener{})

	if got := r.Count(domain.EventInvoicePaid); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := Func("l", noop)
			r.On(domain.EventInvoicePaid, l)
			_ = r.Listeners(domain.EventInvoicePaid)
			r.Off(domain.EventInvoicePaid, l)
		}()
	}
	wg.Wait()

	if got := r.Count(domain.EventInvoicePaid); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
}
