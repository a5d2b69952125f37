package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/djlord-it/bizflow/internal/domain"
)

var seq atomic.Int64

func newTestRequest() domain.EmitRequest {
	return domain.EmitRequest{
		Type:    domain.EventInvoiceCreated,
		Payload: map[string]any{"entityId": seq.Add(1), "amount": 1500},
	}
}

func TestEventBus_EmitAndReceive(t *testing.T) {
	bus := NewEventBus(10)
	req := newTestRequest()

	ctx := context.Background()
	if err := bus.Emit(ctx, req); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if bus.Len() != 1 {
		t.Errorf("Len = %d, want 1", bus.Len())
	}

	select {
	case got := <-bus.Channel():
		if got.Type != req.Type {
			t.Errorf("Type = %v, want %v", got.Type, req.Type)
		}
		if got.Payload["entityId"] != req.Payload["entityId"] {
			t.Errorf("entityId = %v, want %v", got.Payload["entityId"], req.Payload["entityId"])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event on channel")
	}
}

func TestEventBus_BufferFull(t *testing.T) {
	bus := NewEventBus(1, WithEmitTimeout(50*time.Millisecond))

	ctx := context.Background()

	// Fill the buffer
	if err := bus.Emit(ctx, newTestRequest()); err != nil {
		t.Fatalf("first Emit failed: %v", err)
	}

	// Second emit should timeout and return ErrBufferFull
	err := bus.Emit(ctx, newTestRequest())
	if !errors.Is(err, ErrBufferFull) {
		t.Errorf("expected ErrBufferFull, got: %v", err)
	}
}

func TestEventBus_ContextCancelled(t *testing.T) {
	bus := NewEventBus(1, WithEmitTimeout(5*time.Second))

	ctx := context.Background()

	// Fill the buffer
	if err := bus.Emit(ctx, newTestRequest()); err != nil {
		t.Fatalf("first Emit failed: %v", err)
	}

	// Cancel context before second emit.
	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.Emit(cancelledCtx, newTestRequest())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestEventBus_ConcurrentEmit(t *testing.T) {
	bus := NewEventBus(1000)
	ctx := context.Background()

	const numGoroutines = 10
	const eventsPerGoroutine = 100

	var wg sync.WaitGroup
	var emitErrors atomic.Int64

	// Consumers
	var received atomic.Int64
	done := make(chan struct{})
	go func() {
		for range bus.Channel() {
			received.Add(1)
			if received.Load() >= numGoroutines*eventsPerGoroutine {
				close(done)
				return
			}
		}
	}()

	// Producers
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				if err := bus.Emit(ctx, newTestRequest()); err != nil {
					emitErrors.Add(1)
				}
			}
		}()
	}

	wg.Wait()

	// Wait for all events to be consumed
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Logf("received %d of %d events", received.Load(), numGoroutines*eventsPerGoroutine)
	}

	if emitErrors.Load() > 0 {
		t.Errorf("had %d emit errors", emitErrors.Load())
	}
}

func TestEventBus_WithEmitTimeout(t *testing.T) {
	timeout := 100 * time.Millisecond
	bus := NewEventBus(1, WithEmitTimeout(timeout))

	if bus.emitTimeout != timeout {
		t.Errorf("emitTimeout = %v, want %v", bus.emitTimeout, timeout)
	}
}

func TestEventBus_DefaultEmitTimeout(t *testing.T) {
	bus := NewEventBus(10)

	if bus.emitTimeout != DefaultEmitTimeout {
		t.Errorf("emitTimeout = %v, want %v", bus.emitTimeout, DefaultEmitTimeout)
	}
}

// mockBusMetrics records calls made by the bus.
type mockBusMetrics struct {
	mu                  sync.Mutex
	bufferSizeCalls     []int
	bufferCapacityCalls []int
	emitErrorCalls      int
}

func (m *mockBusMetrics) BufferSizeUpdate(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufferSizeCalls = append(m.bufferSizeCalls, size)
}

func (m *mockBusMetrics) BufferCapacitySet(capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufferCapacityCalls = append(m.bufferCapacityCalls, capacity)
}

func (m *mockBusMetrics) EmitError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitErrorCalls++
}

func TestEventBus_WithMetrics(t *testing.T) {
	m := &mockBusMetrics{}
	bus := NewEventBus(10, WithMetrics(m))

	// BufferCapacitySet should be called on init
	m.mu.Lock()
	capCalls := len(m.bufferCapacityCalls)
	m.mu.Unlock()
	if capCalls != 1 {
		t.Errorf("BufferCapacitySet should be called once on init, got %d calls", capCalls)
	}

	// Emit an event
	ctx := context.Background()
	if err := bus.Emit(ctx, newTestRequest()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	m.mu.Lock()
	sizeCalls := len(m.bufferSizeCalls)
	m.mu.Unlock()

	if sizeCalls != 1 {
		t.Errorf("BufferSizeUpdate should be called once after emit, got %d", sizeCalls)
	}
}

func TestEventBus_MetricsOnBufferFull(t *testing.T) {
	m := &mockBusMetrics{}
	bus := NewEventBus(1, WithEmitTimeout(50*time.Millisecond), WithMetrics(m))

	ctx := context.Background()

	_ = bus.Emit(ctx, newTestRequest())
	if err := bus.Emit(ctx, newTestRequest()); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}

	m.mu.Lock()
	errCalls := m.emitErrorCalls
	m.mu.Unlock()

	if errCalls != 1 {
		t.Errorf("EmitError should be called once on buffer full, got %d", errCalls)
	}
}
