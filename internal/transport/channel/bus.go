// Package channel is the in-process ingestion bus between the HTTP API and
// the dispatcher's Run loop.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/djlord-it/bizflow/internal/domain"
)

// ErrBufferFull is returned when the buffer stays full for the whole emit
// timeout.
var ErrBufferFull = errors.New("event bus buffer full")

const DefaultEmitTimeout = 5 * time.Second

// MetricsSink defines the interface for recording bus metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()
}

type Option func(*EventBus)

func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		if d > 0 {
			b.emitTimeout = d
		}
	}
}

func WithMetrics(m MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = m
	}
}

type EventBus struct {
	ch          chan domain.EmitRequest
	emitTimeout time.Duration
	metrics     MetricsSink // optional, nil = disabled
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch:          make(chan domain.EmitRequest, buffer),
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Emit enqueues req. It waits up to the emit timeout for buffer space and
// returns ErrBufferFull if none frees up.
func (b *EventBus) Emit(ctx context.Context, req domain.EmitRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- req:
		if b.metrics != nil {
			b.metrics.BufferSizeUpdate(len(b.ch))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

func (b *EventBus) Channel() <-chan domain.EmitRequest {
	return b.ch
}

// Len returns the number of buffered requests.
func (b *EventBus) Len() int {
	return len(b.ch)
}
