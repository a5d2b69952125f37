// Package analytics keeps best-effort hourly counters of emitted events and
// trigger results in Redis.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/bizflow/internal/domain"
)

const (
	DefaultRetention = 7 * 24 * time.Hour
	DefaultWindow    = time.Hour
)

// Counter is the subset of a Redis client the sink uses.
type Counter interface {
	Pipeline() redis.Pipeliner
}

type RedisSink struct {
	client    Counter
	prefix    string
	window    time.Duration
	retention time.Duration
}

func NewRedisSink(client Counter) *RedisSink {
	return &RedisSink{
		client:    client,
		prefix:    "bizflow",
		window:    DefaultWindow,
		retention: DefaultRetention,
	}
}

func (s *RedisSink) WithRetention(d time.Duration) *RedisSink {
	if d > 0 {
		s.retention = d
	}
	return s
}

func (s *RedisSink) WithWindow(d time.Duration) *RedisSink {
	if d > 0 {
		s.window = d
	}
	return s
}

// RecordEvent counts ev in its event-type bucket. Errors are logged.
func (s *RedisSink) RecordEvent(ctx context.Context, ev domain.Event) {
	at := ev.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	if err := s.incr(ctx, s.eventKey(ev.Type, at)); err != nil {
		log.Printf("analytics: record event=%s: %v", ev.Type, err)
	}
}

// RecordTriggerResult counts one evaluation of triggerID. Errors are logged.
func (s *RedisSink) RecordTriggerResult(ctx context.Context, triggerID int64, result domain.TriggerResult, at time.Time) {
	if err := s.incr(ctx, s.triggerKey(triggerID, result, at)); err != nil {
		log.Printf("analytics: record trigger=%d result=%s: %v", triggerID, result, err)
	}
}

func (s *RedisSink) incr(ctx context.Context, key string) error {
	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func (s *RedisSink) eventKey(et domain.EventType, t time.Time) string {
	return fmt.Sprintf("%s:events:%s:%s", s.prefix, et, truncateToBucket(t, s.window))
}

func (s *RedisSink) triggerKey(id int64, result domain.TriggerResult, t time.Time) string {
	return fmt.Sprintf("%s:triggers:%d:%s:%s", s.prefix, id, result, truncateToBucket(t, s.window))
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case 24 * time.Hour:
		return t.Format("20060102")
	default:
		return t.Format("2006010215")
	}
}
