// Package testutil provides shared test helpers for bizflow.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/djlord-it/bizflow/internal/domain"
	"github.com/djlord-it/bizflow/internal/store/sqlite"
)

// FakeClock provides deterministic time for testing.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewFakeClock creates a FakeClock set to the given time.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Tick returns the current time and then advances the clock by d.
// Handy as a store clock when every write needs a distinct timestamp.
func (c *FakeClock) Tick(d time.Duration) func() time.Time {
	return func() time.Time {
		c.mu.Lock()
		defer c.mu.Unlock()
		now := c.current
		c.current = c.current.Add(d)
		return now
	}
}

// TestContext returns a context with a 5-second timeout.
// The context is cancelled when the test completes.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// NewStore opens a private in-memory SQLite store closed at test cleanup.
func NewStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NotifyTrigger builds an active notify trigger posting message to channel.
func NotifyTrigger(name string, et domain.EventType, channel, message string) domain.Trigger {
	return domain.Trigger{
		Name:      name,
		EventType: et,
		Action: domain.Action{
			Type:   domain.ActionNotify,
			Notify: &domain.NotifyAction{Channel: channel, Message: message},
		},
		IsActive: true,
	}
}

// MustCreate stores tr and fails the test on error.
func MustCreate(t *testing.T, s *sqlite.Store, tr domain.Trigger) domain.Trigger {
	t.Helper()
	created, err := s.CreateTrigger(context.Background(), tr)
	if err != nil {
		t.Fatalf("create trigger %q: %v", tr.Name, err)
	}
	return created
}
