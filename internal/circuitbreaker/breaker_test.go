package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func fail(t *testing.T, cb *CircuitBreaker, url string) {
	t.Helper()
	done, err := cb.Allow(url)
	if err != nil {
		t.Fatalf("Allow: unexpected error %v", err)
	}
	done(false)
}

func TestAllow_UnknownURL_Allowed(t *testing.T) {
	cb := New(3, 5*time.Second)
	done, err := cb.Allow("http://example.com/hook")
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	done(true)
}

func TestAllow_BelowThreshold_Allowed(t *testing.T) {
	cb := New(3, 5*time.Second)
	url := "http://example.com/hook"
	fail(t, cb, url)
	fail(t, cb, url)
	if _, err := cb.Allow(url); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_AtThreshold_Open(t *testing.T) {
	cb := New(3, 5*time.Second)
	url := "http://example.com/hook"
	fail(t, cb, url)
	fail(t, cb, url)
	fail(t, cb, url)
	_, err := cb.Allow(url)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := cb.State(url); got != "open" {
		t.Errorf("State = %q, want open", got)
	}
}

func TestAllow_OpenAfterCooldown_HalfOpen(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	url := "http://example.com/hook"
	fail(t, cb, url)
	fail(t, cb, url)
	fail(t, cb, url)
	time.Sleep(20 * time.Millisecond)
	if _, err := cb.Allow(url); err != nil {
		t.Fatalf("expected nil (probe allowed), got %v", err)
	}
	if _, err := cb.Allow(url); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen while half-open probe in flight, got %v", err)
	}
}

func TestSuccess_ResetsFailures(t *testing.T) {
	cb := New(2, time.Second)
	url := "http://example.com/hook"
	fail(t, cb, url)

	done, err := cb.Allow(url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	done(true)

	fail(t, cb, url)
	if _, err := cb.Allow(url); err != nil {
		t.Fatalf("consecutive count should have reset, got %v", err)
	}
}

func TestURLsAreIndependent(t *testing.T) {
	cb := New(1, time.Second)
	fail(t, cb, "http://a.example.com")

	if _, err := cb.Allow("http://a.example.com"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected a to be open, got %v", err)
	}
	if _, err := cb.Allow("http://b.example.com"); err != nil {
		t.Fatalf("expected b to be closed, got %v", err)
	}
}
