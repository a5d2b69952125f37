// Package circuitbreaker tracks webhook endpoint health per URL.
//
// Each URL gets its own two-step gobreaker so one failing endpoint never
// short-circuits deliveries to another.
package circuitbreaker

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitBreaker struct {
	mu        sync.Mutex
	breakers  map[string]*gobreaker.TwoStepCircuitBreaker
	threshold int
	cooldown  time.Duration
}

// New returns a breaker that opens after threshold consecutive failures for a
// URL and allows a single probe once cooldown has elapsed.
func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		breakers:  make(map[string]*gobreaker.TwoStepCircuitBreaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (cb *CircuitBreaker) breaker(url string) *gobreaker.TwoStepCircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b, ok := cb.breakers[url]
	if ok {
		return b
	}

	threshold := uint32(cb.threshold)
	b = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        url,
		MaxRequests: 1,
		Timeout:     cb.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuitbreaker: url=%s state %s -> %s", name, from, to)
		},
	})
	cb.breakers[url] = b
	return b
}

// Allow reports whether a request to url may proceed. On success the caller
// must invoke done with the outcome of the request.
func (cb *CircuitBreaker) Allow(url string) (done func(success bool), err error) {
	done, err = cb.breaker(url).Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return done, nil
}

// State returns the breaker state for url ("closed" for unknown URLs).
func (cb *CircuitBreaker) State(url string) string {
	cb.mu.Lock()
	b, ok := cb.breakers[url]
	cb.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return b.State().String()
}
