// Package leaderelection ensures only one bizflow instance runs the reminder
// scheduler at a time.
//
// With Postgres, a session-scoped advisory lock determines the leader. The
// lock is held for the lifetime of a dedicated connection; there is no
// renewal or TTL. If the connection dies, Postgres releases the lock
// server-side.
//
// The heartbeat ping exists solely to detect local connection death so the
// leader can stop its duties promptly. It does NOT renew the lock.
package leaderelection

import (
	"context"
	"log"
	"time"
)

const (
	ReasonShutdown = "shutdown"
	ReasonConnLost = "conn_lost"
)

// MetricsSink defines the interface for recording leader election metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Locker attempts to take the leader lock without blocking.
type Locker interface {
	TryAcquire(ctx context.Context) (Lease, bool, error)
	Name() string
}

// Lease is a held leader lock.
type Lease interface {
	Ping(ctx context.Context) error
	Release(ctx context.Context) error
}

// Elector runs the election loop.
type Elector struct {
	locker            Locker
	retryInterval     time.Duration // follower: how often to attempt lock acquisition
	heartbeatInterval time.Duration // leader: how often to ping the lease
	onElected         func(ctx context.Context)
	onDemoted         func()
	metrics           MetricsSink
}

// New creates a new Elector.
//
// onElected is called in a new goroutine when this instance acquires the lock.
// The provided context is cancelled when leadership is lost.
// onElected should start leader duties and return quickly.
//
// onDemoted is called synchronously when leadership is lost.
// It should stop leader duties and block until they are fully stopped.
// It must be idempotent.
func New(
	locker Locker,
	retryInterval, heartbeatInterval time.Duration,
	onElected func(ctx context.Context),
	onDemoted func(),
) *Elector {
	return &Elector{
		locker:            locker,
		retryInterval:     retryInterval,
		heartbeatInterval: heartbeatInterval,
		onElected:         onElected,
		onDemoted:         onDemoted,
	}
}

// WithMetrics attaches a metrics sink to the elector.
func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// Run starts the leader election loop. It blocks until ctx is cancelled.
func (e *Elector) Run(ctx context.Context) {
	log.Printf("leader: starting election loop (lock=%s, retry=%s, heartbeat=%s)",
		e.locker.Name(), e.retryInterval, e.heartbeatInterval)

	for {
		reason := e.runOnce(ctx)

		if ctx.Err() != nil {
			log.Println("leader: election loop stopped")
			return
		}

		if reason != "" {
			log.Printf("leader: lost leadership (reason=%s), will retry in %s", reason, e.retryInterval)
		}

		select {
		case <-ctx.Done():
			log.Println("leader: election loop stopped")
			return
		case <-time.After(e.retryInterval):
		}
	}
}

// runOnce attempts to acquire the lock and hold it.
// Returns the reason leadership was lost ("" if the lock was not acquired).
func (e *Elector) runOnce(ctx context.Context) string {
	if ctx.Err() != nil {
		return ""
	}

	lease, acquired, err := e.locker.TryAcquire(ctx)
	if err != nil {
		log.Printf("leader: lock attempt failed: %v", err)
		return ""
	}
	if !acquired {
		log.Printf("leader: lock %s held by another instance, retrying in %s", e.locker.Name(), e.retryInterval)
		return ""
	}

	log.Printf("leader: acquired lock %s", e.locker.Name())
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(true)
		e.metrics.LeaderAcquired()
	}

	leaderCtx, cancelLeader := context.WithCancel(ctx)
	go e.onElected(leaderCtx)

	reason := e.hold(ctx, lease)

	cancelLeader()
	e.onDemoted()

	// ctx may already be cancelled; releasing must still reach the database.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	if err := lease.Release(releaseCtx); err != nil {
		log.Printf("leader: release lock %s: %v", e.locker.Name(), err)
	}
	cancel()

	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(false)
		e.metrics.LeaderLost(reason)
	}

	log.Printf("leader: released lock %s", e.locker.Name())
	return reason
}

// hold blocks while pinging the lease. Returns the reason the lock was lost.
func (e *Elector) hold(ctx context.Context, lease Lease) string {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case <-ticker.C:
			if err := lease.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return ReasonShutdown
				}
				log.Printf("leader: lease ping failed: %v", err)
				return ReasonConnLost
			}
		}
	}
}
