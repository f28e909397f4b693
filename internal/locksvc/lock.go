// Package locksvc provides named mutual-exclusion locks shared across
// engine invocations.
//
// The engine only depends on [Locker], so tests and single-process
// deployments use [MemoryLocker] while overlapping scheduled runs on
// separate hosts share a [RedisLocker] lease.
package locksvc

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when a lock is held elsewhere and the
// bounded wait was exhausted.
var ErrNotAcquired = errors.New("lock not acquired")

// Lease is a held lock. Release must be called exactly once, in a defer,
// regardless of the outcome of the protected operation.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out named exclusive leases.
type Locker interface {
	// TryAcquire attempts to take the named lock without waiting.
	// Returns ErrNotAcquired if it is held elsewhere.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Acquire takes the named lock, retrying with exponential backoff
// (1s, 2s, 4s, ...) up to retries additional attempts. The initial
// attempt does not count as a retry.
func Acquire(ctx context.Context, l Locker, name string, ttl time.Duration, retries int) (Lease, error) {
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		lease, err := l.TryAcquire(ctx, name, ttl)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrNotAcquired) || attempt >= retries {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
