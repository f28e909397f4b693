// In-process Locker for tests and single-host deployments.

package locksvc

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	owner  *memoryLease
	expiry time.Time
}

// MemoryLocker is an in-process [Locker]. TTLs are honored so an
// abandoned lease (a crashed goroutine that never released) does not
// wedge later runs.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	clock func() time.Time
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[string]memoryEntry),
		clock: time.Now,
	}
}

var _ Locker = (*MemoryLocker)(nil)

// TryAcquire implements Locker.
func (l *MemoryLocker) TryAcquire(_ context.Context, name string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if entry, ok := l.held[name]; ok && now.Before(entry.expiry) {
		return nil, ErrNotAcquired
	}
	lease := &memoryLease{locker: l, name: name}
	l.held[name] = memoryEntry{owner: lease, expiry: now.Add(ttl)}
	return lease, nil
}

type memoryLease struct {
	locker *MemoryLocker
	name   string
	once   sync.Once
}

// Release implements Lease. A lease whose TTL lapsed and was taken over
// by another holder must not free the new holder's lock.
func (m *memoryLease) Release(context.Context) error {
	m.once.Do(func() {
		m.locker.mu.Lock()
		defer m.locker.mu.Unlock()
		if entry, ok := m.locker.held[m.name]; ok && entry.owner == m {
			delete(m.locker.held, m.name)
		}
	})
	return nil
}
