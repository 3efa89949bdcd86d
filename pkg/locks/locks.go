// Package locks provides the mutual-exclusion scope that serializes toggle
// operations per connection. Only one status write may be in flight per
// connection; a second caller observes contention instead of racing the
// first to an inconsistent end state.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockHeld indicates the key is already locked by another in-flight
// operation.
var ErrLockHeld = errors.New("lock already held")

// DefaultTTL bounds how long a crashed holder can block a key.
const DefaultTTL = 30 * time.Second

// Locker acquires a non-blocking exclusive lock on a key. Acquire returns a
// release function on success and ErrLockHeld when the key is contended; it
// never waits for the holder.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MemoryLocker is the single-instance implementation, suitable for one API
// process or tests. Multi-instance deployments use the redis locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// Acquire takes the key or fails immediately with ErrLockHeld.
func (l *MemoryLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrLockHeld
	}

	l.held[key] = struct{}{}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		delete(l.held, key)
	}, nil
}
