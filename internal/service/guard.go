package service

import (
	"context"
	"sync"
	"time"
)

// Locker guards a form submission token while its mutation is in flight.
// redisclient.Client satisfies it for multi-instance deployments.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryLocker) AcquireLock(_ context.Context, lockKey string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.held[lockKey]; ok && now.Before(expires) {
		return false, nil
	}
	l.held[lockKey] = now.Add(ttl)

	// expired locks are dropped opportunistically
	for k, exp := range l.held {
		if !now.Before(exp) {
			delete(l.held, k)
		}
	}
	return true, nil
}

func (l *MemoryLocker) ReleaseLock(_ context.Context, lockKey string) error {
	l.mu.Lock()
	delete(l.held, lockKey)
	l.mu.Unlock()
	return nil
}
