package distlock

import (
	"context"
	"sync"
)

// MemoryLocks is an in-process lock table for single-instance deployments.
type MemoryLocks struct {
	mu   sync.Mutex
	held map[string]string
}

// NewMemoryLocks returns an empty lock table.
func NewMemoryLocks() *MemoryLocks {
	return &MemoryLocks{held: make(map[string]string)}
}

// Lock returns a lock for key owned by a fresh holder token.
func (m *MemoryLocks) Lock(key string) DistLock {
	return &memoryLock{table: m, key: key, owner: ownerToken()}
}

type memoryLock struct {
	table *MemoryLocks
	key   string
	owner string
}

func (l *memoryLock) Acquire(context.Context) (bool, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if _, taken := l.table.held[l.key]; taken {
		return false, nil
	}
	l.table.held[l.key] = l.owner
	return true, nil
}

func (l *memoryLock) Release(context.Context) error {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.table.held[l.key] == l.owner {
		delete(l.table.held, l.key)
	}
	return nil
}
