package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/pipetree/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex serialises work per record id and garbage collects unused entries.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (k *keyedMutex) acquire(key string) *lockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, exists := k.locks[key]
	if !exists {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (k *keyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, exists := k.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(k.locks, key)
	}
}

func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// withLock executes fn while holding the local lock and, when configured, the distributed one.
func (a *Adapter) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := a.locks.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		a.locks.release(key)
	}()

	if a.locker != nil {
		unlock, err := a.locker.Lock(ctx, key, a.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer a.releaseDistributed(ctx, key, unlock)
	}

	return fn(ctx)
}

func (a *Adapter) releaseDistributed(ctx context.Context, key string, unlock ports.UnlockFunc) {
	if err := unlock(ctx); err != nil {
		a.logger.Warn("Failed to release distributed lock (will expire via TTL)",
			"record_id", key,
			"err", err,
		)
	}
}
