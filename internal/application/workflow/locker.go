package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"golang.org/x/sync/semaphore"
)

// DefaultLockTimeout bounds how long a caller waits for a busy request
const DefaultLockTimeout = 2 * time.Second

// Locker hands out one exclusive section per key.
// Entries exist only while someone holds or waits for them.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	timeout time.Duration
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// NewLocker creates a locker whose Acquire gives up after timeout
func NewLocker(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Locker{
		entries: make(map[string]*lockEntry),
		timeout: timeout,
	}
}

// Acquire blocks until key is free or the timeout elapses.
// On timeout it returns ErrBusy; a cancelled ctx returns the context error.
// The returned release func is safe to call more than once.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := entry.sem.Acquire(waitCtx, 1); err != nil {
		l.unref(key, entry)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: request %s is locked, waited %s", domainwf.ErrBusy, key, l.timeout)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.unref(key, entry)
		})
	}, nil
}

func (l *Locker) unref(key string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// Len returns the number of keys currently held or awaited
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
