// Package lock guards a thread so that only one session streams into it at a
// time, across every API replica.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned when the thread is already locked.
var ErrHeld = errors.New("lock: thread is busy")

// Locker acquires per-thread locks. The returned release func is idempotent.
type Locker interface {
	Acquire(ctx context.Context, threadID string) (release func(), err error)
}

// Local is an in-process Locker for single-replica deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// Acquire locks threadID or returns ErrHeld.
func (l *Local) Acquire(_ context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[threadID]; ok {
		return nil, ErrHeld
	}
	l.held[threadID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, threadID)
			l.mu.Unlock()
		})
	}, nil
}
