// Package lock serializes staleness runs. The Redis locker covers several
// processes sharing one database; the local locker covers a single process.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotAcquired means another holder owns the key.
var ErrNotAcquired = errors.New("lock is held by another run")

// Locker hands out a release func for a key, or ErrNotAcquired.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// LocalLocker is an in-process Locker. The ttl bounds how long a crashed
// holder can block the key.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localLease
	nowFn func() time.Time
}

type localLease struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localLease), nowFn: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if lease, ok := l.held[key]; ok && now.Before(lease.expires) {
		return nil, ErrNotAcquired
	}
	token := uuid.NewString()
	l.held[key] = localLease{token: token, expires: now.Add(ttl)}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if lease, ok := l.held[key]; ok && lease.token == token {
			delete(l.held, key)
		}
	}, nil
}
