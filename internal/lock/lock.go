// Package lock serializes work on a key, either across processes through Redis or
// within one process.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the lock could not be acquired before the context ended.
var ErrTimeout = errors.New("lock: acquire timed out")

// Locker runs fn while holding the lock for key. The lock is released when fn returns,
// whatever it returns. ttl bounds how long a crashed holder can keep the lock.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}
