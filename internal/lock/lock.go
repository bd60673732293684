// Package lock provides the cross-process guard that keeps two deploy runs
// from touching the queue at the same time.
package lock

import (
	"context"
)

// Locker acquires named, exclusive, non-blocking locks. TryAcquire returns
// domain.ErrConcurrentRun when another holder already owns name.
type Locker interface {
	TryAcquire(ctx context.Context, name string) (Lease, error)
}

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Owner() string
	Release(ctx context.Context) error
}
