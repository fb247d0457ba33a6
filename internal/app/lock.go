package app

import (
	"context"
	"time"
)

// Locker is a best-effort mutual exclusion between overlapping runs of the
// same job. The dedup ledger stays the source of truth for idempotency.
type Locker interface {
	// TryLock returns ok=false when another holder has name. release must be
	// called when ok is true.
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// NoopLocker always grants the lock.
type NoopLocker struct{}

func (NoopLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
