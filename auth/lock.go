package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// storageLock serializes access to the persisted session.
type storageLock struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

func newStorageLock(timeout time.Duration) *storageLock {
	return &storageLock{sem: semaphore.NewWeighted(1), timeout: timeout}
}

// acquire blocks for at most the configured timeout. A timeout is reported as
// ErrLockAcquireTimeout; cancellation of ctx itself is reported as ctx.Err().
func (l *storageLock) acquire(ctx context.Context) error {
	if l.sem.TryAcquire(1) {
		return nil
	}
	if l.timeout <= 0 {
		return ErrLockAcquireTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockAcquireTimeout
		}
		return err
	}
	return nil
}

func (l *storageLock) release() {
	l.sem.Release(1)
}
