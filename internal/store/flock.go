package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout bounds how long exports wait for a competing writer.
const DefaultLockTimeout = 5 * time.Second

const lockRetryDelay = 100 * time.Millisecond

// WithLock holds an exclusive lock on path.lock while fn runs.
func WithLock(path string, timeout time.Duration, fn func() error) error {
	return withFileLock(path, timeout, false, fn)
}

// WithReadLock holds a shared lock on path.lock while fn runs.
func WithReadLock(path string, timeout time.Duration, fn func() error) error {
	return withFileLock(path, timeout, true, fn)
}

func withFileLock(path string, timeout time.Duration, shared bool, fn func() error) error {
	lockPath := path + ".lock"
	fileLock := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	kind := "lock"
	try := fileLock.TryLockContext
	if shared {
		kind = "read lock"
		try = fileLock.TryRLockContext
	}

	locked, err := try(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquiring %s on %s: %w", kind, lockPath, err)
	}
	if !locked {
		return fmt.Errorf("timed out acquiring %s on %s", kind, lockPath)
	}
	defer fileLock.Unlock()

	return fn()
}
