// Package lockfile provides cross-process advisory locks for the shared
// mutable state pyforge touches: the settings document and each canonical
// toolchain directory. A lock is a file created with O_EXCL next to the
// resource; contenders poll until the holder removes it or the context
// deadline expires.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrTimeout reports that the lock could not be acquired before the
// context deadline. Contention across invocations is expected to be
// transient, so acquisition blocks rather than failing immediately.
var ErrTimeout = errors.New("timed out waiting for lock")

const pollInterval = 100 * time.Millisecond

// Acquire takes the lock guarding the named resource path. The returned
// release function must be called on every exit path, typically via defer.
func Acquire(ctx context.Context, resource string) (release func(), err error) {
	lockPath := resource + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrTimeout, lockPath)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", lockPath, ctx.Err())
		case <-ticker.C:
		}
	}
}
