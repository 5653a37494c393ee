package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/puzpuzpuz/xsync/v3"
)

// Locker is the access guard serializing load-modify-save cycles.
//
// Lock blocks until the guard is held or ctx is done. The returned function
// releases the guard and must be called exactly once.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// LockPath returns the lock artifact path used for a data file.
func LockPath(dataPath string) string {
	return dataPath + ".lock"
}

// semaphores holds one single-slot channel per lock path, shared by every
// FileLocker in the process.
var semaphores = xsync.NewMapOf[string, chan struct{}]()

// FileLocker is a Locker backed by an advisory flock(2) on a lock artifact.
//
// Goroutines of the same process first queue on an in-process semaphore keyed
// by the lock path, so two FileLockers on the same path never rely on the
// kernel to arbitrate between file descriptors of one process.
type FileLocker struct {
	path       string
	sem        chan struct{}
	fl         *flock.Flock
	retryDelay time.Duration
}

// NewFileLocker returns a FileLocker on the lock artifact at path. The file
// is created on first use; its content is irrelevant.
func NewFileLocker(path string) *FileLocker {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sem, _ := semaphores.LoadOrCompute(path, func() chan struct{} {
		return make(chan struct{}, 1)
	})
	return &FileLocker{
		path:       path,
		sem:        sem,
		fl:         flock.New(path),
		retryDelay: 10 * time.Millisecond,
	}
}

// Path returns the lock artifact path.
func (l *FileLocker) Path() string {
	return l.path
}

// Lock implements Locker.
func (l *FileLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	ok, err := l.fl.TryLockContext(ctx, l.retryDelay)
	if err != nil || !ok {
		<-l.sem
		if err == nil {
			err = ctx.Err()
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(ctxErr, err)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	return func() {
		_ = l.fl.Unlock()
		<-l.sem
	}, nil
}
