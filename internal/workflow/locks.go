package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"tailor/internal/services"
	"tailor/internal/workspace"
)

const lockRetryDelay = 25 * time.Millisecond

// jobLocks serializes mutations per job. The in-process semaphore orders
// goroutines inside one daemon; the lock file orders the daemon against CLI
// recovery commands running in another process.
type jobLocks struct {
	layout  workspace.Layout
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newJobLocks(layout workspace.Layout, timeout time.Duration) *jobLocks {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &jobLocks{layout: layout, timeout: timeout, entries: make(map[string]*lockEntry)}
}

// acquire blocks until the job lock is held, the context ends, or the lock
// timeout elapses. The returned release func must be called exactly once.
func (l *jobLocks) acquire(ctx context.Context, jobID string) (func(), error) {
	if err := workspace.ValidateSegment("job id", jobID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	entry := l.ref(jobID)
	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(jobID)
		return nil, lockError(jobID, ctx.Err())
	}

	fileLock, err := l.lockFile(ctx, jobID)
	if err != nil {
		<-entry.sem
		l.unref(jobID)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = fileLock.Unlock()
			<-entry.sem
			l.unref(jobID)
		})
	}, nil
}

func (l *jobLocks) lockFile(ctx context.Context, jobID string) (*flock.Flock, error) {
	if err := os.MkdirAll(l.layout.JobDir(jobID), 0o755); err != nil {
		return nil, services.Wrap(services.ErrIO, "", "lock job", jobID, err)
	}
	fileLock := flock.New(l.layout.LockPath(jobID))
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, lockError(jobID, err)
		}
		return nil, services.Wrap(services.ErrIO, "", "lock job", jobID, err)
	}
	if !locked {
		return nil, lockError(jobID, nil)
	}
	return fileLock, nil
}

func lockError(jobID string, cause error) error {
	if errors.Is(cause, context.Canceled) {
		return cause
	}
	return services.Wrap(services.ErrTransient, "", "lock job", fmt.Sprintf("job %s is locked by another writer", jobID), cause)
}

func (l *jobLocks) ref(jobID string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[jobID]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[jobID] = entry
	}
	entry.refs++
	return entry
}

func (l *jobLocks) unref(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[jobID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, jobID)
	}
}
