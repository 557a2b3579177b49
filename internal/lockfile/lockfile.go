// internal/lockfile/lockfile.go
//
// Advisory file locks for coordinating writers that share a storage
// root. A lock is a file created with O_EXCL; the holder's pid and
// acquisition time are recorded so a crashed holder can be detected
// and its lock taken over once it goes stale.

package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrTimeout is returned when the lock could not be acquired within
// the configured wait window.
var ErrTimeout = errors.New("lockfile: timed out waiting for lock")

const (
	defaultWait          = 5 * time.Second
	defaultRetryInterval = 25 * time.Millisecond
	defaultStaleAfter    = 2 * time.Minute
)

// Lock represents a held advisory lock.
type Lock struct {
	path string
}

// Option configures lock acquisition.
type Option func(*settings)

type settings struct {
	wait          time.Duration
	retryInterval time.Duration
	staleAfter    time.Duration
	now           func() time.Time
}

// WithWait bounds how long Acquire blocks before giving up.
func WithWait(d time.Duration) Option {
	return func(s *settings) {
		s.wait = d
	}
}

// WithRetryInterval sets the polling interval between attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(s *settings) {
		s.retryInterval = d
	}
}

// WithStaleAfter sets the age after which an existing lock is treated
// as abandoned and taken over.
func WithStaleAfter(d time.Duration) Option {
	return func(s *settings) {
		s.staleAfter = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// Acquire obtains the lock at path, blocking up to the configured wait
// window. Locks whose file is older than the stale threshold are
// removed and retried, so a crashed holder does not wedge the agent
// forever.
func Acquire(ctx context.Context, path string, opts ...Option) (*Lock, error) {
	s := settings{
		wait:          defaultWait,
		retryInterval: defaultRetryInterval,
		staleAfter:    defaultStaleAfter,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("lockfile: create lock directory: %w", err)
	}

	deadline := s.now().Add(s.wait)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("lockfile: acquire %s: %w", path, err)
		}

		ok, err := tryCreate(path, s.now())
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{path: path}, nil
		}

		if stale, err := isStale(path, s.now(), s.staleAfter); err == nil && stale {
			// Best effort: a concurrent takeover losing the race is
			// fine, the next create attempt settles it.
			os.Remove(path)
			continue
		}

		if s.now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, path)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lockfile: acquire %s: %w", path, ctx.Err())
		case <-time.After(s.retryInterval):
		}
	}
}

// Release removes the lock file. Releasing an already released lock is
// a no-op.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lockfile: release: %w", err)
	}
	return nil
}

// Path returns the lock file path, empty after release.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func tryCreate(path string, now time.Time) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("lockfile: create %s: %w", path, err)
	}
	fmt.Fprintf(f, "pid %d\nacquired %s\n", os.Getpid(), now.UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		os.Remove(path)
		return false, fmt.Errorf("lockfile: write %s: %w", path, err)
	}
	return true, nil
}

func isStale(path string, now time.Time, staleAfter time.Duration) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return now.Sub(info.ModTime()) > staleAfter, nil
}
