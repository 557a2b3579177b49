// internal/state/state.go
//
// Versioned agent state. Each agent keeps exactly two snapshots:
// current.json and previous.json. An update rotates current into
// previous and commits the new document atomically, so readers observe
// either the old or the new state, never a torn write. Updates to one
// agent serialize on an advisory lock in the agent's state directory.

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kingrea/The-Relay/internal/fsutil"
	"github.com/kingrea/The-Relay/internal/layout"
	"github.com/kingrea/The-Relay/internal/lockfile"
	"github.com/kingrea/The-Relay/internal/logging"
)

// ErrNoState is returned when the requested snapshot does not exist.
var ErrNoState = errors.New("state: no snapshot found")

const (
	currentFile  = "current.json"
	previousFile = "previous.json"
	lockName     = ".lock"
)

// Snapshot is one retained state version.
type Snapshot struct {
	Document map[string]any
	ModTime  time.Time
}

// Store reads and writes agent state snapshots.
type Store struct {
	ns       *layout.Namespace
	logger   logging.Logger
	lockWait time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured sink.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		s.logger = logging.OrNop(l)
	}
}

// WithLockWait bounds how long an update waits for the agent's state
// lock before failing.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) {
		s.lockWait = d
	}
}

// New creates a state store over the given namespace.
func New(ns *layout.Namespace, opts ...Option) *Store {
	s := &Store{
		ns:       ns,
		logger:   logging.Nop(),
		lockWait: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set commits doc as the agent's current snapshot, rotating the prior
// current into previous first. The agent must be provisioned.
func (s *Store) Set(ctx context.Context, agent string, doc map[string]any) error {
	if err := s.ns.EnsureAgent(agent); err != nil {
		return err
	}

	// Reject unserializable documents before touching the disk.
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode document for %s: %w", agent, err)
	}

	lock, err := lockfile.Acquire(ctx, filepath.Join(s.ns.StatePath(agent), lockName),
		lockfile.WithWait(s.lockWait))
	if err != nil {
		return fmt.Errorf("state: lock %s: %w", agent, err)
	}
	defer lock.Release()

	currentPath := filepath.Join(s.ns.StatePath(agent), currentFile)
	previousPath := filepath.Join(s.ns.StatePath(agent), previousFile)

	if fsutil.FileExists(currentPath) {
		if err := fsutil.CopyFile(currentPath, previousPath); err != nil {
			return fmt.Errorf("state: rotate previous for %s: %w", agent, err)
		}
	}
	if err := fsutil.AtomicWriteFile(currentPath, append(encoded, '\n'), 0644); err != nil {
		return fmt.Errorf("state: commit current for %s: %w", agent, err)
	}

	s.logger.Debug("state updated", "agent", agent)
	return nil
}

// Get returns the agent's current snapshot.
func (s *Store) Get(agent string) (Snapshot, error) {
	return s.read(agent, currentFile)
}

// GetPrevious returns the snapshot current held before the last
// update. The very first snapshot has no previous.
func (s *Store) GetPrevious(agent string) (Snapshot, error) {
	return s.read(agent, previousFile)
}

func (s *Store) read(agent, file string) (Snapshot, error) {
	if err := s.ns.EnsureAgent(agent); err != nil {
		return Snapshot{}, err
	}

	path := filepath.Join(s.ns.StatePath(agent), file)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, fmt.Errorf("%w: %s/%s", ErrNoState, agent, file)
		}
		return Snapshot{}, fmt.Errorf("state: read %s for %s: %w", file, agent, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("state: parse %s for %s: %w", file, agent, err)
	}

	snap := Snapshot{Document: doc}
	if info, err := os.Stat(path); err == nil {
		snap.ModTime = info.ModTime()
	}
	return snap, nil
}
