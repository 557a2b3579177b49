package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/The-Relay/internal/fsutil"
)

// ErrRunNotFound is returned when no record exists for a run ID.
var ErrRunNotFound = errors.New("workflow engine: run not found")

// RunStore reads and writes run records, one JSON file per run in the
// runs directory.
type RunStore struct {
	dir string
}

// NewRunStore creates a store rooted at dir.
func NewRunStore(dir string) *RunStore {
	return &RunStore{dir: dir}
}

// Save writes the run record, replacing any prior version atomically.
func (s *RunStore) Save(run Run) error {
	if run.ID == "" {
		return fmt.Errorf("workflow engine: run id is required")
	}
	encoded, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("workflow engine: encode run %s: %w", run.ID, err)
	}
	path := filepath.Join(s.dir, run.ID+".json")
	if err := fsutil.AtomicWriteFile(path, append(encoded, '\n'), 0644); err != nil {
		return fmt.Errorf("workflow engine: persist run %s: %w", run.ID, err)
	}
	return nil
}

// Load reads one run record by ID.
func (s *RunStore) Load(id string) (Run, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return Run{}, fmt.Errorf("workflow engine: read run %s: %w", id, err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return Run{}, fmt.Errorf("workflow engine: parse run %s: %w", id, err)
	}
	return run, nil
}

// List returns all run records, newest first.
func (s *RunStore) List() ([]Run, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow engine: list runs: %w", err)
	}

	var runs []Run
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		run, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}
