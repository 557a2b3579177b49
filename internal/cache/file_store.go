// internal/cache/file_store.go
//
// File-backed cache entries. Each entry is one JSON record in the
// agent's cache area, named by a digest of the key so arbitrary keys
// never produce hostile file names. Records are committed by rename,
// so concurrent setters of one key interleave into last-write-wins,
// never a torn record.

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kingrea/The-Relay/internal/fsutil"
	"github.com/kingrea/The-Relay/internal/layout"
	"github.com/kingrea/The-Relay/internal/logging"
)

const encodingBase64 = "base64"

type record struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Encoding   string    `json:"encoding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	TTLSeconds *float64  `json:"ttl_seconds"`
}

func (r record) expired(now time.Time) bool {
	if r.TTLSeconds == nil {
		return false
	}
	ttl := time.Duration(*r.TTLSeconds * float64(time.Second))
	return now.Sub(r.CreatedAt) >= ttl
}

func (r record) decode() ([]byte, error) {
	if r.Encoding == encodingBase64 {
		return base64.StdEncoding.DecodeString(r.Value)
	}
	return []byte(r.Value), nil
}

// FileStore keeps cache entries inside each agent's cache area.
type FileStore struct {
	ns     *layout.Namespace
	logger logging.Logger
	now    func() time.Time
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithLogger sets the structured sink.
func WithLogger(l logging.Logger) FileStoreOption {
	return func(s *FileStore) {
		s.logger = logging.OrNop(l)
	}
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) FileStoreOption {
	return func(s *FileStore) {
		s.now = now
	}
}

// NewFileStore creates the file backend over the given namespace.
func NewFileStore(ns *layout.Namespace, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		ns:     ns,
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set upserts an entry for the agent.
func (s *FileStore) Set(ctx context.Context, agent, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ns.EnsureAgent(agent); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("cache: key is empty")
	}

	rec := record{
		Key:       key,
		CreatedAt: s.now().UTC(),
	}
	if utf8.Valid(value) {
		rec.Value = string(value)
	} else {
		rec.Value = base64.StdEncoding.EncodeToString(value)
		rec.Encoding = encodingBase64
	}
	if ttl >= 0 {
		seconds := ttl.Seconds()
		rec.TTLSeconds = &seconds
	}

	encoded, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: encode entry %s/%s: %w", agent, key, err)
	}
	path := s.entryPath(agent, key)
	if err := fsutil.AtomicWriteFile(path, append(encoded, '\n'), 0644); err != nil {
		return fmt.Errorf("cache: write entry %s/%s: %w", agent, key, err)
	}
	s.logger.Debug("cache entry set", "agent", agent, "key", key, "ttl", ttl)
	return nil
}

// Get returns the value for key, treating elapsed entries as misses.
func (s *FileStore) Get(ctx context.Context, agent, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := s.ns.EnsureAgent(agent); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(s.entryPath(agent, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: read entry %s/%s: %w", agent, key, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("cache: parse entry %s/%s: %w", agent, key, err)
	}
	if rec.expired(s.now()) {
		return nil, false, nil
	}
	value, err := rec.decode()
	if err != nil {
		return nil, false, fmt.Errorf("cache: decode entry %s/%s: %w", agent, key, err)
	}
	return value, true, nil
}

// Delete removes the entry for key if present.
func (s *FileStore) Delete(ctx context.Context, agent, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ns.EnsureAgent(agent); err != nil {
		return err
	}
	if err := os.Remove(s.entryPath(agent, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: delete entry %s/%s: %w", agent, key, err)
	}
	return nil
}

// Sweep removes records whose TTL has elapsed. Unreadable records are
// left in place for the retention manager's age-based cleanup.
func (s *FileStore) Sweep(ctx context.Context, agent string) (int, error) {
	if err := s.ns.EnsureAgent(agent); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(s.ns.CachePath(agent))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("cache: sweep %s: %w", agent, err)
	}

	removed := 0
	now := s.now()
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.ns.CachePath(agent), entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("cache sweep skipped unreadable entry", "agent", agent, "file", entry.Name(), "error", err)
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("cache sweep skipped corrupt entry", "agent", agent, "file", entry.Name(), "error", err)
			continue
		}
		if !rec.expired(now) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("cache sweep could not remove entry", "agent", agent, "file", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Debug("cache swept", "agent", agent, "removed", removed)
	}
	return removed, nil
}

func (s *FileStore) entryPath(agent, key string) string {
	digest := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(digest[:8]) + ".json"
	return filepath.Join(s.ns.CachePath(agent), name)
}
