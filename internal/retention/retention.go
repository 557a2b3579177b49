// internal/retention/retention.go
//
// Maintenance sweeps over the shared namespace. CleanTemp removes
// aged files from the shared temp area and each agent's cache area
// and invalidates expired cache entries; it is best-effort, one
// stubborn file never aborts the rest. Agent areas are cleaned
// concurrently with a small bounded worker set.

package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/The-Relay/internal/cache"
	"github.com/kingrea/The-Relay/internal/layout"
	"github.com/kingrea/The-Relay/internal/logging"
)

const (
	// DefaultTempMaxAge is the cutoff for temp and cache file removal
	// when the caller passes no age.
	DefaultTempMaxAge = 24 * time.Hour

	// DefaultArchiveMaxAge is the cutoff for output archival when the
	// caller passes no age.
	DefaultArchiveMaxAge = 30 * 24 * time.Hour

	agentWorkers = 4
)

// CleanReport summarizes one CleanTemp sweep.
type CleanReport struct {
	TempRemoved  int
	CacheRemoved int
	Swept        int
	Skipped      int
}

// Manager runs retention sweeps against one namespace.
type Manager struct {
	ns     *layout.Namespace
	cache  cache.Store
	logger logging.Logger
	now    func() time.Time
}

// Option customizes the manager.
type Option func(*Manager)

// WithLogger sets the structured sink.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.OrNop(l)
	}
}

// WithClock injects a deterministic clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a manager over ns that sweeps cache entries through
// store.
func New(ns *layout.Namespace, store cache.Store, opts ...Option) *Manager {
	m := &Manager{
		ns:     ns,
		cache:  store,
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CleanTemp removes shared temp entries and per-agent cache files
// older than maxAge, then sweeps expired cache entries. maxAge <= 0
// falls back to DefaultTempMaxAge. Removal failures are logged and
// counted as skipped, never fatal; the returned error covers only
// listing failures and cancellation.
func (m *Manager) CleanTemp(ctx context.Context, maxAge time.Duration) (CleanReport, error) {
	if maxAge <= 0 {
		maxAge = DefaultTempMaxAge
	}
	cutoff := m.now().Add(-maxAge)

	var report CleanReport
	report.TempRemoved, report.Skipped = m.cleanShared(cutoff)

	agents, err := m.ns.Agents()
	if err != nil {
		return report, fmt.Errorf("retention: %w", err)
	}

	results := make([]agentCleanResult, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(agentWorkers)
	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = m.cleanAgent(gctx, agent, cutoff)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("retention: clean interrupted: %w", err)
	}

	for _, res := range results {
		report.CacheRemoved += res.removed
		report.Swept += res.swept
		report.Skipped += res.skipped
	}
	m.logger.Info("temp clean finished",
		"temp_removed", report.TempRemoved,
		"cache_removed", report.CacheRemoved,
		"swept", report.Swept,
		"skipped", report.Skipped)
	return report, nil
}

// cleanShared removes aged entries from the shared temp area.
// Archive staging directories are never touched here: live ones
// belong to a running archiver and orphaned ones hold original
// output files that only archive recovery may reclaim.
func (m *Manager) cleanShared(cutoff time.Time) (removed, skipped int) {
	dir := m.ns.TempPath()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("temp area unreadable", "path", dir, "error", err)
			skipped++
		}
		return removed, skipped
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() && strings.HasPrefix(name, stagingPrefix) {
			skipped++
			continue
		}
		info, err := entry.Info()
		if err != nil {
			skipped++
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			m.logger.Warn("temp entry not removed", "entry", name, "error", err)
			skipped++
			continue
		}
		removed++
	}
	return removed, skipped
}

type agentCleanResult struct {
	removed int
	swept   int
	skipped int
}

// cleanAgent ages out cache files for one agent and sweeps its
// expired entries. Dot-prefixed names are skipped so an in-flight
// atomic write is never pulled out from under its writer.
func (m *Manager) cleanAgent(ctx context.Context, agent string, cutoff time.Time) agentCleanResult {
	var res agentCleanResult
	dir := m.ns.CachePath(agent)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("cache area unreadable", "agent", agent, "error", err)
			res.skipped++
		}
		return res
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			res.skipped++
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			m.logger.Warn("cache file not removed", "agent", agent, "file", name, "error", err)
			res.skipped++
			continue
		}
		res.removed++
	}

	swept, err := m.cache.Sweep(ctx, agent)
	if err != nil {
		m.logger.Warn("cache sweep failed", "agent", agent, "error", err)
		res.skipped++
	}
	res.swept = swept
	return res
}
