// internal/retention/archive.go
//
// Crash-safe output archival. Eligible files are renamed into a
// staging directory under temp first, so the bundle is built from
// files the archiver owns and a concurrent agent write is never
// racing the compressor. Originals leave the namespace only after
// the bundle is written, verified, and renamed into place; a crash
// at any earlier point leaves the staging directory for the next
// run's recovery pass.

package retention

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kingrea/The-Relay/internal/fsutil"
)

// ErrArchiveFailure wraps any fault while bundling. Staged originals
// are still recoverable whenever this error is returned.
var ErrArchiveFailure = errors.New("retention: archive failure")

const (
	stagingPrefix = "archive-staging-"
	bundlePrefix  = "archive-"
	bundleSuffix  = ".tar.gz"

	// recoveryGrace is how long a staging directory must sit
	// untouched before it is treated as a crash leftover rather
	// than a live archiver's workspace.
	recoveryGrace = time.Hour
)

// ArchiveReport summarizes one ArchiveOutputs pass.
type ArchiveReport struct {
	Recovered int
	Archived  int
	Bundle    string
}

type agentOutputs struct {
	agent string
	files []string
}

// ArchiveOutputs bundles output files older than maxAge into a dated
// tar.gz under archives/, per agent inside the bundle. maxAge <= 0
// falls back to DefaultArchiveMaxAge. Nothing eligible means no
// bundle. Orphaned staging directories from a crashed earlier pass
// are restored to their agents before anything new is staged.
func (m *Manager) ArchiveOutputs(ctx context.Context, maxAge time.Duration) (ArchiveReport, error) {
	if maxAge <= 0 {
		maxAge = DefaultArchiveMaxAge
	}

	var report ArchiveReport
	recovered, err := m.recoverStaging()
	if err != nil {
		return report, err
	}
	report.Recovered = recovered

	if err := ctx.Err(); err != nil {
		return report, err
	}

	cutoff := m.now().Add(-maxAge)
	agents, err := m.ns.Agents()
	if err != nil {
		return report, fmt.Errorf("retention: %w", err)
	}

	var eligible []agentOutputs
	total := 0
	for _, agent := range agents {
		files, err := m.eligibleOutputs(agent, cutoff)
		if err != nil {
			m.logger.Warn("output area unreadable", "agent", agent, "error", err)
			continue
		}
		if len(files) > 0 {
			eligible = append(eligible, agentOutputs{agent: agent, files: files})
			total += len(files)
		}
	}
	if total == 0 {
		m.logger.Debug("no outputs old enough to archive")
		return report, nil
	}

	staging := filepath.Join(m.ns.TempPath(), fmt.Sprintf("%s%d", stagingPrefix, m.now().UnixNano()))
	staged := 0
	for _, batch := range eligible {
		agentDir := filepath.Join(staging, batch.agent)
		if err := os.MkdirAll(agentDir, 0755); err != nil {
			m.logger.Warn("staging dir not created", "agent", batch.agent, "error", err)
			continue
		}
		for _, name := range batch.files {
			src := filepath.Join(m.ns.OutputPath(batch.agent), name)
			if err := os.Rename(src, filepath.Join(agentDir, name)); err != nil {
				m.logger.Warn("output not staged", "agent", batch.agent, "file", name, "error", err)
				continue
			}
			staged++
		}
	}
	if staged == 0 {
		_ = os.RemoveAll(staging)
		return report, nil
	}

	stamp := m.now().UTC().Format("20060102-150405")
	bundle := filepath.Join(m.ns.ArchivesPath(), bundlePrefix+stamp+bundleSuffix)
	if err := m.writeBundle(bundle, staging, staged); err != nil {
		return report, fmt.Errorf("%w: %v (staged originals kept under %s)", ErrArchiveFailure, err, staging)
	}
	if err := os.RemoveAll(staging); err != nil {
		m.logger.Warn("staging not removed after bundling", "path", staging, "error", err)
	}

	report.Archived = staged
	report.Bundle = bundle
	m.logger.Info("outputs archived", "bundle", filepath.Base(bundle), "files", staged, "recovered", recovered)
	return report, nil
}

// recoverStaging restores files from crash-orphaned staging
// directories to their agents' output areas. Directories touched
// within recoveryGrace are presumed live and left alone.
func (m *Manager) recoverStaging() (int, error) {
	entries, err := os.ReadDir(m.ns.TempPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("retention: read temp area: %w", err)
	}

	deadline := m.now().Add(-recoveryGrace)
	recovered := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), stagingPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(deadline) {
			continue
		}
		staging := filepath.Join(m.ns.TempPath(), entry.Name())
		n, err := m.restoreStagedOutputs(staging)
		recovered += n
		if err != nil {
			m.logger.Warn("staging not fully recovered", "path", staging, "error", err)
			continue
		}
		if err := os.RemoveAll(staging); err != nil {
			m.logger.Warn("recovered staging not removed", "path", staging, "error", err)
		}
	}
	if recovered > 0 {
		m.logger.Info("recovered staged outputs", "files", recovered)
	}
	return recovered, nil
}

func (m *Manager) restoreStagedOutputs(staging string) (int, error) {
	agents, err := os.ReadDir(staging)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, agentEntry := range agents {
		if !agentEntry.IsDir() {
			continue
		}
		agent := agentEntry.Name()
		files, err := os.ReadDir(filepath.Join(staging, agent))
		if err != nil {
			return restored, err
		}
		for _, fileEntry := range files {
			src := filepath.Join(staging, agent, fileEntry.Name())
			dst := filepath.Join(m.ns.OutputPath(agent), fileEntry.Name())
			if fsutil.FileExists(dst) {
				// The agent rewrote this name since the crash; the
				// live file wins and the staged copy is dropped.
				m.logger.Warn("staged output superseded", "agent", agent, "file", fileEntry.Name())
				if err := os.Remove(src); err != nil {
					return restored, err
				}
				continue
			}
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return restored, err
			}
			if err := os.Rename(src, dst); err != nil {
				return restored, err
			}
			restored++
		}
	}
	return restored, nil
}

func (m *Manager) eligibleOutputs(agent string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(m.ns.OutputPath(agent))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// writeBundle compresses the staging tree into a hidden temp file
// next to the final bundle, verifies the entry count by re-reading
// it, and renames it into place.
func (m *Manager) writeBundle(bundle, staging string, want int) error {
	if err := os.MkdirAll(filepath.Dir(bundle), 0755); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(bundle), "."+filepath.Base(bundle)+".tmp")
	if err := compressStaging(tmp, staging); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	got, err := countBundleEntries(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if got != want {
		_ = os.Remove(tmp)
		return fmt.Errorf("bundle holds %d of %d staged files", got, want)
	}
	if err := os.Rename(tmp, bundle); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func compressStaging(path, staging string) (err error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	agents, err := os.ReadDir(staging)
	if err != nil {
		return err
	}
	for _, agentEntry := range agents {
		if !agentEntry.IsDir() {
			continue
		}
		agent := agentEntry.Name()
		files, err := os.ReadDir(filepath.Join(staging, agent))
		if err != nil {
			return err
		}
		for _, fileEntry := range files {
			if fileEntry.IsDir() {
				continue
			}
			if err := addBundleEntry(tw, staging, agent, fileEntry.Name()); err != nil {
				return err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return out.Sync()
}

func addBundleEntry(tw *tar.Writer, staging, agent, name string) error {
	path := filepath.Join(staging, agent, name)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = agent + "/" + name
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(tw, src)
	return err
}

func countBundleEntries(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	count := 0
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return 0, err
		}
		if header.Typeflag == tar.TypeReg {
			count++
		}
	}
}
