// internal/fsutil/fsutil.go
//
// Filesystem helpers shared by the stores. Writes are committed by
// renaming a temporary file in the destination directory, so readers
// never observe a partially written file.

package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path via a temporary file in the same
// directory followed by a rename. On any failure the temporary file is
// removed and the previous contents of path are left untouched.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("fsutil: create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("fsutil: create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsutil: write temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsutil: sync temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fsutil: close temp file %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fsutil: chmod temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fsutil: commit %s: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst, creating parent directories as needed.
// The destination is committed atomically.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("fsutil: open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("fsutil: stat %s: %w", src, err)
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("fsutil: read %s: %w", src, err)
	}
	return AtomicWriteFile(dst, data, info.Mode().Perm())
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
