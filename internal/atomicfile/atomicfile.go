// Package atomicfile writes files that become visible under their final
// name all at once, or not at all.
//
// A File is a temporary file created next to its destination. Publish
// renames it into place; Discard removes it. Discard after a successful
// Publish is a no-op, so callers can defer Discard unconditionally.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File is a temporary file awaiting publication.
type File struct {
	*os.File
	tmpPath string
	closed  bool
	done    bool
}

// Create creates a temporary file in dir. pattern follows os.CreateTemp:
// the last "*" is replaced by a random string.
func Create(dir, pattern string) (*File, error) {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &File{File: tmp, tmpPath: tmp.Name()}, nil
}

// TempPath returns the current path of the unpublished file.
func (f *File) TempPath() string {
	return f.tmpPath
}

// Close closes the underlying file. It is safe to call more than once.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.File.Close()
}

// Publish closes the file and renames it to target. target must be on the
// same filesystem as the temporary file. On failure the temporary file is
// removed and target is left untouched.
func (f *File) Publish(target string) error {
	if f.done {
		return errors.New("atomicfile: already finished")
	}
	if err := f.Close(); err != nil {
		_ = f.Discard()
		return fmt.Errorf("close temp file: %w", err)
	}
	if filepath.Dir(target) != filepath.Dir(f.tmpPath) {
		_ = f.Discard()
		return fmt.Errorf("publish %s: target must share directory with %s", target, f.tmpPath)
	}
	if err := os.Rename(f.tmpPath, target); err != nil {
		_ = f.Discard()
		return fmt.Errorf("rename to %s: %w", target, err)
	}
	f.done = true
	return nil
}

// Discard closes and removes the temporary file unless it was published.
func (f *File) Discard() error {
	if f.done {
		return nil
	}
	f.done = true
	_ = f.Close()
	if err := os.Remove(f.tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// WriteFile atomically replaces target with data. sync forces the data to
// stable storage before the rename.
func WriteFile(target string, data []byte, perm os.FileMode, sync bool) error {
	f, err := Create(filepath.Dir(target), "."+filepath.Base(target)+"-*")
	if err != nil {
		return err
	}
	defer f.Discard()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if sync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync temp file: %w", err)
		}
	}
	return f.Publish(target)
}
