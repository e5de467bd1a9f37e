package dexcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// prepareDir ensures dir exists and removes every entry not named with the
// current generation prefix. Cleanup failures are logged and skipped.
func (l *Loader) prepareDir(dir, prefix string) error {
	if err := os.MkdirAll(dir, l.dirPerm); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDirectoryCreate, dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDirectoryCreate, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrDirectoryCreate, dir)
	}

	entries, err := l.readDir(dir)
	if err != nil {
		l.log().Warn("failed to list destination directory", "dir", dir, "error", err)
		return nil
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		if err := l.removeAll(path); err != nil {
			l.log().Warn("failed to delete stale file", "path", path, "size", size, "error", err)
			continue
		}
		l.log().Info("deleted stale file", "path", path, "size", size)
	}
	return nil
}
