package dexcache

import (
	"errors"
	"log/slog"

	"github.com/klauspost/compress/zip"
)

// VerifyZip reports whether path can be opened and closed as a zip archive.
// Errors are reported as false, never returned.
func VerifyZip(path string) bool {
	return verifyZip(path, nil)
}

func (l *Loader) verifyZip(path string) bool {
	return verifyZip(path, l.log())
}

func verifyZip(path string, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			logger.Warn("file is not a valid zip file", "path", path, "error", err)
		} else {
			logger.Warn("failed to open zip file", "path", path, "error", err)
		}
		return false
	}
	if err := zr.Close(); err != nil {
		logger.Warn("failed to close zip file", "path", path, "error", err)
		return false
	}
	return true
}
