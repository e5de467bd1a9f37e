package dexcache

import (
	"errors"
	"fmt"

	"github.com/meigma/dexcache/internal/archive"
	"github.com/meigma/dexcache/metadata"
)

// Errors re-exported from internal packages.
var (
	// ErrArchiveUnreadable is returned when the source archive is missing,
	// malformed, or has no primary code unit.
	ErrArchiveUnreadable = archive.ErrUnreadable

	// ErrMetadataUnavailable marks fingerprint store failures. Load never
	// returns it; it only appears in logs.
	ErrMetadataUnavailable = metadata.ErrUnavailable
)

// Sentinel errors specific to the dexcache package.
var (
	// ErrDirectoryCreate is returned when the destination directory cannot
	// be created or exists but is not a directory.
	ErrDirectoryCreate = errors.New("dexcache: cannot create destination directory")

	// ErrExtractionFailed is returned when a code unit could not be
	// extracted and verified within the attempt limit.
	ErrExtractionFailed = errors.New("dexcache: extraction failed")
)

// ExtractionError describes a code unit that failed every extraction attempt.
type ExtractionError struct {
	Ordinal  int
	Path     string
	Attempts int
	Err      error // last attempt's cause, may be nil
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("dexcache: could not create %s for secondary unit %d after %d attempts",
		e.Path, e.Ordinal, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the last attempt's cause.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is reports ErrExtractionFailed as a match.
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}
