package dexcache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/meigma/dexcache/internal/archive"
	"github.com/meigma/dexcache/metadata"
)

const (
	// MaxExtractAttempts bounds the extract-and-verify cycles per unit.
	MaxExtractAttempts = 3

	// RecordNameExt separates the archive name from the ordinal in record names.
	RecordNameExt = ".classes"

	// RecordSuffix is the file extension of extracted records.
	RecordSuffix = ".zip"

	defaultDirPerm = 0o700
)

// AppInfo identifies the application whose archive is loaded.
type AppInfo struct {
	// SourcePath is the filesystem path of the application archive.
	SourcePath string
}

// GenerationPrefix returns the file name prefix shared by every record
// extracted from the archive at sourcePath.
func GenerationPrefix(sourcePath string) string {
	return filepath.Base(sourcePath) + RecordNameExt
}

// RecordPath returns the deterministic record path for a secondary unit.
func RecordPath(dir, sourcePath string, ordinal int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d%s", GenerationPrefix(sourcePath), ordinal, RecordSuffix))
}

// Loader extracts secondary code units and caches their fingerprint.
//
// A Loader holds no mutable state and is safe for concurrent use.
type Loader struct {
	store    metadata.Store
	logger   *slog.Logger
	progress ProgressFunc
	dirPerm  os.FileMode

	// Filesystem and verification hooks, replaced in tests.
	readDir   func(string) ([]os.DirEntry, error)
	removeAll func(string) error
	verify    func(string) bool
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		dirPerm:   defaultDirPerm,
		readDir:   os.ReadDir,
		removeAll: os.RemoveAll,
	}
	l.verify = l.verifyZip
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// log returns the logger, falling back to a discard logger if nil.
func (l *Loader) log() *slog.Logger {
	if l.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.logger
}

func (l *Loader) report(stage ProgressStage, ordinal int, path string, attempt int) {
	if l.progress == nil {
		return
	}
	l.progress(ProgressEvent{Stage: stage, Ordinal: ordinal, Path: path, Attempt: attempt})
}

func (l *Loader) fingerprints() *metadata.Fingerprints {
	return metadata.NewFingerprints(l.store, l.logger)
}

// Load makes every secondary code unit of app's archive available as a
// single-entry zip record in dir and returns the record paths in ordinal
// order. The result is empty when the archive has no secondary units.
//
// Records are reused when the stored fingerprint matches the archive and the
// record file exists; otherwise they are extracted, verified, and atomically
// published. forceReload re-extracts every unit regardless. The fingerprint
// is stored only after every unit of the pass succeeded; a failure to store
// it is logged and costs a redundant extraction on the next Load.
//
// Load returns an error wrapping ErrArchiveUnreadable, ErrDirectoryCreate,
// or ErrExtractionFailed (as *ExtractionError). The caller must not proceed
// with a partial set of units.
//
// ctx is passed to the metadata store. Extraction itself is bounded by
// MaxExtractAttempts, not by cancellation.
func (l *Loader) Load(ctx context.Context, app AppInfo, dir string, forceReload bool) ([]string, error) {
	l.log().Info("load", "archive", app.SourcePath, "dir", dir, "force_reload", forceReload)
	prefix := GenerationPrefix(app.SourcePath)

	// Hygiene runs before any checksum decision, and only ever removes files
	// of another generation, so it cannot delete records a concurrent Load of
	// this generation has just published.
	l.report(StagePreparing, 0, dir, 0)
	if err := l.prepareDir(dir, prefix); err != nil {
		return nil, err
	}

	arc, err := archive.Open(app.SourcePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := arc.Close(); err != nil {
			l.log().Warn("failed to close archive", "archive", app.SourcePath, "error", err)
		}
	}()

	l.report(StageInspecting, 0, dir, 0)
	fp := l.fingerprints()
	sums := arc.Checksums()
	reload := forceReload
	if stored := fp.Load(ctx); !slices.Equal(stored, sums) {
		l.log().Info("fingerprint changed, reloading all units", "stored", len(stored), "current", len(sums))
		reload = true
	}

	paths := []string{}
	extracted := 0
	for entry := range arc.Secondaries() {
		path := RecordPath(dir, app.SourcePath, entry.Ordinal)
		paths = append(paths, path)

		if !reload && isRegularFile(path) {
			l.log().Debug("no extraction needed", "ordinal", entry.Ordinal, "path", path)
			l.report(StageTrusted, entry.Ordinal, path, 0)
			continue
		}

		l.log().Info("extraction needed", "ordinal", entry.Ordinal, "path", path)
		if err := l.extractWithRetry(arc, entry, path, prefix); err != nil {
			return nil, err
		}
		extracted++
	}

	if reload || extracted > 0 {
		l.report(StagePersisting, 0, dir, 0)
		if err := fp.Save(ctx, sums); err != nil {
			l.log().Warn("failed to store fingerprint", "error", err)
		}
	}

	l.log().Info("load complete", "units", len(paths), "extracted", extracted)
	return paths, nil
}

// extractWithRetry runs up to MaxExtractAttempts extract-and-verify cycles
// for one unit.
func (l *Loader) extractWithRetry(arc *archive.Archive, entry archive.Entry, path, prefix string) error {
	var lastErr error
	for attempt := 1; attempt <= MaxExtractAttempts; attempt++ {
		l.report(StageExtracting, entry.Ordinal, path, attempt)
		err := l.extractUnit(arc, entry, path, prefix)
		if err == nil {
			l.report(StageVerified, entry.Ordinal, path, attempt)
			return nil
		}
		lastErr = err
		l.log().Warn("extraction attempt failed",
			"ordinal", entry.Ordinal, "path", path, "attempt", attempt, "error", err)
		l.report(StageAttemptFailed, entry.Ordinal, path, attempt)
	}
	return &ExtractionError{
		Ordinal:  entry.Ordinal,
		Path:     path,
		Attempts: MaxExtractAttempts,
		Err:      lastErr,
	}
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
