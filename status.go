package dexcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/dexcache/internal/archive"
)

const statusWorkers = 4

// Report describes the extraction state of an archive and destination
// directory without changing either.
type Report struct {
	Archive string

	// Checksums is the archive's current fingerprint.
	Checksums []uint32

	// Stored is the fingerprint recorded by the last successful Load.
	Stored []uint32

	// FingerprintMatch reports whether Stored equals Checksums. When false
	// the next Load re-extracts every unit.
	FingerprintMatch bool

	Records []RecordStatus
}

// UpToDate reports whether the next Load without forceReload would perform
// no extraction.
func (r *Report) UpToDate() bool {
	if !r.FingerprintMatch {
		return false
	}
	for _, rec := range r.Records {
		if !rec.Exists {
			return false
		}
	}
	return true
}

// RecordStatus describes one expected record file.
type RecordStatus struct {
	Ordinal int
	Path    string
	Exists  bool
	Valid   bool
	Size    int64
	Digest  digest.Digest
}

// Status inspects app's archive, the stored fingerprint, and the records in
// dir. It never writes to dir or the store.
func (l *Loader) Status(ctx context.Context, app AppInfo, dir string) (*Report, error) {
	arc, err := archive.Open(app.SourcePath)
	if err != nil {
		return nil, err
	}
	defer arc.Close()

	sums := arc.Checksums()
	stored := l.fingerprints().Load(ctx)
	report := &Report{
		Archive:          app.SourcePath,
		Checksums:        sums,
		Stored:           stored,
		FingerprintMatch: slices.Equal(sums, stored),
	}
	for entry := range arc.Secondaries() {
		report.Records = append(report.Records, RecordStatus{
			Ordinal: entry.Ordinal,
			Path:    RecordPath(dir, app.SourcePath, entry.Ordinal),
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(statusWorkers)
	for i := range report.Records {
		rec := &report.Records[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return l.inspectRecord(rec)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

func (l *Loader) inspectRecord(rec *RecordStatus) error {
	f, err := os.Open(rec.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", rec.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", rec.Path, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	rec.Exists = true
	rec.Size = info.Size()
	dgst, err := digest.Canonical.FromReader(f)
	if err != nil {
		return fmt.Errorf("digest %s: %w", rec.Path, err)
	}
	rec.Digest = dgst
	rec.Valid = l.verifyZip(rec.Path)
	return nil
}
