// Package archive inspects the code units embedded in an application archive.
//
// The primary unit is stored as classes.dex. Secondary units are stored as
// classes2.dex, classes3.dex, and so on. Ordinals must be contiguous: the
// first missing ordinal ends enumeration.
package archive

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"time"

	"github.com/klauspost/compress/zip"
)

const (
	// EntryPrefix is the name prefix shared by all code unit entries.
	EntryPrefix = "classes"

	// EntrySuffix is the name suffix shared by all code unit entries.
	EntrySuffix = ".dex"

	// PrimaryName is the entry name of the always-loaded primary unit.
	PrimaryName = EntryPrefix + EntrySuffix

	// FirstSecondary is the ordinal of the first secondary unit.
	FirstSecondary = 2
)

// ErrUnreadable is returned when the archive cannot be opened or has no
// primary unit.
var ErrUnreadable = errors.New("dexcache: archive unreadable")

// Entry describes one code unit inside the archive.
type Entry struct {
	Ordinal  int
	Name     string
	CRC32    uint32
	Modified time.Time

	file *zip.File
}

// EntryName returns the archive entry name for a unit ordinal.
// Ordinal 1 names the primary unit.
func EntryName(ordinal int) string {
	if ordinal <= 1 {
		return PrimaryName
	}
	return EntryPrefix + strconv.Itoa(ordinal) + EntrySuffix
}

// Archive is a read-only handle on an application archive.
type Archive struct {
	path    string
	rc      *zip.ReadCloser
	files   map[string]*zip.File
	primary Entry
}

// Open opens the archive at path read-only and locates its primary unit.
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnreadable, path, err)
	}

	files := make(map[string]*zip.File, len(rc.File))
	for _, f := range rc.File {
		// First occurrence wins, matching central directory lookup order.
		if _, ok := files[f.Name]; !ok {
			files[f.Name] = f
		}
	}

	a := &Archive{path: path, rc: rc, files: files}
	primary, ok := a.lookup(1)
	if !ok {
		_ = rc.Close()
		return nil, fmt.Errorf("%w: %s has no %s entry", ErrUnreadable, path, PrimaryName)
	}
	a.primary = primary
	return a, nil
}

// Path returns the filesystem path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Primary returns the primary unit entry.
func (a *Archive) Primary() Entry {
	return a.primary
}

// Secondary returns the secondary unit with the given ordinal, if present.
func (a *Archive) Secondary(ordinal int) (Entry, bool) {
	if ordinal < FirstSecondary {
		return Entry{}, false
	}
	return a.lookup(ordinal)
}

// Secondaries yields secondary units in ascending ordinal order, probing
// lazily and stopping at the first missing ordinal.
func (a *Archive) Secondaries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for ordinal := FirstSecondary; ; ordinal++ {
			entry, ok := a.lookup(ordinal)
			if !ok || !yield(entry) {
				return
			}
		}
	}
}

// Checksums returns the CRC-32 of the primary unit followed by those of all
// secondary units, in ordinal order.
func (a *Archive) Checksums() []uint32 {
	sums := []uint32{a.primary.CRC32}
	for entry := range a.Secondaries() {
		sums = append(sums, entry.CRC32)
	}
	return sums
}

// OpenEntry returns a reader over the uncompressed bytes of entry. The zip
// reader reports a checksum error at EOF if the bytes do not match CRC32.
func (a *Archive) OpenEntry(entry Entry) (io.ReadCloser, error) {
	if entry.file == nil {
		return nil, fmt.Errorf("open %s: entry not from this archive", entry.Name)
	}
	r, err := entry.file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", entry.Name, err)
	}
	return r, nil
}

// Close releases the archive's read handle.
func (a *Archive) Close() error {
	return a.rc.Close()
}

func (a *Archive) lookup(ordinal int) (Entry, bool) {
	name := EntryName(ordinal)
	f, ok := a.files[name]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Ordinal:  ordinal,
		Name:     name,
		CRC32:    f.CRC32,
		Modified: f.Modified,
		file:     f,
	}, true
}
