// Package testutil builds application archive fixtures for tests.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// FixtureTime is the modification time stamped on fixture entries.
var FixtureTime = time.Date(2024, time.March, 9, 14, 30, 12, 0, time.UTC)

// Unit is one entry written into a fixture archive.
type Unit struct {
	Name     string
	Data     []byte
	Modified time.Time
}

// DexUnits returns a primary classes.dex plus secondaries classes2.dex up to
// classes<last>.dex, each with distinct content.
func DexUnits(last int) []Unit {
	units := []Unit{{Name: "classes.dex", Data: dexPayload(1, "primary")}}
	for i := 2; i <= last; i++ {
		units = append(units, Unit{
			Name: fmt.Sprintf("classes%d.dex", i),
			Data: dexPayload(i, "secondary"),
		})
	}
	return units
}

// WithData returns a copy of units with the named unit's content replaced.
func WithData(units []Unit, name string, data []byte) []Unit {
	out := make([]Unit, len(units))
	copy(out, units)
	for i := range out {
		if out[i].Name == name {
			out[i].Data = data
		}
	}
	return out
}

// WriteArchive writes an application archive containing units plus a
// manifest entry to path. Entries are stored uncompressed so tests can
// corrupt their bytes in place.
func WriteArchive(tb testing.TB, path string, units ...Unit) {
	tb.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	all := append([]Unit{{Name: "AndroidManifest.xml", Data: []byte("<manifest/>")}}, units...)
	for _, u := range all {
		modified := u.Modified
		if modified.IsZero() {
			modified = FixtureTime
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     u.Name,
			Method:   zip.Store,
			Modified: modified,
		})
		if err != nil {
			tb.Fatalf("create entry %s: %v", u.Name, err)
		}
		if _, err := w.Write(u.Data); err != nil {
			tb.Fatalf("write entry %s: %v", u.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close archive: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		tb.Fatalf("create archive dir: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		tb.Fatalf("write archive: %v", err)
	}
}

// CorruptEntry flips the first data byte of the named stored entry without
// touching its recorded CRC-32, so reads fail their checksum.
func CorruptEntry(tb testing.TB, path, name string) {
	tb.Helper()

	zr, err := zip.OpenReader(path)
	if err != nil {
		tb.Fatalf("open archive: %v", err)
	}
	var offset int64 = -1
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		if f.Method != zip.Store || f.UncompressedSize64 == 0 {
			tb.Fatalf("entry %s must be stored and non-empty", name)
		}
		offset, err = f.DataOffset()
		if err != nil {
			tb.Fatalf("data offset %s: %v", name, err)
		}
	}
	_ = zr.Close()
	if offset < 0 {
		tb.Fatalf("entry %s not found", name)
	}

	data, err := os.ReadFile(path) //nolint:gosec // test fixture path
	if err != nil {
		tb.Fatalf("read archive: %v", err)
	}
	data[offset] ^= 0xff
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write archive: %v", err)
	}
}

// ReadRecord returns the single entry of an extracted record.
func ReadRecord(tb testing.TB, path string) (name string, data []byte, modified time.Time) {
	tb.Helper()

	zr, err := zip.OpenReader(path)
	if err != nil {
		tb.Fatalf("open record %s: %v", path, err)
	}
	defer zr.Close()
	if len(zr.File) != 1 {
		tb.Fatalf("record %s has %d entries, want 1", path, len(zr.File))
	}
	f := zr.File[0]
	rc, err := f.Open()
	if err != nil {
		tb.Fatalf("open record entry: %v", err)
	}
	defer rc.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(rc); err != nil {
		tb.Fatalf("read record entry: %v", err)
	}
	return f.Name, out.Bytes(), f.Modified
}

func dexPayload(ordinal int, kind string) []byte {
	return bytes.Repeat([]byte(fmt.Sprintf("dex\n035 %s unit %d;", kind, ordinal)), 64)
}
