package dexcache

import (
	"bufio"
	_ "crypto/sha256" // registers digest.Canonical
	"fmt"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	digest "github.com/opencontainers/go-digest"

	"github.com/meigma/dexcache/internal/archive"
	"github.com/meigma/dexcache/internal/atomicfile"
)

const (
	// RecordEntryName is the name of the single entry inside every record.
	RecordEntryName = archive.PrimaryName

	copyBufferSize = 16 << 10

	// tempInfix keeps temporary names disjoint from record names.
	tempInfix = ".tmp-"
)

// extractUnit writes entry into a temporary single-entry zip next to dest,
// verifies it, and renames it to dest. On failure the temporary file is
// removed and dest is left untouched.
//
// The temporary name carries the generation prefix so that a concurrent
// hygiene pass never deletes it.
func (l *Loader) extractUnit(arc *archive.Archive, entry archive.Entry, dest, prefix string) error {
	tmp, err := atomicfile.Create(filepath.Dir(dest), prefix+tempInfix+"*"+RecordSuffix)
	if err != nil {
		return err
	}
	defer tmp.Discard()

	l.log().Debug("extracting", "ordinal", entry.Ordinal, "temp", tmp.TempPath())
	dg := digest.Canonical.Digester()
	cw := &countingWriter{w: io.MultiWriter(tmp, dg.Hash())}
	if err := writeRecord(cw, arc, entry); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.TempPath(), err)
	}

	if !l.verify(tmp.TempPath()) {
		return fmt.Errorf("%s is not a valid zip file", tmp.TempPath())
	}

	if err := tmp.Publish(dest); err != nil {
		return err
	}
	l.log().Info("extraction succeeded",
		"ordinal", entry.Ordinal, "path", dest, "size", cw.n, "digest", dg.Digest().String())
	return nil
}

// writeRecord streams entry's bytes into a zip written to w. The record's
// entry keeps the source entry's modification time, which consumers use as a
// consistency key.
func writeRecord(w io.Writer, arc *archive.Archive, entry archive.Entry) error {
	src, err := arc.OpenEntry(entry)
	if err != nil {
		return err
	}
	defer src.Close()

	bw := bufio.NewWriterSize(w, copyBufferSize)
	zw := zip.NewWriter(bw)
	ew, err := zw.CreateHeader(&zip.FileHeader{
		Name:     RecordEntryName,
		Method:   zip.Deflate,
		Modified: entry.Modified,
	})
	if err != nil {
		return fmt.Errorf("create record entry: %w", err)
	}
	if _, err := io.CopyBuffer(ew, src, make([]byte, copyBufferSize)); err != nil {
		return fmt.Errorf("copy %s: %w", entry.Name, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish record: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	return nil
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
