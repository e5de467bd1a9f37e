// Package metadata persists the fingerprint of the last successful
// extraction pass.
//
// The fingerprint is the ordered list of CRC-32 values of every code unit in
// the archive. It is stored in a flat key-value record shared by all
// processes of an application: one integer field "count" plus one field per
// position, "crc0", "crc1", and so on.
//
// Stores provide no cross-process transactions. Concurrent writers overwrite
// each other and the last writer wins; readers treat anything unreadable as
// "no fingerprint", which only costs a redundant extraction pass.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
)

const (
	// CountKey holds the number of checksums in the fingerprint.
	CountKey = "count"

	// ChecksumKeyPrefix prefixes the positional checksum keys.
	ChecksumKeyPrefix = "crc"
)

// ErrUnavailable is returned when the store cannot be read or written.
var ErrUnavailable = errors.New("dexcache: metadata unavailable")

// Store is a durable integer key-value record.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key. ok is false if the key has
	// never been written.
	Get(ctx context.Context, key string) (value int64, ok bool, err error)

	// Put writes all values as one batch, overwriting existing keys.
	Put(ctx context.Context, values map[string]int64) error
}

// ChecksumKey returns the key for the checksum at position i.
func ChecksumKey(i int) string {
	return ChecksumKeyPrefix + strconv.Itoa(i)
}

// Fingerprints reads and writes the checksum fingerprint in a Store.
type Fingerprints struct {
	store  Store
	logger *slog.Logger
}

// NewFingerprints wraps store. A nil logger discards log output.
func NewFingerprints(store Store, logger *slog.Logger) *Fingerprints {
	return &Fingerprints{store: store, logger: logger}
}

func (f *Fingerprints) log() *slog.Logger {
	if f.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.logger
}

// Load returns the stored fingerprint. It never fails: a missing, partial,
// or unreadable record yields an empty slice.
func (f *Fingerprints) Load(ctx context.Context) []uint32 {
	sums, err := f.read(ctx)
	if err != nil {
		f.log().Warn("stored fingerprint unavailable", "error", err)
		return []uint32{}
	}
	return sums
}

func (f *Fingerprints) read(ctx context.Context) ([]uint32, error) {
	if f.store == nil {
		return []uint32{}, nil
	}
	count, ok, err := f.store.Get(ctx, CountKey)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrUnavailable, CountKey, err)
	}
	if !ok {
		return []uint32{}, nil
	}
	if count < 0 || count > math.MaxInt32 {
		return nil, fmt.Errorf("%w: invalid %s %d", ErrUnavailable, CountKey, count)
	}

	sums := make([]uint32, 0, count)
	for i := range int(count) {
		key := ChecksumKey(i)
		v, ok, err := f.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
		}
		if !ok || v < 0 || v > math.MaxUint32 {
			return nil, fmt.Errorf("%w: missing or invalid %s", ErrUnavailable, key)
		}
		sums = append(sums, uint32(v))
	}
	return sums, nil
}

// Save overwrites the stored fingerprint with sums in one batch.
func (f *Fingerprints) Save(ctx context.Context, sums []uint32) error {
	if f.store == nil {
		return nil
	}
	values := make(map[string]int64, len(sums)+1)
	values[CountKey] = int64(len(sums))
	for i, sum := range sums {
		values[ChecksumKey(i)] = int64(sum)
	}
	if err := f.store.Put(ctx, values); err != nil {
		return fmt.Errorf("%w: put: %v", ErrUnavailable, err)
	}
	return nil
}
