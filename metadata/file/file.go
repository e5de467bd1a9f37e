// Package file provides a metadata store backed by a single JSON file.
//
// The file holds one flat JSON object of integer fields, encoded in RFC 8785
// canonical form so that identical records are byte-identical on disk. Every
// Put reads the current object, merges the new values, and atomically
// replaces the file. Concurrent writers in different processes race; the
// last rename wins.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/gowebpki/jcs"

	"github.com/meigma/dexcache/internal/atomicfile"
)

const (
	defaultFilePerm = 0o600
	defaultDirPerm  = 0o700
)

// Durability selects how Put hands data to the filesystem.
type Durability int

const (
	// DurabilityApply renames the new file into place without waiting for
	// it to reach stable storage. A crash may lose the latest record.
	DurabilityApply Durability = iota

	// DurabilityCommit syncs the new file before renaming it into place.
	DurabilityCommit
)

func (d Durability) String() string {
	switch d {
	case DurabilityApply:
		return "apply"
	case DurabilityCommit:
		return "commit"
	default:
		return fmt.Sprintf("Durability(%d)", int(d))
	}
}

type config struct {
	durability Durability
	filePerm   os.FileMode
	dirPerm    os.FileMode
}

// Option configures a file store.
type Option func(*config)

// WithDurability sets the write durability. Defaults to DurabilityApply.
func WithDurability(d Durability) Option {
	return func(c *config) {
		c.durability = d
	}
}

// WithFilePerm sets the permissions of the record file.
func WithFilePerm(mode os.FileMode) Option {
	return func(c *config) {
		c.filePerm = mode
	}
}

// WithDirPerm sets the permissions used when creating the parent directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *config) {
		c.dirPerm = mode
	}
}

// Store implements metadata.Store on a JSON file.
type Store struct {
	path     string
	filePerm os.FileMode
	commit   func(path string, data []byte, perm os.FileMode) error
	mu       sync.Mutex
}

// New creates a store for the record file at path, creating its parent
// directory if needed. The file itself is created on first Put.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("record path is empty")
	}
	cfg := config{
		durability: DurabilityApply,
		filePerm:   defaultFilePerm,
		dirPerm:    defaultDirPerm,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var commit func(string, []byte, os.FileMode) error
	switch cfg.durability {
	case DurabilityApply:
		commit = func(path string, data []byte, perm os.FileMode) error {
			return atomicfile.WriteFile(path, data, perm, false)
		}
	case DurabilityCommit:
		commit = func(path string, data []byte, perm os.FileMode) error {
			return atomicfile.WriteFile(path, data, perm, true)
		}
	default:
		return nil, fmt.Errorf("unknown durability %v", cfg.durability)
	}

	if err := os.MkdirAll(filepath.Dir(path), cfg.dirPerm); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	return &Store{path: path, filePerm: cfg.filePerm, commit: commit}, nil
}

// Path returns the record file path.
func (s *Store) Path() string {
	return s.path
}

// Get implements metadata.Store.
func (s *Store) Get(_ context.Context, key string) (int64, bool, error) {
	values, err := s.read()
	if err != nil {
		return 0, false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Put implements metadata.Store. Keys not present in values are preserved.
func (s *Store) Put(_ context.Context, values map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		// An unreadable record is replaced rather than left to block writes.
		current = make(map[string]int64, len(values))
	}
	maps.Copy(current, values)

	raw, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return fmt.Errorf("canonicalize record: %w", err)
	}
	if err := s.commit(s.path, canonical, s.filePerm); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func (s *Store) read() (map[string]int64, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	values := make(map[string]int64)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", s.path, err)
	}
	return values, nil
}
