package dexcache

import (
	"log/slog"
	"os"

	"github.com/meigma/dexcache/metadata"
)

// Option configures a Loader.
type Option func(*Loader)

// WithStore sets the store holding the fingerprint of the last successful
// pass. Without a store every Load re-extracts all units.
func WithStore(store metadata.Store) Option {
	return func(l *Loader) {
		l.store = store
	}
}

// WithLogger sets the logger for load diagnostics.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithProgress sets a callback that receives progress events.
func WithProgress(fn ProgressFunc) Option {
	return func(l *Loader) {
		l.progress = fn
	}
}

// WithDirPerm sets the permissions used when creating the destination
// directory. Defaults to 0o700.
func WithDirPerm(mode os.FileMode) Option {
	return func(l *Loader) {
		l.dirPerm = mode
	}
}
