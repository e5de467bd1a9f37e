// Package dexcache extracts the secondary code units embedded in an
// application archive into a private directory, and skips redundant
// extraction across process launches by remembering a fingerprint of the
// archive.
//
// An application archive is a zip holding a primary unit, classes.dex, and
// optional secondary units classes2.dex, classes3.dex, and so on. Each
// secondary unit is published as its own single-entry zip record:
//
//	<dir>/<archive base name>.classes<ordinal>.zip
//
// The fingerprint is the ordered list of CRC-32 values of every unit. It is
// kept in a [metadata.Store]; see the metadata/file and metadata/sqlite
// packages for durable stores shared between processes.
//
// # Quick Start
//
//	store, err := file.New(filepath.Join(dataDir, "prefs", "dexcache.json"))
//	if err != nil {
//	    return err
//	}
//	l := dexcache.New(dexcache.WithStore(store), dexcache.WithLogger(logger))
//	paths, err := l.Load(ctx, dexcache.AppInfo{SourcePath: apkPath}, codeCacheDir, false)
//	if err != nil {
//	    return err // never run with a partial set of units
//	}
//
// # Consistency
//
// Records are written to a temporary file in the destination directory,
// verified, and renamed into place, so a record is visible under its final
// name only when complete. Files in the destination directory that do not
// carry the current archive's name prefix are deleted before any other work.
// The fingerprint is stored only after every unit of a pass succeeded.
//
// # Concurrent processes
//
// Load takes no lock. Several processes may load into the same directory and
// store at once. Two of them can both decide a unit needs extraction and both
// extract it; each publishes an identical record and the last fingerprint
// write wins. This duplicates work but never exposes a partial or stale
// record.
package dexcache
