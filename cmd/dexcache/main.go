// dexcache extracts the secondary code units of an application archive into
// a cache directory, skipping the work when a previous run already did it.
//
// Usage:
//
//	dexcache [flags] load     extract as needed and print record paths
//	dexcache [flags] status   report fingerprint and record state
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/meigma/dexcache"
	"github.com/meigma/dexcache/metadata"
	"github.com/meigma/dexcache/metadata/file"
	"github.com/meigma/dexcache/metadata/sqlite"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, command, force, err := parseArgs(args, stdout)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []dexcache.Option{dexcache.WithLogger(logger)}
	if store != nil {
		opts = append(opts, dexcache.WithStore(store))
	}
	l := dexcache.New(opts...)
	app := dexcache.AppInfo{SourcePath: cfg.Archive}

	switch command {
	case "load":
		paths, err := l.Load(ctx, app, cfg.Dir, force)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(stdout, p)
		}
		return nil
	case "status":
		report, err := l.Status(ctx, app, cfg.Dir)
		if err != nil {
			return err
		}
		printReport(stdout, report)
		return nil
	default:
		return fmt.Errorf("unknown command %q (want load or status)", command)
	}
}

func parseArgs(args []string, stdout io.Writer) (cfg Config, command string, force bool, err error) {
	var (
		configPath string
		flagCfg    Config
	)
	flagSet := pflag.NewFlagSet("dexcache", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVar(&configPath, "config", "", "YAML config file")
	flagSet.StringVar(&flagCfg.Archive, "archive", "", "application archive path")
	flagSet.StringVar(&flagCfg.Dir, "dir", "", "destination directory for extracted records")
	flagSet.StringVar(&flagCfg.Store.Kind, "store", "", "fingerprint store: file, sqlite, or none (default file)")
	flagSet.StringVar(&flagCfg.Store.Path, "store-path", "", "fingerprint store path")
	flagSet.StringVar(&flagCfg.Store.Durability, "durability", "", "file store durability: apply or commit (default apply)")
	flagSet.BoolVar(&force, "force", false, "re-extract every unit")
	flagSet.StringVar(&flagCfg.Log.Level, "log-level", "", "log level: debug, info, warn, error (default info)")
	flagSet.StringVar(&flagCfg.Log.Format, "log-format", "", "log format: text or json (default text)")
	flagSet.Usage = func() {
		fmt.Fprintln(stdout, "Usage: dexcache [flags] load|status")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return Config{}, "", false, err
	}

	cfg = defaultConfig()
	if configPath != "" {
		if err := loadConfigFile(configPath, &cfg); err != nil {
			return Config{}, "", false, err
		}
	}
	overlay := map[string]func(){
		"archive":    func() { cfg.Archive = flagCfg.Archive },
		"dir":        func() { cfg.Dir = flagCfg.Dir },
		"store":      func() { cfg.Store.Kind = flagCfg.Store.Kind },
		"store-path": func() { cfg.Store.Path = flagCfg.Store.Path },
		"durability": func() { cfg.Store.Durability = flagCfg.Store.Durability },
		"log-level":  func() { cfg.Log.Level = flagCfg.Log.Level },
		"log-format": func() { cfg.Log.Format = flagCfg.Log.Format },
	}
	for name, apply := range overlay {
		if flagSet.Changed(name) {
			apply()
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", false, err
	}

	command = "load"
	switch rest := flagSet.Args(); len(rest) {
	case 0:
	case 1:
		command = rest[0]
	default:
		return Config{}, "", false, fmt.Errorf("expected one command, got %d", len(rest))
	}
	return cfg, command, force, nil
}

func openStore(cfg Config) (metadata.Store, func(), error) {
	noop := func() {}
	path := cfg.Store.Path
	parent := filepath.Dir(filepath.Clean(cfg.Dir))

	switch cfg.Store.Kind {
	case "none":
		return nil, noop, nil
	case "sqlite":
		if path == "" {
			path = filepath.Join(parent, "dexcache.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, noop, fmt.Errorf("create store dir: %w", err)
		}
		s, err := sqlite.New(path)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		if path == "" {
			path = filepath.Join(parent, "dexcache.prefs.json")
		}
		durability := file.DurabilityApply
		if cfg.Store.Durability == "commit" {
			durability = file.DurabilityCommit
		}
		s, err := file.New(path, file.WithDurability(durability))
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}
}

func printReport(w io.Writer, r *dexcache.Report) {
	fmt.Fprintf(w, "archive:     %s\n", r.Archive)
	fmt.Fprintf(w, "units:       %d\n", len(r.Checksums))
	fmt.Fprintf(w, "fingerprint: %s\n", matchLabel(r.FingerprintMatch))
	fmt.Fprintf(w, "up to date:  %t\n", r.UpToDate())
	for _, rec := range r.Records {
		state := "missing"
		switch {
		case rec.Exists && rec.Valid:
			state = "ok"
		case rec.Exists:
			state = "invalid"
		}
		fmt.Fprintf(w, "%3d  %-8s %10d  %s  %s\n", rec.Ordinal, state, rec.Size, rec.Digest, rec.Path)
	}
}

func matchLabel(ok bool) string {
	if ok {
		return "match"
	}
	return "stale"
}
