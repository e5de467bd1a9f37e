package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dexcache/internal/testutil"
)

func TestRunLoadAndStatus(t *testing.T) {
	for _, kind := range []string{"file", "sqlite"} {
		t.Run(kind, func(t *testing.T) {
			root := t.TempDir()
			apk := filepath.Join(root, "base.apk")
			dir := filepath.Join(root, "cache", "dex")
			testutil.WriteArchive(t, apk, testutil.DexUnits(3)...)
			args := []string{"--archive", apk, "--dir", dir, "--store", kind, "--log-level", "error"}

			var out bytes.Buffer
			require.NoError(t, run(context.Background(), append(args, "load"), &out))
			lines := strings.Fields(out.String())
			assert.Equal(t, []string{
				filepath.Join(dir, "base.apk.classes2.zip"),
				filepath.Join(dir, "base.apk.classes3.zip"),
			}, lines)

			out.Reset()
			require.NoError(t, run(context.Background(), append(args, "status"), &out))
			assert.Contains(t, out.String(), "fingerprint: match")
			assert.Contains(t, out.String(), "up to date:  true")
		})
	}
}

func TestRunConfigFile(t *testing.T) {
	root := t.TempDir()
	apk := filepath.Join(root, "base.apk")
	testutil.WriteArchive(t, apk, testutil.DexUnits(2)...)
	storePath := filepath.Join(root, "prefs", "fp.json")
	configPath := filepath.Join(root, "dexcache.yaml")
	config := "archive: " + apk + "\n" +
		"dir: " + filepath.Join(root, "ignored") + "\n" +
		"store:\n  kind: file\n  path: " + storePath + "\n  durability: commit\n" +
		"log:\n  level: warn\n  format: json\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	dir := filepath.Join(root, "flag-dir")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--config", configPath, "--dir", dir}, &out))

	assert.FileExists(t, filepath.Join(dir, "base.apk.classes2.zip"), "flag overrides file")
	assert.NoDirExists(t, filepath.Join(root, "ignored"))
	assert.FileExists(t, storePath)
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing archive", []string{"--dir", "/tmp/x"}},
		{"missing dir", []string{"--archive", "a.apk"}},
		{"bad store", []string{"--archive", "a.apk", "--dir", "d", "--store", "redis"}},
		{"bad durability", []string{"--archive", "a.apk", "--dir", "d", "--durability", "eventually"}},
		{"bad level", []string{"--archive", "a.apk", "--dir", "d", "--log-level", "loud"}},
		{"bad format", []string{"--archive", "a.apk", "--dir", "d", "--log-format", "xml"}},
		{"two commands", []string{"--archive", "a.apk", "--dir", "d", "load", "status"}},
		{"missing config", []string{"--config", "/nonexistent/dexcache.yaml"}},
		{"store inside dir", []string{"--archive", "a.apk", "--dir", "/var/cache/dex", "--store-path", "/var/cache/dex/fp.json"}},
		{"store is dir", []string{"--archive", "a.apk", "--dir", "/var/cache/dex", "--store-path", "/var/cache/dex/"}},
		{"relative store inside dir", []string{"--archive", "a.apk", "--dir", "cache/dex", "--store", "sqlite", "--store-path", "cache/dex/sub/fp.db"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := parseArgs(tt.args, &bytes.Buffer{})
			require.Error(t, err)
		})
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/var/cache/dex", "/var/cache/dex/fp.json", true},
		{"/var/cache/dex", "/var/cache/dex", true},
		{"/var/cache/dex", "/var/cache/dexcache.prefs.json", false},
		{"/var/cache/dex", "/var/cache/fp.json", false},
		{"/var/cache/dex", "/var/cache/dex/../fp.json", false},
		{"cache/dex", "cache/dex/a/b.db", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, within(tt.dir, tt.path), "within(%q, %q)", tt.dir, tt.path)
	}
}

func TestParseArgsStoreOutsideDir(t *testing.T) {
	cfg, _, _, err := parseArgs([]string{
		"--archive", "a.apk", "--dir", "/var/cache/dex", "--store-path", "/var/cache/dexcache.prefs.json",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/dexcache.prefs.json", cfg.Store.Path)

	_, _, _, err = parseArgs([]string{
		"--archive", "a.apk", "--dir", "/var/cache/dex", "--store", "none", "--store-path", "/var/cache/dex/fp.json",
	}, &bytes.Buffer{})
	require.NoError(t, err, "no store means nothing to protect")
}

func TestRunUnknownCommand(t *testing.T) {
	root := t.TempDir()
	apk := filepath.Join(root, "base.apk")
	testutil.WriteArchive(t, apk, testutil.DexUnits(1)...)

	err := run(context.Background(), []string{"--archive", apk, "--dir", root, "--store", "none", "purge"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "unknown command")
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"--help"}, &out)
	require.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, out.String(), "Usage: dexcache")
}
