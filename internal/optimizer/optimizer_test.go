package optimizer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMainHash_ChangesWithLockfileContent(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "package-lock.json")
	require.NoError(t, os.WriteFile(lockPath, []byte(`{"lockfileVersion":3}`), 0644))

	cfg := ConfigSubset{Mode: "development", Root: dir}
	h1, err := MainHash(lockPath, cfg)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(lockPath, []byte(`{"lockfileVersion":3,"extra":1}`), 0644))
	h2, err := MainHash(lockPath, cfg)
	require.NoError(t, err)

	require.NotEqual(t, h1, h2)
}

func TestMainHash_StableForIdenticalInputs(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "package-lock.json")
	require.NoError(t, os.WriteFile(lockPath, []byte(`{"lockfileVersion":3}`), 0644))

	cfg := ConfigSubset{Mode: "development", Root: dir, PluginNames: []string{"b", "a"}}
	h1, err := MainHash(lockPath, cfg)
	require.NoError(t, err)
	h2, err := MainHash(lockPath, cfg)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestBrowserHash_TruncatedToEightChars(t *testing.T) {
	h, err := BrowserHash("abc123", map[string]string{"react": "/x/react/index.js"})
	require.NoError(t, err)
	require.Len(t, h, 8)
}

func TestBrowserHash_ChangesWithDeps(t *testing.T) {
	h1, err := BrowserHash("abc123", map[string]string{"react": "/x/react/index.js"})
	require.NoError(t, err)
	h2, err := BrowserHash("abc123", map[string]string{"react": "/x/react/index.js", "lodash-es": "/x/lodash-es/index.js"})
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestParseExports_DetectsNamedAndReExports(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mod.js")
	require.NoError(t, os.WriteFile(file, []byte("export const x = 1;\nexport * from './other.js';\n"), 0644))

	info, err := parseExports(file)
	require.NoError(t, err)
	require.True(t, info.hasExports)
	require.True(t, info.hasReExports)
	require.False(t, info.onlyDefault)
}

func TestParseExports_CJSLikeFileHasNoImportsOrExports(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mod.js")
	require.NoError(t, os.WriteFile(file, []byte("module.exports = function() {};\n"), 0644))

	info, err := parseExports(file)
	require.NoError(t, err)
	require.False(t, info.hasImports)
	require.False(t, info.hasExports)
}

func TestNeedsInterop_CJSLikeEntryNeedsInterop(t *testing.T) {
	require.True(t, needsInterop("some-cjs-pkg", exportInfo{hasImports: false, hasExports: false}, postExportInfo{}))
}

func TestNeedsInterop_ESMEntryDoesNotNeedInterop(t *testing.T) {
	require.False(t, needsInterop("lodash-es", exportInfo{hasImports: true, hasExports: true, onlyDefault: false}, postExportInfo{onlyDefault: false}))
}

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Metadata{
		MainHash:    "abc",
		BrowserHash: "def12345",
		Optimized: map[string]DepMeta{
			"react": {File: "/react.js", Src: "/node_modules/react/index.js", NeedsInterop: true},
		},
	}
	require.NoError(t, saveMetadata(dir, m))

	loaded, err := loadMetadata(dir)
	require.NoError(t, err)
	require.Equal(t, m.MainHash, loaded.MainHash)
	require.Equal(t, m.Optimized["react"].NeedsInterop, loaded.Optimized["react"].NeedsInterop)
}

func TestRun_SkipsWhenHashUnchanged(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	lockPath := filepath.Join(dir, "package-lock.json")
	require.NoError(t, os.WriteFile(lockPath, []byte(`{"lockfileVersion":3}`), 0644))

	prev := &Metadata{MainHash: mustMainHash(t, lockPath, ConfigSubset{Root: dir}), BrowserHash: "x", Optimized: map[string]DepMeta{}}
	require.NoError(t, os.MkdirAll(cacheDir, 0755))
	require.NoError(t, saveMetadata(cacheDir, prev))

	meta, err := Run(context.Background(), Options{
		CacheDir:     cacheDir,
		LockfilePath: lockPath,
		Config:       ConfigSubset{Root: dir},
	})
	require.NoError(t, err)
	require.Equal(t, prev.MainHash, meta.MainHash)
}

func mustMainHash(t *testing.T, lockPath string, cfg ConfigSubset) string {
	t.Helper()
	h, err := MainHash(lockPath, cfg)
	require.NoError(t, err)
	return h
}
