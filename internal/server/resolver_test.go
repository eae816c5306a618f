package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootFileReader_AllowsFileWithinRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte("export {}"), 0644))

	fr := &rootFileReader{roots: []string{dir}}
	data, ok, err := fr.ReadAllowed(filepath.Join(dir, "main.js"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "export {}", string(data))
}

func TestRootFileReader_RejectsPathOutsideAllRoots(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.js"), []byte("x"), 0644))

	fr := &rootFileReader{roots: []string{dir}}
	_, ok, err := fr.ReadAllowed(filepath.Join(outside, "secret.js"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRootFileReader_MissingFileReturnsNotOkNoError(t *testing.T) {
	dir := t.TempDir()
	fr := &rootFileReader{roots: []string{dir}}
	_, ok, err := fr.ReadAllowed(filepath.Join(dir, "missing.js"))
	require.NoError(t, err)
	require.False(t, ok)
}
