package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pleasejs/esmdev/internal/config"
	"github.com/pleasejs/esmdev/internal/logging"
)

func newTestServer(t *testing.T, root string) *Server {
	t.Helper()
	cfg := &config.Config{
		Root:      root,
		ServeDir:  root,
		Port:      0,
		Mode:      "development",
		EntryHTML: "index.html",
		EnvFile:   false,
		Lockfile:  filepath.Join(root, "package-lock.json"),
		CacheDir:  filepath.Join(root, "node_modules", ".esmdev"),
	}
	srv, err := New(cfg, logging.Nop(), func(string) {})
	require.NoError(t, err)
	return srv
}

func TestServeHTTP_TransformsSourceFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(`<html></html>`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.ts"),
		[]byte(`const x: number = 1; export default x;`), 0644))

	srv := newTestServer(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/main.ts", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	require.NotEmpty(t, rec.Header().Get("ETag"))
	require.Contains(t, rec.Body.String(), "export default")
}

func TestServeHTTP_SecondRequestReturns304OnMatchingETag(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(`<html></html>`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte(`export default 1;`), 0644))

	srv := newTestServer(t, dir)

	first := httptest.NewRecorder()
	srv.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/main.js", nil))
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/main.js", nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotModified, rec.Code)
}

func TestServeHTTP_HTMLRequestInjectsImportMap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"),
		[]byte(`<!DOCTYPE html><html><head></head><body></body></html>`), 0644))

	srv := newTestServer(t, dir)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `importmap`)
}

func TestServeHTTP_UnknownSourcePathFallsBackToStatic404ThenHTML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(`<html></html>`), 0644))

	srv := newTestServer(t, dir)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	// favicon.ico has no static file on disk, so handleStatic falls back to
	// serving the entry HTML (SPA-style fallback).
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestServeHTTP_PingEndpointReturnsNoContent(t *testing.T) {
	dir := t.TempDir()
	srv := newTestServer(t, dir)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/__esmdev_ping", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
