package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGlobRewriter_ExpandsLazyGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pages"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", "a.js"), []byte(`export default 1`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", "b.js"), []byte(`export default 2`), 0644))

	var gotBase, gotPattern, gotImporter string
	gr := &GlobRewriter{
		OnMatch: func(base, pattern, importingModule string) {
			gotBase, gotPattern, gotImporter = base, pattern, importingModule
		},
	}

	code := `const pages = import.meta.glob("./pages/*.js")`
	out, err := gr.Rewrite(code, filepath.Join(dir, "app.js"))
	require.NoError(t, err)
	require.Contains(t, out, `"./pages/a.js":() => import("./pages/a.js")`)
	require.Contains(t, out, `"./pages/b.js":() => import("./pages/b.js")`)
	require.Equal(t, dir, gotBase)
	require.Equal(t, "./pages/*.js", gotPattern)
	require.Equal(t, filepath.Join(dir, "app.js"), gotImporter)
}

func TestGlobRewriter_EagerOptionAwaitsImport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte(`export default 1`), 0644))

	gr := &GlobRewriter{}
	code := `const pages = import.meta.glob("./a.js", {eager: true})`
	out, err := gr.Rewrite(code, filepath.Join(dir, "app.js"))
	require.NoError(t, err)
	require.Contains(t, out, `"./a.js":(await import("./a.js"))`)
}

func TestGlobRewriter_NoGlobCallIsNoop(t *testing.T) {
	gr := &GlobRewriter{}
	code := `const x = 1`
	out, err := gr.Rewrite(code, "/app.js")
	require.NoError(t, err)
	require.Equal(t, code, out)
}
