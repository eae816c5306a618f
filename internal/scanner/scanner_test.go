package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/require"
)

func TestPackageNameFromSpec(t *testing.T) {
	require.Equal(t, "react", packageNameFromSpec("react"))
	require.Equal(t, "react-dom", packageNameFromSpec("react-dom/client"))
	require.Equal(t, "@scope/pkg", packageNameFromSpec("@scope/pkg"))
	require.Equal(t, "@scope/pkg", packageNameFromSpec("@scope/pkg/sub/path"))
}

func TestExtractScripts_HTMLModuleScript(t *testing.T) {
	html := `<html><body><script type="module">import "./main.js";</script></body></html>`
	code, loader := extractScripts(html, ".html")
	require.Contains(t, code, `import "./main.js";`)
	require.Equal(t, api.LoaderJS, loader)
}

func TestExtractScripts_SrcAttributeBecomesImport(t *testing.T) {
	html := `<html><body><script type="module" src="/src/entry.ts"></script></body></html>`
	code, _ := extractScripts(html, ".html")
	require.Contains(t, code, `import "/src/entry.ts";`)
}

func TestExtractScripts_SkipsNonJSScriptType(t *testing.T) {
	html := `<script type="application/ld+json">{"a":1}</script>`
	code, _ := extractScripts(html, ".html")
	require.NotContains(t, code, `"a":1`)
}

func TestExtractScripts_SFCUsesLangAttribute(t *testing.T) {
	sfc := `<script lang="ts">export const x: number = 1;</script>`
	code, loader := extractScripts(sfc, ".vue")
	require.Contains(t, code, "export const x")
	require.Equal(t, api.LoaderTS, loader)
}

func TestHasGlobImport(t *testing.T) {
	require.True(t, HasGlobImport(`const modules = import.meta.glob("./modules/*.js")`))
	require.False(t, HasGlobImport(`const x = 1;`))
}

func TestScan_EntryDiscoveryFallsBackToHTMLGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"),
		[]byte(`<script type="module">import "react";</script>`), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "react"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "react", "package.json"),
		[]byte(`{"name":"react","main":"index.js"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "react", "index.js"),
		[]byte(`module.exports = {}`), 0644))

	res, err := Scan(Options{Root: dir})
	require.NoError(t, err)
	require.Contains(t, res.Deps, "react")
}

func TestResolvePackageEntry_PrefersModuleOverMain(t *testing.T) {
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "node_modules", "lodash-es")
	require.NoError(t, os.MkdirAll(pkgDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "package.json"),
		[]byte(`{"main":"index.cjs.js","module":"esm/index.js"}`), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(pkgDir, "esm"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "esm", "index.js"), []byte(`export {}`), 0644))

	file, ok := ResolvePackageEntry(dir, "lodash-es")
	require.True(t, ok)
	require.Equal(t, filepath.Join(pkgDir, "esm", "index.js"), file)
}

func TestResolvePackageEntry_SubpathResolvesRelativeToPackageDir(t *testing.T) {
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "node_modules", "react-dom")
	require.NoError(t, os.MkdirAll(filepath.Join(pkgDir, "client"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "package.json"), []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "client.js"), []byte(`export {}`), 0644))

	file, ok := ResolvePackageEntry(dir, "react-dom/client")
	require.True(t, ok)
	require.Equal(t, filepath.Join(pkgDir, "client.js"), file)
}

func TestResolvePackageEntry_MissingPackageFails(t *testing.T) {
	dir := t.TempDir()
	_, ok := ResolvePackageEntry(dir, "nonexistent")
	require.False(t, ok)
}

func TestResolvePackageEntry_UsesExportsFieldOverMain(t *testing.T) {
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "node_modules", "zod")
	require.NoError(t, os.MkdirAll(pkgDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "package.json"), []byte(`{
		"main": "index.cjs",
		"exports": {
			".": {"browser": "./browser.mjs", "default": "./index.cjs"},
			"./mini": {"import": "./mini.mjs"}
		}
	}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "browser.mjs"), []byte(`export {}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "mini.mjs"), []byte(`export {}`), 0644))

	file, ok := ResolvePackageEntry(dir, "zod")
	require.True(t, ok)
	require.Equal(t, filepath.Join(pkgDir, "browser.mjs"), file)

	file, ok = ResolvePackageEntry(dir, "zod/mini")
	require.True(t, ok)
	require.Equal(t, filepath.Join(pkgDir, "mini.mjs"), file)
}
