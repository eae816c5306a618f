// Package scanner implements the dependency scanner: it drives an esbuild
// build over the project's entry points with a plugin that
// intercepts resolution and loading, to enumerate every bare-module
// specifier reachable from those entries without actually bundling
// anything. Grounded on tools/please_js/esmdev/imports.go's bare-import
// regex and package-name extraction, generalized from "grep the whole
// source tree" to "crawl the real import graph via esbuild's resolver" —
// the latter sees conditional/dynamic imports the former's static walk
// would miss.
package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/pleasejs/esmdev/internal/common"
)

// Result is what a scan produces: the discovered bare-import specifiers
// resolved to an on-disk location, plus any that could not be resolved,
// for diagnostics.
type Result struct {
	Deps    map[string]string // raw_id -> resolved_file
	Missing map[string]string // raw_id -> importer
}

// GlobRewriter rewrites import.meta.glob(...) call sites into explicit
// imports. Implementations live outside this package.
type GlobRewriter interface {
	Rewrite(code, sourcefile string) (string, error)
}

var htmlLikeExt = map[string]bool{
	".html": true, ".vue": true, ".svelte": true, ".astro": true,
}

var assetExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".ico": true,
}

var bareImportRe = regexp.MustCompile(`^[^./]`)

// Options configures a scan.
type Options struct {
	Root         string
	EntryGlobs   []string // optimizeDeps.entries, highest priority
	BundlerInput []string // external bundler's configured input list, next priority
	Include      []string // forced-external/forced-included bare specs
	Exclude      []string
	GlobRewriter GlobRewriter
}

// Scan runs the full dependency scan: entry discovery, then an esbuild
// crawl with resolve/load interception.
func Scan(opts Options) (*Result, error) {
	entries, err := discoverEntries(opts)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &Result{Deps: map[string]string{}, Missing: map[string]string{}}, nil
	}

	c := &crawler{
		opts:    opts,
		deps:    make(map[string]string),
		missing: make(map[string]string),
		visited: make(map[string]bool),
	}

	result := api.Build(api.BuildOptions{
		EntryPoints: entries,
		Bundle:      true,
		Write:       false,
		Format:      api.FormatESModule,
		Platform:    api.PlatformBrowser,
		LogLevel:    api.LogLevelSilent,
		Plugins:     []api.Plugin{c.plugin()},
	})
	// Build errors from intentionally-external/virtual resolutions are
	// expected and not fatal to the scan: the plugin resolves everything it
	// needs to classify; esbuild's own bundling failures on a (by design)
	// incomplete graph are not this scan's concern.
	_ = result

	return &Result{Deps: c.deps, Missing: c.missing}, nil
}

func discoverEntries(opts Options) ([]string, error) {
	if len(opts.EntryGlobs) > 0 {
		return expandGlobs(opts.Root, opts.EntryGlobs)
	}
	if len(opts.BundlerInput) > 0 {
		return filterExisting(opts.BundlerInput), nil
	}
	return expandGlobs(opts.Root, []string{"**/*.html"})
}

func expandGlobs(root string, patterns []string) ([]string, error) {
	var out []string
	for _, pattern := range patterns {
		matches, err := doubleStarGlob(root, pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding entry glob %q: %w", pattern, err)
		}
		out = append(out, matches...)
	}
	return filterExisting(out), nil
}

// doubleStarGlob supports "**/*.ext" patterns filepath.Glob cannot, by
// walking the tree and matching the trailing component with filepath.Match.
func doubleStarGlob(root, pattern string) ([]string, error) {
	if !strings.Contains(pattern, "**") {
		return filepath.Glob(filepath.Join(root, pattern))
	}
	suffix := strings.TrimPrefix(pattern, "**/")
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		if ok, _ := filepath.Match(suffix, info.Name()); ok {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func filterExisting(paths []string) []string {
	var out []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			ext := filepath.Ext(p)
			if htmlLikeExt[ext] || isJSLikeExt(ext) {
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

func isJSLikeExt(ext string) bool {
	switch ext {
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs":
		return true
	}
	return false
}

type crawler struct {
	opts    Options
	deps    map[string]string
	missing map[string]string
	visited map[string]bool
}

func (c *crawler) plugin() api.Plugin {
	return api.Plugin{
		Name: "esmdev-scanner",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, c.onResolve)
			build.OnLoad(api.OnLoadOptions{Filter: ".*"}, c.onLoad)
		},
	}
}

func (c *crawler) onResolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	path := args.Path

	if isExternalURL(path) || strings.HasSuffix(path, "?worker") || strings.HasSuffix(path, "?raw") {
		return api.OnResolveResult{Path: path, External: true}, nil
	}
	ext := filepath.Ext(stripQuery(path))
	if ext == ".css" || assetExt[ext] {
		return api.OnResolveResult{Path: path, External: true}, nil
	}

	if bareImportRe.MatchString(path) {
		return c.resolveBare(path, args.Importer)
	}

	// Relative/absolute import: resolved against the importer's directory
	// (with extension probing) to continue the crawl; if that finds no
	// file, esbuild's default resolver takes over.
	resolveDir := filepath.Dir(args.Importer)
	result := resolveFS(resolveDir, path)
	if result == "" {
		return api.OnResolveResult{}, nil
	}
	return api.OnResolveResult{Path: result}, nil
}

func (c *crawler) resolveBare(spec, importer string) (api.OnResolveResult, error) {
	pkg := packageNameFromSpec(spec)

	if contains(c.opts.Exclude, pkg) {
		return api.OnResolveResult{Path: spec, External: true}, nil
	}

	if file, ok := ResolvePackageEntry(c.opts.Root, spec); ok {
		c.deps[spec] = file
		return api.OnResolveResult{Path: spec, External: true}, nil
	}
	if contains(c.opts.Include, pkg) {
		c.deps[spec] = spec
		return api.OnResolveResult{Path: spec, External: true}, nil
	}

	c.missing[spec] = importer
	return api.OnResolveResult{Path: spec, External: true}, nil
}

func (c *crawler) onLoad(args api.OnLoadArgs) (api.OnLoadResult, error) {
	ext := filepath.Ext(args.Path)
	if !htmlLikeExt[ext] {
		return api.OnLoadResult{}, nil
	}
	data, err := os.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, err
	}
	contents, loader := extractScripts(string(data), ext)
	return api.OnLoadResult{Contents: &contents, Loader: loader}, nil
}

var (
	moduleScriptRe = regexp.MustCompile(`(?s)<script\s+type=["']module["']([^>]*)>(.*?)</script>`)
	sfcScriptRe    = regexp.MustCompile(`(?s)<script([^>]*)>(.*?)</script>`)
	srcAttrRe      = regexp.MustCompile(`src=["']([^"']+)["']`)
	langAttrRe     = regexp.MustCompile(`lang=["'](ts|tsx|jsx)["']`)
	typeAttrRe     = regexp.MustCompile(`type=["']([^"']+)["']`)
	globCallRe     = regexp.MustCompile(`import\.meta\.glob\(`)
)

// extractScripts pulls script content out of HTML/SFC source:
// "<script type=module>" for HTML, "<script>" for SFC variants; src=
// references become bare import statements; non-JS script type attributes
// (e.g. application/ld+json) are skipped.
func extractScripts(html, ext string) (string, api.Loader) {
	var buf strings.Builder
	loader := api.LoaderJS

	matcher := moduleScriptRe
	if ext != ".html" {
		matcher = sfcScriptRe
	}

	for _, m := range matcher.FindAllStringSubmatch(html, -1) {
		var attrs, body string
		if ext == ".html" {
			attrs, body = m[1], m[2]
		} else {
			attrs, body = m[1], m[2]
			if t := typeAttrRe.FindStringSubmatch(attrs); t != nil && !isJSScriptType(t[1]) {
				continue
			}
			if l := langAttrRe.FindStringSubmatch(attrs); l != nil {
				loader = loaderForLang(l[1])
			}
		}

		if src := srcAttrRe.FindStringSubmatch(attrs); src != nil {
			fmt.Fprintf(&buf, "import %q;\n", src[1])
			continue
		}
		buf.WriteString(body)
		buf.WriteString("\n")
	}

	return buf.String(), loader
}

func isJSScriptType(t string) bool {
	switch t {
	case "", "text/javascript", "module", "application/javascript", "ts", "tsx", "jsx":
		return true
	}
	return false
}

func loaderForLang(lang string) api.Loader {
	switch lang {
	case "ts":
		return api.LoaderTS
	case "tsx":
		return api.LoaderTSX
	case "jsx":
		return api.LoaderJSX
	}
	return api.LoaderJS
}

func isExternalURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "//") || strings.HasPrefix(path, "data:")
}

func stripQuery(s string) string {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i]
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// packageNameFromSpec extracts the npm package name from an import
// specifier: "react" -> "react", "react-dom/client" -> "react-dom",
// "@scope/pkg/sub" -> "@scope/pkg" (tools/please_js/esmdev/imports.go).
func packageNameFromSpec(spec string) string {
	if strings.HasPrefix(spec, "@") {
		parts := strings.SplitN(spec, "/", 3)
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return spec
	}
	parts := strings.SplitN(spec, "/", 2)
	return parts[0]
}

func findInNodeModules(root, spec string) string {
	dir := filepath.Join(root, "node_modules", spec)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	return dir
}

type packageJSONFields struct {
	Main   string `json:"main"`
	Module string `json:"module"`
}

// ResolvePackageEntry resolves a bare import specifier to its on-disk
// entry file. The package.json "exports" field is tried first, for both
// "pkg" and "pkg/sub/path". Otherwise "pkg" resolves to
// node_modules/pkg's package.json#module (preferred, ESM) or #main,
// falling back to an index file; "pkg/sub/path" resolves relative to the
// package directory via resolveFS.
func ResolvePackageEntry(root, spec string) (string, bool) {
	pkg := packageNameFromSpec(spec)
	dir := findInNodeModules(root, pkg)
	if dir == "" {
		return "", false
	}

	subpath := "."
	if rest := strings.TrimPrefix(spec, pkg); rest != "" && rest != "/" {
		subpath = "." + rest
	}

	if file, ok := common.ResolveExportsEntry(dir, subpath); ok {
		return file, true
	}

	if subpath != "." {
		if file := resolveFS(dir, strings.TrimPrefix(subpath, "./")); file != "" {
			return file, true
		}
		return "", false
	}

	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err == nil {
		var pj packageJSONFields
		if json.Unmarshal(data, &pj) == nil {
			for _, entry := range []string{pj.Module, pj.Main} {
				if entry == "" {
					continue
				}
				if file := resolveFS(dir, entry); file != "" {
					return file, true
				}
			}
		}
	}

	if file := resolveFS(dir, "index"); file != "" {
		return file, true
	}
	return "", false
}

func resolveFS(dir, path string) string {
	candidate := filepath.Join(dir, path)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	for _, ext := range []string{".tsx", ".ts", ".jsx", ".js"} {
		if info, err := os.Stat(candidate + ext); err == nil && !info.IsDir() {
			return candidate + ext
		}
	}
	return ""
}

// HasGlobImport reports whether code calls import.meta.glob, the trigger
// for the glob-rewriter collaborator.
func HasGlobImport(code string) bool {
	return globCallRe.MatchString(code)
}
