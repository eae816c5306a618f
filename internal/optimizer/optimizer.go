package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/pleasejs/esmdev/internal/common"
	"github.com/pleasejs/esmdev/internal/scanner"
)

// esmMarker is written into the cache directory declaring ES-module
// semantics for its contents, mirroring npm's convention of a sibling
// package.json with "type": "module".
const esmMarker = `{"type":"module"}`

// Options configures an optimizer run.
type Options struct {
	CacheDir     string
	LockfilePath string
	Config       ConfigSubset
	ScanOptions  scanner.Options
	Define       map[string]string
	Force        bool
	// NewDeps, when non-nil, is used directly instead of re-running the
	// scanner — deps discovered by a live transform request rather than
	// a fresh scan.
	NewDeps map[string]string
}

// Run executes the optimizer end to end and returns the resulting
// metadata (freshly computed, or the unchanged previous metadata when
// main_hash matched and Force was false).
func Run(ctx context.Context, opts Options) (*Metadata, error) {
	mainHash, err := MainHash(opts.LockfilePath, opts.Config)
	if err != nil {
		return nil, err
	}

	prev, _ := loadMetadata(opts.CacheDir)
	if !opts.Force && prev != nil && prev.MainHash == mainHash {
		return prev, nil
	}

	if err := resetCacheDir(opts.CacheDir); err != nil {
		return nil, err
	}

	deps := opts.NewDeps
	if deps == nil {
		scanResult, err := scanner.Scan(opts.ScanOptions)
		if err != nil {
			return nil, fmt.Errorf("scanning dependencies: %w", err)
		}
		deps = scanResult.Deps
	}

	browserHash, err := BrowserHash(mainHash, deps)
	if err != nil {
		return nil, err
	}

	optimized, err := bundleAll(ctx, opts.CacheDir, deps, opts.Define)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{MainHash: mainHash, BrowserHash: browserHash, Optimized: optimized}
	if err := saveMetadata(opts.CacheDir, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func resetCacheDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "package.json"), []byte(esmMarker), 0644)
}

func metadataPath(dir string) string { return filepath.Join(dir, "_metadata.json") }

func loadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(metadataPath(dir))
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func saveMetadata(dir string, m *Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metadataPath(dir), data, 0644)
}

// bundleAll runs per-dep export parsing concurrently, then a single
// external-bundler invocation bundling every dep together, and finally
// needs_interop detection per dep — grounded on prebundleAllPackages's
// errgroup-bounded per-package Build loop, generalized from "one package
// per build" (which that function needs so every OTHER package can be
// externalized) to a single Build over the whole dep set. Nothing is
// externalized: imports outside the dep set are bundled in, and Node
// builtins are replaced by empty modules.
func bundleAll(ctx context.Context, cacheDir string, deps map[string]string, define map[string]string) (map[string]DepMeta, error) {
	if len(deps) == 0 {
		return map[string]DepMeta{}, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	var mu sync.Mutex
	preExports := make(map[string]exportInfo, len(deps))

	for rawID, file := range deps {
		rawID, file := rawID, file
		g.Go(func() error {
			info, err := parseExports(file)
			if err != nil {
				return fmt.Errorf("parsing exports of %q: %w", rawID, err)
			}
			mu.Lock()
			preExports[rawID] = info
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entryPoints := make([]api.EntryPoint, 0, len(deps))
	for rawID, file := range deps {
		entryPoints = append(entryPoints, api.EntryPoint{
			InputPath:  file,
			OutputPath: sanitizeOutputID(rawID),
		})
	}

	mergedDefine := map[string]string{"process.env.NODE_ENV": `"development"`}
	for k, v := range define {
		mergedDefine[k] = v
	}

	result := api.Build(api.BuildOptions{
		EntryPointsAdvanced: entryPoints,
		Bundle:              true,
		Write:               true,
		Outdir:              cacheDir,
		Format:              api.FormatESModule,
		Splitting:           true,
		Platform:            api.PlatformBrowser,
		Target:              api.ESNext,
		Sourcemap:           api.SourceMapLinked,
		Metafile:            true,
		Define:              mergedDefine,
		LogLevel:            api.LogLevelSilent,
		Loader:              depLoaders(),
		Plugins:             []api.Plugin{nodeBuiltinEmptyPlugin()},
	})
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("bundling dependencies: %s", joinMessages(result.Errors))
	}

	postExports, err := parseMetafileExports(result.Metafile, cacheDir)
	if err != nil {
		return nil, err
	}

	optimized := make(map[string]DepMeta, len(deps))
	for rawID, file := range deps {
		outID := sanitizeOutputID(rawID)
		pre := preExports[rawID]
		post := postExports[outID]

		optimized[rawID] = DepMeta{
			File:         "/" + outID + ".js",
			Src:          file,
			HasReExports: pre.hasReExports,
			NeedsInterop: needsInterop(rawID, pre, post),
		}
	}
	return optimized, nil
}

func depLoaders() map[string]api.Loader {
	m := make(map[string]api.Loader, len(common.Loaders))
	for ext, l := range common.Loaders {
		if l != api.LoaderFile {
			m[ext] = l
		}
	}
	return m
}

func sanitizeOutputID(rawID string) string {
	r := strings.NewReplacer("/", "_", ">", "_")
	return r.Replace(rawID)
}

func joinMessages(msgs []api.Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.Text
	}
	return strings.Join(parts, "; ")
}

// knownInteropAllowlist lists CJS/UMD packages known to need a synthetic
// default-export wrapper regardless of what static export analysis finds.
var knownInteropAllowlist = map[string]struct{}{
	"react":     {},
	"react-dom": {},
}

// needsInterop decides whether a dep needs a synthetic default-export
// wrapper: an explicit allowlist entry, no static imports/exports at all,
// or a bundle whose output collapsed to a default-only export when the
// source wasn't default-only.
func needsInterop(rawID string, pre exportInfo, post postExportInfo) bool {
	if _, ok := knownInteropAllowlist[rawID]; ok {
		return true
	}
	if !pre.hasImports && !pre.hasExports {
		return true
	}
	if post.onlyDefault && !pre.onlyDefault {
		return true
	}
	return false
}
