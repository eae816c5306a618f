package optimizer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/evanw/esbuild/pkg/api"
)

// exportInfo summarizes a dep's pre-bundle export shape.
type exportInfo struct {
	hasImports   bool
	hasExports   bool
	hasReExports bool
	onlyDefault  bool
}

var (
	importRe       = regexp.MustCompile(`(?m)^\s*import\b`)
	exportRe       = regexp.MustCompile(`(?m)^\s*export\b`)
	reExportRe     = regexp.MustCompile(`(?m)^\s*export\s*\*\s*from\b`)
	namedExportRe  = regexp.MustCompile(`(?m)^\s*export\s+(?:const|let|var|function|class|async\s+function)\s+(\w+)`)
	defaultOnlyRe  = regexp.MustCompile(`(?m)^\s*export\s+default\b`)
)

// parseExports parses a dep's source for its export shape, retrying with
// a JSX loader if the first parse fails — grounded on
// tools/please_js/esmdev/cjs_detect.go's "try as JS, retry as
// JSX" pattern, simplified from a Node.js subprocess to esbuild's own
// Transform. The export shape itself is read with line-anchored regular
// expressions; the Transform outcome does not affect the returned info,
// and a source that fails both parses is not reported as an error.
func parseExports(file string) (exportInfo, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return exportInfo{}, err
	}
	code := string(data)

	loader := api.LoaderJS
	if filepath.Ext(file) == ".jsx" || filepath.Ext(file) == ".tsx" {
		loader = api.LoaderTSX
	}

	result := api.Transform(code, api.TransformOptions{Loader: loader, LogLevel: api.LogLevelSilent})
	if len(result.Errors) > 0 {
		result = api.Transform(code, api.TransformOptions{Loader: api.LoaderJSX, LogLevel: api.LogLevelSilent})
	}

	hasExports := exportRe.MatchString(code)
	named := namedExportRe.FindAllStringSubmatch(code, -1)
	onlyDefault := defaultOnlyRe.MatchString(code) && len(named) == 0

	return exportInfo{
		hasImports:   importRe.MatchString(code),
		hasExports:   hasExports,
		hasReExports: reExportRe.MatchString(code),
		onlyDefault:  onlyDefault,
	}, nil
}

// postExportInfo summarizes what the bundled output actually exports, per
// esbuild's metafile.
type postExportInfo struct {
	onlyDefault bool
}

type metafileOutput struct {
	Exports    []string `json:"exports"`
	EntryPoint string   `json:"entryPoint"`
}

type metafile struct {
	Outputs map[string]metafileOutput `json:"outputs"`
}

// parseMetafileExports maps each output entry (by its sanitized id,
// outputs keyed by path relative to cacheDir without extension) to its
// exports list.
func parseMetafileExports(metafileJSON string, cacheDir string) (map[string]postExportInfo, error) {
	var mf metafile
	if err := json.Unmarshal([]byte(metafileJSON), &mf); err != nil {
		return nil, err
	}

	out := make(map[string]postExportInfo, len(mf.Outputs))
	for outPath, info := range mf.Outputs {
		if filepath.Ext(outPath) != ".js" {
			continue
		}
		rel, err := filepath.Rel(cacheDir, outPath)
		if err != nil {
			rel = filepath.Base(outPath)
		}
		id := rel[:len(rel)-len(filepath.Ext(rel))]
		out[id] = postExportInfo{
			onlyDefault: len(info.Exports) == 1 && info.Exports[0] == "default",
		}
	}
	return out, nil
}
