// Package common holds small pieces shared across the dev server's
// internal packages — esbuild loader selection and define-map defaults —
// adapted from tools/please_js/common/common.go.
package common

import "github.com/evanw/esbuild/pkg/api"

// Loaders maps file extensions to esbuild loaders, shared by the transform
// pipeline, the dependency scanner, and the optimizer.
var Loaders = map[string]api.Loader{
	".js":          api.LoaderJS,
	".jsx":         api.LoaderJSX,
	".ts":          api.LoaderTS,
	".tsx":         api.LoaderTSX,
	".json":        api.LoaderJSON,
	".css":         api.LoaderCSS,
	".module.css":  api.LoaderLocalCSS,
	".mjs":         api.LoaderJS,
	".cjs":         api.LoaderJS,
	".md":          api.LoaderText,
	".woff":        api.LoaderFile,
	".woff2":       api.LoaderFile,
	".ttf":         api.LoaderFile,
	".eot":         api.LoaderFile,
	".svg":         api.LoaderFile,
	".png":         api.LoaderFile,
	".jpg":         api.LoaderFile,
	".gif":         api.LoaderFile,
}

// LoaderForExt returns the loader registered for ext ("" included), falling
// back to JS for unknown extensions.
func LoaderForExt(ext string) api.Loader {
	if l, ok := Loaders[ext]; ok {
		return l
	}
	return api.LoaderJS
}

// MergeEnvDefines merges the import.meta.env / process.env defaults a dev
// server injects into every transform, without overwriting user-supplied
// defines.
func MergeEnvDefines(define map[string]string, mode string) {
	isDev := mode != "production"
	defaults := map[string]string{
		"process.env.NODE_ENV":     quote(mode),
		"import.meta.env.MODE":     quote(mode),
		"import.meta.env.DEV":      boolString(isDev),
		"import.meta.env.PROD":     boolString(!isDev),
		"import.meta.env.BASE_URL": quote("/"),
		"import.meta.env.SSR":      "false",
	}
	for k, v := range defaults {
		if _, ok := define[k]; !ok {
			define[k] = v
		}
	}
}

func quote(s string) string { return `"` + s + `"` }

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
