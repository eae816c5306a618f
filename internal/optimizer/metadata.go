// Package optimizer implements the dependency optimizer: it bundles
// scanned bare-module deps into a cache directory keyed by a content
// hash, skipping the work entirely when nothing relevant changed.
// Grounded on tools/please_js/esmdev/prebundle.go (per-package esbuild
// Build, externalize-everything-else) and prebundle_cache.go (hash key,
// on-disk cache layout, import-map persistence).
package optimizer

// DepMeta is one entry of Metadata.Optimized.
type DepMeta struct {
	File          string `json:"file"`
	Src           string `json:"src"`
	NeedsInterop  bool   `json:"needsInterop"`
	HasReExports  bool   `json:"hasReExports"`
}

// Metadata is the optimizer's persisted state.
type Metadata struct {
	MainHash    string             `json:"mainHash"`
	BrowserHash string             `json:"browserHash"`
	Optimized   map[string]DepMeta `json:"optimized"`
}
