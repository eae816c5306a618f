// Package plugin implements the plugin container: a declared sequence of
// plugins driven through resolve_id/load/transform/handle_hot_update
// hooks, mirroring how tools/please_js/common wraps esbuild's
// OnResolve/OnLoad plugin API but generalized to the dev server's own
// resolve→load→transform contract instead of a single esbuild Build.
package plugin

import "context"

// ResolveResult is what a resolve_id hook returns. External marks a bare
// import the container should not try to load from disk.
type ResolveResult struct {
	ID       string
	Meta     map[string]any
	External bool
}

// LoadResult is what a load hook returns.
type LoadResult struct {
	Code string
	Map  string
}

// TransformResult is what a transform hook returns.
type TransformResult struct {
	Code string
	Map  string
}

// HotUpdateContext is passed to handle_hot_update hooks.
type HotUpdateContext struct {
	File      string
	Timestamp int64
	Modules   []string // URLs of modules currently mapped to File
	Read      func(ctx context.Context) ([]byte, error)
}

// Plugin is a record of optionally-implemented hooks plus lifecycle
// ordering metadata. A nil hook field means "this plugin doesn't implement
// this hook" — resolution/load/transform/hot-update all treat nil as pass.
type Plugin struct {
	Name    string
	Enforce Enforce

	ResolveID func(ctx context.Context, source, importer string) (*ResolveResult, error)
	Load      func(ctx context.Context, id string) (*LoadResult, error)
	Transform func(ctx context.Context, code, id string) (*TransformResult, error)

	// HandleHotUpdate may return a filtered module list; nil means
	// "no opinion, pass the list through unchanged" — distinct from a
	// non-nil empty slice, which means "drop every module". A hook may
	// also widen the list to include modules beyond File's own mapping.
	HandleHotUpdate func(ctx context.Context, hctx *HotUpdateContext) ([]string, error)
}

// Enforce controls plugin ordering: pre-enforced plugins run before
// unmarked ones, post-enforced after.
type Enforce int

const (
	EnforceDefault Enforce = iota
	EnforcePre
	EnforcePost
)
