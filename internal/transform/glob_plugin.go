package transform

import (
	"context"

	"github.com/pleasejs/esmdev/internal/plugin"
)

// NewGlobRewritePlugin returns a pre-stage plugin that expands
// import.meta.glob(...) call sites before the esbuild transform plugin
// runs, so esbuild only ever sees ordinary static/dynamic import syntax.
func NewGlobRewritePlugin(gr *GlobRewriter) *plugin.Plugin {
	return &plugin.Plugin{
		Name:    "glob-rewrite",
		Enforce: plugin.EnforcePre,
		Transform: func(ctx context.Context, code, id string) (*plugin.TransformResult, error) {
			out, err := gr.Rewrite(code, id)
			if err != nil {
				return nil, err
			}
			if out == code {
				return nil, nil
			}
			return &plugin.TransformResult{Code: out}, nil
		},
	}
}
