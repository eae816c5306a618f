package transform

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/pleasejs/esmdev/internal/common"
	"github.com/pleasejs/esmdev/internal/plugin"
)

// EsbuildTransformOptions configures the default esbuild-backed transform
// plugin, grounded on handleSource's api.Transform call in
// tools/please_js/esmdev/handlers.go.
type EsbuildTransformOptions struct {
	Define        map[string]string
	TSConfigRaw   string
	JSXAutomatic  bool
}

// NewEsbuildTransformPlugin returns the default transform-stage plugin: it
// runs api.Transform over every JS/TS/JSX/CSS id using the loader selected
// by extension, emitting an inline source map exactly as handleSource does.
// Registered with EnforcePost, so it runs after every pre and default
// plugin: those plugins see the code before esbuild transforms it.
func NewEsbuildTransformPlugin(opts EsbuildTransformOptions) *plugin.Plugin {
	jsx := api.JSXPreserve
	if opts.JSXAutomatic {
		jsx = api.JSXAutomatic
	}
	return &plugin.Plugin{
		Name:    "esbuild-transform",
		Enforce: plugin.EnforcePost,
		Transform: func(ctx context.Context, code, id string) (*plugin.TransformResult, error) {
			ext := extOf(id)
			loader, ok := common.Loaders[ext]
			if !ok {
				loader = api.LoaderJS
			}
			if loader == api.LoaderFile {
				// Binary/asset loaders pass through untransformed; the
				// scanner/optimizer deal with them separately.
				return nil, nil
			}

			result := api.Transform(code, api.TransformOptions{
				Loader:         loader,
				Format:         api.FormatESModule,
				Target:         api.ESNext,
				JSX:            jsx,
				Sourcemap:      api.SourceMapInline,
				SourcesContent: api.SourcesContentInclude,
				Sourcefile:     id,
				Define:         opts.Define,
				TsconfigRaw:    opts.TSConfigRaw,
				LogLevel:       api.LogLevelSilent,
			})
			if len(result.Errors) > 0 {
				return nil, transformError(id, result.Errors)
			}
			return &plugin.TransformResult{Code: string(result.Code)}, nil
		},
	}
}

func extOf(id string) string {
	if strings.HasSuffix(id, ".module.css") {
		return ".module.css"
	}
	return filepath.Ext(id)
}

func transformError(id string, errs []api.Message) error {
	first := errs[0]
	if first.Location != nil {
		return fmt.Errorf("%s:%d:%d: %s", id, first.Location.Line, first.Location.Column, first.Text)
	}
	return fmt.Errorf("%s: %s", id, first.Text)
}
