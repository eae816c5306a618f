package optimizer

import (
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// nodeBuiltins lists the Node core modules a browser-targeted dependency
// bundle may still reference (through an unreachable require/import branch,
// an environment check, or a polyfill-free package). Grounded on the
// NodeBuiltinEmptyPlugin call sites in tools/please_js/esmdev/prebundle.go
// and handlers.go, which bundle npm deps for a browser target the same way
// this optimizer does; the plugin body itself reconstructs that behavior
// since it wasn't retrievable alongside the call sites.
var nodeBuiltins = map[string]bool{
	"assert": true, "buffer": true, "child_process": true, "cluster": true,
	"crypto": true, "dgram": true, "dns": true, "domain": true, "events": true,
	"fs": true, "http": true, "http2": true, "https": true, "net": true,
	"os": true, "path": true, "punycode": true, "querystring": true,
	"readline": true, "repl": true, "stream": true, "string_decoder": true,
	"sys": true, "timers": true, "tls": true, "tty": true, "url": true,
	"util": true, "v8": true, "vm": true, "zlib": true, "module": true,
	"perf_hooks": true, "process": true, "worker_threads": true,
}

func isNodeBuiltin(spec string) bool {
	spec = strings.TrimPrefix(spec, "node:")
	if idx := strings.Index(spec, "/"); idx >= 0 {
		spec = spec[:idx]
	}
	return nodeBuiltins[spec]
}

// nodeBuiltinEmptyPlugin resolves any Node builtin import (bare or
// "node:"-prefixed, including subpaths) to an empty virtual module, so a
// browser-targeted bundle doesn't fail on a require() branch that a real
// browser would never execute.
func nodeBuiltinEmptyPlugin() api.Plugin {
	return api.Plugin{
		Name: "node-builtin-empty",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if !isNodeBuiltin(args.Path) {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{Path: args.Path, Namespace: "node-builtin-empty"}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: "node-builtin-empty"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				contents := "export default {};"
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}
