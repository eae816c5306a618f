// Package transform implements the on-demand transform pipeline:
// resolve → load → transform, deduplicated per resolved id and cached on
// the module graph node, grounded on tools/please_js/esmdev's
// handleSource (cache-by-mtime, esbuild Transform, error-as-console.error)
// generalized to the plugin container's resolve/load/transform hooks and
// the module graph's cache slot instead of a bare sync.Map.
package transform

import (
	"context"
	"fmt"
	"sync"

	"github.com/pleasejs/esmdev/internal/graph"
	"github.com/pleasejs/esmdev/internal/plugin"
)

// Error wraps a transform-pipeline failure with the URL that triggered
// it, distinguishing the resolve/load/transform stage it failed in.
type Error struct {
	Stage string // "resolve" | "load" | "transform"
	URL   string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is what TransformRequest returns: the served code, its source map
// (if any), and the weak etag the HTTP layer uses for 304 handling.
type Result struct {
	Code string
	Map  string
	ETag string
}

// inflightEntry dedupes concurrent requests for the same resolved id:
// concurrent requests for the same resolved id share one in-flight
// transform.
type inflightEntry struct {
	done chan struct{}
	res  *Result
	err  error
}

// Pipeline drives resolve/load/transform through a plugin container and
// caches results on graph nodes, so a cache hit is simply "node has a
// transform_result".
type Pipeline struct {
	graph     *graph.Graph
	container *plugin.Container

	mu       sync.Mutex
	inflight map[string]*inflightEntry
}

// New builds a Pipeline over g and c.
func New(g *graph.Graph, c *plugin.Container) *Pipeline {
	return &Pipeline{
		graph:     g,
		container: c,
		inflight:  make(map[string]*inflightEntry),
	}
}

// TransformRequest resolves the URL to a node, serves a cached result if
// present, otherwise loads+transforms, stores the result on the node,
// and returns it. importer is the referring module's URL, or "" for an
// entry request.
func (p *Pipeline) TransformRequest(ctx context.Context, rawURL, importer string) (*Result, error) {
	n, err := p.graph.EnsureEntry(ctx, rawURL)
	if err != nil {
		return nil, &Error{Stage: "resolve", URL: rawURL, Err: err}
	}

	if cached := n.TransformResultSnapshot(); cached != nil {
		return &Result{Code: cached.Code, Map: cached.Map, ETag: cached.ETag}, nil
	}

	key := n.ResolvedID
	if key == "" {
		key = n.URL
	}

	p.mu.Lock()
	if entry, ok := p.inflight[key]; ok {
		p.mu.Unlock()
		<-entry.done
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.res, nil
	}
	entry := &inflightEntry{done: make(chan struct{})}
	p.inflight[key] = entry
	p.mu.Unlock()

	res, err := p.doTransform(ctx, n, rawURL, importer)

	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()

	entry.res, entry.err = res, err
	close(entry.done)

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) doTransform(ctx context.Context, n *graph.Node, rawURL, importer string) (*Result, error) {
	// Re-check under the inflight slot: another goroutine may have finished
	// populating the cache between our snapshot above and acquiring the
	// inflight entry.
	if cached := n.TransformResultSnapshot(); cached != nil {
		return &Result{Code: cached.Code, Map: cached.Map, ETag: cached.ETag}, nil
	}

	rr, err := p.container.ResolveID(ctx, graph.StripQueryAndHash(n.URL), importer)
	if err != nil {
		return nil, &Error{Stage: "resolve", URL: rawURL, Err: err}
	}
	if rr.External {
		return nil, &Error{Stage: "resolve", URL: rawURL, Err: fmt.Errorf("module is external, cannot be served")}
	}

	file := graph.StripQueryAndHash(rr.ID)
	p.graph.SetResolvedInfo(n, rr.ID, file)

	lr, err := p.container.Load(ctx, rr.ID)
	if err != nil {
		return nil, &Error{Stage: "load", URL: rawURL, Err: err}
	}
	if lr == nil {
		return nil, &Error{Stage: "load", URL: rawURL, Err: fmt.Errorf("no plugin or filesystem entry could load this module")}
	}

	tr, err := p.container.Transform(ctx, lr.Code, rr.ID)
	if err != nil {
		return nil, &Error{Stage: "transform", URL: rawURL, Err: err}
	}

	code := tr.Code
	sourceMap := tr.Map
	if sourceMap == "" {
		sourceMap = lr.Map
	}

	out := &graph.TransformResult{
		Code: code,
		Map:  sourceMap,
		ETag: WeakETag(code),
	}
	p.graph.SetTransformResult(n, out)

	return &Result{Code: out.Code, Map: out.Map, ETag: out.ETag}, nil
}
