package plugin

import (
	"context"
	"fmt"
	"os"
	"sort"
)

// FileReader reads a file from disk if it is within allowed roots — the
// container's load fallback when no plugin's load hook claims an id.
type FileReader interface {
	ReadAllowed(path string) ([]byte, bool, error)
}

// osFileReader is the default FileReader: any path that exists on disk is
// allowed. Servers that enforce a public/allowed-roots policy should wrap
// this with their own FileReader (see server's rootFileReader).
type osFileReader struct{}

func (osFileReader) ReadAllowed(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Container drives a sequence of plugins through their hooks, in
// declaration order within enforce buckets (pre, default, post).
type Container struct {
	plugins []*Plugin
	fr      FileReader
}

// New builds a container, stably sorting plugins into pre/default/post
// buckets: enforce:pre plugins run before unmarked ones, enforce:post
// after.
func New(plugins []*Plugin, fr FileReader) *Container {
	if fr == nil {
		fr = osFileReader{}
	}
	sorted := make([]*Plugin, len(plugins))
	copy(sorted, plugins)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bucketOf(sorted[i].Enforce) < bucketOf(sorted[j].Enforce)
	})
	return &Container{plugins: sorted, fr: fr}
}

func bucketOf(e Enforce) int {
	switch e {
	case EnforcePre:
		return 0
	case EnforcePost:
		return 2
	default:
		return 1
	}
}

// ResolveID tries each plugin's resolve_id hook in order; the first
// non-null result wins. If all return null, source itself is returned as
// the resolved id.
func (c *Container) ResolveID(ctx context.Context, source, importer string) (*ResolveResult, error) {
	for _, p := range c.plugins {
		if p.ResolveID == nil {
			continue
		}
		res, err := p.ResolveID(ctx, source, importer)
		if err != nil {
			return nil, fmt.Errorf("plugin %q resolveId(%q): %w", p.Name, source, err)
		}
		if res != nil {
			return res, nil
		}
	}
	return &ResolveResult{ID: source}, nil
}

// Load tries each plugin's load hook in order; first non-null wins. If
// none match, falls back to reading the path from disk within allowed
// roots.
func (c *Container) Load(ctx context.Context, id string) (*LoadResult, error) {
	for _, p := range c.plugins {
		if p.Load == nil {
			continue
		}
		res, err := p.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("plugin %q load(%q): %w", p.Name, id, err)
		}
		if res != nil {
			return res, nil
		}
	}
	data, ok, err := c.fr.ReadAllowed(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &LoadResult{Code: string(data)}, nil
}

// Transform chains every plugin's transform hook: each plugin's output
// becomes the next plugin's input. This container keeps only the last
// non-empty map it saw, which is correct when at most one plugin in the
// chain emits a map — the common case for esbuild-backed transforms.
func (c *Container) Transform(ctx context.Context, code, id string) (*TransformResult, error) {
	cur := &TransformResult{Code: code}
	for _, p := range c.plugins {
		if p.Transform == nil {
			continue
		}
		res, err := p.Transform(ctx, cur.Code, id)
		if err != nil {
			return nil, fmt.Errorf("plugin %q transform(%q): %w", p.Name, id, err)
		}
		if res == nil {
			continue
		}
		next := &TransformResult{Code: res.Code, Map: cur.Map}
		if res.Map != "" {
			next.Map = res.Map
		}
		cur = next
	}
	return cur, nil
}

// HandleHotUpdate runs every plugin's handle_hot_update hook in
// declaration order. The hooks compose sequentially: each plugin's
// returned module list becomes the input to the next plugin, mirroring
// Transform's chaining. A plugin returning nil passes its input through
// unchanged.
func (c *Container) HandleHotUpdate(ctx context.Context, hctx *HotUpdateContext) ([]string, error) {
	modules := hctx.Modules
	for _, p := range c.plugins {
		if p.HandleHotUpdate == nil {
			continue
		}
		sub := *hctx
		sub.Modules = modules
		filtered, err := p.HandleHotUpdate(ctx, &sub)
		if err != nil {
			return nil, fmt.Errorf("plugin %q handleHotUpdate(%q): %w", p.Name, hctx.File, err)
		}
		if filtered != nil {
			modules = filtered
		}
	}
	return modules, nil
}

// Plugins returns the sorted plugin list, primarily for introspection/tests.
func (c *Container) Plugins() []*Plugin { return c.plugins }
