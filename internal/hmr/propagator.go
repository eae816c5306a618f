package hmr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pleasejs/esmdev/internal/graph"
	"github.com/pleasejs/esmdev/internal/plugin"
)

// GlobImporter is one entry of the glob-importers registry: importingModule
// is enqueued for update whenever a file matching pattern (relative to
// base, or absolute) appears or disappears.
type GlobImporter struct {
	Base            string
	Pattern         string
	ImportingModule string // URL
}

// Config carries the propagator's environment-dependent classification
// inputs for its pre-filter gates: config/env files and the client
// runtime's serving directory.
type Config struct {
	ConfigFiles       []string // config file + its recorded dependencies
	EnvFiles          []string
	EnvFileHandling   bool
	ClientRuntimeDir  string
}

// RestartFunc triggers a full server restart (pre-filter gate 1).
type RestartFunc func(reason string)

// Propagator drives HMR update propagation over a module graph.
type Propagator struct {
	graph       *graph.Graph
	container   *plugin.Container
	broadcaster Broadcaster
	cfg         Config
	restart     RestartFunc

	globImporters []GlobImporter
}

// New builds a Propagator.
func New(g *graph.Graph, c *plugin.Container, b Broadcaster, cfg Config, restart RestartFunc) *Propagator {
	return &Propagator{graph: g, container: c, broadcaster: b, cfg: cfg, restart: restart}
}

// RegisterGlobImporter adds an entry to the glob-importers registry.
func (p *Propagator) RegisterGlobImporter(gi GlobImporter) {
	p.globImporters = append(p.globImporters, gi)
}

func containsPath(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// HandleFileChange runs the pre-filter gates (config/env file restart,
// client-runtime full reload, unmapped-HTML full reload) and, if none
// fire, the update computation over every module the file maps to.
func (p *Propagator) HandleFileChange(ctx context.Context, file string) error {
	if containsPath(p.cfg.ConfigFiles, file) {
		if p.restart != nil {
			p.restart("config file changed: " + file)
		}
		return nil
	}
	if p.cfg.EnvFileHandling && containsPath(p.cfg.EnvFiles, file) {
		if p.restart != nil {
			p.restart("env file changed: " + file)
		}
		return nil
	}

	if p.cfg.ClientRuntimeDir != "" && underDir(file, p.cfg.ClientRuntimeDir) {
		p.broadcaster.Broadcast(Payload{Kind: "full-reload"})
		return nil
	}

	nodes := p.graph.GetByFile(file)
	if len(nodes) == 0 {
		if strings.HasSuffix(file, ".html") {
			urlPath := htmlURLPath(file)
			p.broadcaster.Broadcast(Payload{Kind: "full-reload", Path: urlPath})
		}
		return nil
	}

	return p.computeUpdate(ctx, file, nodes)
}

func underDir(file, dir string) bool {
	rel, err := filepath.Rel(dir, file)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func htmlURLPath(file string) string {
	return "/" + filepath.ToSlash(filepath.Base(file))
}

// readWithRetry re-reads file if the first read returns empty, retrying
// the read up to ten times at 10ms intervals until it is non-empty —
// editors sometimes signal a change before flushing the write.
func readWithRetry(ctx context.Context, file string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		return data, nil
	}
	for i := 0; i < 10; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		data, err = os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			return data, nil
		}
	}
	return data, nil
}

func (p *Propagator) computeUpdate(ctx context.Context, file string, nodes []*graph.Node) error {
	moduleURLs := make([]string, 0, len(nodes))
	for _, n := range nodes {
		moduleURLs = append(moduleURLs, n.URL)
	}

	filtered := moduleURLs
	if p.container != nil {
		var err error
		filtered, err = p.container.HandleHotUpdate(ctx, &plugin.HotUpdateContext{
			File:      file,
			Timestamp: time.Now().UnixMilli(),
			Modules:   moduleURLs,
			Read:      func(ctx context.Context) ([]byte, error) { return readWithRetry(ctx, file) },
		})
		if err != nil {
			return fmt.Errorf("handle_hot_update: %w", err)
		}
	}

	filterSet := make(map[string]bool, len(filtered))
	for _, u := range filtered {
		filterSet[u] = true
	}
	var targets []*graph.Node
	for _, n := range nodes {
		if filterSet[n.URL] {
			targets = append(targets, n)
		}
	}

	needFullReload := false
	var boundaries []boundaryHit

	for _, m := range targets {
		p.invalidateWalk(m, make(map[int]bool))

		hits, deadEnd := p.boundaryWalk(m, m, nil)
		if deadEnd {
			needFullReload = true
		}
		boundaries = append(boundaries, hits...)
	}

	if needFullReload {
		p.broadcaster.Broadcast(Payload{Kind: "full-reload"})
		return nil
	}

	updates := make([]UpdateEntry, 0, len(boundaries))
	for _, b := range boundaries {
		updates = append(updates, UpdateEntry{
			Type:         string(b.boundary.Type) + "-update",
			Timestamp:    b.boundary.LastHMRTimestamp(),
			Path:         b.boundary.URL,
			AcceptedPath: b.acceptedVia.URL,
		})
	}
	p.broadcaster.Broadcast(Payload{Kind: "update", Updates: updates})
	return nil
}

// invalidateWalk clears transform_result and bumps last_hmr_timestamp on m
// and on every importer that does not accept m, recursively.
func (p *Propagator) invalidateWalk(m *graph.Node, visited map[int]bool) {
	if visited[m.ID()] {
		return
	}
	visited[m.ID()] = true
	p.graph.Invalidate(m)

	for _, importer := range p.graph.Importers(m) {
		if p.graph.Accepts(importer, m) {
			continue
		}
		p.invalidateWalk(importer, visited)
	}
}

type boundaryHit struct {
	boundary    *graph.Node
	acceptedVia *graph.Node
}

// boundaryWalk walks up the importer graph to find HMR boundaries. root is
// the originally changed module (passed through unchanged so self-accepting
// CSS-bubble lookups can reference "current" correctly); cur is the node
// under consideration; chain is the cycle-detection set along the current
// recursion branch. Returns the boundary hits found along every branch,
// and whether any branch hit a dead end.
func (p *Propagator) boundaryWalk(root, cur *graph.Node, chain []*graph.Node) ([]boundaryHit, bool) {
	if cur.IsSelfAccepting() {
		hits := []boundaryHit{{boundary: cur, acceptedVia: root}}
		for _, importer := range p.graph.Importers(cur) {
			if importer.Type != graph.TypeCSS {
				continue
			}
			hits = append(hits, boundaryHit{boundary: importer, acceptedVia: cur})
		}
		return hits, false
	}

	importers := p.graph.Importers(cur)
	if len(importers) == 0 {
		return nil, true
	}

	if cur.Type != graph.TypeCSS && allCSS(importers) {
		return nil, true
	}

	var hits []boundaryHit
	deadEnd := false
	for _, importer := range importers {
		if p.graph.Accepts(importer, cur) {
			hits = append(hits, boundaryHit{boundary: importer, acceptedVia: root})
			continue
		}
		if inChain(chain, importer) {
			deadEnd = true
			continue
		}
		subHits, subDead := p.boundaryWalk(root, importer, append(chain, cur))
		hits = append(hits, subHits...)
		if subDead {
			deadEnd = true
		}
	}
	return hits, deadEnd
}

func allCSS(nodes []*graph.Node) bool {
	for _, n := range nodes {
		if n.Type != graph.TypeCSS {
			return false
		}
	}
	return true
}

func inChain(chain []*graph.Node, n *graph.Node) bool {
	for _, c := range chain {
		if c == n {
			return true
		}
	}
	return false
}

// HandleFileAddOrUnlink handles the glob-importers side of a file
// appearing or disappearing: for every registered entry whose pattern
// matches file, enqueues the importing module for update and invalidates
// its backing file.
func (p *Propagator) HandleFileAddOrUnlink(ctx context.Context, file string) error {
	seen := make(map[string]bool)
	for _, gi := range p.globImporters {
		matched, err := matchesGlob(gi.Base, gi.Pattern, file)
		if err != nil {
			return err
		}
		if !matched || seen[gi.ImportingModule] {
			continue
		}
		seen[gi.ImportingModule] = true

		n, err := p.graph.GetByURL(ctx, gi.ImportingModule)
		if err != nil {
			return err
		}
		if n == nil {
			continue
		}
		if n.File != "" {
			p.graph.OnFileChange(n.File)
		} else {
			p.graph.Invalidate(n)
		}
		if err := p.computeUpdate(ctx, n.File, []*graph.Node{n}); err != nil {
			return err
		}
	}
	return nil
}

func matchesGlob(base, pattern, file string) (bool, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(base, pattern)
	}
	return filepath.Match(pattern, file)
}

// PruneDroppedModules emits the prune payload for modules update_module_info
// reported as no-longer-imported. It does not touch their timestamps:
// graph.UpdateModuleInfo already bumped them, so a future re-import
// bypasses the browser's module cache.
func (p *Propagator) PruneDroppedModules(dropped []*graph.Node) {
	if len(dropped) == 0 {
		return
	}
	paths := make([]string, 0, len(dropped))
	for _, n := range dropped {
		paths = append(paths, n.URL)
	}
	p.broadcaster.Broadcast(Payload{Kind: "prune", Paths: paths})
}
