package graph

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// IDResolver resolves a URL/import source to an opaque resolved id, the way
// the plugin container's resolve_id hook chain does. The graph package
// depends only on this narrow interface so it never imports the plugin
// package — the server wires a *plugin.Container in at startup.
type IDResolver interface {
	ResolveID(ctx context.Context, source string, importer string) (id string, err error)
}

// Graph is the module graph: three indices (by url, by resolved id, by
// file) over an arena of nodes. Mutations are serialized by mu; read-only
// lookups take only a read lock.
type Graph struct {
	mu sync.RWMutex

	nodes []*Node // arena; index i holds the node with id i, or nil if pruned

	byURL        map[string]*Node
	byResolvedID map[string]*Node
	byFile       map[string]map[*Node]struct{}

	resolver IDResolver
}

// New creates an empty graph. resolver may be nil during tests that only
// exercise direct URL/file lookups.
func New(resolver IDResolver) *Graph {
	return &Graph{
		byURL:        make(map[string]*Node),
		byResolvedID: make(map[string]*Node),
		byFile:       make(map[string]map[*Node]struct{}),
		resolver:     resolver,
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// cleanURL strips the cache-busting "t=" query and the "import" query flag
// so both annotated and bare requests for a module resolve to one node.
func cleanURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Del("t")
	q.Del("import")
	u.RawQuery = q.Encode()
	s := u.Path
	if u.RawQuery != "" {
		s += "?" + u.RawQuery
	}
	return s
}

// StripQueryAndHash removes any "?..." or "#..." suffix, used to derive a
// file path from a resolved id.
func StripQueryAndHash(id string) string {
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		return id[:i]
	}
	return id
}

var knownExts = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".css": true,
}

// typeForURL derives the fixed module type from a URL's extension.
func typeForURL(u string) ModuleType {
	if strings.HasSuffix(StripQueryAndHash(u), ".css") {
		return TypeCSS
	}
	return TypeJS
}

// GetByURL normalizes raw, resolves it via the plugin container, and
// collapses extensionless/extensioned variants onto the same node.
// Returns (nil, nil) if no node exists yet for raw.
func (g *Graph) GetByURL(ctx context.Context, raw string) (*Node, error) {
	key, err := g.canonicalURL(ctx, raw)
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byURL[key], nil
}

// canonicalURL normalizes raw into the key the graph indexes nodes under.
func (g *Graph) canonicalURL(ctx context.Context, raw string) (string, error) {
	cleaned := cleanURL(raw)
	if g.resolver == nil {
		return cleaned, nil
	}
	resolved, err := g.resolver.ResolveID(ctx, cleaned, "")
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", raw, err)
	}
	if resolved == "" {
		resolved = cleaned
	}
	if filepath.Ext(cleaned) == "" && filepath.Ext(resolved) != "" {
		return cleaned + filepath.Ext(resolved), nil
	}
	return cleaned, nil
}

// GetByID looks up a node by its resolved id.
func (g *Graph) GetByID(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byResolvedID[id]
}

// GetByFile returns every node backed by file (a file may back several URL
// variants via query parameters, e.g. "?direct").
func (g *Graph) GetByFile(file string) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.byFile[file]
	out := make([]*Node, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	return out
}

// EnsureEntry returns the existing node for url, or creates one. Index
// population on creation is atomic with respect to other mutators.
func (g *Graph) EnsureEntry(ctx context.Context, rawURL string) (*Node, error) {
	key, err := g.canonicalURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if n, ok := g.byURL[key]; ok {
		return n, nil
	}

	id := len(g.nodes)
	n := newNode(id, key, typeForURL(key))
	g.nodes = append(g.nodes, n)
	g.byURL[key] = n
	g.byResolvedID[n.ResolvedID] = n
	return n, nil
}

// EnsureVirtual creates (or returns) a synthetic node for a module reached
// only via in-content references (e.g. a CSS @import with no URL of its
// own). Such nodes use a url of the form
// "<fsPrefix>/<absolute-path>" so file changes still propagate to them.
func (g *Graph) EnsureVirtual(fsPrefix, absPath string) *Node {
	key := fsPrefix + "/" + filepath.ToSlash(absPath)

	g.mu.Lock()
	defer g.mu.Unlock()

	if n, ok := g.byURL[key]; ok {
		return n
	}
	id := len(g.nodes)
	n := newNode(id, key, typeForURL(absPath))
	n.File = absPath
	g.nodes = append(g.nodes, n)
	g.byURL[key] = n
	g.byResolvedID[n.ResolvedID] = n
	g.indexFile(n, absPath)
	return n
}

// SetResolvedInfo records the resolved id and backing file discovered
// during resolution/load, reindexing as needed.
func (g *Graph) SetResolvedInfo(n *Node, resolvedID, file string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n.ResolvedID != "" {
		delete(g.byResolvedID, n.ResolvedID)
	}
	n.ResolvedID = resolvedID
	if resolvedID != "" {
		g.byResolvedID[resolvedID] = n
	}

	if n.File != file {
		if n.File != "" {
			g.unindexFile(n, n.File)
		}
		n.File = file
		if file != "" {
			g.indexFile(n, file)
		}
	}
}

func (g *Graph) indexFile(n *Node, file string) {
	set, ok := g.byFile[file]
	if !ok {
		set = make(map[*Node]struct{})
		g.byFile[file] = set
	}
	set[n] = struct{}{}
}

func (g *Graph) unindexFile(n *Node, file string) {
	set, ok := g.byFile[file]
	if !ok {
		return
	}
	delete(set, n)
	if len(set) == 0 {
		delete(g.byFile, file)
	}
}

// SetTransformResult stores a freshly computed transform result on a node.
func (g *Graph) SetTransformResult(n *Node, r *TransformResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n.transformResult = r
}

// UpdateModuleInfo atomically replaces a node's
// imported_modules/accepted_hmr_deps/self_accepting,
// computing the edge diff against the previous import set and dropping
// back-edges for removed imports. It returns the set of importees whose
// importers became empty as a result — "no longer imported" nodes the
// caller (server) uses to emit a prune payload.
func (g *Graph) UpdateModuleInfo(ctx context.Context, mod *Node, importedURLs, acceptedURLs []string, selfAccepting bool) ([]*Node, error) {
	importedNodes := make([]*Node, 0, len(importedURLs))
	for _, u := range importedURLs {
		n, err := g.EnsureEntry(ctx, u)
		if err != nil {
			return nil, err
		}
		importedNodes = append(importedNodes, n)
	}

	acceptedSet := make(map[*Node]struct{}, len(acceptedURLs))
	for _, u := range acceptedURLs {
		n, err := g.EnsureEntry(ctx, u)
		if err != nil {
			return nil, err
		}
		acceptedSet[n] = struct{}{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	newSet := make(map[*Node]struct{}, len(importedNodes))
	for _, n := range importedNodes {
		newSet[n] = struct{}{}
	}

	var pruned []*Node
	for old := range mod.importedModules {
		if _, stillImported := newSet[old]; stillImported {
			continue
		}
		delete(old.importers, mod)
		if len(old.importers) == 0 {
			pruned = append(pruned, old)
		}
	}

	for n := range newSet {
		n.importers[mod] = struct{}{}
	}

	mod.importedModules = newSet
	mod.acceptedHMRDeps = acceptedSet
	mod.selfAccepting = selfAccepting

	for _, n := range pruned {
		n.lastHMRTimestamp = nowMillis()
	}

	return pruned, nil
}

// OnFileChange invalidates (clears transform_result, bumps
// last_hmr_timestamp) every node backed by file. It does not clear SSR
// result caches — those live outside the module graph and are cleared by
// the caller.
func (g *Graph) OnFileChange(file string) []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	set := g.byFile[file]
	out := make([]*Node, 0, len(set))
	ts := nowMillis()
	for n := range set {
		n.transformResult = nil
		n.lastHMRTimestamp = ts
		out = append(out, n)
	}
	return out
}

// Invalidate clears a single node's cached transform result and bumps its
// timestamp, without touching edges. Used by the HMR propagator's
// invalidate walk, which may reach nodes not directly backed by the
// changed file (importers that don't accept it).
func (g *Graph) Invalidate(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n.transformResult = nil
	n.lastHMRTimestamp = nowMillis()
}

// InvalidateAll clears cached transform results across the graph without
// dropping any node.
func (g *Graph) InvalidateAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range g.nodes {
		if n != nil {
			n.transformResult = nil
		}
	}
}

// Prune removes a node from all three indices — the only way a node
// becomes unreachable. Callers are expected to
// call this only for nodes UpdateModuleInfo reported as no-longer-imported
// and confirmed not reachable from any entry.
func (g *Graph) Prune(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.byURL[n.URL] == n {
		delete(g.byURL, n.URL)
	}
	if g.byResolvedID[n.ResolvedID] == n {
		delete(g.byResolvedID, n.ResolvedID)
	}
	if n.File != "" {
		g.unindexFile(n, n.File)
	}
	for imp := range n.importedModules {
		delete(imp.importers, n)
	}
	for imp := range n.importers {
		delete(imp.importedModules, n)
	}
	if n.id >= 0 && n.id < len(g.nodes) {
		g.nodes[n.id] = nil
	}
}

// Importers returns a read-locked snapshot of n's current importers, safe
// to call while other goroutines mutate the graph.
func (g *Graph) Importers(n *Node) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return n.Importers()
}

// ImportedModules returns a read-locked snapshot of n's current imports.
func (g *Graph) ImportedModules(n *Node) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return n.ImportedModules()
}

// Accepts reports, under a read lock, whether importer declared dep in its
// accepted_hmr_deps.
func (g *Graph) Accepts(importer, dep *Node) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return importer.Accepts(dep)
}

// Len returns the number of live (non-pruned) nodes, for diagnostics/tests.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, node := range g.nodes {
		if node != nil {
			n++
		}
	}
	return n
}
