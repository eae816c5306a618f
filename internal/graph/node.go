// Package graph implements the in-memory module graph: the directed
// multigraph of served URLs, their importers/imports, and cached transform
// results that the rest of the dev server (transform pipeline, HMR
// propagator) reads and mutates concurrently.
package graph

// ModuleType is fixed at node creation from the URL extension.
type ModuleType string

const (
	TypeJS  ModuleType = "js"
	TypeCSS ModuleType = "css"
)

// TransformResult is the cached {code, map, etag} triple for a node.
type TransformResult struct {
	Code string
	Map  string
	ETag string
}

// Node is one served URL. The accessor methods below do not lock; callers
// must hold the owning Graph's lock, or use the Graph's locked wrappers
// (Graph.Importers, Graph.ImportedModules, Graph.Accepts), since
// importers/imported_modules are mutated from both HTTP handlers and the
// HMR propagator.
type Node struct {
	id int

	URL        string
	ResolvedID string
	File       string // "" for virtual modules
	Type       ModuleType

	importers       map[*Node]struct{}
	importedModules map[*Node]struct{}
	acceptedHMRDeps map[*Node]struct{}
	selfAccepting   bool

	transformResult *TransformResult

	// lastHMRTimestamp is 0 until the first invalidation, then a monotonic
	// millisecond timestamp bumped on every invalidate/prune.
	lastHMRTimestamp int64
}

func newNode(id int, url string, typ ModuleType) *Node {
	return &Node{
		id:              id,
		URL:             url,
		ResolvedID:      url,
		Type:            typ,
		importers:       make(map[*Node]struct{}),
		importedModules: make(map[*Node]struct{}),
		acceptedHMRDeps: make(map[*Node]struct{}),
	}
}

// ID returns the node's stable arena index, used internally for cycle
// detection in the boundary walk (see hmr.Propagator).
func (n *Node) ID() int { return n.id }

// Importers returns a snapshot slice of the node's current importers.
// Callers must hold (at least) the owning graph's read lock.
func (n *Node) Importers() []*Node {
	out := make([]*Node, 0, len(n.importers))
	for m := range n.importers {
		out = append(out, m)
	}
	return out
}

// ImportedModules returns a snapshot slice of the node's current imports.
func (n *Node) ImportedModules() []*Node {
	out := make([]*Node, 0, len(n.importedModules))
	for m := range n.importedModules {
		out = append(out, m)
	}
	return out
}

// IsSelfAccepting reports whether the module declared hot.accept(cb) with
// no dep list.
func (n *Node) IsSelfAccepting() bool { return n.selfAccepting }

// Accepts reports whether dep is in n's accepted_hmr_deps.
func (n *Node) Accepts(dep *Node) bool {
	_, ok := n.acceptedHMRDeps[dep]
	return ok
}

// TransformResultSnapshot returns a copy of the cached result, or nil if
// absent.
func (n *Node) TransformResultSnapshot() *TransformResult {
	if n.transformResult == nil {
		return nil
	}
	r := *n.transformResult
	return &r
}

// LastHMRTimestamp returns the monotonic millisecond timestamp of the last
// invalidation, or 0 if the node has never been invalidated.
func (n *Node) LastHMRTimestamp() int64 { return n.lastHMRTimestamp }
