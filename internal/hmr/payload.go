// Package hmr implements the HMR propagator: given a changed file, walks
// the module graph to decide whether to invalidate, bubble an update to
// self-accepting/dep-accepting boundaries, or force a full reload, then
// hands the resulting payload to a Broadcaster. Grounded on
// tools/please_js/esmdev/hmr.go's change-classification loop, generalized
// from "dirty mtime → full reload or SSE change event" to per-module
// boundary discovery over the graph.
package hmr

// UpdateEntry is one entry of a WebSocket "update" payload.
type UpdateEntry struct {
	Type         string `json:"type"` // "js-update" | "css-update"
	Timestamp    int64  `json:"timestamp"`
	Path         string `json:"path"`
	AcceptedPath string `json:"acceptedPath"`
}

// Payload is what the propagator hands to a Broadcaster: exactly one of
// its non-zero-value fields is populated, selected by Kind.
type Payload struct {
	Kind string // "update" | "full-reload" | "prune"

	Updates []UpdateEntry // Kind == "update"
	Path    string        // Kind == "full-reload", optional ("" means unconditional)
	Paths   []string      // Kind == "prune"
}

// Broadcaster delivers a payload to connected clients. The WebSocket hub,
// outside this package's scope, implements this.
type Broadcaster interface {
	Broadcast(Payload)
}
