package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// graphResolver adapts the plugin container's resolve_id hook chain to
// graph.IDResolver, the narrow interface the graph package depends on so
// it never imports the plugin package directly.
type graphResolver struct {
	s *Server
}

func (r *graphResolver) ResolveID(ctx context.Context, source, importer string) (string, error) {
	res, err := r.s.container.ResolveID(ctx, source, importer)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

// rootFileReader implements plugin.FileReader: a path is readable only if
// it resolves within one of the configured project roots, mirroring the
// teacher's servedir/packageRoot dual-root static lookup.
type rootFileReader struct {
	roots []string
}

func (fr *rootFileReader) ReadAllowed(path string) ([]byte, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, err
	}
	allowed := false
	for _, root := range fr.roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(absRoot, abs); err == nil && !strings.HasPrefix(rel, "..") {
			if _, err := os.Stat(abs); err == nil {
				allowed = true
				break
			}
		}
		// A URL-style path ("/main.ts") is looked up under the root.
		joined := filepath.Join(absRoot, filepath.FromSlash(path))
		if rel, err := filepath.Rel(absRoot, joined); err == nil && !strings.HasPrefix(rel, "..") {
			if _, err := os.Stat(joined); err == nil {
				abs, allowed = joined, true
				break
			}
		}
	}
	if !allowed {
		return nil, false, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// watchHandler adapts the filesystem watcher to the HMR propagator.
type watchHandler struct {
	s *Server
}

func (h *watchHandler) OnChange(ctx context.Context, file string) error {
	return h.s.prop.HandleFileChange(ctx, file)
}

func (h *watchHandler) OnAddOrUnlink(ctx context.Context, file string) error {
	return h.s.prop.HandleFileAddOrUnlink(ctx, file)
}
