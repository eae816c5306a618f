package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pleasejs/esmdev/internal/client"
	"github.com/pleasejs/esmdev/internal/common"
	"github.com/pleasejs/esmdev/internal/config"
	"github.com/pleasejs/esmdev/internal/graph"
	"github.com/pleasejs/esmdev/internal/hmr"
	"github.com/pleasejs/esmdev/internal/hmrlex"
	"github.com/pleasejs/esmdev/internal/optimizer"
	"github.com/pleasejs/esmdev/internal/plugin"
	"github.com/pleasejs/esmdev/internal/scanner"
	"github.com/pleasejs/esmdev/internal/transform"
	"github.com/pleasejs/esmdev/internal/watch"
)

// Server serves a project's module graph for on-demand development,
// wiring the graph, plugin container, transform pipeline, HMR propagator,
// and dependency optimizer behind one HTTP handler.
type Server struct {
	cfg       *config.Config
	log       *zap.Logger
	graph     *graph.Graph
	container *plugin.Container
	pipeline  *transform.Pipeline
	prop      *hmr.Propagator
	hub       *hub
	watcher   *watch.Watcher

	mu            sync.RWMutex
	optMeta       *optimizer.Metadata
	restart       func(reason string)
	pendingReload chan struct{} // non-nil while a runtime re-optimize is in flight
}

// pendingReloadTimeoutHTML is served to a source transform request that
// waited out the full 1s pendingReloadTimeout without the in-flight
// dependency re-optimization finishing.
const pendingReloadTimeoutHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Dependency re-optimization in progress</title></head>
<body>
<h1>Still re-optimizing dependencies</h1>
<p>A new dependency was discovered and is being pre-bundled. This is taking
longer than expected — reload the page in a moment.</p>
</body>
</html>`

// pendingReloadTimeout bounds how long a source transform request will wait
// on an in-flight dependency re-optimization before giving up with a 408.
const pendingReloadTimeout = 1 * time.Second

// New builds a Server for cfg. restart is invoked when a config/env file
// change requires a full process restart (the caller decides how).
func New(cfg *config.Config, log *zap.Logger, restart func(reason string)) (*Server, error) {
	s := &Server{cfg: cfg, log: log, restart: restart}
	s.hub = newHub(log)
	if cfg.Define == nil {
		cfg.Define = map[string]string{}
	}
	if cfg.EnvFile {
		envDefines, err := config.LoadEnvFiles(filepath.Join(cfg.Root, ".env"), cfg.Mode, cfg.EnvPrefix)
		if err != nil {
			log.Warn("failed to load .env files", zap.Error(err))
		}
		for k, v := range envDefines {
			if _, ok := cfg.Define[k]; !ok {
				cfg.Define[k] = v
			}
		}
	}
	common.MergeEnvDefines(cfg.Define, cfg.Mode)

	resolver := &graphResolver{s: s}
	s.graph = graph.New(resolver)

	transformOpts := transform.EsbuildTransformOptions{
		Define:       cfg.Define,
		JSXAutomatic: true,
	}
	// globRewriter's OnMatch closes over s.prop, which is assigned below —
	// safe because the closure only runs during a later transform request,
	// never during construction.
	globRewriter := &transform.GlobRewriter{
		OnMatch: func(base, pattern, importingModule string) {
			s.prop.RegisterGlobImporter(hmr.GlobImporter{
				Base:            base,
				Pattern:         pattern,
				ImportingModule: importingModule,
			})
		},
	}
	s.container = plugin.New([]*plugin.Plugin{
		transform.NewGlobRewritePlugin(globRewriter),
		transform.NewEsbuildTransformPlugin(transformOpts),
	}, &rootFileReader{roots: []string{cfg.Root, cfg.ServeDir}})

	s.pipeline = transform.New(s.graph, s.container)

	s.prop = hmr.New(s.graph, s.container, s.hub, hmr.Config{
		ConfigFiles:      configFiles(cfg),
		EnvFiles:         envFiles(cfg),
		EnvFileHandling:  cfg.EnvFile,
		ClientRuntimeDir: client.RuntimeDir,
	}, restart)

	w, err := watch.New(watch.Options{
		Root: cfg.Root,
		Ignore: func(path string) bool {
			base := filepath.Base(path)
			return base == "node_modules" || base == ".git" || path == cfg.CacheDir
		},
		Logger: log,
	}, &watchHandler{s: s})
	if err != nil {
		return nil, fmt.Errorf("starting watcher: %w", err)
	}
	s.watcher = w

	meta, err := s.runOptimizer(context.Background(), nil, false)
	if err != nil {
		log.Warn("initial dependency optimization failed, serving without pre-bundled deps", zap.Error(err))
	} else {
		s.optMeta = meta
	}

	return s, nil
}

func configFiles(cfg *config.Config) []string {
	if cfg.ConfigFile == "" {
		return nil
	}
	return []string{cfg.ConfigFile}
}

func envFiles(cfg *config.Config) []string {
	return config.EnvFileVariants(filepath.Join(cfg.Root, ".env"), cfg.Mode)
}

// runOptimizer executes (or re-executes) the dependency optimizer,
// updating s.optMeta. newDeps, when non-nil, bypasses a fresh scan — the
// runtime path taken when a live transform request hits a bare import the
// last optimizer run never saw.
func (s *Server) runOptimizer(ctx context.Context, newDeps map[string]string, force bool) (*optimizer.Metadata, error) {
	subset := optimizer.ConfigSubset{
		Mode:            s.cfg.Mode,
		Root:            s.cfg.Root,
		AssetsInclude:   nil,
		PluginNames:     pluginNames(s.container),
		OptimizeInclude: s.cfg.OptimizeDeps.Include,
		OptimizeExclude: s.cfg.OptimizeDeps.Exclude,
	}
	meta, err := optimizer.Run(ctx, optimizer.Options{
		CacheDir:     s.cfg.CacheDir,
		LockfilePath: s.cfg.Lockfile,
		Config:       subset,
		Define:       s.cfg.Define,
		Force:        force || s.cfg.OptimizeDeps.Force,
		NewDeps:      newDeps,
		ScanOptions: scanner.Options{
			Root:       s.cfg.Root,
			EntryGlobs: s.cfg.OptimizeDeps.Entries,
			Include:    s.cfg.OptimizeDeps.Include,
			Exclude:    s.cfg.OptimizeDeps.Exclude,
		},
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.optMeta = meta
	s.mu.Unlock()
	return meta, nil
}

func pluginNames(c *plugin.Container) []string {
	names := make([]string, 0, len(c.Plugins()))
	for _, p := range c.Plugins() {
		names = append(names, p.Name)
	}
	return names
}

// ServeHTTP dispatches requests in the same priority order as the
// teacher's esmServer: websocket/ping endpoints, the client runtime,
// pre-bundled deps, HTML (with import-map/runtime injection), on-demand
// source transforms, then a static-file fallback.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	urlPath := r.URL.Path

	switch {
	case urlPath == "/__esmdev_ws":
		s.hub.ServeWS(w, r)
		return
	case urlPath == "/__esmdev_ping":
		w.WriteHeader(http.StatusNoContent)
		return
	case urlPath == client.RuntimeURLPath:
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte(client.RuntimeJS()))
		return
	case strings.HasPrefix(urlPath, "/@deps/"):
		s.handleDep(w, r, urlPath)
		return
	case strings.HasSuffix(urlPath, ".html") || urlPath == "/":
		s.handleHTML(w, r, urlPath)
		return
	}

	ext := filepath.Ext(urlPath)
	isSourceExt := ext == "" || ext == ".js" || ext == ".jsx" || ext == ".ts" ||
		ext == ".tsx" || ext == ".mjs" || ext == ".css"
	if isSourceExt {
		s.handleSource(w, r, urlPath, start)
		return
	}

	s.handleStatic(w, r, urlPath)
}

func (s *Server) handleDep(w http.ResponseWriter, r *http.Request, urlPath string) {
	s.mu.RLock()
	meta := s.optMeta
	s.mu.RUnlock()

	depName := strings.TrimSuffix(strings.TrimPrefix(urlPath, "/@deps/"), ".js")
	if meta != nil {
		if dm, ok := meta.Optimized[depName]; ok {
			http.ServeFile(w, r, filepath.Join(s.cfg.CacheDir, strings.TrimPrefix(dm.File, "/")))
			return
		}
	}

	file, ok := scanner.ResolvePackageEntry(s.cfg.Root, depName)
	if !ok {
		http.NotFound(w, r)
		return
	}

	newMeta, err := s.reoptimizeWithPendingReload(r.Context(), depName, file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if dm, ok := newMeta.Optimized[depName]; ok {
		http.ServeFile(w, r, filepath.Join(s.cfg.CacheDir, strings.TrimPrefix(dm.File, "/")))
		return
	}
	http.NotFound(w, r)
}

// reoptimizeWithPendingReload publishes a pending_reload future for the
// duration of a runtime-triggered dependency re-optimization — other
// in-flight source transform requests wait on waitForPendingReload rather
// than racing the rebuild — and broadcasts a full-reload once it lands so
// the browser picks up the newly pre-bundled dependency.
func (s *Server) reoptimizeWithPendingReload(ctx context.Context, depName, file string) (*optimizer.Metadata, error) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.pendingReload = ch
	// The cache directory is reset on every run, so the already-optimized
	// deps are bundled again alongside the new one.
	deps := map[string]string{}
	if s.optMeta != nil {
		for id, dm := range s.optMeta.Optimized {
			deps[id] = dm.Src
		}
	}
	deps[depName] = file
	s.mu.Unlock()

	// Forced: main_hash does not cover runtime-discovered deps, so an
	// unforced run would return the previous metadata unchanged.
	newMeta, err := s.runOptimizer(ctx, deps, true)

	s.mu.Lock()
	s.pendingReload = nil
	s.mu.Unlock()
	close(ch)

	if err != nil {
		return nil, err
	}
	s.hub.Broadcast(hmr.Payload{Kind: "full-reload"})
	return newMeta, nil
}

// waitForPendingReload blocks until no dependency re-optimization is in
// flight, the request context is canceled, or pendingReloadTimeout elapses
// (reporting the timeout via its bool result). Requests for the client
// runtime never call this — they're dispatched before handleSource.
func (s *Server) waitForPendingReload(ctx context.Context) bool {
	s.mu.RLock()
	ch := s.pendingReload
	s.mu.RUnlock()
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return true
	case <-time.After(pendingReloadTimeout):
		return false
	}
}

func (s *Server) handleHTML(w http.ResponseWriter, r *http.Request, urlPath string) {
	file := urlPath
	if file == "/" {
		file = "/" + s.cfg.EntryHTML
	}
	diskPath := filepath.Join(s.cfg.ServeDir, filepath.FromSlash(file))

	data, err := os.ReadFile(diskPath)
	if err != nil {
		diskPath = filepath.Join(s.cfg.ServeDir, s.cfg.EntryHTML)
		data, err = os.ReadFile(diskPath)
		if err != nil {
			http.NotFound(w, r)
			return
		}
	}

	s.mu.RLock()
	meta := s.optMeta
	s.mu.RUnlock()
	importMap := buildImportMap(meta)

	entryURLPath := "/" + s.cfg.EntryHTML
	out := client.InjectHTML(string(data), importMap, entryURLPath)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(out))
}

func buildImportMap(meta *optimizer.Metadata) []byte {
	imports := map[string]string{}
	if meta != nil {
		for name, dm := range meta.Optimized {
			imports[name] = dm.File
		}
	}
	data, _ := json.Marshal(map[string]any{"imports": imports})
	return data
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request, urlPath string, start time.Time) {
	ctx := r.Context()

	if !s.waitForPendingReload(ctx) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusRequestTimeout)
		w.Write([]byte(pendingReloadTimeoutHTML))
		return
	}

	importer := r.Header.Get("Referer")

	res, err := s.pipeline.TransformRequest(ctx, urlPath, importer)
	if err != nil {
		var terr *transform.Error
		if errors.As(err, &terr) {
			w.Header().Set("Content-Type", "application/javascript")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(transform.RenderErrorModule(urlPath, terr)))
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.updateGraphFromTransform(ctx, urlPath, res.Code)

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == res.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	contentType := "application/javascript"
	if strings.HasSuffix(graph.StripQueryAndHash(urlPath), ".css") {
		contentType = "text/javascript" // served as a style-injecting ES module
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", res.ETag)
	w.Header().Set("Cache-Control", "no-cache")
	if res.Map != "" {
		w.Header().Set("SourceMap", urlPath+".map")
	}
	w.Write([]byte(res.Code))

	s.log.Debug("transformed", zap.String("path", urlPath), zap.Duration("took", time.Since(start)))
}

// updateGraphFromTransform parses the transformed code's import
// specifiers and any hot.accept() call, then feeds the result to
// update_module_info so importer/importee edges and accepted_hmr_deps
// stay current for the HMR propagator.
func (s *Server) updateGraphFromTransform(ctx context.Context, urlPath, code string) {
	n, err := s.graph.GetByURL(ctx, urlPath)
	if err != nil || n == nil {
		return
	}

	imports := transform.ExtractImports(code)

	selfAccepts := false
	var accepted []string
	if idx := transform.FindHotAcceptCall(code); idx >= 0 {
		if res, err := hmrlex.Parse(code, idx); err == nil {
			selfAccepts = res.SelfAccepts
			for _, d := range res.Deps {
				accepted = append(accepted, d.URL)
			}
		}
	}

	dropped, err := s.graph.UpdateModuleInfo(ctx, n, imports, accepted, selfAccepts)
	if err != nil {
		s.log.Warn("update_module_info failed", zap.String("path", urlPath), zap.Error(err))
		return
	}
	s.prop.PruneDroppedModules(dropped)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request, urlPath string) {
	filePath := filepath.Join(s.cfg.ServeDir, filepath.FromSlash(urlPath))
	if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
		http.ServeFile(w, r, filePath)
		return
	}
	s.handleHTML(w, r, "/")
}

// Run starts the watcher and HTTP server, trying successive ports if the
// configured one is in use, and blocks until ctx is canceled or the
// process receives SIGINT/SIGTERM.
func (s *Server) Run(ctx context.Context) error {
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		if err := s.watcher.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("watcher stopped", zap.Error(err))
		}
	}()

	var listener net.Listener
	actualPort := s.cfg.Port
	for attempts := 0; attempts < 20; attempts++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", actualPort))
		if err == nil {
			listener = ln
			break
		}
		if !isAddrInUse(err) {
			return fmt.Errorf("listening on port %d: %w", actualPort, err)
		}
		actualPort++
	}
	if listener == nil {
		return fmt.Errorf("no available port found starting at %d", s.cfg.Port)
	}

	httpServer := &http.Server{Handler: s}
	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(listener) }()

	s.log.Info("dev server ready", zap.Int("port", actualPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-sigCh:
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	s.log.Info("shutting down")
	return httpServer.Close()
}

func isAddrInUse(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var sysErr *os.SyscallError
		if errors.As(opErr.Err, &sysErr) {
			return errors.Is(sysErr.Err, syscall.EADDRINUSE)
		}
	}
	return false
}
