// Command esmdevd is the dev server's CLI entrypoint, grounded on
// tools/please_js/main.go's go-flags subcommand dispatch table.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/thought-machine/go-flags"
	"go.uber.org/zap"

	"github.com/pleasejs/esmdev/internal/common"
	"github.com/pleasejs/esmdev/internal/config"
	"github.com/pleasejs/esmdev/internal/logging"
	"github.com/pleasejs/esmdev/internal/optimizer"
	"github.com/pleasejs/esmdev/internal/scanner"
	"github.com/pleasejs/esmdev/internal/server"
)

var opts = struct {
	Usage string

	Serve struct {
		Root   string `short:"r" long:"root" default:"." description:"Project root directory"`
		Port   int    `short:"p" long:"port" description:"HTTP port (overrides config)"`
		Mode   string `long:"mode" description:"development or production (overrides config)"`
		Define []string `long:"define" description:"Define substitutions (key=value)"`
	} `command:"serve" alias:"s" description:"Start the module dev server"`

	Optimize struct {
		Root  string `short:"r" long:"root" default:"." description:"Project root directory"`
		Force bool   `long:"force" description:"Ignore the cached main_hash and re-bundle everything"`
	} `command:"optimize" description:"Pre-bundle dependencies without starting the server"`

	Scan struct {
		Root string `short:"r" long:"root" default:"." description:"Project root directory"`
	} `command:"scan" description:"Run the dependency scanner and print discovered bare imports"`
}{
	Usage: `
esmdevd serves a browser module graph for on-demand development.

It provides these main operations:
  - serve:    start the dev server (module graph + HMR + transform pipeline)
  - optimize: pre-bundle third-party dependencies ahead of time
  - scan:     run the dependency scanner standalone and report what it found
`,
}

func main() {
	p := flags.NewParser(&opts, flags.Default)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	if p.Active == nil {
		p.WriteHelp(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch p.Active.Name {
	case "serve":
		err = runServe()
	case "optimize":
		err = runOptimize()
	case "scan":
		err = runScan()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe() error {
	root, err := filepath.Abs(opts.Serve.Root)
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.Serve.Port != 0 {
		cfg.Port = opts.Serve.Port
	}
	if opts.Serve.Mode != "" {
		cfg.Mode = opts.Serve.Mode
	}
	applyDefines(cfg, opts.Serve.Define)

	log, err := logging.New(cfg.Mode)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	// A config/env-file change asks for a full process restart: the HMR
	// propagator's RestartFunc cancels the current server's run context,
	// and the outer loop rebuilds the Server from freshly reloaded config.
	for {
		runCtx, runCancel := context.WithCancel(context.Background())
		restarted := false
		restart := func(reason string) {
			log.Info("restarting", zap.String("reason", reason))
			restarted = true
			runCancel()
		}

		srv, err := server.New(cfg, log, restart)
		if err != nil {
			runCancel()
			return fmt.Errorf("building server: %w", err)
		}

		err = srv.Run(runCtx)
		runCancel()
		if err != nil {
			return err
		}
		if !restarted {
			return nil
		}

		cfg, err = config.Load(root)
		if err != nil {
			return fmt.Errorf("reloading config: %w", err)
		}
		if opts.Serve.Port != 0 {
			cfg.Port = opts.Serve.Port
		}
		if opts.Serve.Mode != "" {
			cfg.Mode = opts.Serve.Mode
		}
		applyDefines(cfg, opts.Serve.Define)
	}
}

func runOptimize() error {
	root, err := filepath.Abs(opts.Optimize.Root)
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	common.MergeEnvDefines(cfg.Define, cfg.Mode)

	log, err := logging.New(cfg.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	meta, err := optimizer.Run(context.Background(), optimizer.Options{
		CacheDir:     cfg.CacheDir,
		LockfilePath: cfg.Lockfile,
		Define:       cfg.Define,
		Force:        opts.Optimize.Force || cfg.OptimizeDeps.Force,
		Config: optimizer.ConfigSubset{
			Mode:            cfg.Mode,
			Root:            cfg.Root,
			OptimizeInclude: cfg.OptimizeDeps.Include,
			OptimizeExclude: cfg.OptimizeDeps.Exclude,
		},
		ScanOptions: scanner.Options{
			Root:       cfg.Root,
			EntryGlobs: cfg.OptimizeDeps.Entries,
			Include:    cfg.OptimizeDeps.Include,
			Exclude:    cfg.OptimizeDeps.Exclude,
		},
	})
	if err != nil {
		return fmt.Errorf("optimizing dependencies: %w", err)
	}

	log.Info("dependencies optimized",
		zap.Int("count", len(meta.Optimized)),
		zap.String("mainHash", meta.MainHash),
		zap.String("browserHash", meta.BrowserHash))
	for name, dm := range meta.Optimized {
		fmt.Printf("%s -> %s\n", name, dm.File)
	}
	return nil
}

func runScan() error {
	root, err := filepath.Abs(opts.Scan.Root)
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	res, err := scanner.Scan(scanner.Options{
		Root:       cfg.Root,
		EntryGlobs: cfg.OptimizeDeps.Entries,
		Include:    cfg.OptimizeDeps.Include,
		Exclude:    cfg.OptimizeDeps.Exclude,
	})
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	for id, file := range res.Deps {
		fmt.Printf("dep\t%s\t%s\n", id, file)
	}
	for id, importer := range res.Missing {
		fmt.Printf("missing\t%s\t%s\n", id, importer)
	}
	return nil
}

func applyDefines(cfg *config.Config, raw []string) {
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if cfg.Define == nil {
			cfg.Define = map[string]string{}
		}
		cfg.Define[parts[0]] = parts[1]
	}
	common.MergeEnvDefines(cfg.Define, cfg.Mode)
}
