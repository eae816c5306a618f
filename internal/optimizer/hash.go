package optimizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ConfigSubset is the portion of resolved config that feeds main_hash:
// mode, root, resolve, assetsInclude, plugin names, and
// optimizeDeps.{include,exclude}; functions and regexps are stringified.
type ConfigSubset struct {
	Mode            string
	Root            string
	Resolve         map[string]string
	AssetsInclude   []string
	PluginNames     []string
	OptimizeInclude []string
	OptimizeExclude []string
}

// MainHash computes main_hash = hash(lockfile_contents + subset_of_config).
func MainHash(lockfilePath string, cfg ConfigSubset) (string, error) {
	lockData, err := os.ReadFile(lockfilePath)
	if err != nil {
		return "", fmt.Errorf("reading lockfile %q: %w", lockfilePath, err)
	}

	h := sha256.New()
	h.Write(lockData)

	sort.Strings(cfg.AssetsInclude)
	sort.Strings(cfg.PluginNames)
	sort.Strings(cfg.OptimizeInclude)
	sort.Strings(cfg.OptimizeExclude)

	canon, err := json.Marshal(struct {
		Mode            string            `json:"mode"`
		Root            string            `json:"root"`
		Resolve         map[string]string `json:"resolve"`
		AssetsInclude   []string          `json:"assetsInclude"`
		PluginNames     []string          `json:"pluginNames"`
		OptimizeInclude []string          `json:"optimizeInclude"`
		OptimizeExclude []string          `json:"optimizeExclude"`
	}{
		Mode: cfg.Mode, Root: cfg.Root, Resolve: cfg.Resolve,
		AssetsInclude: cfg.AssetsInclude, PluginNames: cfg.PluginNames,
		OptimizeInclude: cfg.OptimizeInclude, OptimizeExclude: cfg.OptimizeExclude,
	})
	if err != nil {
		return "", err
	}
	h.Write(canon)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// BrowserHash computes browser_hash = hash(main_hash + JSON(deps))[:8] —
// this invalidates browser-side URLs (which embed browser_hash) without
// touching the on-disk cache artifacts main_hash already validated.
func BrowserHash(mainHash string, deps map[string]string) (string, error) {
	h := sha256.New()
	h.Write([]byte(mainHash))

	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return "", err
	}
	h.Write(depsJSON)

	full := hex.EncodeToString(h.Sum(nil))
	return full[:8], nil
}
