package common

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// exportValue is one node of a package.json "exports" tree: either a leaf
// path string or a branch mapping condition/subpath keys to child nodes.
type exportValue struct {
	Path string
	Map  map[string]*exportValue
}

func (v *exportValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v.Path = s
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	v.Map = make(map[string]*exportValue, len(m))
	for k, raw := range m {
		child := &exportValue{}
		if err := json.Unmarshal(raw, child); err != nil {
			return err
		}
		v.Map[k] = child
	}
	return nil
}

type packageJSONExports struct {
	Exports *exportValue `json:"exports"`
}

// ResolveExportsEntry resolves subpath (e.g. "." or "./client") against
// pkgDir's package.json "exports" field for a browser/import target,
// returning the on-disk file and true on a match. It reports false (not
// an error) whenever the package has no exports field, or the field
// doesn't cover subpath — callers fall back to "module"/"main" or an
// index file themselves.
func ResolveExportsEntry(pkgDir, subpath string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(pkgDir, "package.json"))
	if err != nil {
		return "", false
	}
	var pkg packageJSONExports
	if json.Unmarshal(data, &pkg) != nil || pkg.Exports == nil {
		return "", false
	}

	rel := matchExports(pkg.Exports, subpath)
	if rel == "" {
		return "", false
	}
	resolved := filepath.Join(pkgDir, rel)
	if info, err := os.Stat(resolved); err == nil && !info.IsDir() {
		return resolved, true
	}
	return "", false
}

// matchExports resolves subpath against an exports tree that is either a
// direct string (valid only at the root), a subpath map (keys starting
// with "."), or a bare conditions object (valid only at the root).
func matchExports(exports *exportValue, subpath string) string {
	if exports.Path != "" {
		if subpath == "." {
			return exports.Path
		}
		return ""
	}
	if exports.Map == nil {
		return ""
	}

	isSubpathMap := false
	for key := range exports.Map {
		if strings.HasPrefix(key, ".") {
			isSubpathMap = true
			break
		}
	}

	if isSubpathMap {
		if entry, ok := exports.Map[subpath]; ok {
			return resolveCondition(entry)
		}
		return ""
	}
	if subpath == "." {
		return resolveCondition(exports)
	}
	return ""
}

// browserConditions is the condition priority order for a browser/ESM dev
// server: prefer an explicit browser build, then the ESM-flagged one, then
// whatever the package calls its default import target.
var browserConditions = []string{"browser", "module", "import", "default"}

func resolveCondition(value *exportValue) string {
	if value.Path != "" {
		return value.Path
	}
	if value.Map == nil {
		return ""
	}
	for _, key := range browserConditions {
		if entry, ok := value.Map[key]; ok {
			if result := resolveCondition(entry); result != "" {
				return result
			}
		}
	}
	return ""
}
