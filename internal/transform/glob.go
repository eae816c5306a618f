package transform

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pleasejs/esmdev/internal/scanner"
)

var globCallRe = regexp.MustCompile(`import\.meta\.glob\(\s*(['"` + "`" + `])((?:\\.|[^\\])*?)\1\s*(,\s*\{[^}]*\})?\s*\)`)

var eagerOptRe = regexp.MustCompile(`eager\s*:\s*true`)

// GlobRewriter expands import.meta.glob(...) call sites into an object
// literal mapping each matched path (relative to the importing module) to
// a lazy dynamic import, or to an awaited dynamic import when called as
// import.meta.glob(pattern, {eager: true}). Grounded on the bare-import
// crawl scanner.HasGlobImport gates on, generalized here from detection to
// full expansion since the transform pipeline needs the rewritten code,
// not just a yes/no signal.
//
// OnMatch, when set, is invoked once per call site with the pattern's base
// directory, the raw pattern, and the importing module's id, so a caller
// can register the glob against the HMR propagator's add/unlink registry.
type GlobRewriter struct {
	OnMatch func(base, pattern, importingModule string)
}

func (g *GlobRewriter) Rewrite(code, sourcefile string) (string, error) {
	if !scanner.HasGlobImport(code) {
		return code, nil
	}

	dir := filepath.Dir(sourcefile)
	var rewriteErr error
	out := globCallRe.ReplaceAllStringFunc(code, func(match string) string {
		sub := globCallRe.FindStringSubmatch(match)
		pattern := sub[2]
		eager := eagerOptRe.MatchString(sub[3])

		rel, err := expandGlobPattern(dir, pattern)
		if err != nil {
			rewriteErr = err
			return match
		}
		if g.OnMatch != nil {
			g.OnMatch(dir, pattern, sourcefile)
		}
		return globObjectLiteral(rel, eager)
	})
	if rewriteErr != nil {
		return "", rewriteErr
	}
	return out, nil
}

func expandGlobPattern(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("expanding glob pattern %q: %w", pattern, err)
	}
	rel := make([]string, 0, len(matches))
	for _, m := range matches {
		r, err := filepath.Rel(dir, m)
		if err != nil {
			continue
		}
		r = filepath.ToSlash(r)
		if !strings.HasPrefix(r, ".") {
			r = "./" + r
		}
		rel = append(rel, r)
	}
	return rel, nil
}

func globObjectLiteral(paths []string, eager bool) string {
	var b strings.Builder
	b.WriteString("{")
	for i, p := range paths {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%q:", p)
		if eager {
			fmt.Fprintf(&b, "(await import(%q))", p)
		} else {
			fmt.Fprintf(&b, "() => import(%q)", p)
		}
	}
	b.WriteString("}")
	return b.String()
}
