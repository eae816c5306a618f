package transform

import "regexp"

// importSpecRe matches static and dynamic import specifiers in
// transformed JS/CSS, adapted from tools/please_js/esmdev/imports.go's
// importSpecRe: import X from "x", import "x", import("x"),
// export ... from "x", export * from "x".
var importSpecRe = regexp.MustCompile(`(?:from\s+|import\s*\(\s*|import\s+|@import\s+)["']([^"']+)["']`)

// ExtractImports returns every static/dynamic import specifier referenced
// by code, in source order, deduplicated.
func ExtractImports(code string) []string {
	matches := importSpecRe.FindAllStringSubmatch(code, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}

var hotAcceptCallRe = regexp.MustCompile(`import\.meta\.hot\.accept\s*\(`)

// FindHotAcceptCall returns the byte index just past the opening '(' of
// the first import.meta.hot.accept(...) call in code, or -1 if absent.
func FindHotAcceptCall(code string) int {
	loc := hotAcceptCallRe.FindStringIndex(code)
	if loc == nil {
		return -1
	}
	return loc[1]
}
