package optimizer

import "testing"

func TestIsNodeBuiltin(t *testing.T) {
	cases := map[string]bool{
		"fs":                 true,
		"node:fs":            true,
		"fs/promises":        true,
		"node:stream/web":    true,
		"path":               true,
		"react":              false,
		"./local":            false,
		"@scope/pkg":         false,
		"streamx":            false,
	}
	for spec, want := range cases {
		if got := isNodeBuiltin(spec); got != want {
			t.Errorf("isNodeBuiltin(%q) = %v, want %v", spec, got, want)
		}
	}
}
