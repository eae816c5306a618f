package client

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRuntimeJS_IsEmbeddedNonEmpty(t *testing.T) {
	require.NotEmpty(t, RuntimeJS())
	require.Contains(t, RuntimeJS(), "__esmdevCreateHotContext")
}

func TestInjectHTML_AddsImportMapAndRuntimeScript(t *testing.T) {
	html := `<html><head><title>x</title></head><body><script type="module" src="/src/main.js"></script></body></html>`
	out := InjectHTML(html, []byte(`{"imports":{}}`), "/src/main.js")
	require.Contains(t, out, `type="importmap"`)
	require.Contains(t, out, RuntimeURLPath)
}

func TestInjectHTML_InsertsMissingEntryScript(t *testing.T) {
	html := `<html><head></head><body></body></html>`
	out := InjectHTML(html, []byte(`{}`), "/src/main.js")
	require.Contains(t, out, `<script type="module" src="/src/main.js"></script>`)
}

func TestRewriteModuleScriptSrc_RewritesUnresolvableSrc(t *testing.T) {
	html := `<script type="module" src="/dist/bundle.js"></script>`
	out := RewriteModuleScriptSrc(html, func(src string) bool { return false }, "/src/main.js")
	require.True(t, strings.Contains(out, `src="/src/main.js"`))
}

func TestRewriteModuleScriptSrc_LeavesResolvableSrcAlone(t *testing.T) {
	html := `<script type="module" src="/src/main.js"></script>`
	out := RewriteModuleScriptSrc(html, func(src string) bool { return true }, "/src/main.js")
	require.Equal(t, html, out)
}
