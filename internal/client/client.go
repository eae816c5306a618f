// Package client embeds and injects the browser-side HMR client runtime
// into served HTML, adapted from tools/please_js/esmdev/html.go's
// rewriteHTML — generalized from an SSE/EventSource liveReloadScript +
// hmrClientScript pair to a single WebSocket-backed runtime implementing
// the full createHotContext API.
package client

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
)

//go:embed runtime.js
var runtimeJS string

// RuntimeDir is the synthetic directory the HMR propagator treats as the
// client-runtime boundary: any file change under it forces an
// unconditional full reload, since the runtime itself has no module
// graph node to invalidate through.
const RuntimeDir = "/@esmdev/client"

// RuntimeURLPath is where the client runtime is served from.
const RuntimeURLPath = RuntimeDir + "/runtime.js"

// RuntimeJS returns the embedded client runtime source.
func RuntimeJS() string { return runtimeJS }

var (
	scriptSrcRe = regexp.MustCompile(`(<script\s[^>]*type=["']module["'][^>]*\ssrc=["'])([^"']+)(["'][^>]*>)`)
)

// InjectHTML rewrites an HTML document for dev serving: it injects the
// browser import map and the client runtime's bootstrap script before
// </head>, and ensures the entry module script tag is present.
func InjectHTML(html string, importMapJSON []byte, entryURLPath string) string {
	if !strings.Contains(html, `src="`+entryURLPath+`"`) && !strings.Contains(html, `src='`+entryURLPath+`'`) {
		entryScript := fmt.Sprintf(`<script type="module" src="%s"></script>`, entryURLPath)
		if idx := strings.Index(html, "</body>"); idx >= 0 {
			html = html[:idx] + entryScript + "\n" + html[idx:]
		} else {
			html = html + "\n" + entryScript
		}
	}

	bootstrap := fmt.Sprintf(`<script type="importmap">%s</script>
<script type="module" src="%s"></script>`, string(importMapJSON), RuntimeURLPath)

	if idx := strings.Index(html, "</head>"); idx >= 0 {
		html = html[:idx] + bootstrap + "\n" + html[idx:]
	} else if idx := strings.Index(html, "<body"); idx >= 0 {
		html = html[:idx] + bootstrap + "\n" + html[idx:]
	} else {
		html = bootstrap + "\n" + html
	}

	return html
}

// RewriteModuleScriptSrc finds every <script type=module src=...> tag
// whose src does not resolve on disk and rewrites it to entryURLPath —
// used when the HTML references a build-time bundle name the dev server
// serves under a different on-demand URL.
func RewriteModuleScriptSrc(html string, resolves func(src string) bool, entryURLPath string) string {
	return scriptSrcRe.ReplaceAllStringFunc(html, func(match string) string {
		parts := scriptSrcRe.FindStringSubmatch(match)
		if parts == nil || resolves(parts[2]) {
			return match
		}
		return parts[1] + entryURLPath + parts[3]
	})
}
