package transform

import "fmt"

// RenderErrorModule formats a transform-stage failure as a JS module that
// logs the error to the browser console, the way handleSource does in
// tools/please_js/esmdev/handlers.go — the browser must receive a 200 with
// executable JS, since a failed <script type=module> fetch kills the whole
// page rather than just the one module. %q produces a double-quoted Go
// string literal, which is also a valid JS string literal for the escapes
// this message can contain.
func RenderErrorModule(url string, err error) string {
	return fmt.Sprintf("console.error(%q);", fmt.Sprintf("[esmdev] transform error in %s:\n%s", url, err.Error()))
}
