package transform

import (
	"crypto/sha1"
	"encoding/hex"
)

// WeakETag computes the weak HTTP etag for code: whenever a transform
// result is cached, its etag is always the weak etag of its code.
func WeakETag(code string) string {
	sum := sha1.Sum([]byte(code))
	return `W/"` + hex.EncodeToString(sum[:]) + `"`
}
