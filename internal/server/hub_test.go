package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pleasejs/esmdev/internal/hmr"
)

func TestEncodePayload_Update(t *testing.T) {
	msg := encodePayload(hmr.Payload{
		Kind:    "update",
		Updates: []hmr.UpdateEntry{{Path: "/main.js", Type: "js-update", Timestamp: 1}},
	})
	require.Equal(t, "update", msg["type"])
	require.NotNil(t, msg["updates"])
}

func TestEncodePayload_FullReloadWithPath(t *testing.T) {
	msg := encodePayload(hmr.Payload{Kind: "full-reload", Path: "/index.html"})
	require.Equal(t, "full-reload", msg["type"])
	require.Equal(t, "/index.html", msg["path"])
}

func TestEncodePayload_FullReloadWithoutPathOmitsField(t *testing.T) {
	msg := encodePayload(hmr.Payload{Kind: "full-reload"})
	require.Equal(t, "full-reload", msg["type"])
	_, ok := msg["path"]
	require.False(t, ok)
}

func TestEncodePayload_Prune(t *testing.T) {
	msg := encodePayload(hmr.Payload{Kind: "prune", Paths: []string{"/old.js"}})
	require.Equal(t, "prune", msg["type"])
	require.Equal(t, []string{"/old.js"}, msg["paths"])
}
