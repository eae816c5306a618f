package transform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractImports_StaticAndDynamic(t *testing.T) {
	code := `import React from "react"
import "./style.css"
const mod = import("./lazy.js")
export { x } from "./x.js"
export * from "./y.js"`
	got := ExtractImports(code)
	require.Equal(t, []string{"react", "./style.css", "./lazy.js", "./x.js", "./y.js"}, got)
}

func TestExtractImports_Dedupes(t *testing.T) {
	code := `import a from "react"
import b from "react"`
	require.Equal(t, []string{"react"}, ExtractImports(code))
}

func TestFindHotAcceptCall_LocatesOpenParen(t *testing.T) {
	code := `if (import.meta.hot) { import.meta.hot.accept(() => {}) }`
	idx := FindHotAcceptCall(code)
	require.Greater(t, idx, 0)
	require.Equal(t, byte('('), code[idx-1])
}

func TestFindHotAcceptCall_AbsentReturnsNegativeOne(t *testing.T) {
	require.Equal(t, -1, FindHotAcceptCall("const x = 1"))
}
