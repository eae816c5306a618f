package hmrlex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func parseCall(t *testing.T, call string) *Result {
	t.Helper()
	open := indexOf(call, '(')
	require.GreaterOrEqual(t, open, 0)
	res, err := Parse(call, open+1)
	require.NoError(t, err)
	return res
}

func indexOf(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func TestParse_EmptyCallSelfAccepts(t *testing.T) {
	res := parseCall(t, "accept()")
	require.True(t, res.SelfAccepts)
	require.Empty(t, res.Deps)
}

func TestParse_CallbackOnlySelfAccepts(t *testing.T) {
	res := parseCall(t, "accept(cb)")
	require.True(t, res.SelfAccepts)
	require.Empty(t, res.Deps)
}

func TestParse_SingleDep(t *testing.T) {
	res := parseCall(t, `accept("./dep.js", cb)`)
	require.False(t, res.SelfAccepts)
	require.Len(t, res.Deps, 1)
	require.Equal(t, "./dep.js", res.Deps[0].URL)
}

func TestParse_ArrayOfDeps(t *testing.T) {
	res := parseCall(t, `accept(["./a.js", './b.js'], cb)`)
	require.False(t, res.SelfAccepts)
	require.Len(t, res.Deps, 2)
	require.Equal(t, "./a.js", res.Deps[0].URL)
	require.Equal(t, "./b.js", res.Deps[1].URL)
}

func TestParse_TemplateLiteralDep(t *testing.T) {
	res := parseCall(t, "accept(`./dep.js`, cb)")
	require.False(t, res.SelfAccepts)
	require.Equal(t, "./dep.js", res.Deps[0].URL)
}

func TestParse_TemplateInterpolationIsSyntaxError(t *testing.T) {
	_, err := Parse("accept(`./${name}.js`, cb)", indexOf("accept(`./${name}.js`, cb)", '(')+1)
	require.Error(t, err)
	var serr *SyntaxError
	require.ErrorAs(t, err, &serr)
}

func TestParse_MalformedArrayIsSyntaxError(t *testing.T) {
	_, err := Parse(`accept([1, 2], cb)`, indexOf(`accept([1, 2], cb)`, '(')+1)
	require.Error(t, err)
}

func TestParse_DepOffsetsAreRelativeToSource(t *testing.T) {
	src := `accept("./x.js", cb)`
	res := parseCall(t, src)
	dep := res.Deps[0]
	require.Equal(t, "./x.js", src[dep.Start:dep.End])
}
