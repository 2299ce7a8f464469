package cipher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/descramble/youtube/jsinterp"
)

func fixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}

func TestExtract_Signature(t *testing.T) {
	script := fixture(t, "permutation_player.js")

	fn, err := Extract(script, KindSignature)
	require.NoError(t, err)
	assert.Equal(t, KindSignature, fn.Kind)
	assert.Equal(t, "Qz", fn.Name)
	assert.Equal(t, []string{"a"}, fn.Params)
	assert.Equal(t, "set-encode", fn.Pattern)
	require.Len(t, fn.Auxiliary, 1)
	assert.True(t, strings.HasPrefix(fn.Auxiliary[0], "var Pq={Vx:function(a)"), fn.Auxiliary[0])

	_, err = jsinterp.Parse(fn.Source())
	require.NoError(t, err)
}

func TestExtract_SignaturePatternRanking(t *testing.T) {
	const decl = `function Rvx(a){var b=a.split("");b.reverse();return b.join("")};`
	tests := []struct {
		name    string
		script  string
		fn      string
		pattern string
	}{
		{"set-encode", decl + `c&&d.set(b,encodeURIComponent(Rvx(e)));`, "Rvx", "set-encode"},
		{"set-encode-any", decl + `e&&q.set(b,encodeURIComponent(Rvx(e)));`, "Rvx", "set-encode-any"},
		{"split-2", `var q=1;Ab=function(a){a=a.split("");a.reverse();return a.join("")};`, "Ab", "split-2"},
		{"split", `var q=1;Rvx=function(a){a=a.split("");a.reverse();return a.join("")};`, "Rvx", "split"},
		{"signature-key", decl + `var b=q.get(1);x.set("signature",Rvx(b));`, "Rvx", "signature-key"},
		{"sig-or", decl + `var s=b.sig||Rvx(b.s);`, "Rvx", "sig-or"},
		{"akamaized", decl + `var u=yt.akamaized.net/)||"";c&&d.set(b,Rvx(e));`, "Rvx", "akamaized"},
		{"set", decl + `c&&d.set(b,Rvx(e));`, "Rvx", "set"},
		{"set-any", decl + `e&&q.set(b,Rvx(e));`, "Rvx", "set-any"},
		{"set-call", decl + `c&&z.set(b,(0,window.decodeURIComponent)(Rvx(e)));`, "Rvx", "set-call"},
		{"skips unresolved name", decl + `x.set("signature",Zz(b));var s=b.sig||Rvx(b.s);`, "Rvx", "sig-or"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := Extract(tt.script, KindSignature)
			require.NoError(t, err)
			assert.Equal(t, tt.fn, fn.Name)
			assert.Equal(t, tt.pattern, fn.Pattern)
		})
	}
}

func TestExtract_Idempotent(t *testing.T) {
	script := fixture(t, "regression_player.js")

	a, err := Extract(script, KindSignature)
	require.NoError(t, err)
	b, err := Extract(script, KindSignature)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, "AB", a.Name)
}

func TestExtract_NParam(t *testing.T) {
	script := fixture(t, "permutation_player.js")

	fn, err := Extract(script, KindNParam)
	require.NoError(t, err)
	assert.Equal(t, "nf", fn.Name)
	assert.Equal(t, "Nq", fn.Array)
	assert.Equal(t, 0, fn.Index)
	assert.NotContains(t, fn.Body, "typeof", "guard prelude should be stripped")
	require.Len(t, fn.Auxiliary, 1)
	assert.Equal(t, "var Kt={k:7};", fn.Auxiliary[0])
}

func TestExtract_ArrayIndexOutOfRange(t *testing.T) {
	script := `var Nq=[nf];nf=function(a){return a.split("").reverse().join("")};` +
		`var Wn=function(a,b){if((b=a.get("n"))&&(b=Nq[3](b),a.set("n",b)))return a};`

	_, err := Extract(script, KindNParam)
	require.Error(t, err)
	assert.True(t, IsExtraction(err))
	assert.Equal(t, StageExtract, StageOf(err))
	assert.Contains(t, err.Error(), "out of range")
}

func TestExtract_MarkerFallback(t *testing.T) {
	script := `var x=1;Zk=function(a){var b=a.split("");if(b.length<2)return"enhanced_except_"+a;return b.reverse().join("")};var y=2;`

	fn, err := Extract(script, KindNParam)
	require.NoError(t, err)
	assert.Equal(t, "Zk", fn.Name)
	assert.Equal(t, "marker", fn.Pattern)
}

func TestExtract_NoMatch(t *testing.T) {
	for _, kind := range []Kind{KindSignature, KindNParam} {
		_, err := Extract(`var a=function(){return 1};`, kind)
		require.Error(t, err, kind)
		assert.True(t, IsExtraction(err), kind)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, kind, e.Kind)
	}
}

func TestResolveArrayElement(t *testing.T) {
	script := `var q=1;var Lm=[aB,"str",Cd];`

	name, err := resolveArrayElement(script, "Lm", 2)
	require.NoError(t, err)
	assert.Equal(t, "Cd", name)

	_, err = resolveArrayElement(script, "Lm", 1)
	assert.True(t, IsExtraction(err))
	_, err = resolveArrayElement(script, "Lm", 3)
	assert.True(t, IsExtraction(err))
	_, err = resolveArrayElement(script, "Zz", 0)
	assert.True(t, IsExtraction(err))
}

func TestDeclarationOf(t *testing.T) {
	script := `if(a==b)c();var Ab={x:function(a){return a}},cd=2;function Ef(a){return a+1}var Gh=[1,2];`

	decl, ok := declarationOf(script, "Ab")
	require.True(t, ok)
	assert.Equal(t, "var Ab={x:function(a){return a}};", decl)

	decl, ok = declarationOf(script, "Ef")
	require.True(t, ok)
	assert.Equal(t, "function Ef(a){return a+1}", decl)

	decl, ok = declarationOf(script, "Gh")
	require.True(t, ok)
	assert.Equal(t, "var Gh=[1,2];", decl)

	_, ok = declarationOf(script, "Zz")
	assert.False(t, ok)
}

func TestStripNGuard(t *testing.T) {
	body := `if(typeof Xz==="undefined")return a;var b=a;return b`
	assert.Equal(t, `var b=a;return b`, stripNGuard(body, []string{"a"}))
	assert.Equal(t, body, stripNGuard(body, []string{"c"}))
	assert.Equal(t, body, stripNGuard(body, nil))
}
