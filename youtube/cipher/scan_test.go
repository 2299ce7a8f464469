package cipher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/descramble/errs"
)

func TestMatchBrace(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"flat", `{a:1}rest`, `{a:1}`},
		{"nested", `{a:{b:[1,2]}}x`, `{a:{b:[1,2]}}`},
		{"brace in string", `{a:"}",b:'{'}x`, `{a:"}",b:'{'}`},
		{"escaped quote", `{a:"\"}"}x`, `{a:"\"}"}`},
		{"template", "{a:`}${{b:1}.b}`}x", "{a:`}${{b:1}.b}`}"},
		{"line comment", "{a:1// }\n}x", "{a:1// }\n}"},
		{"block comment", `{/* } */a:1}x`, `{/* } */a:1}`},
		{"regex literal", `{a:/[}]/g.test(b)}x`, `{a:/[}]/g.test(b)}`},
		{"division is not regex", `{a:b/2,c:d/3}x`, `{a:b/2,c:d/3}`},
		{"parens", `(a,(b),c)x`, `(a,(b),c)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end, err := matchBrace(tt.src, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tt.src[:end+1])
		})
	}
}

func TestMatchBrace_Unbalanced(t *testing.T) {
	for _, src := range []string{`{a:1`, `{a:"}`, `x`} {
		_, err := matchBrace(src, 0)
		assert.ErrorIs(t, err, errs.ErrExtraction, src)
	}
}

func TestExpressionEnd(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`{a:1,b:2};var c`, `{a:1,b:2}`},
		{`[1,2,3],d=4`, `[1,2,3]`},
		{`function(a){return a;}};`, `function(a){return a;}`},
		{`"x;y"+z)`, `"x;y"+z`},
		{`42`, `42`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.src[:expressionEnd(tt.src, 0)], tt.src)
	}
}

func TestSplitTopLevel(t *testing.T) {
	src := `[a, "b,c", [d,e], f(g,h) ,k]`
	end, err := matchBrace(src, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", `"b,c"`, "[d,e]", "f(g,h)", "k"}, splitTopLevel(src, 0, end))

	assert.Empty(t, splitTopLevel("[]", 0, 1))
	assert.Equal(t, []string{"x"}, splitTopLevel("[x]", 0, 2))
}
