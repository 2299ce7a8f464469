package jsinterp

import (
	"errors"
	"sync"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/descramble/errs"
)

// gojaEval runs src in a full engine and returns the completion value.
func gojaEval(t *testing.T, src string) string {
	t.Helper()
	v, err := goja.New().RunString(src)
	require.NoError(t, err, "goja: %s", src)
	return v.String()
}

func eval(t *testing.T, src string) string {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err, src)
	v, err := prog.Eval()
	require.NoError(t, err, src)
	return v.String()
}

func TestEvalMatchesEngine(t *testing.T) {
	snippets := []string{
		`1+2*3`,
		`"a"+1`,
		`7%3`,
		`-7%3`,
		`5/2`,
		`1/0`,
		`0.1+0.2`,
		`-1>>>0`,
		`1<<31`,
		`-16>>2`,
		`~5`,
		`5^3`,
		`6&3|8`,
		`"10"==10`,
		`null==undefined`,
		`null===undefined`,
		`typeof x`,
		`typeof "s"`,
		`typeof [1]`,
		`typeof function(){}`,
		`1<2`,
		`"b"<"a"`,
		`NaN<1`,
		`NaN>=1`,
		`"10"<9`,
		`true?"y":"n"`,
		`void 0===undefined`,
		`!!""`,
		`(1,2,3)`,
		`[1,2,3].join("-")`,
		`[1,null,undefined,2].join()`,
		`"abc".split("").reverse().join("")`,
		`"a,b,,c".split(",").length`,
		`"a,b,c".split(",",2).join("|")`,
		`"hello".slice(-3)`,
		`"hello".slice(1,-1)`,
		`"hello".charCodeAt(1)`,
		`"hello".charCodeAt(9)`,
		`"hello".charAt(4)`,
		`"hello".indexOf("l")`,
		`"hello".indexOf("z")`,
		`"hello"[1]+"hello".length`,
		`String.fromCharCode(72,105)`,
		`String(12)+String(null)`,
		`[3,1,2].indexOf(2)`,
		`var a=[1,2,3,4,5]; a.splice(1,2).join()+"|"+a.join()`,
		`var a=[1,2,3,4,5]; a.splice(-2).join()+"|"+a.join()`,
		`var a=[1,2,3]; a.splice(1,0,"x","y"); a.join()`,
		`var a=[1,2]; a.unshift(0); a.push(3); a.shift()+":"+a.join()`,
		`var a=[1,2,3]; a.pop()+a.length`,
		`var a=[1,2,3]; a.slice(1).join()+a.slice(-1).join()`,
		`var a=[]; a.length=3; a.length`,
		`var a=[1,2,3]; a.length=1; a.join()`,
		`var a=[]; a[2]="x"; a.length+a.join("-")`,
		`new Array(3).length`,
		`new Array(1,2).join()`,
		`var a=[1,2,3]; a[a.length-1]`,
		`var s=0; for (var i=0;i<10;i++){ if(i==5) continue; if (i==8) break; s+=i } s`,
		`var n=0; while(true){n++; if(n>4) break} n`,
		`var i=0; do { i+=2 } while(i<7); i`,
		`(function(a,b){return a*b})(6,7)`,
		`var f=(x)=>x+1; f(2)`,
		`var f=(x,y)=>{return x-y}; f(9,4)`,
		`var o={a:1,b:function(x){return x*2}}; o.b(o.a+1)`,
		`var o={"q":3,5:"five"}; o.q+o[5]`,
		`var o={}; o.k=4; o["k"]+=1; o.k`,
		`let x=1; { let x=2; } x`,
		`const c=3; c*c`,
		`var fs=[]; for (let i=0;i<3;i++){ fs.push(function(){return i}) } fs[0]()+fs[2]()`,
		`var x=10; x-=3; x<<=2; x%=5; x`,
		`var c=5; c++ + ++c`,
		`var c=5; c-- - --c`,
		`function fib(n){return n<2?n:fib(n-1)+fib(n-2)} fib(15)`,
		`var f=function g(n){return n?g(n-1)+1:0}; f(5)`,
		`function h(){return arguments.length} h(1,2,3)`,
		`function k(a,b){return typeof b} k(1)`,
		`function outer(){ y=7 } outer(); y`,
		`var acc=""; var xs=["a","b"]; for (var i=xs.length-1;i>=0;i--) acc+=xs[i]; acc`,
	}
	for _, src := range snippets {
		t.Run(src, func(t *testing.T) {
			assert.Equal(t, gojaEval(t, src), eval(t, src))
		})
	}
}

const helperProgram = `var XY={rv:function(a){a.reverse()},sp:function(a,b){a.splice(0,b)},` +
	`sw:function(a,b){var c=a[0];a[0]=a[b%a.length];a[b%a.length]=c}};` +
	`var sig=function(a){a=a.split("");XY.rv(a,1);XY.sw(a,7);XY.sp(a,2);XY.sw(a,30);return a.join("")};`

func TestCallMatchesEngine(t *testing.T) {
	prog, err := Parse(helperProgram)
	require.NoError(t, err)

	vm := goja.New()
	_, err = vm.RunString(helperProgram)
	require.NoError(t, err)
	oracle, ok := goja.AssertFunction(vm.Get("sig"))
	require.True(t, ok)

	for _, in := range []string{"abcdefghijklmnopqrstuvwxyz0123456789", "abc", "0.1.2.3"} {
		want, err := oracle(goja.Undefined(), vm.ToValue(in))
		require.NoError(t, err)
		got, err := prog.Call("sig", Str(in))
		require.NoError(t, err)
		assert.Equal(t, want.String(), got.String(), in)
	}
}

func TestCallNonASCII(t *testing.T) {
	prog, err := Parse(helperProgram)
	require.NoError(t, err)
	// Code units from the CJK block survive the split and join untouched.
	in := make([]rune, 40)
	for i := range in {
		in[i] = rune(0x4E00 + i)
	}
	got, err := prog.Call("sig", Str(string(in)))
	require.NoError(t, err)
	assert.Equal(t, 38, strLength(got.String()))
}

func TestParseRejectsUnsupported(t *testing.T) {
	tests := []struct {
		src       string
		construct string
	}{
		{`switch(a){case 1:break}`, "SwitchStatement"},
		{`try{a()}catch(e){}`, "TryStatement"},
		{`throw 1`, "ThrowStatement"},
		{`this.x=1`, "ThisExpression"},
		{`function f(...a){}`, "rest parameter"},
		{`function f(a=1){}`, "default parameter"},
		{`var {a}=o`, "destructuring"},
		{`a: for(;;){break a}`, ""},
		{"var s=`x${1}`", ""},
		{`var r=/ab+/`, ""},
		{`f(...a)`, ""},
		{`"a" in o`, ""},
		{`a instanceof b`, ""},
		{`delete o.a`, ""},
		{`for (var k in o){}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrInterpreter))
			var ie *Error
			require.True(t, errors.As(err, &ie))
			assert.NotEmpty(t, ie.Construct)
			if tt.construct != "" {
				assert.Contains(t, ie.Construct, tt.construct)
			}
		})
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse(`var a = ;`)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInterpreter)
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"undeclared read", `missing+1`, "missing is not defined"},
		{"not a function", `var a=1; a()`, "a is not a function"},
		{"property of undefined", `var u; u.x`, "cannot read property"},
		{"const assignment", `const c=1; c=2`, "assignment to constant"},
		{"method on wrong receiver", `var f="ab".split; f("")`, "called on undefined"},
		{"user constructor", `function F(){} new F()`, "not a constructor"},
		{"recursion", `function f(n){return f(n+1)} f(0)`, "maximum call depth"},
		{"runaway loop", `for(;;){}`, "step budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Parse(tt.src)
			require.NoError(t, err)
			_, err = prog.Eval()
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrInterpreter)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCallUnknownFunction(t *testing.T) {
	prog, err := Parse(`var x=1;`)
	require.NoError(t, err)
	_, err = prog.Call("nope", Str("a"))
	assert.ErrorIs(t, err, errs.ErrInterpreter)
	_, err = prog.Call("x", Str("a"))
	assert.ErrorIs(t, err, errs.ErrInterpreter)
}

func TestCallIsDeterministic(t *testing.T) {
	prog, err := Parse(`var counter=0; function f(x){counter++; return x+counter}`)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		v, err := prog.Call("f", Str("a"))
		require.NoError(t, err)
		assert.Equal(t, "a1", v.String())
	}
}

func TestConcurrentCalls(t *testing.T) {
	prog, err := Parse(helperProgram)
	require.NoError(t, err)
	want, err := prog.Call("sig", Str("abcdefghijklmnopqrstuvwxyz0123456789"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := prog.Call("sig", Str("abcdefghijklmnopqrstuvwxyz0123456789"))
			assert.NoError(t, err)
			assert.Equal(t, want.String(), got.String())
		}()
	}
	wg.Wait()
}

func TestFreeNames(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{`var sig=function(a){a=a.split("");XY.rv(a,1);return a.join("")};`, []string{"XY"}},
		{`var f=function(a){var b=c[0]; return d(b)+String(a)};`, []string{"c", "d"}},
		{`function g(a){function h(){return a} return h()+k}`, []string{"k"}},
		{`var n=function(a){var b=a.split(""),c=[1,2];for(let i=0;i<c.length;i++)b.push(i);return b.join("")};`, nil},
		{`var s=function(a){switch(a){case 1:return Q}return R}`, []string{"Q", "R"}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := FreeNames(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueCoercions(t *testing.T) {
	assert.Equal(t, "1,2,3", NewArray(Num(1), Num(2), Num(3)).String())
	assert.Equal(t, "undefined", Undefined().String())
	assert.Equal(t, "null", Null().String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "1e+21", Num(1e21).String())
	assert.Equal(t, "-1.5", Num(-1.5).String())
	assert.Equal(t, KindArray, NewArray().Kind())
	assert.Equal(t, 42.0, Str(" 42 ").Float())
	assert.Equal(t, "string", KindString.String())

	arr := NewArray(Str("a"))
	elems := arr.Elems()
	elems[0] = Str("b")
	assert.Equal(t, "a", arr.String())
	assert.Nil(t, Str("x").Elems())
}
