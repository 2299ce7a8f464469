package jsinterp

import (
	"math"
	"strings"
)

var (
	stringCtor = &Function{
		name: "String",
		native: func(_ *interp, _ Value, args []Value) (Value, error) {
			if len(args) == 0 {
				return Str(""), nil
			}
			return Str(toString(args[0])), nil
		},
		props: map[string]Value{
			"fromCharCode": funcValue(&Function{name: "fromCharCode", native: fromCharCode}),
		},
	}
	arrayCtor = &Function{name: "Array", native: newArrayBuiltin}
)

// builtinScope is the root of every evaluation's scope chain.
func builtinScope() *scope {
	sc := newScope(nil, true)
	sc.declare("undefined", Undefined(), true)
	sc.declare("NaN", Num(math.NaN()), true)
	sc.declare("Infinity", Num(math.Inf(1)), true)
	sc.declare("String", funcValue(stringCtor), true)
	sc.declare("Array", funcValue(arrayCtor), true)
	return sc
}

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined()
}

func typeError(format string, a ...interface{}) error {
	return runtimeError(nil, format, a...)
}

func fromCharCode(_ *interp, _ Value, args []Value) (Value, error) {
	units := make([]uint16, len(args))
	for i, a := range args {
		units[i] = uint16(toUint32(a))
	}
	return Str(fromUnits(units)), nil
}

func newArrayBuiltin(_ *interp, _ Value, args []Value) (Value, error) {
	if len(args) == 1 && args[0].kind == KindNumber {
		n := args[0].num
		if n < 0 || n != math.Trunc(n) || n > MaxSteps {
			return Undefined(), typeError("invalid array length %s", numberToString(n))
		}
		return Value{kind: KindArray, arr: &Array{elems: make([]Value, int(n))}}, nil
	}
	return NewArray(args...), nil
}

func method(name string, fn nativeFunc) *Function {
	return &Function{name: name, native: fn}
}

var stringMethods = map[string]*Function{
	"split":      method("split", strSplit),
	"slice":      method("slice", strSlice),
	"charCodeAt": method("charCodeAt", strCharCodeAt),
	"charAt":     method("charAt", strCharAt),
	"indexOf":    method("indexOf", strIndexOf),
}

var arrayMethods = map[string]*Function{
	"push":    method("push", arrPush),
	"pop":     method("pop", arrPop),
	"shift":   method("shift", arrShift),
	"unshift": method("unshift", arrUnshift),
	"slice":   method("slice", arrSlice),
	"splice":  method("splice", arrSplice),
	"reverse": method("reverse", arrReverse),
	"join":    method("join", arrJoin),
	"indexOf": method("indexOf", arrIndexOf),
}

func thisString(this Value, name string) (string, error) {
	if this.kind != KindString {
		return "", typeError("String.prototype.%s called on %s", name, this.kind)
	}
	return this.str, nil
}

func thisArray(this Value, name string) (*Array, error) {
	if this.kind != KindArray {
		return nil, typeError("Array.prototype.%s called on %s", name, this.kind)
	}
	return this.arr, nil
}

func strSplit(_ *interp, this Value, args []Value) (Value, error) {
	s, err := thisString(this, "split")
	if err != nil {
		return Undefined(), err
	}
	limit := uint32(math.MaxUint32)
	if l := arg(args, 1); l.kind != KindUndefined {
		limit = toUint32(l)
	}
	var parts []string
	switch sep := arg(args, 0); {
	case sep.kind == KindUndefined:
		parts = []string{s}
	case toString(sep) == "":
		units := utf16Units(s)
		parts = make([]string, len(units))
		for i := range units {
			parts[i] = fromUnits(units[i : i+1])
		}
	default:
		parts = strings.Split(s, toString(sep))
	}
	if uint64(len(parts)) > uint64(limit) {
		parts = parts[:limit]
	}
	out := make([]Value, len(parts))
	for i, p := range parts {
		out[i] = Str(p)
	}
	return Value{kind: KindArray, arr: &Array{elems: out}}, nil
}

func strSlice(_ *interp, this Value, args []Value) (Value, error) {
	s, err := thisString(this, "slice")
	if err != nil {
		return Undefined(), err
	}
	units := utf16Units(s)
	from := relativeIndex(arg(args, 0), len(units), 0)
	to := relativeIndex(arg(args, 1), len(units), len(units))
	if from >= to {
		return Str(""), nil
	}
	return Str(fromUnits(units[from:to])), nil
}

func unitAt(s string, pos Value) (uint16, bool) {
	units := utf16Units(s)
	i := toInteger(pos)
	if i < 0 || i >= float64(len(units)) {
		return 0, false
	}
	return units[int(i)], true
}

func strCharCodeAt(_ *interp, this Value, args []Value) (Value, error) {
	s, err := thisString(this, "charCodeAt")
	if err != nil {
		return Undefined(), err
	}
	u, ok := unitAt(s, arg(args, 0))
	if !ok {
		return Num(math.NaN()), nil
	}
	return Num(float64(u)), nil
}

func strCharAt(_ *interp, this Value, args []Value) (Value, error) {
	s, err := thisString(this, "charAt")
	if err != nil {
		return Undefined(), err
	}
	u, ok := unitAt(s, arg(args, 0))
	if !ok {
		return Str(""), nil
	}
	return Str(fromUnits([]uint16{u})), nil
}

func strIndexOf(_ *interp, this Value, args []Value) (Value, error) {
	s, err := thisString(this, "indexOf")
	if err != nil {
		return Undefined(), err
	}
	hay, needle := utf16Units(s), utf16Units(toString(arg(args, 0)))
	start := int(math.Min(math.Max(toInteger(arg(args, 1)), 0), float64(len(hay))))
outer:
	for i := start; i+len(needle) <= len(hay); i++ {
		for j := range needle {
			if hay[i+j] != needle[j] {
				continue outer
			}
		}
		return Num(float64(i)), nil
	}
	return Num(-1), nil
}

func arrPush(_ *interp, this Value, args []Value) (Value, error) {
	a, err := thisArray(this, "push")
	if err != nil {
		return Undefined(), err
	}
	a.elems = append(a.elems, args...)
	return Num(float64(len(a.elems))), nil
}

func arrPop(_ *interp, this Value, _ []Value) (Value, error) {
	a, err := thisArray(this, "pop")
	if err != nil {
		return Undefined(), err
	}
	if len(a.elems) == 0 {
		return Undefined(), nil
	}
	last := a.elems[len(a.elems)-1]
	a.elems = a.elems[:len(a.elems)-1]
	return last, nil
}

func arrShift(_ *interp, this Value, _ []Value) (Value, error) {
	a, err := thisArray(this, "shift")
	if err != nil {
		return Undefined(), err
	}
	if len(a.elems) == 0 {
		return Undefined(), nil
	}
	first := a.elems[0]
	a.elems = append(a.elems[:0:0], a.elems[1:]...)
	return first, nil
}

func arrUnshift(_ *interp, this Value, args []Value) (Value, error) {
	a, err := thisArray(this, "unshift")
	if err != nil {
		return Undefined(), err
	}
	elems := make([]Value, 0, len(args)+len(a.elems))
	elems = append(elems, args...)
	a.elems = append(elems, a.elems...)
	return Num(float64(len(a.elems))), nil
}

func arrSlice(_ *interp, this Value, args []Value) (Value, error) {
	a, err := thisArray(this, "slice")
	if err != nil {
		return Undefined(), err
	}
	n := len(a.elems)
	from := relativeIndex(arg(args, 0), n, 0)
	to := relativeIndex(arg(args, 1), n, n)
	if from >= to {
		return NewArray(), nil
	}
	return NewArray(a.elems[from:to]...), nil
}

func arrSplice(_ *interp, this Value, args []Value) (Value, error) {
	a, err := thisArray(this, "splice")
	if err != nil {
		return Undefined(), err
	}
	n := len(a.elems)
	if len(args) == 0 {
		return NewArray(), nil
	}
	start := relativeIndex(args[0], n, 0)
	count := n - start
	if len(args) > 1 {
		c := toInteger(args[1])
		if c < 0 {
			c = 0
		}
		if c < float64(count) {
			count = int(c)
		}
	}
	removed := NewArray(a.elems[start : start+count]...)
	var items []Value
	if len(args) > 2 {
		items = args[2:]
	}
	elems := make([]Value, 0, n-count+len(items))
	elems = append(elems, a.elems[:start]...)
	elems = append(elems, items...)
	elems = append(elems, a.elems[start+count:]...)
	a.elems = elems
	return removed, nil
}

func arrReverse(_ *interp, this Value, _ []Value) (Value, error) {
	a, err := thisArray(this, "reverse")
	if err != nil {
		return Undefined(), err
	}
	for i, j := 0, len(a.elems)-1; i < j; i, j = i+1, j-1 {
		a.elems[i], a.elems[j] = a.elems[j], a.elems[i]
	}
	return this, nil
}

func arrJoin(_ *interp, this Value, args []Value) (Value, error) {
	a, err := thisArray(this, "join")
	if err != nil {
		return Undefined(), err
	}
	sep := ","
	if s := arg(args, 0); s.kind != KindUndefined {
		sep = toString(s)
	}
	return Str(joinArray(a, sep)), nil
}

func arrIndexOf(_ *interp, this Value, args []Value) (Value, error) {
	a, err := thisArray(this, "indexOf")
	if err != nil {
		return Undefined(), err
	}
	start := relativeIndex(arg(args, 1), len(a.elems), 0)
	for i := start; i < len(a.elems); i++ {
		if strictEquals(a.elems[i], arg(args, 0)) {
			return Num(float64(i)), nil
		}
	}
	return Num(-1), nil
}
