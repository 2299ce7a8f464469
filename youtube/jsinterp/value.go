package jsinterp

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Kind tags a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindNumber
	KindString
	KindBoolean
	KindArray
	KindObject
	KindFunction
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindNumber:    "number",
	KindString:    "string",
	KindBoolean:   "boolean",
	KindArray:     "array",
	KindObject:    "object",
	KindFunction:  "function",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Value is a guest-script value. Arrays, objects and functions are references;
// everything else is copied.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	arr  *Array
	obj  *Object
	fn   *Function
}

// Array is a mutable guest array.
type Array struct {
	elems []Value
}

// Object is a plain guest object literal.
type Object struct {
	props map[string]Value
	keys  []string
}

// Undefined returns the undefined value.
func Undefined() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Num wraps a number.
func Num(f float64) Value { return Value{kind: KindNumber, num: f} }

// Str wraps a string.
func Str(s string) Value { return Value{kind: KindString, str: s} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// NewArray returns a new array holding vals.
func NewArray(vals ...Value) Value {
	elems := make([]Value, len(vals))
	copy(elems, vals)
	return Value{kind: KindArray, arr: &Array{elems: elems}}
}

func newObject() *Object {
	return &Object{props: make(map[string]Value)}
}

func objectValue(o *Object) Value { return Value{kind: KindObject, obj: o} }

func (o *Object) set(key string, v Value) {
	if _, ok := o.props[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.props[key] = v
}

// Kind reports the value's tag.
func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric conversion of v.
func (v Value) Float() float64 { return toNumber(v) }

// Elems returns a copy of the array elements, or nil when v is not an array.
func (v Value) Elems() []Value {
	if v.kind != KindArray {
		return nil
	}
	out := make([]Value, len(v.arr.elems))
	copy(out, v.arr.elems)
	return out
}

// String returns the guest-language string conversion of v.
func (v Value) String() string { return toString(v) }

func truthy(v Value) bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBoolean:
		return v.b
	case KindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindString:
		return v.str != ""
	default:
		return true
	}
}

func toString(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return numberToString(v.num)
	case KindString:
		return v.str
	case KindArray:
		return joinArray(v.arr, ",")
	case KindObject:
		return "[object Object]"
	case KindFunction:
		if v.fn.src != "" {
			return v.fn.src
		}
		return "function " + v.fn.name + "() { [native code] }"
	}
	return ""
}

func joinArray(a *Array, sep string) string {
	var b strings.Builder
	for i, e := range a.elems {
		if i > 0 {
			b.WriteString(sep)
		}
		if e.kind != KindUndefined && e.kind != KindNull {
			b.WriteString(toString(e))
		}
	}
	return b.String()
}

var decimalLiteral = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?$`)

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if !decimalLiteral.MatchString(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// ParseFloat reports overflow with a signed infinity, which is what we want.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

func toNumber(v Value) float64 {
	switch v.kind {
	case KindUndefined:
		return math.NaN()
	case KindNull:
		return 0
	case KindBoolean:
		if v.b {
			return 1
		}
		return 0
	case KindNumber:
		return v.num
	case KindString:
		return stringToNumber(v.str)
	case KindArray:
		return stringToNumber(joinArray(v.arr, ","))
	default:
		return math.NaN()
	}
}

func numberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + sign + digits
}

func toInt32(v Value) int32 {
	return int32(toUint32(v))
}

func toUint32(v Value) uint32 {
	f := toNumber(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(f), 4294967296)
	if m < 0 {
		m += 4294967296
	}
	return uint32(m)
}

// toInteger truncates toward zero, mapping NaN to 0.
func toInteger(v Value) float64 {
	f := toNumber(v)
	if math.IsNaN(f) {
		return 0
	}
	return math.Trunc(f)
}

func typeOf(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull, KindArray, KindObject:
		return "object"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	case KindFunction:
		return "function"
	}
	return "undefined"
}

func strictEquals(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindBoolean:
		return a.b == b.b
	case KindArray:
		return a.arr == b.arr
	case KindObject:
		return a.obj == b.obj
	case KindFunction:
		return a.fn == b.fn
	}
	return false
}

func isNullish(v Value) bool { return v.kind == KindUndefined || v.kind == KindNull }

func isPrimitive(v Value) bool {
	return v.kind != KindArray && v.kind != KindObject && v.kind != KindFunction
}

func toPrimitive(v Value) Value {
	if isPrimitive(v) {
		return v
	}
	return Str(toString(v))
}

func looseEquals(a, b Value) bool {
	if a.kind == b.kind {
		return strictEquals(a, b)
	}
	if isNullish(a) || isNullish(b) {
		return isNullish(a) && isNullish(b)
	}
	if a.kind == KindBoolean {
		return looseEquals(Num(toNumber(a)), b)
	}
	if b.kind == KindBoolean {
		return looseEquals(a, Num(toNumber(b)))
	}
	if (a.kind == KindNumber && b.kind == KindString) || (a.kind == KindString && b.kind == KindNumber) {
		return toNumber(a) == toNumber(b)
	}
	if !isPrimitive(a) && isPrimitive(b) {
		return looseEquals(toPrimitive(a), b)
	}
	if isPrimitive(a) && !isPrimitive(b) {
		return looseEquals(a, toPrimitive(b))
	}
	return false
}

// utf16Units returns the UTF-16 code units of s.
func utf16Units(s string) []uint16 {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		u := make([]uint16, len(s))
		for i := 0; i < len(s); i++ {
			u[i] = uint16(s[i])
		}
		return u
	}
	return utf16.Encode([]rune(s))
}

func fromUnits(u []uint16) string {
	return string(utf16.Decode(u))
}

func strLength(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return len(utf16.Encode([]rune(s)))
		}
	}
	return len(s)
}

// arrayIndex parses a canonical non-negative integer property key.
func arrayIndex(key Value) (int, bool) {
	switch key.kind {
	case KindNumber:
		f := key.num
		if f >= 0 && f == math.Trunc(f) && f < math.MaxInt32 {
			return int(f), true
		}
		return 0, false
	case KindString:
		s := key.str
		if s == "" || (len(s) > 1 && s[0] == '0') {
			return 0, false
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// relativeIndex clamps a possibly negative slice bound against length n.
func relativeIndex(v Value, n int, def int) int {
	if v.kind == KindUndefined {
		return def
	}
	f := toInteger(v)
	if f < 0 {
		f += float64(n)
		if f < 0 {
			f = 0
		}
	}
	if f > float64(n) {
		f = float64(n)
	}
	return int(f)
}
