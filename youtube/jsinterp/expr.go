package jsinterp

import (
	"math"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"
)

// reference is an assignable location: a name or an object property.
type reference struct {
	name *ast.Identifier
	obj  Value
	key  Value
}

func (it *interp) eval(e ast.Expression, sc *scope) (Value, error) {
	switch n := e.(type) {
	case *ast.Identifier:
		return it.lookupName(n, sc)
	case *ast.NumberLiteral:
		switch v := n.Value.(type) {
		case int64:
			return Num(float64(v)), nil
		case float64:
			return Num(v), nil
		}
		return Num(stringToNumber(n.Literal)), nil
	case *ast.StringLiteral:
		return Str(n.Value.String()), nil
	case *ast.BooleanLiteral:
		return Bool(n.Value), nil
	case *ast.NullLiteral:
		return Null(), nil
	case *ast.ArrayLiteral:
		elems := make([]Value, len(n.Value))
		for i, el := range n.Value {
			if el == nil {
				continue
			}
			v, err := it.eval(el, sc)
			if err != nil {
				return Undefined(), err
			}
			elems[i] = v
		}
		return Value{kind: KindArray, arr: &Array{elems: elems}}, nil
	case *ast.ObjectLiteral:
		return it.objectLiteral(n, sc)
	case *ast.FunctionLiteral:
		if n.Name == nil {
			return it.closure(n, sc), nil
		}
		// A named function expression sees its own name.
		inner := newScope(sc, false)
		fv := it.closure(n, inner)
		inner.declare(n.Name.Name.String(), fv, false)
		return fv, nil
	case *ast.ArrowFunctionLiteral:
		return it.arrow(n, sc), nil
	case *ast.AssignExpression:
		return it.assign(n, sc)
	case *ast.BinaryExpression:
		return it.binaryExpr(n, sc)
	case *ast.UnaryExpression:
		return it.unary(n, sc)
	case *ast.ConditionalExpression:
		test, err := it.eval(n.Test, sc)
		if err != nil {
			return Undefined(), err
		}
		if truthy(test) {
			return it.eval(n.Consequent, sc)
		}
		return it.eval(n.Alternate, sc)
	case *ast.SequenceExpression:
		var last Value
		for _, sub := range n.Sequence {
			v, err := it.eval(sub, sc)
			if err != nil {
				return Undefined(), err
			}
			last = v
		}
		return last, nil
	case *ast.CallExpression:
		return it.callExpr(n, sc)
	case *ast.NewExpression:
		return it.newExpr(n, sc)
	case *ast.DotExpression:
		obj, err := it.eval(n.Left, sc)
		if err != nil {
			return Undefined(), err
		}
		return it.getMember(n, obj, Str(n.Identifier.Name.String()))
	case *ast.BracketExpression:
		obj, err := it.eval(n.Left, sc)
		if err != nil {
			return Undefined(), err
		}
		key, err := it.eval(n.Member, sc)
		if err != nil {
			return Undefined(), err
		}
		return it.getMember(n, obj, key)
	default:
		return Undefined(), unsupported(e, "")
	}
}

func (it *interp) lookupName(id *ast.Identifier, sc *scope) (Value, error) {
	name := id.Name.String()
	b, ok := sc.lookup(name)
	if !ok {
		return Undefined(), runtimeError(id, "%s is not defined", name)
	}
	return b.value, nil
}

// setName assigns to the nearest binding. Undeclared names become globals.
func (it *interp) setName(id *ast.Identifier, v Value, sc *scope) error {
	name := id.Name.String()
	if b, ok := sc.lookup(name); ok {
		if b.constant {
			return runtimeError(id, "assignment to constant %s", name)
		}
		b.value = v
		return nil
	}
	it.global.declare(name, v, false)
	return nil
}

func (it *interp) objectLiteral(n *ast.ObjectLiteral, sc *scope) (Value, error) {
	obj := newObject()
	for _, prop := range n.Value {
		switch p := prop.(type) {
		case *ast.PropertyKeyed:
			key, err := it.propertyKey(p, sc)
			if err != nil {
				return Undefined(), err
			}
			v, err := it.eval(p.Value, sc)
			if err != nil {
				return Undefined(), err
			}
			if v.kind == KindFunction && v.fn.name == "" {
				v.fn.name = key
			}
			obj.set(key, v)
		case *ast.PropertyShort:
			v, err := it.lookupName(&p.Name, sc)
			if err != nil {
				return Undefined(), err
			}
			obj.set(p.Name.Name.String(), v)
		}
	}
	return objectValue(obj), nil
}

func (it *interp) propertyKey(p *ast.PropertyKeyed, sc *scope) (string, error) {
	if p.Computed {
		k, err := it.eval(p.Key, sc)
		if err != nil {
			return "", err
		}
		return toString(k), nil
	}
	switch k := p.Key.(type) {
	case *ast.StringLiteral:
		return k.Value.String(), nil
	case *ast.Identifier:
		return k.Name.String(), nil
	case *ast.NumberLiteral:
		v, err := it.eval(k, sc)
		return toString(v), err
	}
	return "", unsupported(p.Key, "property key "+nodeName(p.Key))
}

func (it *interp) resolveRef(e ast.Expression, sc *scope) (reference, error) {
	switch n := e.(type) {
	case *ast.Identifier:
		return reference{name: n}, nil
	case *ast.DotExpression:
		obj, err := it.eval(n.Left, sc)
		if err != nil {
			return reference{}, err
		}
		return reference{obj: obj, key: Str(n.Identifier.Name.String())}, nil
	case *ast.BracketExpression:
		obj, err := it.eval(n.Left, sc)
		if err != nil {
			return reference{}, err
		}
		key, err := it.eval(n.Member, sc)
		if err != nil {
			return reference{}, err
		}
		return reference{obj: obj, key: key}, nil
	}
	return reference{}, unsupported(e, "assignment target "+nodeName(e))
}

func (it *interp) getRef(site ast.Node, ref reference, sc *scope) (Value, error) {
	if ref.name != nil {
		return it.lookupName(ref.name, sc)
	}
	return it.getMember(site, ref.obj, ref.key)
}

func (it *interp) putRef(site ast.Node, ref reference, v Value, sc *scope) error {
	if ref.name != nil {
		return it.setName(ref.name, v, sc)
	}
	return it.setMember(site, ref.obj, ref.key, v)
}

func (it *interp) assign(n *ast.AssignExpression, sc *scope) (Value, error) {
	ref, err := it.resolveRef(n.Left, sc)
	if err != nil {
		return Undefined(), err
	}
	if n.Operator == token.ASSIGN {
		v, err := it.eval(n.Right, sc)
		if err != nil {
			return Undefined(), err
		}
		return v, it.putRef(n, ref, v, sc)
	}
	old, err := it.getRef(n, ref, sc)
	if err != nil {
		return Undefined(), err
	}
	right, err := it.eval(n.Right, sc)
	if err != nil {
		return Undefined(), err
	}
	v, err := binary(n, n.Operator, old, right)
	if err != nil {
		return Undefined(), err
	}
	return v, it.putRef(n, ref, v, sc)
}

func (it *interp) binaryExpr(n *ast.BinaryExpression, sc *scope) (Value, error) {
	left, err := it.eval(n.Left, sc)
	if err != nil {
		return Undefined(), err
	}
	switch n.Operator {
	case token.LOGICAL_AND:
		if !truthy(left) {
			return left, nil
		}
		return it.eval(n.Right, sc)
	case token.LOGICAL_OR:
		if truthy(left) {
			return left, nil
		}
		return it.eval(n.Right, sc)
	}
	right, err := it.eval(n.Right, sc)
	if err != nil {
		return Undefined(), err
	}
	return binary(n, n.Operator, left, right)
}

func binary(site ast.Node, op token.Token, l, r Value) (Value, error) {
	switch op {
	case token.PLUS:
		lp, rp := toPrimitive(l), toPrimitive(r)
		if lp.kind == KindString || rp.kind == KindString {
			return Str(toString(lp) + toString(rp)), nil
		}
		return Num(toNumber(lp) + toNumber(rp)), nil
	case token.MINUS:
		return Num(toNumber(l) - toNumber(r)), nil
	case token.MULTIPLY:
		return Num(toNumber(l) * toNumber(r)), nil
	case token.SLASH:
		return Num(toNumber(l) / toNumber(r)), nil
	case token.REMAINDER:
		return Num(math.Mod(toNumber(l), toNumber(r))), nil
	case token.AND:
		return Num(float64(toInt32(l) & toInt32(r))), nil
	case token.OR:
		return Num(float64(toInt32(l) | toInt32(r))), nil
	case token.EXCLUSIVE_OR:
		return Num(float64(toInt32(l) ^ toInt32(r))), nil
	case token.SHIFT_LEFT:
		return Num(float64(toInt32(l) << (toUint32(r) & 31))), nil
	case token.SHIFT_RIGHT:
		return Num(float64(toInt32(l) >> (toUint32(r) & 31))), nil
	case token.UNSIGNED_SHIFT_RIGHT:
		return Num(float64(toUint32(l) >> (toUint32(r) & 31))), nil
	case token.EQUAL:
		return Bool(looseEquals(l, r)), nil
	case token.NOT_EQUAL:
		return Bool(!looseEquals(l, r)), nil
	case token.STRICT_EQUAL:
		return Bool(strictEquals(l, r)), nil
	case token.STRICT_NOT_EQUAL:
		return Bool(!strictEquals(l, r)), nil
	case token.LESS:
		return Bool(compare(l, r) == cmpTrue), nil
	case token.GREATER:
		return Bool(compare(r, l) == cmpTrue), nil
	case token.LESS_OR_EQUAL:
		return Bool(compare(r, l) == cmpFalse), nil
	case token.GREATER_OR_EQUAL:
		return Bool(compare(l, r) == cmpFalse), nil
	}
	return Undefined(), unsupported(site, "operator "+op.String())
}

type cmpResult uint8

const (
	cmpFalse cmpResult = iota
	cmpTrue
	cmpUndefined
)

// compare is the abstract relational comparison l < r. NaN operands yield
// cmpUndefined, which makes every relational operator false.
func compare(l, r Value) cmpResult {
	lp, rp := toPrimitive(l), toPrimitive(r)
	if lp.kind == KindString && rp.kind == KindString {
		a, b := utf16Units(lp.str), utf16Units(rp.str)
		for i := 0; i < len(a) && i < len(b); i++ {
			if a[i] != b[i] {
				if a[i] < b[i] {
					return cmpTrue
				}
				return cmpFalse
			}
		}
		if len(a) < len(b) {
			return cmpTrue
		}
		return cmpFalse
	}
	x, y := toNumber(lp), toNumber(rp)
	if math.IsNaN(x) || math.IsNaN(y) {
		return cmpUndefined
	}
	if x < y {
		return cmpTrue
	}
	return cmpFalse
}

func (it *interp) unary(n *ast.UnaryExpression, sc *scope) (Value, error) {
	switch n.Operator {
	case token.INCREMENT, token.DECREMENT:
		ref, err := it.resolveRef(n.Operand, sc)
		if err != nil {
			return Undefined(), err
		}
		v, err := it.getRef(n, ref, sc)
		if err != nil {
			return Undefined(), err
		}
		old := toNumber(v)
		next := old + 1
		if n.Operator == token.DECREMENT {
			next = old - 1
		}
		if err := it.putRef(n, ref, Num(next), sc); err != nil {
			return Undefined(), err
		}
		if n.Postfix {
			return Num(old), nil
		}
		return Num(next), nil
	case token.TYPEOF:
		if id, ok := n.Operand.(*ast.Identifier); ok {
			b, found := sc.lookup(id.Name.String())
			if !found {
				return Str("undefined"), nil
			}
			return Str(typeOf(b.value)), nil
		}
	}

	v, err := it.eval(n.Operand, sc)
	if err != nil {
		return Undefined(), err
	}
	switch n.Operator {
	case token.NOT:
		return Bool(!truthy(v)), nil
	case token.MINUS:
		return Num(-toNumber(v)), nil
	case token.PLUS:
		return Num(toNumber(v)), nil
	case token.BITWISE_NOT:
		return Num(float64(^toInt32(v))), nil
	case token.TYPEOF:
		return Str(typeOf(v)), nil
	case token.VOID:
		return Undefined(), nil
	}
	return Undefined(), unsupported(n, "operator "+n.Operator.String())
}

func (it *interp) args(list []ast.Expression, sc *scope) ([]Value, error) {
	out := make([]Value, 0, len(list))
	for _, a := range list {
		v, err := it.eval(a, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (it *interp) callExpr(n *ast.CallExpression, sc *scope) (Value, error) {
	var (
		this   Value
		callee Value
		err    error
	)
	switch c := n.Callee.(type) {
	case *ast.DotExpression, *ast.BracketExpression:
		ref, rerr := it.resolveRef(c, sc)
		if rerr != nil {
			return Undefined(), rerr
		}
		this = ref.obj
		callee, err = it.getMember(c, ref.obj, ref.key)
	default:
		callee, err = it.eval(n.Callee, sc)
	}
	if err != nil {
		return Undefined(), err
	}
	args, err := it.args(n.ArgumentList, sc)
	if err != nil {
		return Undefined(), err
	}
	if callee.kind != KindFunction {
		return Undefined(), runtimeError(n, "%s is not a function", it.text(n.Callee))
	}
	return it.call(n, callee.fn, this, args)
}

func (it *interp) newExpr(n *ast.NewExpression, sc *scope) (Value, error) {
	callee, err := it.eval(n.Callee, sc)
	if err != nil {
		return Undefined(), err
	}
	if callee.kind != KindFunction || callee.fn.native == nil {
		return Undefined(), runtimeError(n, "%s is not a constructor", it.text(n.Callee))
	}
	args, err := it.args(n.ArgumentList, sc)
	if err != nil {
		return Undefined(), err
	}
	return it.call(n, callee.fn, Undefined(), args)
}

func propertyName(key Value) string {
	if key.kind == KindNumber {
		return numberToString(key.num)
	}
	return toString(key)
}

func (it *interp) getMember(site ast.Node, obj, key Value) (Value, error) {
	name := propertyName(key)
	switch obj.kind {
	case KindUndefined, KindNull:
		return Undefined(), runtimeError(site, "cannot read property %q of %s", name, obj.kind)
	case KindString:
		if name == "length" {
			return Num(float64(strLength(obj.str))), nil
		}
		if idx, ok := arrayIndex(key); ok {
			units := utf16Units(obj.str)
			if idx < len(units) {
				return Str(fromUnits(units[idx : idx+1])), nil
			}
			return Undefined(), nil
		}
		if m, ok := stringMethods[name]; ok {
			return funcValue(m), nil
		}
	case KindArray:
		if name == "length" {
			return Num(float64(len(obj.arr.elems))), nil
		}
		if idx, ok := arrayIndex(key); ok {
			if idx < len(obj.arr.elems) {
				return obj.arr.elems[idx], nil
			}
			return Undefined(), nil
		}
		if m, ok := arrayMethods[name]; ok {
			return funcValue(m), nil
		}
	case KindObject:
		return obj.obj.props[name], nil
	case KindFunction:
		if name == "length" {
			return Num(float64(len(obj.fn.params))), nil
		}
		if name == "name" {
			return Str(obj.fn.name), nil
		}
		return obj.fn.props[name], nil
	}
	return Undefined(), nil
}

func (it *interp) setMember(site ast.Node, obj, key, v Value) error {
	name := propertyName(key)
	switch obj.kind {
	case KindUndefined, KindNull:
		return runtimeError(site, "cannot set property %q of %s", name, obj.kind)
	case KindArray:
		a := obj.arr
		if name == "length" {
			n := toNumber(v)
			if n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
				return runtimeError(site, "invalid array length %s", numberToString(n))
			}
			resize(a, int(n))
			return nil
		}
		idx, ok := arrayIndex(key)
		if !ok {
			return runtimeError(site, "array property %q", name)
		}
		if idx >= len(a.elems) {
			if idx-len(a.elems) > MaxSteps {
				return runtimeError(site, "array index %d too large", idx)
			}
			resize(a, idx+1)
		}
		a.elems[idx] = v
		return nil
	case KindObject:
		obj.obj.set(name, v)
		return nil
	case KindFunction:
		if obj.fn.native != nil {
			return runtimeError(site, "cannot set property %q of builtin %s", name, obj.fn.name)
		}
		if obj.fn.props == nil {
			obj.fn.props = make(map[string]Value)
		}
		obj.fn.props[name] = v
		return nil
	}
	// Writes to primitives are dropped.
	return nil
}

func resize(a *Array, n int) {
	if n <= len(a.elems) {
		a.elems = a.elems[:n:n]
		return
	}
	a.elems = append(a.elems, make([]Value, n-len(a.elems))...)
}
