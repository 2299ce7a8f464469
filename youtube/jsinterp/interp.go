package jsinterp

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"
)

const (
	// MaxCallDepth bounds guest recursion.
	MaxCallDepth = 100
	// MaxSteps bounds the statements and loop iterations of one call.
	MaxSteps = 1 << 22
)

type nativeFunc func(it *interp, this Value, args []Value) (Value, error)

// Function is a guest closure or a host builtin.
type Function struct {
	name   string
	params []string
	body   []ast.Statement
	expr   ast.Expression
	scope  *scope
	arrow  bool
	native nativeFunc
	props  map[string]Value
	src    string
}

func funcValue(fn *Function) Value { return Value{kind: KindFunction, fn: fn} }

type completion uint8

const (
	normal completion = iota
	returnC
	breakC
	continueC
)

type result struct {
	kind  completion
	value Value
}

type interp struct {
	prog   *Program
	global *scope
	steps  int
	depth  int
}

func newInterp(p *Program) *interp {
	it := &interp{prog: p}
	it.global = newScope(builtinScope(), true)
	return it
}

// run evaluates the top-level statements and returns the value of the last
// expression statement.
func (it *interp) run() (Value, error) {
	hoistVars(it.prog.body, it.global)
	it.hoistFunctions(it.prog.body, it.global)
	r, err := it.execList(it.prog.body, it.global)
	return r.value, err
}

// Call evaluates the program's declarations in a fresh global scope and
// invokes the function bound to name with args.
func (p *Program) Call(name string, args ...Value) (Value, error) {
	it := newInterp(p)
	if _, err := it.run(); err != nil {
		return Undefined(), err
	}
	b, ok := it.global.lookup(name)
	if !ok {
		return Undefined(), &Error{Msg: name + " is not defined", Pos: -1}
	}
	if b.value.kind != KindFunction {
		return Undefined(), &Error{Msg: name + " is not a function", Pos: -1}
	}
	return it.call(nil, b.value.fn, Undefined(), args)
}

// Eval runs the program and returns the value of its last expression
// statement.
func (p *Program) Eval() (Value, error) {
	return newInterp(p).run()
}

func (it *interp) tick(n ast.Node) error {
	it.steps++
	if it.steps > MaxSteps {
		return runtimeError(n, "step budget of %d exhausted", MaxSteps)
	}
	return nil
}

func (it *interp) text(n ast.Node) string {
	from, to := int(n.Idx0())-1, int(n.Idx1())-1
	if from < 0 || to > len(it.prog.src) || from > to {
		return nodeName(n)
	}
	return it.prog.src[from:to]
}

func (it *interp) closure(lit *ast.FunctionLiteral, sc *scope) Value {
	fn := &Function{
		params: paramNames(lit.ParameterList),
		scope:  sc,
		src:    it.text(lit),
	}
	if lit.Body != nil {
		fn.body = lit.Body.List
	}
	if lit.Name != nil {
		fn.name = lit.Name.Name.String()
	}
	return funcValue(fn)
}

func (it *interp) arrow(lit *ast.ArrowFunctionLiteral, sc *scope) Value {
	fn := &Function{
		params: paramNames(lit.ParameterList),
		scope:  sc,
		arrow:  true,
		src:    it.text(lit),
	}
	switch body := lit.Body.(type) {
	case *ast.BlockStatement:
		fn.body = body.List
	case *ast.ExpressionBody:
		fn.expr = body.Expression
	}
	return funcValue(fn)
}

func paramNames(pl *ast.ParameterList) []string {
	if pl == nil {
		return nil
	}
	names := make([]string, 0, len(pl.List))
	for _, b := range pl.List {
		if id, ok := b.Target.(*ast.Identifier); ok {
			names = append(names, id.Name.String())
		}
	}
	return names
}

func (it *interp) hoistFunctions(list []ast.Statement, sc *scope) {
	for _, st := range list {
		if decl, ok := st.(*ast.FunctionDeclaration); ok && decl.Function.Name != nil {
			sc.declare(decl.Function.Name.Name.String(), it.closure(decl.Function, sc), false)
		}
	}
}

func (it *interp) call(site ast.Node, fn *Function, this Value, args []Value) (Value, error) {
	if fn.native != nil {
		v, err := fn.native(it, this, args)
		if e, ok := err.(*Error); ok && e.Pos < 0 && site != nil {
			e.Pos = nodePos(site)
		}
		return v, err
	}
	it.depth++
	defer func() { it.depth-- }()
	if it.depth > MaxCallDepth {
		if site == nil {
			return Undefined(), &Error{Msg: "maximum call depth exceeded", Pos: -1}
		}
		return Undefined(), runtimeError(site, "maximum call depth %d exceeded", MaxCallDepth)
	}

	fsc := newScope(fn.scope, true)
	if !fn.arrow {
		fsc.declare("arguments", NewArray(args...), false)
	}
	for i, name := range fn.params {
		v := Undefined()
		if i < len(args) {
			v = args[i]
		}
		fsc.declare(name, v, false)
	}
	if fn.expr != nil {
		return it.eval(fn.expr, fsc)
	}
	hoistVars(fn.body, fsc)
	it.hoistFunctions(fn.body, fsc)
	r, err := it.execList(fn.body, fsc)
	if err != nil {
		return Undefined(), err
	}
	if r.kind == returnC {
		return r.value, nil
	}
	return Undefined(), nil
}

func (it *interp) execList(list []ast.Statement, sc *scope) (result, error) {
	var last Value
	for _, st := range list {
		r, err := it.exec(st, sc)
		if err != nil || r.kind != normal {
			return r, err
		}
		if _, ok := st.(*ast.ExpressionStatement); ok {
			last = r.value
		}
	}
	return result{value: last}, nil
}

func (it *interp) block(list []ast.Statement, sc *scope) (result, error) {
	inner := sc
	if hasLexical(list) {
		inner = newScope(sc, false)
		it.hoistFunctions(list, inner)
	}
	return it.execList(list, inner)
}

func (it *interp) exec(st ast.Statement, sc *scope) (result, error) {
	if err := it.tick(st); err != nil {
		return result{}, err
	}
	switch n := st.(type) {
	case *ast.EmptyStatement, *ast.FunctionDeclaration:
		return result{}, nil
	case *ast.ExpressionStatement:
		v, err := it.eval(n.Expression, sc)
		return result{value: v}, err
	case *ast.VariableStatement:
		for _, b := range n.List {
			if b.Initializer == nil {
				continue
			}
			v, err := it.eval(b.Initializer, sc)
			if err != nil {
				return result{}, err
			}
			if err := it.setName(b.Target.(*ast.Identifier), v, sc); err != nil {
				return result{}, err
			}
		}
		return result{}, nil
	case *ast.LexicalDeclaration:
		return result{}, it.declareLexical(n.Token, n.List, sc)
	case *ast.ReturnStatement:
		v := Undefined()
		if n.Argument != nil {
			var err error
			if v, err = it.eval(n.Argument, sc); err != nil {
				return result{}, err
			}
		}
		return result{kind: returnC, value: v}, nil
	case *ast.IfStatement:
		test, err := it.eval(n.Test, sc)
		if err != nil {
			return result{}, err
		}
		if truthy(test) {
			return it.exec(n.Consequent, sc)
		}
		if n.Alternate != nil {
			return it.exec(n.Alternate, sc)
		}
		return result{}, nil
	case *ast.BlockStatement:
		return it.block(n.List, sc)
	case *ast.ForStatement:
		return it.forLoop(n, sc)
	case *ast.WhileStatement:
		for {
			test, err := it.eval(n.Test, sc)
			if err != nil {
				return result{}, err
			}
			if !truthy(test) {
				return result{}, nil
			}
			r, err := it.exec(n.Body, sc)
			if stop, out := loopExit(r, err); stop {
				return out, err
			}
		}
	case *ast.DoWhileStatement:
		for {
			r, err := it.exec(n.Body, sc)
			if stop, out := loopExit(r, err); stop {
				return out, err
			}
			test, err := it.eval(n.Test, sc)
			if err != nil {
				return result{}, err
			}
			if !truthy(test) {
				return result{}, nil
			}
		}
	case *ast.BranchStatement:
		if n.Token == token.BREAK {
			return result{kind: breakC}, nil
		}
		return result{kind: continueC}, nil
	default:
		return result{}, unsupported(st, "")
	}
}

// loopExit reports whether a loop must stop after a body completion.
func loopExit(r result, err error) (bool, result) {
	if err != nil {
		return true, result{}
	}
	switch r.kind {
	case breakC:
		return true, result{}
	case returnC:
		return true, r
	}
	return false, result{}
}

func (it *interp) declareLexical(tok token.Token, list []*ast.Binding, sc *scope) error {
	constant := tok == token.CONST
	for _, b := range list {
		v := Undefined()
		if b.Initializer != nil {
			var err error
			if v, err = it.eval(b.Initializer, sc); err != nil {
				return err
			}
		}
		sc.declare(b.Target.(*ast.Identifier).Name.String(), v, constant)
	}
	return nil
}

func (it *interp) forLoop(n *ast.ForStatement, sc *scope) (result, error) {
	loop := sc
	perIteration := false
	switch init := n.Initializer.(type) {
	case *ast.ForLoopInitializerExpression:
		if _, err := it.eval(init.Expression, sc); err != nil {
			return result{}, err
		}
	case *ast.ForLoopInitializerVarDeclList:
		for _, b := range init.List {
			if b.Initializer == nil {
				continue
			}
			v, err := it.eval(b.Initializer, sc)
			if err != nil {
				return result{}, err
			}
			if err := it.setName(b.Target.(*ast.Identifier), v, sc); err != nil {
				return result{}, err
			}
		}
	case *ast.ForLoopInitializerLexicalDecl:
		loop = newScope(sc, false)
		perIteration = true
		if err := it.declareLexical(init.LexicalDeclaration.Token, init.LexicalDeclaration.List, loop); err != nil {
			return result{}, err
		}
	}

	for {
		if err := it.tick(n); err != nil {
			return result{}, err
		}
		if n.Test != nil {
			test, err := it.eval(n.Test, loop)
			if err != nil {
				return result{}, err
			}
			if !truthy(test) {
				return result{}, nil
			}
		}
		r, err := it.exec(n.Body, loop)
		if stop, out := loopExit(r, err); stop {
			return out, err
		}
		if perIteration {
			// Closures created in the body keep the previous iteration's
			// bindings.
			next := newScope(sc, false)
			for name, b := range loop.vars {
				next.vars[name] = &binding{value: b.value, constant: b.constant}
			}
			loop = next
		}
		if n.Update != nil {
			if _, err := it.eval(n.Update, loop); err != nil {
				return result{}, err
			}
		}
	}
}
