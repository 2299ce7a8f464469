package jsinterp

import (
	"reflect"
	"sort"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"
)

var binaryOps = map[token.Token]bool{
	token.PLUS:                 true,
	token.MINUS:                true,
	token.MULTIPLY:             true,
	token.SLASH:                true,
	token.REMAINDER:            true,
	token.AND:                  true,
	token.OR:                   true,
	token.EXCLUSIVE_OR:         true,
	token.SHIFT_LEFT:           true,
	token.SHIFT_RIGHT:          true,
	token.UNSIGNED_SHIFT_RIGHT: true,
	token.LOGICAL_AND:          true,
	token.LOGICAL_OR:           true,
	token.EQUAL:                true,
	token.STRICT_EQUAL:         true,
	token.NOT_EQUAL:            true,
	token.STRICT_NOT_EQUAL:     true,
	token.LESS:                 true,
	token.LESS_OR_EQUAL:        true,
	token.GREATER:              true,
	token.GREATER_OR_EQUAL:     true,
}

// Compound assignments arrive with the underlying arithmetic operator.
var assignOps = map[token.Token]bool{
	token.ASSIGN:               true,
	token.PLUS:                 true,
	token.MINUS:                true,
	token.MULTIPLY:             true,
	token.SLASH:                true,
	token.REMAINDER:            true,
	token.AND:                  true,
	token.OR:                   true,
	token.EXCLUSIVE_OR:         true,
	token.SHIFT_LEFT:           true,
	token.SHIFT_RIGHT:          true,
	token.UNSIGNED_SHIFT_RIGHT: true,
}

// Program is a parsed and validated guest snippet. It is immutable and safe
// to share between goroutines; every Call evaluates in fresh scopes.
type Program struct {
	src  string
	body []ast.Statement
}

// Parse parses src and rejects anything outside the supported grammar.
func Parse(src string) (*Program, error) {
	prog, err := parser.ParseFile(nil, "", src, 0)
	if err != nil {
		return nil, &Error{Construct: "syntax", Msg: err.Error(), Pos: -1}
	}
	for _, st := range prog.Body {
		if err := validateStatement(st); err != nil {
			return nil, err
		}
	}
	return &Program{src: src, body: prog.Body}, nil
}

// Source returns the text the program was parsed from.
func (p *Program) Source() string { return p.src }

func validateStatements(list []ast.Statement) error {
	for _, st := range list {
		if err := validateStatement(st); err != nil {
			return err
		}
	}
	return nil
}

func validateStatement(st ast.Statement) error {
	if st == nil {
		return nil
	}
	switch n := st.(type) {
	case *ast.EmptyStatement:
		return nil
	case *ast.ExpressionStatement:
		return validateExpression(n.Expression)
	case *ast.VariableStatement:
		return validateBindings(n.List)
	case *ast.LexicalDeclaration:
		return validateBindings(n.List)
	case *ast.ReturnStatement:
		return validateExpression(n.Argument)
	case *ast.IfStatement:
		if err := validateExpression(n.Test); err != nil {
			return err
		}
		if err := validateStatement(n.Consequent); err != nil {
			return err
		}
		return validateStatement(n.Alternate)
	case *ast.BlockStatement:
		return validateStatements(n.List)
	case *ast.ForStatement:
		switch init := n.Initializer.(type) {
		case nil:
		case *ast.ForLoopInitializerExpression:
			if err := validateExpression(init.Expression); err != nil {
				return err
			}
		case *ast.ForLoopInitializerVarDeclList:
			if err := validateBindings(init.List); err != nil {
				return err
			}
		case *ast.ForLoopInitializerLexicalDecl:
			if err := validateBindings(init.LexicalDeclaration.List); err != nil {
				return err
			}
		default:
			return unsupported(n, "for-loop initializer "+nodeName(init))
		}
		for _, e := range []ast.Expression{n.Test, n.Update} {
			if err := validateExpression(e); err != nil {
				return err
			}
		}
		return validateStatement(n.Body)
	case *ast.WhileStatement:
		if err := validateExpression(n.Test); err != nil {
			return err
		}
		return validateStatement(n.Body)
	case *ast.DoWhileStatement:
		if err := validateExpression(n.Test); err != nil {
			return err
		}
		return validateStatement(n.Body)
	case *ast.BranchStatement:
		if n.Label != nil {
			return unsupported(n, "labelled "+n.Token.String())
		}
		if n.Token != token.BREAK && n.Token != token.CONTINUE {
			return unsupported(n, n.Token.String())
		}
		return nil
	case *ast.FunctionDeclaration:
		return validateFunction(n.Function)
	default:
		return unsupported(st, "")
	}
}

func validateBindings(list []*ast.Binding) error {
	for _, b := range list {
		if _, ok := b.Target.(*ast.Identifier); !ok {
			return unsupported(b.Target, "destructuring binding")
		}
		if err := validateExpression(b.Initializer); err != nil {
			return err
		}
	}
	return nil
}

func validateParams(pl *ast.ParameterList) error {
	if pl == nil {
		return nil
	}
	if pl.Rest != nil {
		return unsupported(pl.Rest, "rest parameter")
	}
	for _, b := range pl.List {
		if _, ok := b.Target.(*ast.Identifier); !ok {
			return unsupported(b.Target, "destructuring parameter")
		}
		if b.Initializer != nil {
			return unsupported(b.Initializer, "default parameter")
		}
	}
	return nil
}

func validateFunction(fn *ast.FunctionLiteral) error {
	if err := validateParams(fn.ParameterList); err != nil {
		return err
	}
	if fn.Body == nil {
		return nil
	}
	return validateStatements(fn.Body.List)
}

func validateTarget(e ast.Expression) error {
	switch n := e.(type) {
	case *ast.Identifier:
		return nil
	case *ast.DotExpression:
		return validateExpression(n.Left)
	case *ast.BracketExpression:
		if err := validateExpression(n.Left); err != nil {
			return err
		}
		return validateExpression(n.Member)
	default:
		return unsupported(e, "assignment target "+nodeName(e))
	}
}

func validateExpression(e ast.Expression) error {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *ast.Identifier, *ast.NumberLiteral, *ast.StringLiteral, *ast.BooleanLiteral, *ast.NullLiteral:
		return nil
	case *ast.ArrayLiteral:
		for _, el := range n.Value {
			if err := validateExpression(el); err != nil {
				return err
			}
		}
		return nil
	case *ast.ObjectLiteral:
		for _, prop := range n.Value {
			switch p := prop.(type) {
			case *ast.PropertyKeyed:
				if p.Kind != ast.PropertyKindValue && p.Kind != ast.PropertyKindMethod {
					return unsupported(p.Key, "accessor property")
				}
				if p.Computed {
					if err := validateExpression(p.Key); err != nil {
						return err
					}
				}
				if err := validateExpression(p.Value); err != nil {
					return err
				}
			case *ast.PropertyShort:
				if p.Initializer != nil {
					return unsupported(p.Initializer, "shorthand property initializer")
				}
			default:
				return &Error{Construct: nodeName(prop), Pos: -1}
			}
		}
		return nil
	case *ast.FunctionLiteral:
		return validateFunction(n)
	case *ast.ArrowFunctionLiteral:
		if err := validateParams(n.ParameterList); err != nil {
			return err
		}
		switch body := n.Body.(type) {
		case *ast.BlockStatement:
			return validateStatements(body.List)
		case *ast.ExpressionBody:
			return validateExpression(body.Expression)
		default:
			return unsupported(n, "arrow function body")
		}
	case *ast.AssignExpression:
		if !assignOps[n.Operator] {
			return unsupported(n, "assignment operator "+n.Operator.String())
		}
		if err := validateTarget(n.Left); err != nil {
			return err
		}
		return validateExpression(n.Right)
	case *ast.BinaryExpression:
		if !binaryOps[n.Operator] {
			return unsupported(n, "operator "+n.Operator.String())
		}
		if err := validateExpression(n.Left); err != nil {
			return err
		}
		return validateExpression(n.Right)
	case *ast.UnaryExpression:
		switch n.Operator {
		case token.NOT, token.MINUS, token.PLUS, token.BITWISE_NOT, token.TYPEOF, token.VOID:
			return validateExpression(n.Operand)
		case token.INCREMENT, token.DECREMENT:
			return validateTarget(n.Operand)
		default:
			return unsupported(n, "operator "+n.Operator.String())
		}
	case *ast.ConditionalExpression:
		for _, sub := range []ast.Expression{n.Test, n.Consequent, n.Alternate} {
			if err := validateExpression(sub); err != nil {
				return err
			}
		}
		return nil
	case *ast.SequenceExpression:
		for _, sub := range n.Sequence {
			if err := validateExpression(sub); err != nil {
				return err
			}
		}
		return nil
	case *ast.CallExpression:
		if err := validateExpression(n.Callee); err != nil {
			return err
		}
		for _, arg := range n.ArgumentList {
			if err := validateExpression(arg); err != nil {
				return err
			}
		}
		return nil
	case *ast.NewExpression:
		if _, ok := n.Callee.(*ast.Identifier); !ok {
			return unsupported(n, "new on "+nodeName(n.Callee))
		}
		for _, arg := range n.ArgumentList {
			if err := validateExpression(arg); err != nil {
				return err
			}
		}
		return nil
	case *ast.DotExpression:
		return validateExpression(n.Left)
	case *ast.BracketExpression:
		if err := validateExpression(n.Left); err != nil {
			return err
		}
		return validateExpression(n.Member)
	default:
		return unsupported(e, "")
	}
}

// hoistVars declares every var binding in list, without descending into
// nested functions, in the function scope sc.
func hoistVars(list []ast.Statement, sc *scope) {
	for _, st := range list {
		hoistVarsIn(st, sc)
	}
}

func hoistVarsIn(st ast.Statement, sc *scope) {
	switch n := st.(type) {
	case *ast.VariableStatement:
		for _, b := range n.List {
			if id, ok := b.Target.(*ast.Identifier); ok {
				sc.declareVar(id.Name.String())
			}
		}
	case *ast.BlockStatement:
		hoistVars(n.List, sc)
	case *ast.IfStatement:
		hoistVarsIn(n.Consequent, sc)
		if n.Alternate != nil {
			hoistVarsIn(n.Alternate, sc)
		}
	case *ast.ForStatement:
		if init, ok := n.Initializer.(*ast.ForLoopInitializerVarDeclList); ok {
			for _, b := range init.List {
				if id, ok := b.Target.(*ast.Identifier); ok {
					sc.declareVar(id.Name.String())
				}
			}
		}
		hoistVarsIn(n.Body, sc)
	case *ast.WhileStatement:
		hoistVarsIn(n.Body, sc)
	case *ast.DoWhileStatement:
		hoistVarsIn(n.Body, sc)
	}
}

func hasLexical(list []ast.Statement) bool {
	for _, st := range list {
		switch st.(type) {
		case *ast.LexicalDeclaration, *ast.FunctionDeclaration:
			return true
		}
	}
	return false
}

// ambientNames are resolved by the host, never by auxiliary declarations.
var ambientNames = map[string]bool{
	"undefined": true, "NaN": true, "Infinity": true,
	"String": true, "Array": true, "Math": true, "Number": true, "Object": true,
	"Date": true, "JSON": true, "RegExp": true, "Error": true, "Symbol": true,
	"parseInt": true, "parseFloat": true, "isNaN": true,
	"encodeURIComponent": true, "decodeURIComponent": true,
	"window": true, "document": true, "navigator": true, "arguments": true,
}

// FreeNames parses src and returns, sorted, the identifiers it reads but
// never declares. Unlike Parse it accepts the full grammar so callers can
// discover dependencies of snippets the evaluator would reject.
func FreeNames(src string) ([]string, error) {
	prog, err := parser.ParseFile(nil, "", src, 0)
	if err != nil {
		return nil, &Error{Construct: "syntax", Msg: err.Error(), Pos: -1}
	}
	refs := make(map[string]bool)
	declared := make(map[string]bool)
	for _, st := range prog.Body {
		walkNode(reflect.ValueOf(st), func(node interface{}) {
			switch n := node.(type) {
			case *ast.Identifier:
				refs[n.Name.String()] = true
			case *ast.Binding:
				if id, ok := n.Target.(*ast.Identifier); ok {
					declared[id.Name.String()] = true
				}
			case *ast.FunctionLiteral:
				if n.Name != nil {
					declared[n.Name.Name.String()] = true
				}
			case *ast.BranchStatement:
				if n.Label != nil {
					declared[n.Label.Name.String()] = true
				}
			case *ast.LabelledStatement:
				if n.Label != nil {
					declared[n.Label.Name.String()] = true
				}
			case *ast.PropertyShort:
				refs[n.Name.Name.String()] = true
			}
		})
	}
	var free []string
	for name := range refs {
		if !declared[name] && !ambientNames[name] {
			free = append(free, name)
		}
	}
	sort.Strings(free)
	return free, nil
}

// walkNode visits every AST node reachable from v. Value-typed Identifier
// fields (property names in member expressions) are not visited, because
// visit only receives pointers.
func walkNode(v reflect.Value, visit func(interface{})) {
	switch v.Kind() {
	case reflect.Interface:
		if !v.IsNil() {
			walkNode(v.Elem(), visit)
		}
	case reflect.Ptr:
		if v.IsNil() {
			return
		}
		if v.CanInterface() {
			visit(v.Interface())
		}
		if v.Elem().Kind() == reflect.Struct {
			walkStruct(v.Elem(), visit)
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			walkNode(v.Index(i), visit)
		}
	case reflect.Struct:
		walkStruct(v, visit)
	}
}

func walkStruct(v reflect.Value, visit func(interface{})) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Slice:
			walkNode(fv, visit)
		case reflect.Struct:
			// Embedded value structs such as ForLoopInitializerLexicalDecl's
			// declaration hold bindings; DotExpression's Identifier is a name.
			if fv.Type() == reflect.TypeOf(ast.Identifier{}) {
				continue
			}
			walkStruct(fv, visit)
		}
	}
}
