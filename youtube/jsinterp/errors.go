package jsinterp

import (
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"

	"github.com/ytget/descramble/errs"
)

// Error is raised for unsupported syntax and for runtime type errors inside a
// guest snippet. It matches errs.ErrInterpreter under errors.Is.
type Error struct {
	// Construct names the rejected syntax node or operation. It is empty for
	// runtime errors.
	Construct string
	Msg       string
	// Pos is the byte offset into the parsed source, or -1.
	Pos int
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("jsinterp: ")
	if e.Construct != "" {
		b.WriteString("unsupported ")
		b.WriteString(e.Construct)
		if e.Msg != "" {
			b.WriteString(": ")
		}
	}
	b.WriteString(e.Msg)
	if e.Pos >= 0 {
		fmt.Fprintf(&b, " (offset %d)", e.Pos)
	}
	return b.String()
}

// Unwrap ties every interpreter failure to errs.ErrInterpreter.
func (e *Error) Unwrap() error { return errs.ErrInterpreter }

func nodePos(n ast.Node) int {
	if n == nil {
		return -1
	}
	return int(n.Idx0()) - 1
}

func nodeName(n interface{}) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", n), "*ast.")
}

func unsupported(n ast.Node, construct string) *Error {
	if construct == "" {
		construct = nodeName(n)
	}
	return &Error{Construct: construct, Pos: nodePos(n)}
}

func runtimeError(n ast.Node, format string, args ...interface{}) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Pos: nodePos(n)}
}
