// Package jsinterp evaluates the small subset of JavaScript used by player
// scripts for signature and throttling-parameter transforms.
//
// A snippet is parsed once with Parse, which rejects every construct the
// evaluator does not implement, so unsupported code fails before it runs
// rather than producing a wrong answer. The returned Program can then be
// called any number of times, concurrently, with Program.Call. Each call
// evaluates the snippet's top-level declarations in a fresh global scope.
//
// Supported: var/let/const, function declarations and expressions, arrow
// functions, if/for/while/do-while with break and continue, return,
// arithmetic, bitwise, comparison and logical operators, compound
// assignment, ++/--, typeof, array and object literals, member access,
// String and Array constructors, String.fromCharCode, and the string and
// array methods the transforms rely on.
//
// Evaluation is bounded by MaxCallDepth and MaxSteps. Every failure is an
// *Error matching errs.ErrInterpreter.
package jsinterp
