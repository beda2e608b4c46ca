// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package chain decomposes a fluent chained-call expression into a flat,
// ordered list of named calls plus the root table identifier, e.g.
//
//	Person.filter(age > 18).sort(name)[0:10]
//
// becomes root "Person" with calls filter, sort and a synthetic limit call.
// The call list is ordered left to right, in source order of application.
package chain

import (
	"fmt"
	"go/ast"
	"go/token"
)

// Call is a single named call with its arguments.
type Call struct {
	Name      string
	Arguments []ast.Expr
	Pos       token.Pos
}

// MethodCalls is the decomposed call chain. Name is the identifier at the
// start of the chain; it is empty if no root identifier was found, which the
// caller must treat as malformed input.
type MethodCalls struct {
	Name  string
	Calls []Call
	Pos   token.Pos
}

// SyntaxError is a malformed-chain error at a source position. Errors are
// collected across the whole parse rather than aborting on the first one.
type SyntaxError struct {
	Pos token.Position
	Msg string
}

func (e *SyntaxError) Error() string {
	if !e.Pos.IsValid() {
		return e.Msg
	}
	if e.Pos.Line > 1 {
		return fmt.Sprintf("line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
	}
	return fmt.Sprintf("column %d: %s", e.Pos.Column, e.Msg)
}

type parser struct {
	fset *token.FileSet
	errs []*SyntaxError
}

// Parse converts a chained-call expression into a MethodCalls. The receiver
// of each call is visited before the call itself is appended, which guarantees
// the left-to-right ordering of the result. Index and slice operations are
// sugar for a call named "limit"; an index's recorded position is the position
// of the index expression itself, not of the whole operation.
func Parse(fset *token.FileSet, expr ast.Expr) (*MethodCalls, []*SyntaxError) {
	p := &parser{fset: fset}
	calls := &MethodCalls{Pos: expr.Pos()}
	p.addCalls(expr, calls)
	return calls, p.errs
}

func (p *parser) addCalls(expr ast.Expr, calls *MethodCalls) {
	switch e := expr.(type) {
	case *ast.Ident:
		if calls.Name == "" {
			calls.Name = e.Name
		}
	case *ast.CallExpr:
		sel, ok := e.Fun.(*ast.SelectorExpr)
		if !ok {
			p.errorAt(expr)
			return
		}
		p.addCalls(sel.X, calls)
		calls.Calls = append(calls.Calls, Call{
			Name:      sel.Sel.Name,
			Arguments: e.Args,
			Pos:       sel.Sel.Pos(),
		})
	case *ast.IndexExpr:
		p.addCalls(e.X, calls)
		calls.Calls = append(calls.Calls, Call{
			Name:      "limit",
			Arguments: []ast.Expr{e.Index},
			Pos:       e.Index.Pos(),
		})
	case *ast.SliceExpr:
		p.addCalls(e.X, calls)
		calls.Calls = append(calls.Calls, Call{
			Name:      "limit",
			Arguments: []ast.Expr{e},
			Pos:       e.Lbrack,
		})
	default:
		p.errorAt(expr)
	}
}

func (p *parser) errorAt(expr ast.Expr) {
	p.errs = append(p.errs, &SyntaxError{
		Pos: p.fset.Position(expr.Pos()),
		Msg: "expected method call",
	})
}
