// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package query

import (
	"go/ast"
	"go/token"
)

// Limit is the row-limiting clause of a Select. It is one of the NoLimit
// sentinel, *Index, *StartRange, *EndRange, *Range or *LimitOffset.
// LimitOffset is never produced by parsing; it only exists as the result of
// desugaring a Range.
type Limit interface {
	limit()
}

// NoLimit means no limit was specified.
type NoLimit struct{}

// Index selects the single row at the given offset, from recv[i].
type Index struct {
	Value Expression
}

// StartRange selects all rows from an offset, from recv[start:].
type StartRange struct {
	Start Expression
}

// EndRange selects the rows before an offset, from recv[:end].
type EndRange struct {
	End Expression
}

// Range selects the rows between two offsets, from recv[start:end].
type Range struct {
	Start Expression
	End   Expression
}

// LimitOffset is the desugared form of Range: a row count and a starting
// offset.
type LimitOffset struct {
	Length Expression
	Offset Expression
}

func (NoLimit) limit()      {}
func (*Index) limit()       {}
func (*StartRange) limit()  {}
func (*EndRange) limit()    {}
func (*Range) limit()       {}
func (*LimitOffset) limit() {}

// DesugarLimit rewrites a Range limit into the LimitOffset form the SQL
// generator renders. The row count is always the freshly synthesized
// expression end - start, even when both bounds are literal constants. Other
// limits are returned unchanged.
func DesugarLimit(l Limit) Limit {
	r, ok := l.(*Range)
	if !ok {
		return l
	}
	return &LimitOffset{Length: SubtractExpr(r.End, r.Start), Offset: r.Start}
}

// SubtractExpr synthesizes the expression end - start. Both bounds are
// guaranteed present once the AST is complete, so a missing one is an
// internal fault.
func SubtractExpr(end, start Expression) Expression {
	if end == nil || start == nil {
		panic("internal error: cannot synthesize range length expression from missing bound")
	}
	return &ast.BinaryExpr{X: end, Op: token.SUB, Y: start}
}
