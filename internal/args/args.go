// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package args splits every value-bearing node of a query into dynamic
// arguments, which must be bound as runtime parameters, and literal arguments,
// which are safe to inline as constant SQL text. The traversal order is fixed
// and deterministic; it is what assigns positional parameter numbers in the
// generated SQL, so it must be stable across runs.
package args

import (
	"fmt"

	"github.com/canonical/sqlchain/internal/query"
)

// Arg is one extracted argument: the host expression and, when it originates
// from a column comparison or an assignment, the column name and owning table.
type Arg struct {
	Expr query.Expression
	// Field is the originating column name, if any.
	Field string
	// Prefix is the owning table of the field, if any.
	Prefix string
}

// Extract walks a completed query and returns its dynamic and literal
// arguments in traversal order: filters before aggregate filters for
// Aggregate, assignments in declaration order for Insert, filters before the
// limit for Select, assignments before filters for Update, filters only for
// Delete, and nothing for CreateTable and Drop.
func Extract(q query.Query) (dynamic, literal []Arg) {
	var ex extractor
	switch q := q.(type) {
	case *query.Aggregate:
		ex.filter(q.Filter)
		ex.aggregateFilter(q.AggregateFilter)
	case *query.CreateTable, *query.Drop:
		// No arguments.
	case *query.Delete:
		ex.filter(q.Filter)
	case *query.Insert:
		ex.assignments(q.Assignments)
	case *query.Select:
		ex.filter(q.Filter)
		ex.limit(q.Limit)
	case *query.Update:
		ex.assignments(q.Assignments)
		ex.filter(q.Filter)
	default:
		panic(fmt.Sprintf("internal error: unknown query variant %T", q))
	}
	return ex.dynamic, ex.literal
}

type extractor struct {
	dynamic []Arg
	literal []Arg
}

// add appends the argument to the literal list if its expression is a
// constant literal token, and to the dynamic list otherwise.
func (ex *extractor) add(arg Arg) {
	if query.IsLiteral(arg.Expr) {
		ex.literal = append(ex.literal, arg)
		return
	}
	ex.dynamic = append(ex.dynamic, arg)
}

func (ex *extractor) assignments(assignments []query.Assignment) {
	for _, assign := range assignments {
		ex.add(Arg{Expr: assign.Value, Field: assign.Column})
	}
}

func (ex *extractor) filter(f query.FilterExpression) {
	switch f := f.(type) {
	case *query.Filter:
		ex.filterValue(f.Operand1, f.Operand2)
	case *query.Filters:
		ex.filter(f.Operand1)
		ex.filter(f.Operand2)
	case *query.NegFilter:
		ex.filter(f.Filter)
	case *query.ParenFilter:
		ex.filter(f.Filter)
	case query.NoFilters:
		// Nothing to add.
	case *query.ValueFilter:
		ex.filterValue(f.Value, nil)
	default:
		panic(fmt.Sprintf("internal error: unknown filter expression %T", f))
	}
}

// filterValue emits the arguments of a filter leaf. A column comparison emits
// operand2 tagged with the column and its table; a primary key comparison
// emits operand2 tagged with the table only; a method-call predicate emits one
// argument per call argument and ignores operand2 entirely. A standalone
// column (operand2 nil) is a boolean predicate and emits nothing.
func (ex *extractor) filterValue(value query.FilterValue, operand2 query.Expression) {
	switch value := value.(type) {
	case *query.Column:
		if operand2 != nil {
			ex.add(Arg{Expr: operand2, Field: value.Name, Prefix: value.Table})
		}
	case *query.MethodCall:
		for _, arg := range value.Arguments {
			ex.add(Arg{Expr: arg})
		}
	case *query.PrimaryKey:
		if operand2 != nil {
			ex.add(Arg{Expr: operand2, Prefix: value.Table})
		}
	case query.NoValue:
		panic("internal error: NoValue operand in argument extraction")
	default:
		panic(fmt.Sprintf("internal error: unknown filter value %T", value))
	}
}

func (ex *extractor) aggregateFilter(f query.AggregateFilterExpression) {
	switch f := f.(type) {
	case *query.AggregateFilter:
		// The aggregate descriptor itself never contributes arguments.
		if f.Operand2 != nil {
			ex.add(Arg{Expr: f.Operand2})
		}
	case *query.AggregateFilters:
		ex.aggregateFilter(f.Operand1)
		ex.aggregateFilter(f.Operand2)
	case *query.NegAggregateFilter:
		ex.aggregateFilter(f.Filter)
	case *query.ParenAggregateFilter:
		ex.aggregateFilter(f.Filter)
	case query.NoAggregateFilters:
		// Nothing to add.
	case *query.AggregateValueFilter:
		// Nothing to add.
	default:
		panic(fmt.Sprintf("internal error: unknown aggregate filter expression %T", f))
	}
}

// limit emits the bound expressions of a limit clause. A Range emits exactly
// two arguments: first the synthesized end - start row count, then the start
// offset. The synthesized count is a fresh expression, so it is never
// literal-eligible. LimitOffset only appears after desugaring and its bounds
// were already emitted from the Range it came from.
func (ex *extractor) limit(l query.Limit) {
	switch l := l.(type) {
	case query.NoLimit:
	case *query.Index:
		ex.add(Arg{Expr: l.Value})
	case *query.StartRange:
		ex.add(Arg{Expr: l.Start})
	case *query.EndRange:
		ex.add(Arg{Expr: l.End})
	case *query.Range:
		ex.add(Arg{Expr: query.SubtractExpr(l.End, l.Start)})
		ex.add(Arg{Expr: l.Start})
	case *query.LimitOffset:
	default:
		panic(fmt.Sprintf("internal error: unknown limit %T", l))
	}
}
