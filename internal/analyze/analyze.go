// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package analyze turns an ordered call list into a query AST, resolving
// identifiers against the schema. Like the chain parser it collects semantic
// errors across the whole analysis instead of stopping at the first one.
package analyze

import (
	"fmt"
	"go/ast"
	"go/token"

	"github.com/canonical/sqlchain/internal/chain"
	"github.com/canonical/sqlchain/internal/query"
	"github.com/canonical/sqlchain/schema"
)

// kind is the query variant selected by the calls seen so far.
type kind int

const (
	kindSelect kind = iota
	kindAggregate
	kindCreate
	kindDelete
	kindDrop
	kindInsert
	kindUpdate
)

var kindNames = map[kind]string{
	kindSelect:    "select",
	kindAggregate: "aggregate",
	kindCreate:    "create",
	kindDelete:    "delete",
	kindDrop:      "drop",
	kindInsert:    "insert",
	kindUpdate:    "update",
}

// relationalOps maps Go comparison operators to filter operators.
var relationalOps = map[token.Token]query.RelationalOperator{
	token.EQL: query.Equal,
	token.NEQ: query.NotEqual,
	token.LSS: query.LesserThan,
	token.LEQ: query.LesserThanEqual,
	token.GTR: query.GreaterThan,
	token.GEQ: query.GreaterThanEqual,
}

// logicalOps maps Go logical operators to filter combinators.
var logicalOps = map[token.Token]query.LogicalOperator{
	token.LAND: query.And,
	token.LOR:  query.Or,
}

// assignmentMethods maps the column methods of insert() and update() to
// assignment operators.
var assignmentMethods = map[string]query.AssignmentOperator{
	"set": query.Assign,
	"add": query.AddAssign,
	"sub": query.SubAssign,
	"mul": query.MulAssign,
	"div": query.DivAssign,
	"mod": query.ModAssign,
}

// aggregateFunctions are the aggregate functions aggregate() accepts.
var aggregateFunctions = map[string]bool{
	"avg":   true,
	"count": true,
	"max":   true,
	"min":   true,
	"sum":   true,
}

type analyzer struct {
	fset  *token.FileSet
	sch   *schema.Schema
	table query.Identifier
	errs  []error

	kind        kind
	kindPos     token.Pos
	filter      query.FilterExpression
	aggFilter   query.AggregateFilterExpression
	aggregates  []query.AggregateCall
	groups      []query.Identifier
	joins       []query.Join
	limit       query.Limit
	order       []query.Order
	assignments []query.Assignment
}

// Analyze resolves a call chain against the schema and builds the query AST.
// On any error the query is nil and the full error list is returned.
func Analyze(fset *token.FileSet, calls *chain.MethodCalls, sch *schema.Schema) (query.Query, []error) {
	a := &analyzer{
		fset:      fset,
		sch:       sch,
		table:     calls.Name,
		filter:    query.NoFilters{},
		aggFilter: query.NoAggregateFilters{},
		limit:     query.NoLimit{},
	}

	if _, ok := sch.Table(calls.Name); !ok {
		a.errorf(calls.Pos, "unknown table %q", calls.Name)
		return nil, a.errs
	}
	for _, call := range calls.Calls {
		a.call(call)
	}
	q := a.assemble()
	if len(a.errs) > 0 {
		return nil, a.errs
	}
	return q, nil
}

// errorf records a semantic error prefixed with its source position.
func (a *analyzer) errorf(pos token.Pos, format string, fmtArgs ...any) {
	err := fmt.Errorf(format, fmtArgs...)
	if p := a.fset.Position(pos); p.IsValid() {
		if p.Line > 1 {
			err = fmt.Errorf("line %d, column %d: %w", p.Line, p.Column, err)
		} else {
			err = fmt.Errorf("column %d: %w", p.Column, err)
		}
	}
	a.errs = append(a.errs, err)
}

// setKind switches the query variant, rejecting contradictory chains such as
// insert(...).delete().
func (a *analyzer) setKind(k kind, pos token.Pos) {
	if a.kind != kindSelect && a.kind != k {
		a.errorf(pos, "cannot combine %s() with %s()", kindNames[k], kindNames[a.kind])
		return
	}
	a.kind = k
	a.kindPos = pos
}

func (a *analyzer) call(call chain.Call) {
	switch call.Name {
	case "all":
		a.expectArgs(call, 0)
	case "filter":
		if !a.expectArgs(call, 1) {
			return
		}
		if a.kind == kindAggregate {
			a.addAggregateFilter(a.aggregateFilterExpression(call.Arguments[0]))
		} else {
			a.addFilter(a.filterExpression(call.Arguments[0]))
		}
	case "get":
		a.get(call)
	case "sort":
		for _, arg := range call.Arguments {
			a.sort(arg)
		}
	case "limit":
		if !a.expectArgs(call, 1) {
			return
		}
		a.setLimit(call.Arguments[0])
	case "join":
		for _, arg := range call.Arguments {
			a.join(arg)
		}
	case "insert":
		a.setKind(kindInsert, call.Pos)
		for _, arg := range call.Arguments {
			a.assignment(arg, true)
		}
	case "update":
		a.setKind(kindUpdate, call.Pos)
		for _, arg := range call.Arguments {
			a.assignment(arg, false)
		}
	case "delete":
		a.setKind(kindDelete, call.Pos)
		if len(call.Arguments) > 1 {
			a.errorf(call.Pos, "delete() takes at most one argument")
			return
		}
		if len(call.Arguments) == 1 {
			a.addFilter(a.filterExpression(call.Arguments[0]))
		}
	case "aggregate":
		a.setKind(kindAggregate, call.Pos)
		for _, arg := range call.Arguments {
			if agg, ok := a.aggregateCall(arg); ok {
				a.aggregates = append(a.aggregates, agg)
			}
		}
	case "values":
		if a.kind != kindAggregate {
			a.errorf(call.Pos, "values() requires aggregate()")
			return
		}
		for _, arg := range call.Arguments {
			if name, ok := a.column(arg); ok {
				a.groups = append(a.groups, name)
			}
		}
	case "create":
		a.setKind(kindCreate, call.Pos)
		a.expectArgs(call, 0)
	case "drop":
		a.setKind(kindDrop, call.Pos)
		a.expectArgs(call, 0)
	default:
		a.errorf(call.Pos, "unknown method %q", call.Name)
	}
}

func (a *analyzer) expectArgs(call chain.Call, n int) bool {
	if len(call.Arguments) != n {
		a.errorf(call.Pos, "%s() takes %d argument(s), got %d", call.Name, n, len(call.Arguments))
		return false
	}
	return true
}

// addFilter merges a new filter tree into the current one; a second filter()
// call narrows the first.
func (a *analyzer) addFilter(f query.FilterExpression) {
	if _, ok := a.filter.(query.NoFilters); ok {
		a.filter = f
		return
	}
	a.filter = &query.Filters{Operand1: a.filter, Operator: query.And, Operand2: f}
}

func (a *analyzer) addAggregateFilter(f query.AggregateFilterExpression) {
	if _, ok := a.aggFilter.(query.NoAggregateFilters); ok {
		a.aggFilter = f
		return
	}
	a.aggFilter = &query.AggregateFilters{Operand1: a.aggFilter, Operator: query.And, Operand2: f}
}

// get selects a single row. With no argument it is sugar for [0]; with a
// comparison argument it is sugar for filter(...)[0]; any other argument is
// compared for equality against the table's primary key.
func (a *analyzer) get(call chain.Call) {
	switch len(call.Arguments) {
	case 0:
		a.limit = &query.Index{Value: zeroLit(call.Pos)}
	case 1:
		arg := call.Arguments[0]
		if isFilterShaped(arg) {
			a.addFilter(a.filterExpression(arg))
			a.limit = &query.Index{Value: zeroLit(call.Pos)}
			return
		}
		a.addFilter(&query.Filter{
			Operand1: &query.PrimaryKey{Table: a.table},
			Operator: query.Equal,
			Operand2: arg,
		})
	default:
		a.errorf(call.Pos, "get() takes at most one argument")
	}
}

// isFilterShaped reports whether the expression reads as a condition rather
// than a primary key value.
func isFilterShaped(e ast.Expr) bool {
	switch e := e.(type) {
	case *ast.BinaryExpr:
		_, rel := relationalOps[e.Op]
		_, log := logicalOps[e.Op]
		return rel || log
	case *ast.UnaryExpr:
		return e.Op == token.NOT
	case *ast.ParenExpr:
		return isFilterShaped(e.X)
	}
	return false
}

// zeroLit builds the literal index 0 used by get().
func zeroLit(pos token.Pos) query.Expression {
	return &ast.BasicLit{Kind: token.INT, Value: "0", ValuePos: pos}
}

func (a *analyzer) sort(arg ast.Expr) {
	switch e := arg.(type) {
	case *ast.Ident:
		if name, ok := a.column(e); ok {
			a.order = append(a.order, query.Order{Column: name})
		}
	case *ast.UnaryExpr:
		if ident, ok := e.X.(*ast.Ident); ok && e.Op == token.SUB {
			if name, ok := a.column(ident); ok {
				a.order = append(a.order, query.Order{Column: name, Desc: true})
			}
			return
		}
		a.errorf(arg.Pos(), "expected column or -column in sort()")
	default:
		a.errorf(arg.Pos(), "expected column or -column in sort()")
	}
}

// setLimit converts a limit argument into a Limit. The chain parser hands a
// slice expression through untouched so that its bounds can be inspected here.
func (a *analyzer) setLimit(arg ast.Expr) {
	if s, ok := arg.(*ast.SliceExpr); ok {
		switch {
		case s.Low != nil && s.High != nil:
			a.limit = &query.Range{Start: s.Low, End: s.High}
		case s.Low != nil:
			a.limit = &query.StartRange{Start: s.Low}
		case s.High != nil:
			a.limit = &query.EndRange{End: s.High}
		default:
			a.errorf(s.Lbrack, "missing range bounds")
		}
		return
	}
	a.limit = &query.Index{Value: arg}
}

func (a *analyzer) join(arg ast.Expr) {
	ident, ok := arg.(*ast.Ident)
	if !ok {
		a.errorf(arg.Pos(), "expected column in join()")
		return
	}
	field, ok := a.sch.Field(a.table, ident.Name)
	if !ok {
		a.errorf(arg.Pos(), "table %q has no column %q", a.table, ident.Name)
		return
	}
	if field.RefTable == "" {
		a.errorf(arg.Pos(), "column %q of table %q is not a relation", ident.Name, a.table)
		return
	}
	a.joins = append(a.joins, query.Join{
		BaseTable:   a.table,
		BaseField:   ident.Name,
		JoinedTable: field.RefTable,
		JoinedField: field.RefField,
	})
}

// assignment converts a column method call such as age.set(42) or age.add(1)
// into an Assignment. Insertions only accept set().
func (a *analyzer) assignment(arg ast.Expr, insert bool) {
	call, ok := arg.(*ast.CallExpr)
	if ok {
		if sel, ok := call.Fun.(*ast.SelectorExpr); ok {
			ident, ok := sel.X.(*ast.Ident)
			if !ok {
				a.errorf(sel.X.Pos(), "expected column receiver in assignment")
				return
			}
			op, ok := assignmentMethods[sel.Sel.Name]
			if !ok {
				a.errorf(sel.Sel.Pos(), "unknown assignment method %q", sel.Sel.Name)
				return
			}
			if insert && op != query.Assign {
				a.errorf(sel.Sel.Pos(), "insert() only accepts set()")
				return
			}
			if len(call.Args) != 1 {
				a.errorf(call.Pos(), "%s() takes one argument", sel.Sel.Name)
				return
			}
			name, ok := a.column(ident)
			if !ok {
				return
			}
			a.assignments = append(a.assignments, query.Assignment{
				Column:   name,
				Operator: op,
				Value:    call.Args[0],
			})
			return
		}
	}
	a.errorf(arg.Pos(), "expected column assignment such as age.set(42)")
}

// column resolves an identifier to a column of the current table.
func (a *analyzer) column(arg ast.Expr) (query.Identifier, bool) {
	ident, ok := arg.(*ast.Ident)
	if !ok {
		a.errorf(arg.Pos(), "expected column identifier")
		return "", false
	}
	if _, ok := a.sch.Field(a.table, ident.Name); !ok {
		a.errorf(arg.Pos(), "table %q has no column %q", a.table, ident.Name)
		return "", false
	}
	return ident.Name, true
}

func (a *analyzer) filterExpression(e ast.Expr) query.FilterExpression {
	switch e := e.(type) {
	case *ast.BinaryExpr:
		if op, ok := logicalOps[e.Op]; ok {
			return &query.Filters{
				Operand1: a.filterExpression(e.X),
				Operator: op,
				Operand2: a.filterExpression(e.Y),
			}
		}
		if op, ok := relationalOps[e.Op]; ok {
			return &query.Filter{
				Operand1: a.filterValue(e.X),
				Operator: op,
				Operand2: e.Y,
			}
		}
		a.errorf(e.OpPos, "unsupported operator %s in filter", e.Op)
	case *ast.UnaryExpr:
		if e.Op == token.NOT {
			return &query.NegFilter{Filter: a.filterExpression(e.X)}
		}
		a.errorf(e.OpPos, "unsupported operator %s in filter", e.Op)
	case *ast.ParenExpr:
		return &query.ParenFilter{Filter: a.filterExpression(e.X)}
	case *ast.Ident, *ast.CallExpr:
		return &query.ValueFilter{Value: a.filterValue(e), Pos: e.Pos()}
	default:
		a.errorf(e.Pos(), "expected filter expression")
	}
	return query.NoFilters{}
}

// filterValue resolves the left operand of a comparison: a column reference
// or a predicate method call on a column.
func (a *analyzer) filterValue(e ast.Expr) query.FilterValue {
	switch e := e.(type) {
	case *ast.Ident:
		if name, ok := a.column(e); ok {
			return &query.Column{Table: a.table, Name: name}
		}
	case *ast.CallExpr:
		sel, ok := e.Fun.(*ast.SelectorExpr)
		if !ok {
			a.errorf(e.Pos(), "expected predicate method call on a column")
			break
		}
		ident, ok := sel.X.(*ast.Ident)
		if !ok {
			a.errorf(sel.X.Pos(), "expected column receiver")
			break
		}
		if !query.PredicateMethods[sel.Sel.Name] {
			a.errorf(sel.Sel.Pos(), "unknown predicate method %q", sel.Sel.Name)
			break
		}
		if len(e.Args) != 1 {
			a.errorf(e.Pos(), "%s() takes one argument", sel.Sel.Name)
			break
		}
		name, ok := a.column(ident)
		if !ok {
			break
		}
		return &query.MethodCall{
			Receiver:  query.Column{Table: a.table, Name: name},
			Name:      sel.Sel.Name,
			Arguments: e.Args,
		}
	default:
		a.errorf(e.Pos(), "expected column or predicate")
	}
	return query.NoValue{}
}

func (a *analyzer) aggregateFilterExpression(e ast.Expr) query.AggregateFilterExpression {
	switch e := e.(type) {
	case *ast.BinaryExpr:
		if op, ok := logicalOps[e.Op]; ok {
			return &query.AggregateFilters{
				Operand1: a.aggregateFilterExpression(e.X),
				Operator: op,
				Operand2: a.aggregateFilterExpression(e.Y),
			}
		}
		if op, ok := relationalOps[e.Op]; ok {
			agg, _ := a.aggregateRef(e.X)
			return &query.AggregateFilter{
				Operand1: agg,
				Operator: op,
				Operand2: e.Y,
			}
		}
		a.errorf(e.OpPos, "unsupported operator %s in aggregate filter", e.Op)
	case *ast.UnaryExpr:
		if e.Op == token.NOT {
			return &query.NegAggregateFilter{Filter: a.aggregateFilterExpression(e.X)}
		}
		a.errorf(e.OpPos, "unsupported operator %s in aggregate filter", e.Op)
	case *ast.ParenExpr:
		return &query.ParenAggregateFilter{Filter: a.aggregateFilterExpression(e.X)}
	case *ast.Ident, *ast.CallExpr:
		if agg, ok := a.aggregateRef(e); ok {
			return &query.AggregateValueFilter{Value: agg, Pos: e.Pos()}
		}
	default:
		a.errorf(e.Pos(), "expected aggregate filter expression")
	}
	return query.NoAggregateFilters{}
}

// aggregateRef resolves a reference to an aggregate declared by aggregate():
// either the same function call, e.g. avg(age), or its result name.
func (a *analyzer) aggregateRef(e ast.Expr) (query.AggregateCall, bool) {
	switch e := e.(type) {
	case *ast.Ident:
		for _, agg := range a.aggregates {
			if agg.ResultName == e.Name {
				return agg, true
			}
		}
		a.errorf(e.Pos(), "unknown aggregate %q", e.Name)
	case *ast.CallExpr:
		if agg, ok := a.aggregateCall(e); ok {
			for _, declared := range a.aggregates {
				if declared.Field == agg.Field && declared.Function == agg.Function {
					return declared, true
				}
			}
			a.errorf(e.Pos(), "aggregate %s(%s) not declared in aggregate()", agg.Function, agg.Field)
		}
	default:
		a.errorf(e.Pos(), "expected aggregate reference")
	}
	return query.AggregateCall{}, false
}

// aggregateCall converts a call such as avg(age) into an aggregate
// descriptor. The result name defaults to field_function, giving HAVING
// clauses a stable handle.
func (a *analyzer) aggregateCall(e ast.Expr) (query.AggregateCall, bool) {
	call, ok := e.(*ast.CallExpr)
	if !ok {
		a.errorf(e.Pos(), "expected aggregate function call such as avg(age)")
		return query.AggregateCall{}, false
	}
	fn, ok := call.Fun.(*ast.Ident)
	if !ok || !aggregateFunctions[fn.Name] {
		a.errorf(call.Fun.Pos(), "unknown aggregate function")
		return query.AggregateCall{}, false
	}
	if len(call.Args) != 1 {
		a.errorf(call.Pos(), "%s() takes one argument", fn.Name)
		return query.AggregateCall{}, false
	}
	name, ok := a.column(call.Args[0])
	if !ok {
		return query.AggregateCall{}, false
	}
	return query.AggregateCall{
		Field:      name,
		Function:   fn.Name,
		ResultName: fmt.Sprintf("%s_%s", name, fn.Name),
	}, true
}

func (a *analyzer) assemble() query.Query {
	switch a.kind {
	case kindSelect:
		return &query.Select{
			TableName: a.table,
			Filter:    a.filter,
			Joins:     a.joins,
			Limit:     a.limit,
			Order:     a.order,
		}
	case kindAggregate:
		return &query.Aggregate{
			TableName:       a.table,
			Aggregates:      a.aggregates,
			AggregateFilter: a.aggFilter,
			Filter:          a.filter,
			Groups:          a.groups,
			Joins:           a.joins,
		}
	case kindInsert:
		if len(a.assignments) == 0 {
			a.errorf(a.kindPos, "insert() requires at least one assignment")
		}
		return &query.Insert{TableName: a.table, Assignments: a.assignments}
	case kindUpdate:
		if len(a.assignments) == 0 {
			a.errorf(a.kindPos, "update() requires at least one assignment")
		}
		return &query.Update{TableName: a.table, Assignments: a.assignments, Filter: a.filter}
	case kindDelete:
		return &query.Delete{TableName: a.table, Filter: a.filter}
	case kindCreate:
		return &query.CreateTable{TableName: a.table, Fields: a.typedFields()}
	case kindDrop:
		return &query.Drop{TableName: a.table}
	}
	panic(fmt.Sprintf("internal error: unknown query kind %d", a.kind))
}

// typedFields spells out the column declarations of a CreateTable from the
// schema, in declaration order.
func (a *analyzer) typedFields() []query.TypedField {
	table, ok := a.sch.Table(a.table)
	if !ok {
		panic(fmt.Sprintf("internal error: no schema entry for table %s", a.table))
	}
	var fields []query.TypedField
	for _, f := range table.Fields() {
		typ := f.Type.Name
		if f.Type.Serial {
			typ = "INTEGER PRIMARY KEY AUTOINCREMENT"
		}
		if f.RefTable != "" {
			typ = fmt.Sprintf("%s REFERENCES %s(%s)", typ, f.RefTable, f.RefField)
		}
		fields = append(fields, query.TypedField{Name: f.Name, Type: typ})
	}
	return fields
}
