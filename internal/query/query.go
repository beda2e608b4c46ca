// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package query defines the abstract syntax tree a fluent query-builder
// expression is compiled into, along with the derivations the downstream SQL
// generator and accessor generator need: the target table of a query and its
// result-shape classification.
package query

import (
	"fmt"
	"go/ast"
	"go/types"

	"github.com/canonical/sqlchain/schema"
)

// Expression is an opaque host-language expression. The compiler never
// evaluates it; it only distinguishes literal constants from expressions whose
// value is known at execution time.
type Expression = ast.Expr

// Identifier names a table, column or SQL function.
type Identifier = string

// Query is one of *Aggregate, *CreateTable, *Delete, *Drop, *Insert, *Select
// or *Update.
type Query interface {
	// Table returns the identifier of the table the query targets.
	Table() Identifier
	query()
}

// Aggregate computes aggregate functions over the rows of a table, optionally
// grouped and filtered.
type Aggregate struct {
	TableName       Identifier
	Aggregates      []AggregateCall
	AggregateFilter AggregateFilterExpression
	Filter          FilterExpression
	Groups          []Identifier
	Joins           []Join
}

// CreateTable creates the query's table with the given typed fields.
type CreateTable struct {
	TableName Identifier
	Fields    []TypedField
}

// Delete removes the rows matched by the filter.
type Delete struct {
	TableName Identifier
	Filter    FilterExpression
}

// Drop removes the query's table.
type Drop struct {
	TableName Identifier
}

// Insert adds a row built from the assignments.
type Insert struct {
	TableName   Identifier
	Assignments []Assignment
}

// Select returns the rows matched by the filter, joined, ordered and limited
// as requested.
type Select struct {
	TableName Identifier
	Fields    []Identifier
	Filter    FilterExpression
	Joins     []Join
	Limit     Limit
	Order     []Order
}

// Update modifies the rows matched by the filter using the assignments.
type Update struct {
	TableName   Identifier
	Assignments []Assignment
	Filter      FilterExpression
}

func (q *Aggregate) Table() Identifier   { return q.TableName }
func (q *CreateTable) Table() Identifier { return q.TableName }
func (q *Delete) Table() Identifier      { return q.TableName }
func (q *Drop) Table() Identifier        { return q.TableName }
func (q *Insert) Table() Identifier      { return q.TableName }
func (q *Select) Table() Identifier      { return q.TableName }
func (q *Update) Table() Identifier      { return q.TableName }

func (*Aggregate) query()   {}
func (*CreateTable) query() {}
func (*Delete) query()      {}
func (*Drop) query()        {}
func (*Insert) query()      {}
func (*Select) query()      {}
func (*Update) query()      {}

// AggregateCall describes one aggregate function application, e.g. avg(age).
// ResultName, when set, aliases the result column.
type AggregateCall struct {
	Field      Identifier
	Function   Identifier
	ResultName Identifier
}

// Assignment sets, or arithmetically updates, a single column.
type Assignment struct {
	Column   Identifier
	Operator AssignmentOperator
	Value    Expression
}

// AssignmentOperator is the operator of an Assignment.
type AssignmentOperator int

const (
	Assign AssignmentOperator = iota
	AddAssign
	SubAssign
	MulAssign
	DivAssign
	ModAssign
)

func (op AssignmentOperator) String() string {
	switch op {
	case Assign:
		return "="
	case AddAssign:
		return "+="
	case SubAssign:
		return "-="
	case MulAssign:
		return "*="
	case DivAssign:
		return "/="
	case ModAssign:
		return "%="
	}
	panic(fmt.Sprintf("internal error: unknown assignment operator %d", op))
}

// Join joins the base table to another table over a pair of fields.
type Join struct {
	BaseTable   Identifier
	BaseField   Identifier
	JoinedTable Identifier
	JoinedField Identifier
}

// Order is a single ORDER BY term.
type Order struct {
	Column Identifier
	// Desc is set for sort(-column).
	Desc bool
}

// TypedField is a column declaration of a CreateTable query.
type TypedField struct {
	Name Identifier
	Type string
}

// QueryType classifies the result shape of a query: no result, zero-or-one
// row, or many rows.
type QueryType int

const (
	AggregateMulti QueryType = iota
	AggregateOne
	Exec
	InsertOne
	SelectMulti
	SelectOne
)

func (t QueryType) String() string {
	switch t {
	case AggregateMulti:
		return "aggregate multi"
	case AggregateOne:
		return "aggregate one"
	case Exec:
		return "exec"
	case InsertOne:
		return "insert one"
	case SelectMulti:
		return "select multi"
	case SelectOne:
		return "select one"
	}
	panic(fmt.Sprintf("internal error: unknown query type %d", t))
}

// TypeOf derives the QueryType of a query. A Select defaults to SelectMulti
// and is downgraded to SelectOne when its filter is a single comparison
// against the table's auto-increment identity column or its primary key, or
// when its limit is an index. The schema has been validated before this stage,
// so a lookup miss here is an internal fault.
func TypeOf(q Query, sch *schema.Schema) QueryType {
	switch q := q.(type) {
	case *Aggregate:
		if len(q.Groups) > 0 {
			return AggregateMulti
		}
		return AggregateOne
	case *Insert:
		return InsertOne
	case *Select:
		typ := SelectMulti
		if f, ok := q.Filter.(*Filter); ok {
			switch operand := f.Operand1.(type) {
			case *Column:
				field, ok := sch.Field(q.TableName, operand.Name)
				if !ok {
					panic(fmt.Sprintf("internal error: no schema entry for %s.%s", q.TableName, operand.Name))
				}
				if field.Type.Serial {
					typ = SelectOne
				}
			case *PrimaryKey:
				if f.Operator == Equal {
					typ = SelectOne
				}
			}
		}
		if _, ok := q.Limit.(*Index); ok {
			typ = SelectOne
		}
		return typ
	case *CreateTable, *Delete, *Drop, *Update:
		return Exec
	}
	panic(fmt.Sprintf("internal error: unknown query variant %T", q))
}

// IsLiteral reports whether the expression is a constant literal token safe to
// inline as SQL text. Go spells the boolean literals as identifiers, so true
// and false count. Everything else, including arguments of method-call
// predicates, is dynamic.
func IsLiteral(e Expression) bool {
	switch e := e.(type) {
	case *ast.BasicLit:
		return true
	case *ast.Ident:
		return e.Name == "true" || e.Name == "false"
	}
	return false
}

// ExprString renders an expression as source text, for inlining literals and
// for naming dynamic parameters.
func ExprString(e Expression) string {
	return types.ExprString(e)
}
