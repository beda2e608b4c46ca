// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package query

import "go/token"

// FilterExpression is the recursive WHERE-clause tree. It is one of *Filter,
// *Filters, *NegFilter, *ParenFilter, *ValueFilter or the NoFilters sentinel.
// The tree is built strictly bottom-up and owns its children.
type FilterExpression interface {
	filterExpression()
}

// Filter compares a filter value to an expression.
type Filter struct {
	Operand1 FilterValue
	Operator RelationalOperator
	Operand2 Expression
}

// Filters combines two filter trees with a logical operator.
type Filters struct {
	Operand1 FilterExpression
	Operator LogicalOperator
	Operand2 FilterExpression
}

// NegFilter negates a filter tree.
type NegFilter struct {
	Filter FilterExpression
}

// ParenFilter wraps a filter tree in parentheses.
type ParenFilter struct {
	Filter FilterExpression
}

// NoFilters is the empty filter tree.
type NoFilters struct{}

// ValueFilter is a filter value used standalone as a predicate, e.g. a
// boolean column or a method-call predicate with no comparison.
type ValueFilter struct {
	Value FilterValue
	Pos   token.Pos
}

func (*Filter) filterExpression()      {}
func (*Filters) filterExpression()     {}
func (*NegFilter) filterExpression()   {}
func (*ParenFilter) filterExpression() {}
func (NoFilters) filterExpression()    {}
func (*ValueFilter) filterExpression() {}

// FilterValue is the left operand of a Filter: one of *Column, *MethodCall,
// *PrimaryKey or the NoValue marker. NoValue only exists while the semantic
// analyzer is resolving a value; it must never appear in a completed tree.
type FilterValue interface {
	filterValue()
}

// Column is a reference to a column and its owning table.
type Column struct {
	Table Identifier
	Name  Identifier
}

// MethodCall is a predicate method applied to a column, e.g.
// name.contains("x"). The method is the whole predicate; when it appears as
// the left operand of a Filter the right operand is ignored.
type MethodCall struct {
	Receiver  Column
	Name      Identifier
	Arguments []Expression
}

// PrimaryKey refers to the primary key column of a table without naming it.
type PrimaryKey struct {
	Table Identifier
}

// NoValue marks a filter value that failed to resolve.
type NoValue struct{}

func (*Column) filterValue()     {}
func (*MethodCall) filterValue() {}
func (*PrimaryKey) filterValue() {}
func (NoValue) filterValue()     {}

// PredicateMethods are the method-call predicates the compiler understands.
// The analyzer validates against this set; the SQL generator renders each of
// them.
var PredicateMethods = map[Identifier]bool{
	"contains":    true,
	"ends_with":   true,
	"like":        true,
	"starts_with": true,
}

// AggregateFilterExpression is the HAVING-clause analogue of
// FilterExpression: structurally identical, but its leaves compare aggregate
// descriptors instead of filter values.
type AggregateFilterExpression interface {
	aggregateFilterExpression()
}

// AggregateFilter compares an aggregate result to an expression.
type AggregateFilter struct {
	Operand1 AggregateCall
	Operator RelationalOperator
	Operand2 Expression
}

// AggregateFilters combines two aggregate filter trees with a logical
// operator.
type AggregateFilters struct {
	Operand1 AggregateFilterExpression
	Operator LogicalOperator
	Operand2 AggregateFilterExpression
}

// NegAggregateFilter negates an aggregate filter tree.
type NegAggregateFilter struct {
	Filter AggregateFilterExpression
}

// ParenAggregateFilter wraps an aggregate filter tree in parentheses.
type ParenAggregateFilter struct {
	Filter AggregateFilterExpression
}

// NoAggregateFilters is the empty aggregate filter tree.
type NoAggregateFilters struct{}

// AggregateValueFilter is an aggregate descriptor used standalone.
type AggregateValueFilter struct {
	Value AggregateCall
	Pos   token.Pos
}

func (*AggregateFilter) aggregateFilterExpression()      {}
func (*AggregateFilters) aggregateFilterExpression()     {}
func (*NegAggregateFilter) aggregateFilterExpression()   {}
func (*ParenAggregateFilter) aggregateFilterExpression() {}
func (NoAggregateFilters) aggregateFilterExpression()    {}
func (*AggregateValueFilter) aggregateFilterExpression() {}

// RelationalOperator compares a filter value to an expression.
type RelationalOperator int

const (
	Equal RelationalOperator = iota
	NotEqual
	LesserThan
	LesserThanEqual
	GreaterThan
	GreaterThanEqual
)

func (op RelationalOperator) String() string {
	switch op {
	case Equal:
		return "="
	case NotEqual:
		return "<>"
	case LesserThan:
		return "<"
	case LesserThanEqual:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanEqual:
		return ">="
	}
	return "<unknown>"
}

// LogicalOperator combines filter trees.
type LogicalOperator int

const (
	And LogicalOperator = iota
	Or
	Not
)

func (op LogicalOperator) String() string {
	switch op {
	case And:
		return "AND"
	case Or:
		return "OR"
	case Not:
		return "NOT"
	}
	return "<unknown>"
}
