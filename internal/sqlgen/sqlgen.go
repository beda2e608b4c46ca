// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package sqlgen renders a query AST to a parameterized SQL statement.
// Literal arguments are inlined as constant text; every other value becomes a
// ? placeholder. The clauses are rendered in the same order the argument
// extractor walks them, so placeholder positions line up with the dynamic
// argument list.
package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/canonical/sqlchain/internal/query"
	"github.com/canonical/sqlchain/schema"
)

// Generate renders the query as a single SQL statement.
func Generate(q query.Query, sch *schema.Schema) string {
	g := &generator{sch: sch}
	switch q := q.(type) {
	case *query.Aggregate:
		return g.aggregate(q)
	case *query.CreateTable:
		return g.createTable(q)
	case *query.Delete:
		return g.delete(q)
	case *query.Drop:
		return fmt.Sprintf("DROP TABLE %s", q.TableName)
	case *query.Insert:
		return g.insert(q)
	case *query.Select:
		return g.selectQuery(q)
	case *query.Update:
		return g.update(q)
	}
	panic(fmt.Sprintf("internal error: unknown query variant %T", q))
}

type generator struct {
	sch *schema.Schema
}

func (g *generator) selectQuery(q *query.Select) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(g.selectColumns(q), ", "), q.TableName)
	g.joins(&b, q.Joins)
	g.where(&b, q.Filter)
	if len(q.Order) > 0 {
		terms := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			if o.Desc {
				terms = append(terms, o.Column+" DESC")
			} else {
				terms = append(terms, o.Column)
			}
		}
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(terms, ", "))
	}
	if limit := g.limitClause(q.Limit); limit != "" {
		b.WriteString(" ")
		b.WriteString(limit)
	}
	return b.String()
}

// selectColumns spells out the projected columns. With no explicit field list
// every schema column is selected, in declaration order; with joins the
// columns are qualified to stay unambiguous.
func (g *generator) selectColumns(q *query.Select) []string {
	names := q.Fields
	if len(names) == 0 {
		table, ok := g.sch.Table(q.TableName)
		if !ok {
			panic(fmt.Sprintf("internal error: no schema entry for table %s", q.TableName))
		}
		for _, f := range table.Fields() {
			names = append(names, f.Name)
		}
	}
	if len(q.Joins) == 0 {
		return names
	}
	qualified := make([]string, 0, len(names))
	for _, name := range names {
		qualified = append(qualified, q.TableName+"."+name)
	}
	return qualified
}

func (g *generator) aggregate(q *query.Aggregate) string {
	var b strings.Builder
	results := make([]string, 0, len(q.Aggregates))
	for _, agg := range q.Aggregates {
		results = append(results, g.aggregateResult(agg, true))
	}
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(results, ", "), q.TableName)
	g.joins(&b, q.Joins)
	g.where(&b, q.Filter)
	if len(q.Groups) > 0 {
		fmt.Fprintf(&b, " GROUP BY %s", strings.Join(q.Groups, ", "))
	}
	if having := g.aggregateFilterExpression(q.AggregateFilter); having != "" {
		fmt.Fprintf(&b, " HAVING %s", having)
	}
	return b.String()
}

// aggregateResult renders an aggregate descriptor, with its alias when used
// in the projection list.
func (g *generator) aggregateResult(agg query.AggregateCall, aliased bool) string {
	s := fmt.Sprintf("%s(%s)", strings.ToUpper(agg.Function), agg.Field)
	if aliased && agg.ResultName != "" {
		s += " AS " + agg.ResultName
	}
	return s
}

func (g *generator) createTable(q *query.CreateTable) string {
	fields := make([]string, 0, len(q.Fields))
	for _, f := range q.Fields {
		fields = append(fields, f.Name+" "+f.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", q.TableName, strings.Join(fields, ", "))
}

func (g *generator) delete(q *query.Delete) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s", q.TableName)
	g.where(&b, q.Filter)
	return b.String()
}

func (g *generator) insert(q *query.Insert) string {
	columns := make([]string, 0, len(q.Assignments))
	values := make([]string, 0, len(q.Assignments))
	for _, assign := range q.Assignments {
		columns = append(columns, assign.Column)
		values = append(values, g.value(assign.Value))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		q.TableName, strings.Join(columns, ", "), strings.Join(values, ", "))
}

func (g *generator) update(q *query.Update) string {
	var b strings.Builder
	sets := make([]string, 0, len(q.Assignments))
	for _, assign := range q.Assignments {
		sets = append(sets, g.assignment(assign))
	}
	fmt.Fprintf(&b, "UPDATE %s SET %s", q.TableName, strings.Join(sets, ", "))
	g.where(&b, q.Filter)
	return b.String()
}

// assignment renders one SET term; the compound operators expand to the
// column combined with itself.
func (g *generator) assignment(assign query.Assignment) string {
	v := g.value(assign.Value)
	switch assign.Operator {
	case query.Assign:
		return fmt.Sprintf("%s = %s", assign.Column, v)
	case query.AddAssign:
		return fmt.Sprintf("%s = %s + %s", assign.Column, assign.Column, v)
	case query.SubAssign:
		return fmt.Sprintf("%s = %s - %s", assign.Column, assign.Column, v)
	case query.MulAssign:
		return fmt.Sprintf("%s = %s * %s", assign.Column, assign.Column, v)
	case query.DivAssign:
		return fmt.Sprintf("%s = %s / %s", assign.Column, assign.Column, v)
	case query.ModAssign:
		return fmt.Sprintf("%s = %s %% %s", assign.Column, assign.Column, v)
	}
	panic(fmt.Sprintf("internal error: unknown assignment operator %d", assign.Operator))
}

func (g *generator) joins(b *strings.Builder, joins []query.Join) {
	for _, j := range joins {
		fmt.Fprintf(b, " INNER JOIN %s ON %s.%s = %s.%s",
			j.JoinedTable, j.BaseTable, j.BaseField, j.JoinedTable, j.JoinedField)
	}
}

func (g *generator) where(b *strings.Builder, f query.FilterExpression) {
	if clause := g.filterExpression(f); clause != "" {
		fmt.Fprintf(b, " WHERE %s", clause)
	}
}

func (g *generator) filterExpression(f query.FilterExpression) string {
	switch f := f.(type) {
	case query.NoFilters:
		return ""
	case *query.Filter:
		// A method-call predicate is the whole condition; the right operand
		// is ignored, matching argument extraction.
		if mc, ok := f.Operand1.(*query.MethodCall); ok {
			return g.methodCall(mc)
		}
		return fmt.Sprintf("%s %s %s", g.filterValue(f.Operand1), f.Operator, g.value(f.Operand2))
	case *query.Filters:
		return fmt.Sprintf("%s %s %s",
			g.filterExpression(f.Operand1), f.Operator, g.filterExpression(f.Operand2))
	case *query.NegFilter:
		return "NOT " + g.filterExpression(f.Filter)
	case *query.ParenFilter:
		return "(" + g.filterExpression(f.Filter) + ")"
	case *query.ValueFilter:
		if mc, ok := f.Value.(*query.MethodCall); ok {
			return g.methodCall(mc)
		}
		return g.filterValue(f.Value)
	}
	panic(fmt.Sprintf("internal error: unknown filter expression %T", f))
}

func (g *generator) filterValue(v query.FilterValue) string {
	switch v := v.(type) {
	case *query.Column:
		return v.Name
	case *query.PrimaryKey:
		table, ok := g.sch.Table(v.Table)
		if !ok || table.PrimaryKey() == "" {
			panic(fmt.Sprintf("internal error: no primary key for table %s", v.Table))
		}
		return table.PrimaryKey()
	case query.NoValue:
		panic("internal error: NoValue operand in SQL generation")
	}
	panic(fmt.Sprintf("internal error: unknown filter value %T", v))
}

func (g *generator) methodCall(mc *query.MethodCall) string {
	col := mc.Receiver.Name
	arg := g.value(mc.Arguments[0])
	switch mc.Name {
	case "contains":
		return col + " LIKE '%' || " + arg + " || '%'"
	case "starts_with":
		return col + " LIKE " + arg + " || '%'"
	case "ends_with":
		return col + " LIKE '%' || " + arg
	case "like":
		return col + " LIKE " + arg
	}
	panic(fmt.Sprintf("internal error: unknown predicate method %q", mc.Name))
}

func (g *generator) aggregateFilterExpression(f query.AggregateFilterExpression) string {
	switch f := f.(type) {
	case query.NoAggregateFilters:
		return ""
	case *query.AggregateFilter:
		return fmt.Sprintf("%s %s %s",
			g.aggregateResult(f.Operand1, false), f.Operator, g.value(f.Operand2))
	case *query.AggregateFilters:
		return fmt.Sprintf("%s %s %s",
			g.aggregateFilterExpression(f.Operand1), f.Operator, g.aggregateFilterExpression(f.Operand2))
	case *query.NegAggregateFilter:
		return "NOT " + g.aggregateFilterExpression(f.Filter)
	case *query.ParenAggregateFilter:
		return "(" + g.aggregateFilterExpression(f.Filter) + ")"
	case *query.AggregateValueFilter:
		return g.aggregateResult(f.Value, false)
	}
	panic(fmt.Sprintf("internal error: unknown aggregate filter expression %T", f))
}

// limitClause renders the limit, desugaring a Range into its LimitOffset form
// first. An index selects a single row at an offset; an open-ended start
// range uses SQLite's LIMIT -1.
func (g *generator) limitClause(l query.Limit) string {
	switch l := query.DesugarLimit(l).(type) {
	case query.NoLimit:
		return ""
	case *query.Index:
		return "LIMIT 1 OFFSET " + g.value(l.Value)
	case *query.StartRange:
		return "LIMIT -1 OFFSET " + g.value(l.Start)
	case *query.EndRange:
		return "LIMIT " + g.value(l.End)
	case *query.LimitOffset:
		return "LIMIT " + g.value(l.Length) + " OFFSET " + g.value(l.Offset)
	}
	panic(fmt.Sprintf("internal error: unknown limit %T", l))
}

// value renders an expression as inline constant text when it is a literal
// and as a placeholder otherwise.
func (g *generator) value(e query.Expression) string {
	if !query.IsLiteral(e) {
		return "?"
	}
	return literalSQL(e)
}

// literalSQL converts a Go literal token to SQL constant syntax.
func literalSQL(e query.Expression) string {
	src := query.ExprString(e)
	switch {
	case src == "true":
		return "1"
	case src == "false":
		return "0"
	case len(src) > 0 && (src[0] == '"' || src[0] == '`' || src[0] == '\''):
		s, err := strconv.Unquote(src)
		if err != nil {
			panic(fmt.Sprintf("internal error: cannot unquote literal %s", src))
		}
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return src
}
