// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlchain

import (
	"context"
	"database/sql"
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/canonical/sqlchain/internal/analyze"
	"github.com/canonical/sqlchain/internal/args"
	"github.com/canonical/sqlchain/internal/chain"
	"github.com/canonical/sqlchain/internal/query"
	"github.com/canonical/sqlchain/internal/sqlgen"
	"github.com/canonical/sqlchain/schema"
)

// M is a convenience type used to pass runtime values for the dynamic
// parameters of a statement, keyed by the source text of the parameter
// expression.
//
// Example:
//
//	stmt := sqlchain.MustPrepare("Person.filter(age > min_age)", sch)
//	err := db.Query(ctx, stmt, sqlchain.M{"min_age": 18}).Run()
type M map[string]any

var ErrNoRows = sql.ErrNoRows

// Kind classifies the result shape of a statement: no rows, zero or one row,
// or many rows. The accessor generator uses it to pick return shapes.
type Kind int

const (
	AggregateMulti Kind = iota
	AggregateOne
	Exec
	InsertOne
	SelectMulti
	SelectOne
)

func (k Kind) String() string {
	switch k {
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
	return "unknown"
}

// Param is one extracted argument of a compiled statement.
type Param struct {
	// Expr is the source text of the argument expression. For dynamic
	// parameters it is also the key looked up in M at run time.
	Expr string
	// Field is the originating column, if the argument came from a column
	// comparison or an assignment.
	Field string
	// Table is the owning table of Field, if known.
	Table string
}

// Statement is a compiled query-builder expression ready to be run on a
// database. A Statement can be used with any [DB].
type Statement struct {
	input    string
	sqlText  string
	kind     Kind
	dynamic  []Param
	literals []Param
	// dynamicExprs holds the parsed expression of each dynamic parameter, in
	// the same order as dynamic, so that constant expressions can be computed
	// at bind time.
	dynamicExprs []query.Expression
}

// Prepare compiles a fluent query-builder expression against the schema. The
// expression starts with a table identifier followed by chained method calls,
// for example:
//
//	Person.filter(age > min_age && name.contains("a")).sort(-age)[0:10]
//
// Syntax and semantic errors are collected across the whole expression and
// reported together.
func Prepare(input string, sch *schema.Schema) (*Statement, error) {
	fset := token.NewFileSet()
	expr, err := goparser.ParseExprFrom(fset, "query", []byte(input), 0)
	if err != nil {
		return nil, fmt.Errorf("cannot parse expression: %s", err)
	}

	calls, syntaxErrs := chain.Parse(fset, expr)
	if len(syntaxErrs) > 0 {
		errs := make([]error, len(syntaxErrs))
		for i, e := range syntaxErrs {
			errs[i] = e
		}
		return nil, joinErrors("cannot parse expression", errs)
	}
	if calls.Name == "" {
		return nil, fmt.Errorf("cannot parse expression: no table identifier")
	}

	q, semanticErrs := analyze.Analyze(fset, calls, sch)
	if len(semanticErrs) > 0 {
		return nil, joinErrors("cannot compile expression", semanticErrs)
	}

	dynamic, literals := args.Extract(q)
	exprs := make([]query.Expression, 0, len(dynamic))
	for _, a := range dynamic {
		exprs = append(exprs, a.Expr)
	}
	return &Statement{
		input:        input,
		sqlText:      sqlgen.Generate(q, sch),
		kind:         kindOf(query.TypeOf(q, sch)),
		dynamic:      params(dynamic),
		literals:     params(literals),
		dynamicExprs: exprs,
	}, nil
}

// MustPrepare is the same as [Prepare] except that it panics on error.
func MustPrepare(input string, sch *schema.Schema) *Statement {
	s, err := Prepare(input, sch)
	if err != nil {
		panic(err)
	}
	return s
}

// SQL returns the generated parameterized SQL statement.
func (s *Statement) SQL() string { return s.sqlText }

// Kind returns the result-shape classification of the statement.
func (s *Statement) Kind() Kind { return s.kind }

// Params returns the dynamic parameters in placeholder order.
func (s *Statement) Params() []Param { return append([]Param(nil), s.dynamic...) }

// Literals returns the arguments that were inlined as constant SQL text, in
// extraction order.
func (s *Statement) Literals() []Param { return append([]Param(nil), s.literals...) }

// String returns the expression the statement was compiled from.
func (s *Statement) String() string { return s.input }

func params(extracted []args.Arg) []Param {
	ps := make([]Param, 0, len(extracted))
	for _, a := range extracted {
		ps = append(ps, Param{Expr: query.ExprString(a.Expr), Field: a.Field, Table: a.Prefix})
	}
	return ps
}

func kindOf(t query.QueryType) Kind {
	switch t {
	case query.AggregateMulti:
		return AggregateMulti
	case query.AggregateOne:
		return AggregateOne
	case query.Exec:
		return Exec
	case query.InsertOne:
		return InsertOne
	case query.SelectMulti:
		return SelectMulti
	case query.SelectOne:
		return SelectOne
	}
	panic(fmt.Sprintf("internal error: unknown query type %s", t))
}

func joinErrors(prefix string, errs []error) error {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("%s: %s", prefix, strings.Join(msgs, "; "))
}

// DB wraps a database handle statements are run on.
type DB struct {
	sqldb *sql.DB
}

// NewDB creates a new [DB] from a [sql.DB].
func NewDB(sqldb *sql.DB) *DB {
	if sqldb == nil {
		return nil
	}
	return &DB{sqldb: sqldb}
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB { return db.sqldb }

// Query represents a statement bound to runtime parameter values. It is
// designed to be run once.
type Query struct {
	ctx  context.Context
	db   *DB
	stmt *Statement
	vals []any
	err  error
}

// Query binds the statement's dynamic parameters to values from params, in
// placeholder order. A parameter is looked up by the source text of its
// expression. A parameter built only from constants, such as the row count
// synthesized from a literal range, is computed directly and need not be
// passed. A nil params is accepted when every parameter can be resolved
// without it.
func (db *DB) Query(ctx context.Context, s *Statement, params M) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	q := &Query{ctx: ctx, db: db, stmt: s}
	for i, p := range s.dynamic {
		v, ok := params[p.Expr]
		if !ok {
			v, ok = constValue(s.dynamicExprs[i])
		}
		if !ok {
			q.err = fmt.Errorf("parameter %q missing", p.Expr)
			break
		}
		q.vals = append(q.vals, v)
	}
	return q
}

// constValue evaluates an expression made only of constants. Integer
// arithmetic is enough here: the only synthesized expressions are range row
// counts.
func constValue(e query.Expression) (any, bool) {
	switch e := e.(type) {
	case *ast.BasicLit:
		switch e.Kind {
		case token.INT:
			n, err := strconv.ParseInt(e.Value, 0, 64)
			return n, err == nil
		case token.FLOAT:
			f, err := strconv.ParseFloat(e.Value, 64)
			return f, err == nil
		case token.STRING, token.CHAR:
			s, err := strconv.Unquote(e.Value)
			return s, err == nil
		}
	case *ast.ParenExpr:
		return constValue(e.X)
	case *ast.BinaryExpr:
		x, okx := constValue(e.X)
		y, oky := constValue(e.Y)
		if !okx || !oky {
			return nil, false
		}
		xi, okx := x.(int64)
		yi, oky := y.(int64)
		if !okx || !oky {
			return nil, false
		}
		switch e.Op {
		case token.ADD:
			return xi + yi, true
		case token.SUB:
			return xi - yi, true
		case token.MUL:
			return xi * yi, true
		case token.QUO:
			if yi != 0 {
				return xi / yi, true
			}
		case token.REM:
			if yi != 0 {
				return xi % yi, true
			}
		}
	}
	return nil, false
}

// Run executes the query and discards any results.
func (q *Query) Run() error {
	if q.err != nil {
		return q.err
	}
	_, err := q.db.sqldb.ExecContext(q.ctx, q.stmt.sqlText, q.vals...)
	return err
}

// Get runs the query and decodes its first row into result. It returns
// ErrNoRows if no row matches.
func (q *Query) Get(result M) error {
	if q.err != nil {
		return q.err
	}
	if result == nil {
		return fmt.Errorf("need valid map, got nil")
	}
	if q.stmt.kind == Exec || q.stmt.kind == InsertOne {
		return fmt.Errorf("cannot get results from a %s statement", q.stmt.kind)
	}
	rows, err := q.db.sqldb.QueryContext(q.ctx, q.stmt.sqlText, q.vals...)
	if err != nil {
		return err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return ErrNoRows
	}
	if err := scanRow(rows, cols, result); err != nil {
		return err
	}
	return rows.Close()
}

// GetAll runs the query and decodes every row.
func (q *Query) GetAll() ([]M, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.stmt.kind == Exec || q.stmt.kind == InsertOne {
		return nil, fmt.Errorf("cannot get results from a %s statement", q.stmt.kind)
	}
	rows, err := q.db.sqldb.QueryContext(q.ctx, q.stmt.sqlText, q.vals...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var results []M
	for rows.Next() {
		row := M{}
		if err := scanRow(rows, cols, row); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, rows.Close()
}

// scanRow decodes the current row into a map keyed by column name. Byte
// slices are converted to strings so that TEXT columns decode comparably.
func scanRow(rows *sql.Rows, cols []string, into M) error {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return err
	}
	for i, col := range cols {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		into[col] = v
	}
	return nil
}
