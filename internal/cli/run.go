// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/canonical/sqlchain"
)

func newRunCommand() *cobra.Command {
	var dbPath string
	var paramFlags []string

	cmd := &cobra.Command{
		Use:   "run <expression>",
		Short: "Compile an expression and run it on an SQLite database",
		Example: `  # Query a database
  sqlchain run --db people.db 'Person.filter(age > min_age)' --param min_age=18

  # Create the declared tables
  sqlchain run --db people.db 'Person.create()'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], dbPath, paramFlags)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database file")
	cmd.Flags().StringArrayVarP(&paramFlags, "param", "p", nil,
		"dynamic parameter value as name=value, repeatable")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func runRun(cmd *cobra.Command, input, dbPath string, paramFlags []string) error {
	sch, err := loadSchema(schemaFlag)
	if err != nil {
		return err
	}
	stmt, err := sqlchain.Prepare(input, sch)
	if err != nil {
		return err
	}
	params, err := parseParams(paramFlags)
	if err != nil {
		return err
	}

	sqldb, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer sqldb.Close()
	db := sqlchain.NewDB(sqldb)

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	switch stmt.Kind() {
	case sqlchain.Exec, sqlchain.InsertOne:
		if err := db.Query(ctx, stmt, params).Run(); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil
	default:
		rows, err := db.Query(ctx, stmt, params).GetAll()
		if err != nil {
			return err
		}
		renderRows(cmd, rows)
		return nil
	}
}

// parseParams turns repeated name=value flags into runtime parameter values.
// Values that read as numbers are passed as numbers, everything else as text.
func parseParams(flags []string) (sqlchain.M, error) {
	params := sqlchain.M{}
	for _, flag := range flags {
		name, value, ok := strings.Cut(flag, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed parameter %q, expected name=value", flag)
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			params[name] = n
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			params[name] = f
		} else {
			params[name] = value
		}
	}
	return params, nil
}

// renderRows prints result rows as a table, columns in name order.
func renderRows(cmd *cobra.Command, rows []sqlchain.M) {
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "(0 rows)")
		return
	}

	cols := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i, col := range cols {
			r[i] = row[col]
		}
		t.AppendRow(r)
	}
	t.Render()
	fmt.Fprintf(out, "(%d rows)\n", len(rows))
}
