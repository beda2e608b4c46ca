// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/canonical/sqlchain"
)

func newCompileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <expression>",
		Short: "Compile an expression and print the SQL and its parameters",
		Example: `  # Compile a filtered select
  sqlchain compile --schema schema.yaml 'Person.filter(age > min_age).sort(name)'

  # Compile an insert
  sqlchain compile 'Person.insert(name.set(n), age.set(21))'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args[0])
		},
	}
	return cmd
}

func runCompile(cmd *cobra.Command, input string) error {
	sch, err := loadSchema(schemaFlag)
	if err != nil {
		return err
	}
	stmt, err := sqlchain.Prepare(input, sch)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, stmt.SQL())
	fmt.Fprintf(out, "kind: %s\n", stmt.Kind())

	if params := stmt.Params(); len(params) > 0 {
		fmt.Fprintln(out)
		renderParams(cmd, "dynamic parameters", params)
	}
	if literals := stmt.Literals(); len(literals) > 0 {
		fmt.Fprintln(out)
		renderParams(cmd, "inlined literals", literals)
	}
	return nil
}

// renderParams prints extracted parameters in placeholder order.
func renderParams(cmd *cobra.Command, title string, params []sqlchain.Param) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"#", "expression", "column"})
	for i, p := range params {
		col := ""
		if p.Field != "" {
			col = p.Table + "." + p.Field
		} else if p.Table != "" {
			col = p.Table
		}
		t.AppendRow(table.Row{i + 1, p.Expr, col})
	}
	t.Render()
}
