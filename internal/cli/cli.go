// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package cli implements the sqlchain command line tool: it compiles fluent
// query expressions against a YAML schema and optionally runs them on an
// SQLite database.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var schemaFlag string

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sqlchain",
		Short: "Compile fluent query expressions to SQL",
		Long: `sqlchain compiles fluent, chained query-builder expressions such as

    Person.filter(age > min_age).sort(name)[0:10]

into parameterized SQL statements, using a table schema declared in YAML.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&schemaFlag, "schema", "s", "schema.yaml",
		"path to the YAML schema file")

	rootCmd.AddCommand(newCompileCommand())
	rootCmd.AddCommand(newRunCommand())
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
