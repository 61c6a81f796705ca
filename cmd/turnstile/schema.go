// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/turnstile-gql/turnstile/internal/access"
	"github.com/turnstile-gql/turnstile/internal/graph"
)

// NewSchemaCmd creates the schema command.
func NewSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the GraphQL schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check [FILE]",
		Short: "Load the schema and bind every @canAccess directive",
		Long: `Load the embedded schema, or FILE when given, and bind every @canAccess
directive. Exits non-zero when a directive cannot be bound.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSchemaCheck,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the embedded schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Print(graph.SchemaSource().Input)
			return nil
		},
	})

	return cmd
}

func runSchemaCheck(cmd *cobra.Command, args []string) error {
	source := graph.SchemaSource()
	if len(args) == 1 {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return oops.Code(access.CodeConfiguration).With("path", args[0]).Wrapf(err, "read schema")
		}
		source = &ast.Source{Name: args[0], Input: string(raw)}
	}

	schema, err := graph.LoadSchema(source)
	if err != nil {
		return err
	}
	bindings, err := graph.Bind(schema)
	if err != nil {
		return err
	}

	for _, b := range bindings {
		cmd.Printf("%s requires role %q\n", b.Key(), b.Role)
	}
	cmd.Printf("%s: %d @canAccess binding(s) OK\n", source.Name, len(bindings))
	return nil
}
