// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package graph serves the GraphQL surface of the auth subsystem: schema
// loading, @canAccess binding, query execution and the HTTP transport.
package graph

import (
	_ "embed"
	"sort"
	"strings"

	"github.com/samber/oops"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/turnstile-gql/turnstile/internal/access"
)

// DirectiveName is the schema directive that guards a field by role.
const DirectiveName = "canAccess"

const roleArgument = "requiredRole"

//go:embed schema.graphql
var schemaSDL string

// SchemaSource returns the embedded SDL.
func SchemaSource() *ast.Source {
	return &ast.Source{Name: "schema.graphql", Input: schemaSDL}
}

// LoadSchema parses and validates SDL sources. With no sources the embedded
// schema is loaded.
func LoadSchema(sources ...*ast.Source) (*ast.Schema, error) {
	if len(sources) == 0 {
		sources = []*ast.Source{SchemaSource()}
	}
	schema, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, oops.Code(access.CodeConfiguration).Wrapf(err, "load schema")
	}
	return schema, nil
}

// Binding ties a schema field to the role its @canAccess directive requires.
type Binding struct {
	Object string
	Field  string
	Role   string
}

// Key returns the "Type.field" coordinate of the binding.
func (b Binding) Key() string {
	return fieldKey(b.Object, b.Field)
}

func fieldKey(object, field string) string {
	return object + "." + field
}

// Bind collects every @canAccess directive in the schema. A directive whose
// requiredRole is absent, not a string literal, or blank fails the whole
// bind.
func Bind(schema *ast.Schema) ([]Binding, error) {
	var bindings []Binding
	for name, def := range schema.Types {
		if def.BuiltIn || def.Kind != ast.Object || strings.HasPrefix(name, "__") {
			continue
		}
		for _, field := range def.Fields {
			directive := field.Directives.ForName(DirectiveName)
			if directive == nil {
				continue
			}
			role, err := requiredRole(directive)
			if err != nil {
				return nil, access.ErrConfiguration(fieldKey(name, field.Name), err.Error())
			}
			bindings = append(bindings, Binding{Object: name, Field: field.Name, Role: role})
		}
	}
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].Key() < bindings[j].Key()
	})
	return bindings, nil
}

func requiredRole(directive *ast.Directive) (string, error) {
	arg := directive.Arguments.ForName(roleArgument)
	if arg == nil || arg.Value == nil {
		return "", oops.Errorf("%s is required", roleArgument)
	}
	if arg.Value.Kind != ast.StringValue && arg.Value.Kind != ast.BlockValue {
		return "", oops.Errorf("%s must be a string literal", roleArgument)
	}
	if strings.TrimSpace(arg.Value.Raw) == "" {
		return "", oops.Errorf("%s must be a non-empty string", roleArgument)
	}
	return arg.Value.Raw, nil
}
