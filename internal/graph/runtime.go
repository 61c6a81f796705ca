// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package graph

import (
	"strings"

	gql "github.com/graphql-go/graphql"
	gqlast "github.com/graphql-go/graphql/language/ast"
	"github.com/samber/oops"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/turnstile-gql/turnstile/internal/access"
)

// resolverFactory returns the resolve function for object.field.
type resolverFactory func(object, field string) gql.FieldResolveFn

// runtimeBuilder mirrors a gqlparser schema as graphql-go types. Named
// types are built once so the runtime sees a single instance per name.
type runtimeBuilder struct {
	schema  *ast.Schema
	resolve resolverFactory
	types   map[string]gql.Type
	err     error
}

// buildRuntime converts schema into an executable graphql-go schema whose
// fields resolve through resolve. Interfaces and unions are rejected with a
// configuration error.
func buildRuntime(schema *ast.Schema, resolve resolverFactory) (gql.Schema, error) {
	if schema.Query == nil {
		return gql.Schema{}, oops.Code(access.CodeConfiguration).Errorf("schema has no query type")
	}
	b := &runtimeBuilder{schema: schema, resolve: resolve, types: make(map[string]gql.Type)}

	cfg := gql.SchemaConfig{Query: b.object(schema.Query)}
	if schema.Mutation != nil {
		cfg.Mutation = b.object(schema.Mutation)
	}
	runtime, err := gql.NewSchema(cfg)
	if b.err != nil {
		return gql.Schema{}, b.err
	}
	if err != nil {
		return gql.Schema{}, oops.Code(access.CodeConfiguration).Wrapf(err, "build executable schema")
	}
	return runtime, nil
}

func (b *runtimeBuilder) fail(typeName, format string, args ...any) {
	if b.err == nil {
		b.err = oops.Code(access.CodeConfiguration).With("type", typeName).Errorf(format, args...)
	}
}

func (b *runtimeBuilder) object(def *ast.Definition) *gql.Object {
	if t, ok := b.types[def.Name]; ok {
		if obj, ok := t.(*gql.Object); ok {
			return obj
		}
	}
	obj := gql.NewObject(gql.ObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields: gql.FieldsThunk(func() gql.Fields {
			fields := gql.Fields{}
			for _, f := range def.Fields {
				if strings.HasPrefix(f.Name, "__") {
					continue
				}
				fields[f.Name] = &gql.Field{
					Name:        f.Name,
					Description: f.Description,
					Type:        b.output(f.Type),
					Args:        b.arguments(f.Arguments),
					Resolve:     b.resolve(def.Name, f.Name),
				}
			}
			return fields
		}),
	})
	b.types[def.Name] = obj
	return obj
}

func (b *runtimeBuilder) arguments(defs ast.ArgumentDefinitionList) gql.FieldConfigArgument {
	if len(defs) == 0 {
		return nil
	}
	args := gql.FieldConfigArgument{}
	for _, a := range defs {
		cfg := &gql.ArgumentConfig{Type: b.input(a.Type), Description: a.Description}
		if a.DefaultValue != nil {
			cfg.DefaultValue = defaultValue(a.DefaultValue)
		}
		args[a.Name] = cfg
	}
	return args
}

func (b *runtimeBuilder) output(t *ast.Type) gql.Output {
	var out gql.Output
	if t.Elem != nil {
		out = gql.NewList(b.output(t.Elem))
	} else {
		out = b.named(t.NamedType, false)
	}
	if t.NonNull {
		return gql.NewNonNull(out)
	}
	return out
}

func (b *runtimeBuilder) input(t *ast.Type) gql.Input {
	var in gql.Input
	if t.Elem != nil {
		in = gql.NewList(b.input(t.Elem))
	} else {
		in = b.named(t.NamedType, true)
	}
	if t.NonNull {
		return gql.NewNonNull(in)
	}
	return in
}

// named returns the runtime type for a named SDL type. Unsupported kinds
// record an error and yield String so construction can finish.
func (b *runtimeBuilder) named(name string, input bool) gql.Type {
	if t, ok := b.types[name]; ok {
		return t
	}
	def := b.schema.Types[name]
	if def == nil {
		b.fail(name, "unknown type %s", name)
		return gql.String
	}

	var t gql.Type
	switch def.Kind {
	case ast.Scalar:
		t = scalar(def)
	case ast.Enum:
		t = enum(def)
	case ast.Object:
		if input {
			b.fail(name, "object type %s used as input", name)
			return gql.String
		}
		return b.object(def)
	case ast.InputObject:
		if !input {
			b.fail(name, "input type %s used as output", name)
			return gql.String
		}
		t = b.inputObject(def)
	default:
		b.fail(name, "%s types are not supported", strings.ToLower(string(def.Kind)))
		return gql.String
	}
	b.types[name] = t
	return t
}

func (b *runtimeBuilder) inputObject(def *ast.Definition) *gql.InputObject {
	return gql.NewInputObject(gql.InputObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields: gql.InputObjectConfigFieldMapThunk(func() gql.InputObjectConfigFieldMap {
			fields := gql.InputObjectConfigFieldMap{}
			for _, f := range def.Fields {
				cfg := &gql.InputObjectFieldConfig{Type: b.input(f.Type), Description: f.Description}
				if f.DefaultValue != nil {
					cfg.DefaultValue = defaultValue(f.DefaultValue)
				}
				fields[f.Name] = cfg
			}
			return fields
		}),
	})
}

// scalar maps the built-in scalars to their runtime types. Custom scalars
// pass values through unchanged.
func scalar(def *ast.Definition) gql.Type {
	switch def.Name {
	case "String":
		return gql.String
	case "ID":
		return gql.ID
	case "Boolean":
		return gql.Boolean
	case "Int":
		return gql.Int
	case "Float":
		return gql.Float
	}
	identity := func(v any) any { return v }
	return gql.NewScalar(gql.ScalarConfig{
		Name:        def.Name,
		Description: def.Description,
		Serialize:   identity,
		ParseValue:  identity,
		ParseLiteral: func(v gqlast.Value) any {
			return v.GetValue()
		},
	})
}

// enum serializes values by name; resolvers return enum values as plain
// strings.
func enum(def *ast.Definition) *gql.Enum {
	values := gql.EnumValueConfigMap{}
	for _, v := range def.EnumValues {
		values[v.Name] = &gql.EnumValueConfig{Value: v.Name, Description: v.Description}
	}
	return gql.NewEnum(gql.EnumConfig{Name: def.Name, Description: def.Description, Values: values})
}

// defaultValue converts an SDL default into the form the runtime coerces
// literals to: Int defaults become int.
func defaultValue(v *ast.Value) any {
	value, err := v.Value(nil)
	if err != nil {
		return nil
	}
	return runtimeValue(value)
}

func runtimeValue(v any) any {
	switch v := v.(type) {
	case int64:
		return int(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = runtimeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = runtimeValue(e)
		}
		return out
	default:
		return v
	}
}
