package executor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	language "github.com/hanpama/patchql/internal/language"
	schema "github.com/hanpama/patchql/internal/schema"
)

func TestCoerceVariableValues_RequiredMissing(t *testing.T) {
	sch := schema.NewSchema("")
	op := &language.OperationDefinition{
		Operation: language.Query,
		VariableDefinitions: ast.VariableDefinitionList{
			&ast.VariableDefinition{
				Variable: "count",
				Type:     &ast.Type{NamedType: "Int", NonNull: true},
			},
		},
	}

	_, err := coerceVariableValues(sch, op, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "was not provided")
}

func TestCoerceVariableValues_NullForNonNull(t *testing.T) {
	sch := schema.NewSchema("")
	op := &language.OperationDefinition{
		Operation: language.Query,
		VariableDefinitions: ast.VariableDefinitionList{
			&ast.VariableDefinition{
				Variable: "count",
				Type:     &ast.Type{NamedType: "Int", NonNull: true},
			},
		},
	}

	_, err := coerceVariableValues(sch, op, map[string]any{"count": nil})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot be null")
}

func TestCoerceVariableValues_DefaultApplied(t *testing.T) {
	sch := schema.NewSchema("")
	op := &language.OperationDefinition{
		Operation: language.Query,
		VariableDefinitions: ast.VariableDefinitionList{
			&ast.VariableDefinition{
				Variable:     "count",
				Type:         &ast.Type{NamedType: "Int"},
				DefaultValue: &ast.Value{Kind: ast.IntValue, Raw: "3"},
			},
		},
	}

	coerced, err := coerceVariableValues(sch, op, nil)
	require.NoError(t, err)
	require.Equal(t, 3, coerced["count"])
}

func TestCoerceVariableValues_ScalarCoercion(t *testing.T) {
	sch := schema.NewSchema("")
	op := &language.OperationDefinition{
		Operation: language.Query,
		VariableDefinitions: ast.VariableDefinitionList{
			&ast.VariableDefinition{Variable: "count", Type: &ast.Type{NamedType: "Int"}},
			&ast.VariableDefinition{Variable: "id", Type: &ast.Type{NamedType: "ID"}},
			&ast.VariableDefinition{Variable: "ok", Type: &ast.Type{NamedType: "Boolean"}},
		},
	}

	coerced, err := coerceVariableValues(sch, op, map[string]any{
		"count": float64(7), // JSON numbers arrive as float64
		"id":    12,
		"ok":    true,
	})
	require.NoError(t, err)
	require.Equal(t, 7, coerced["count"])
	require.Equal(t, "12", coerced["id"])
	require.Equal(t, true, coerced["ok"])
}

func TestCoerceVariableValues_BooleanMismatch(t *testing.T) {
	sch := schema.NewSchema("")
	op := &language.OperationDefinition{
		Operation: language.Query,
		VariableDefinitions: ast.VariableDefinitionList{
			&ast.VariableDefinition{Variable: "ok", Type: &ast.Type{NamedType: "Boolean", NonNull: true}},
		},
	}

	_, err := coerceVariableValues(sch, op, map[string]any{"ok": "yes"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot be coerced")
}

func TestCoerceValue_SingleValueBecomesList(t *testing.T) {
	got, err := coerceValue("solo", schema.ListType(schema.NamedType("String")))
	require.NoError(t, err)
	require.Equal(t, []any{"solo"}, got)
}

func TestCoerceValue_ListElements(t *testing.T) {
	got, err := coerceValue([]any{1, "2", 3.0}, schema.ListType(schema.NamedType("Int")))
	require.NoError(t, err)
	require.Equal(t, []any{1, 2, 3}, got)
}
