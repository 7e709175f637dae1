package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	schema "github.com/hanpama/patchql/internal/schema"
)

func TestCompleteValue_LeafSerialization(t *testing.T) {
	sch := newSchemaWithQueryType(newObjectType("Query",
		schema.NewField("n", "", schema.NamedType("Int")),
	))
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.n": NewMockValueResolver(int64(7)),
	})
	rt.SetSerializer(func(typeName string, val any) (any, error) {
		if typeName != "Int" {
			return nil, fmt.Errorf("unexpected type %s", typeName)
		}
		return int(val.(int64)), nil
	})
	exec := NewExecutor(rt, sch)
	doc := mustParseQuery(t, "{ n }")

	got := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	want := map[string]any{"n": 7}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteValue_SerializerErrorNullsField(t *testing.T) {
	sch := newSchemaWithQueryType(newObjectType("Query",
		schema.NewField("n", "", schema.NamedType("Int")),
	))
	rt := NewMockRuntime(map[string]MockResolver{"Query.n": NewMockValueResolver("NaN")})
	rt.SetSerializer(func(typeName string, val any) (any, error) {
		return nil, errors.New("not a number")
	})
	exec := NewExecutor(rt, sch)
	doc := mustParseQuery(t, "{ n }")

	got := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	if got.Data.(map[string]any)["n"] != nil || len(got.Errors) != 1 {
		t.Fatalf("want null field and one error, got %v / %v", got.Data, got.Errors)
	}
}

func TestCompleteValue_TypedSliceResult(t *testing.T) {
	sch := newSchemaWithQueryType(newObjectType("Query",
		schema.NewField("names", "", schema.ListType(schema.NamedType("String"))),
	))
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.names": NewMockValueResolver([]string{"a", "b"}),
	})
	exec := NewExecutor(rt, sch)
	doc := mustParseQuery(t, "{ names }")

	got := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	want := map[string]any{"names": []any{"a", "b"}}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteValue_NonListForListErrors(t *testing.T) {
	sch := newSchemaWithQueryType(newObjectType("Query",
		schema.NewField("names", "", schema.ListType(schema.NamedType("String"))),
	))
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.names": NewMockValueResolver(42),
	})
	exec := NewExecutor(rt, sch)
	doc := mustParseQuery(t, "{ names }")

	got := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	if got.Data.(map[string]any)["names"] != nil || len(got.Errors) != 1 {
		t.Fatalf("want null list and one error, got %v / %v", got.Data, got.Errors)
	}
}

func TestCompleteValue_AbstractResolvesToConcrete(t *testing.T) {
	res, _ := executeStarWars(t, `{ hero { id name } }`)
	want := map[string]any{"hero": map[string]any{"id": "2001", "name": "R2-D2"}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteValue_AbstractImpossibleTypeErrors(t *testing.T) {
	rt := newStarWarsRuntime()
	rt.SetTypeResolver(func(value any) (string, error) {
		return "Episode", nil
	})
	exec := NewExecutor(rt, mustBuildSchema(t, starWarsSDL))
	doc := mustParseQuery(t, "{ hero { id } }")

	got := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	if got.Data.(map[string]any)["hero"] != nil || len(got.Errors) != 1 {
		t.Fatalf("want null hero and one error, got %v / %v", got.Data, got.Errors)
	}
}

func TestCompleteValue_AbstractResolverError(t *testing.T) {
	rt := newStarWarsRuntime()
	rt.SetTypeResolver(func(value any) (string, error) {
		return "", errors.New("cannot resolve type")
	})
	exec := NewExecutor(rt, mustBuildSchema(t, starWarsSDL))
	doc := mustParseQuery(t, "{ hero { id } }")

	got := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	if len(got.Errors) != 1 || got.Errors[0].Message != "cannot resolve type" {
		t.Fatalf("want the type-resolution error, got %v", got.Errors)
	}
}
