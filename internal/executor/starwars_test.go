package executor

import (
	"context"
	"errors"
	"testing"

	schema "github.com/hanpama/patchql/internal/schema"
)

// Shared fixture for the incremental-delivery tests: a small Star Wars
// schema with map-backed data and a failing secretBackstory resolver.

const starWarsSDL = `
type Query {
  hero: Character
}

interface Character {
  id: ID!
  name: String
  friends: [Character]
  appearsIn: [Episode]
  secretBackstory: String
}

type Human implements Character {
  id: ID!
  name: String
  friends: [Character]
  appearsIn: [Episode]
  secretBackstory: String
  homePlanet: String
}

type Droid implements Character {
  id: ID!
  name: String
  friends: [Character]
  appearsIn: [Episode]
  secretBackstory: String
  primaryFunction: String
}

enum Episode {
  NEWHOPE
  EMPIRE
  JEDI
}
`

func newHumans() (luke, han, leia map[string]any) {
	luke = map[string]any{"__typename": "Human", "id": "1000", "name": "Luke Skywalker"}
	han = map[string]any{"__typename": "Human", "id": "1002", "name": "Han Solo"}
	leia = map[string]any{"__typename": "Human", "id": "1003", "name": "Leia Organa"}
	return luke, han, leia
}

func newArtoo() map[string]any {
	luke, han, leia := newHumans()
	return map[string]any{
		"__typename":      "Droid",
		"id":              "2001",
		"name":            "R2-D2",
		"appearsIn":       []any{"NEWHOPE", "EMPIRE", "JEDI"},
		"primaryFunction": "Astromech",
		"friends":         []any{luke, han, leia},
	}
}

func newStarWarsRuntime() *MockRuntime {
	artoo := newArtoo()
	secret := NewMockErrorResolver(errors.New("secretBackstory is secret."))
	return NewMockRuntime(map[string]MockResolver{
		"Query.hero":            NewMockValueResolver(artoo),
		"Droid.secretBackstory": secret,
		"Human.secretBackstory": secret,
	})
}

func mustBuildSchema(t *testing.T, sdl string) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL(sdl)
	if err != nil {
		t.Fatalf("schema build error: %v", err)
	}
	return s
}

// execute runs a query against the Star Wars fixture and drains patches.
func executeStarWars(t *testing.T, query string, opts ...Option) (*ExecutionResult, []Patch) {
	t.Helper()
	exec := NewExecutor(newStarWarsRuntime(), mustBuildSchema(t, starWarsSDL), opts...)
	doc := mustParseQuery(t, query)
	res := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	var patches []Patch
	if res.Patches != nil {
		patches = res.Patches.Drain(context.Background())
	}
	return res, patches
}
