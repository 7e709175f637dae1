package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSDL = `
type Query {
  hero(episode: Episode): Character
  search(text: String!): [SearchResult]
}

interface Character {
  id: ID!
  name: String!
  friends: [Character]
}

type Human implements Character {
  id: ID!
  name: String!
  friends: [Character]
  homePlanet: String
}

type Droid implements Character {
  id: ID!
  name: String!
  friends: [Character]
  primaryFunction: String @deprecated(reason: "Use function instead.")
}

union SearchResult = Human | Droid

enum Episode {
  NEWHOPE
  EMPIRE
  JEDI
}

input ReviewInput {
  stars: Int! = 5
  commentary: String
}
`

func TestBuildFromSDL(t *testing.T) {
	s, err := BuildFromSDL(testSDL)
	require.NoError(t, err)

	require.Equal(t, "Query", s.QueryType)
	require.NotNil(t, s.GetQueryType())
	require.Nil(t, s.GetMutationType())

	hero := s.GetQueryType().Field("hero")
	require.NotNil(t, hero)
	require.Equal(t, "Character", GetNamedType(hero.Type))
	require.Len(t, hero.Arguments, 1)
	require.Equal(t, "episode", hero.Arguments[0].Name)

	droid := s.Types["Droid"]
	require.NotNil(t, droid)
	require.Equal(t, TypeKindObject, droid.Kind)
	require.Equal(t, []string{"Character"}, droid.Interfaces)
	pf := droid.Field("primaryFunction")
	require.NotNil(t, pf)
	require.True(t, pf.IsDeprecated)
	require.Equal(t, "Use function instead.", pf.DeprecationReason)

	input := s.Types["ReviewInput"]
	require.Equal(t, TypeKindInputObject, input.Kind)
	require.Equal(t, 5, input.InputFields[0].DefaultValue)
}

func TestBuildFromSDLPossibleTypes(t *testing.T) {
	s, err := BuildFromSDL(testSDL)
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"Human", "Droid"}, s.Types["Character"].PossibleTypes)
	require.ElementsMatch(t, []string{"Human", "Droid"}, s.Types["SearchResult"].PossibleTypes)

	require.True(t, s.IsPossibleType("Character", "Droid"))
	require.True(t, s.IsPossibleType("Droid", "Droid"))
	require.False(t, s.IsPossibleType("SearchResult", "Episode"))
}

func TestBuildFromSDLRootTypeOverride(t *testing.T) {
	s, err := BuildFromSDL(`
schema { query: Root }
type Root { ok: Boolean }
`)
	require.NoError(t, err)
	require.Equal(t, "Root", s.QueryType)
	require.NotNil(t, s.GetQueryType())
}

func TestBuildFromSDLExtension(t *testing.T) {
	s, err := BuildFromSDL(`
type Query { a: String }
extend type Query { b: Int }
`)
	require.NoError(t, err)
	q := s.GetQueryType()
	require.NotNil(t, q.Field("a"))
	require.NotNil(t, q.Field("b"))

	_, err = BuildFromSDL(`
type Query { a: String }
extend type Query { a: Int }
`)
	require.Error(t, err)
}

func TestBuiltinDirectives(t *testing.T) {
	s := NewSchema("")
	for _, name := range []string{"skip", "include", "defer", "stream"} {
		require.Contains(t, s.Directives, name)
	}
	stream := s.Directives["stream"]
	var argNames []string
	for _, a := range stream.Arguments {
		argNames = append(argNames, a.Name)
	}
	require.Equal(t, []string{"label", "initialCount", "if"}, argNames)
}

func TestRenderRoundTrip(t *testing.T) {
	s, err := BuildFromSDL(testSDL)
	require.NoError(t, err)

	out := Render(s)
	require.Contains(t, out, "type Droid implements Character {")
	require.Contains(t, out, "union SearchResult = ")
	require.NotContains(t, out, "directive @defer")

	// The rendered SDL must itself build.
	s2, err := BuildFromSDL(out)
	require.NoError(t, err)
	require.Equal(t, len(s.Types), len(s2.Types))

	require.False(t, strings.Contains(out, "scalar String"), "builtins must not be rendered")
}
