package executor

import (
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Pattern: Result comparison
func TestDefer_ScalarFragment(t *testing.T) {
	res, patches := executeStarWars(t, `
		{ hero { id ...NameFragment @defer(label: "NameFragment") } }
		fragment NameFragment on Droid { id name }
	`)

	wantData := map[string]any{"hero": map[string]any{"id": "2001"}}
	if diff := cmp.Diff(wantData, res.Data); diff != "" {
		t.Fatalf("initial data mismatch (-want +got):\n%s", diff)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}

	wantPatches := []Patch{{
		Label: "NameFragment",
		Path:  Path{"hero"},
		Data:  map[string]any{"id": "2001", "name": "R2-D2"},
	}}
	if diff := cmp.Diff(wantPatches, patches); diff != "" {
		t.Fatalf("patches mismatch (-want +got):\n%s", diff)
	}
}

// Child-before-parent is the emission contract for nested defers.
func TestDefer_Nested(t *testing.T) {
	res, patches := executeStarWars(t, `
		{ hero { id ...DroidFragment @defer(label: "DeferDroid") } }
		fragment DroidFragment on Droid { id name ...DroidNestedFragment @defer(label: "DeferNested") }
		fragment DroidNestedFragment on Droid { appearsIn primaryFunction }
	`)

	wantData := map[string]any{"hero": map[string]any{"id": "2001"}}
	if diff := cmp.Diff(wantData, res.Data); diff != "" {
		t.Fatalf("initial data mismatch (-want +got):\n%s", diff)
	}

	wantPatches := []Patch{
		{
			Label: "DeferNested",
			Path:  Path{"hero"},
			Data: map[string]any{
				"appearsIn":       []any{"NEWHOPE", "EMPIRE", "JEDI"},
				"primaryFunction": "Astromech",
			},
		},
		{
			Label: "DeferDroid",
			Path:  Path{"hero"},
			Data:  map[string]any{"id": "2001", "name": "R2-D2"},
		},
	}
	if diff := cmp.Diff(wantPatches, patches); diff != "" {
		t.Fatalf("patches mismatch (-want +got):\n%s", diff)
	}
}

func TestDefer_ErrorInsideFragment(t *testing.T) {
	res, patches := executeStarWars(t, `
		{ hero { id ...SecretFragment @defer(label: "SecretFragment") } }
		fragment SecretFragment on Droid { name secretBackstory }
	`)

	// Error isolation: the failing resolver inside the deferred unit must
	// not surface in the initial top-level errors.
	if len(res.Errors) != 0 {
		t.Fatalf("deferred error leaked into initial errors: %v", res.Errors)
	}
	if len(patches) != 1 {
		t.Fatalf("want one patch, got %d", len(patches))
	}

	p := patches[0]
	if len(p.Errors) != 1 || len(p.Errors[0].Locations) == 0 {
		t.Fatalf("want one located error on patch, got %+v", p.Errors)
	}
	p.Errors[0].Locations = nil

	want := Patch{
		Label: "SecretFragment",
		Path:  Path{"hero"},
		Data:  map[string]any{"name": "R2-D2", "secretBackstory": nil},
		Errors: []GraphQLError{{
			Message: "secretBackstory is secret.",
			Path:    Path{"hero", "secretBackstory"},
		}},
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("patch mismatch (-want +got):\n%s", diff)
	}
}

func TestDefer_ErrorInsideFragmentWithinList(t *testing.T) {
	_, patches := executeStarWars(t, `
		{ hero { id ...FriendsFragment @defer(label: "FriendsFragment") } }
		fragment FriendsFragment on Droid { friends { name secretBackstory } }
	`)

	if len(patches) != 1 {
		t.Fatalf("want one patch, got %d", len(patches))
	}
	p := patches[0]

	friends, ok := p.Data.(map[string]any)["friends"].([]any)
	if !ok || len(friends) != 3 {
		t.Fatalf("want three friends in patch data, got %#v", p.Data)
	}
	for i, f := range friends {
		fm := f.(map[string]any)
		if fm["secretBackstory"] != nil {
			t.Fatalf("friend %d secretBackstory: want null, got %v", i, fm["secretBackstory"])
		}
	}

	if len(p.Errors) != 3 {
		t.Fatalf("want three errors, got %d: %v", len(p.Errors), p.Errors)
	}
	var gotPaths []string
	for _, e := range p.Errors {
		if e.Message != "secretBackstory is secret." {
			t.Fatalf("unexpected error message %q", e.Message)
		}
		gotPaths = append(gotPaths, e.Path.Key())
	}
	sort.Strings(gotPaths)
	wantPaths := []string{
		"hero.friends.0.secretBackstory",
		"hero.friends.1.secretBackstory",
		"hero.friends.2.secretBackstory",
	}
	if diff := cmp.Diff(wantPaths, gotPaths); diff != "" {
		t.Fatalf("error paths mismatch (-want +got):\n%s", diff)
	}
}

// Duplicate labels are request errors; the duplicate site executes as if
// @defer were absent.
func TestDefer_DuplicateLabel(t *testing.T) {
	res, patches := executeStarWars(t, `
		{ hero { id ...NameFragment @defer(label: "Frag") ...FunctionFragment @defer(label: "Frag") } }
		fragment NameFragment on Droid { name }
		fragment FunctionFragment on Droid { primaryFunction }
	`)

	var found bool
	for _, e := range res.Errors {
		if strings.Contains(e.Message, "used more than once") {
			found = true
		}
	}
	if !found {
		t.Fatalf("want duplicate-label request error, got %v", res.Errors)
	}

	// The second spread resolved inline.
	hero := res.Data.(map[string]any)["hero"].(map[string]any)
	if hero["primaryFunction"] != "Astromech" {
		t.Fatalf("duplicate site not resolved inline: %#v", hero)
	}
	if _, ok := hero["name"]; ok {
		t.Fatalf("deferred fragment leaked into initial result: %#v", hero)
	}

	if len(patches) != 1 || patches[0].Label != "Frag" {
		t.Fatalf("want exactly the first spread's patch, got %+v", patches)
	}
}

func TestDefer_IfFalse(t *testing.T) {
	res, patches := executeStarWars(t, `
		{ hero { id ...NameFragment @defer(label: "NameFragment", if: false) } }
		fragment NameFragment on Droid { name }
	`)
	if patches != nil {
		t.Fatalf("want no patches, got %+v", patches)
	}
	if res.Patches != nil {
		t.Fatalf("patch stream must be absent when nothing was registered")
	}
	hero := res.Data.(map[string]any)["hero"].(map[string]any)
	if hero["name"] != "R2-D2" {
		t.Fatalf("fragment not resolved inline: %#v", hero)
	}
}

func TestDefer_IfVariable(t *testing.T) {
	exec := NewExecutor(newStarWarsRuntime(), mustBuildSchema(t, starWarsSDL))
	doc := mustParseQuery(t, `
		query Hero($defer: Boolean!) { hero { id ...NameFragment @defer(label: "NameFragment", if: $defer) } }
		fragment NameFragment on Droid { name }
	`)

	res := exec.ExecuteRequest(t.Context(), doc, "", map[string]any{"defer": true}, nil)
	if res.Patches == nil {
		t.Fatalf("want patches when $defer is true")
	}
	res.Patches.Close()

	res = exec.ExecuteRequest(t.Context(), doc, "", map[string]any{"defer": false}, nil)
	if res.Patches != nil {
		t.Fatalf("want no patches when $defer is false")
	}
}

func TestDefer_DeliveryDisabled(t *testing.T) {
	res, patches := executeStarWars(t, `
		{ hero { id ...NameFragment @defer(label: "NameFragment") } }
		fragment NameFragment on Droid { id name }
	`, WithDeferredDelivery(false))

	if patches != nil || res.Patches != nil {
		t.Fatalf("want no patches in disabled mode")
	}
	wantData := map[string]any{"hero": map[string]any{"id": "2001", "name": "R2-D2"}}
	if diff := cmp.Diff(wantData, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestDefer_InlineFragment(t *testing.T) {
	res, patches := executeStarWars(t, `
		{ hero { id ... on Droid @defer(label: "Inline") { primaryFunction } } }
	`)
	wantData := map[string]any{"hero": map[string]any{"id": "2001"}}
	if diff := cmp.Diff(wantData, res.Data); diff != "" {
		t.Fatalf("initial data mismatch (-want +got):\n%s", diff)
	}
	wantPatches := []Patch{{
		Label: "Inline",
		Path:  Path{"hero"},
		Data:  map[string]any{"primaryFunction": "Astromech"},
	}}
	if diff := cmp.Diff(wantPatches, patches); diff != "" {
		t.Fatalf("patches mismatch (-want +got):\n%s", diff)
	}
}

// Every patch carries a label that appeared in the operation, a path, and an
// object data payload; errors, when present, are non-empty.
func TestDefer_PatchPayloadShape(t *testing.T) {
	_, patches := executeStarWars(t, `
		{ hero { id ...A @defer(label: "A") ...B @defer(label: "B") } }
		fragment A on Droid { name }
		fragment B on Droid { secretBackstory }
	`)

	labels := map[string]bool{"A": true, "B": true}
	if len(patches) != 2 {
		t.Fatalf("want two patches, got %d", len(patches))
	}
	for _, p := range patches {
		if !labels[p.Label] {
			t.Fatalf("patch label %q never appeared in the operation", p.Label)
		}
		if p.Path == nil {
			t.Fatalf("patch %q missing path", p.Label)
		}
		if _, ok := p.Data.(map[string]any); !ok {
			t.Fatalf("patch %q data is not an object: %#v", p.Label, p.Data)
		}
		if p.Errors != nil && len(p.Errors) == 0 {
			t.Fatalf("patch %q errors present but empty", p.Label)
		}
	}
}
