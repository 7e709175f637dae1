package executor

import (
	"fmt"

	language "github.com/hanpama/patchql/internal/language"
	schema "github.com/hanpama/patchql/internal/schema"
)

// fieldCollection preserves field order from the original query and carries
// the @defer sites encountered at this selection-set level.
type fieldCollection struct {
	fields   []collectedField
	index    map[string]int
	deferred []deferredSelection
}

type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

// deferredSelection is an @defer site found during collection: the fragment
// body is withheld from the current execution and registered as a unit.
type deferredSelection struct {
	label        string
	selectionSet language.SelectionSet
}

func newFieldCollection() *fieldCollection {
	return &fieldCollection{
		fields: make([]collectedField, 0),
		index:  make(map[string]int),
	}
}

func (fc *fieldCollection) add(responseName string, field *language.Field) {
	if idx, exists := fc.index[responseName]; exists {
		fc.fields[idx].Fields = append(fc.fields[idx].Fields, field)
	} else {
		fc.index[responseName] = len(fc.fields)
		fc.fields = append(fc.fields, collectedField{
			ResponseName: responseName,
			Fields:       []*language.Field{field},
		})
	}
}

func (fc *fieldCollection) orderedFields() []collectedField {
	return fc.fields
}

// collectFields collects fields from a selection set. Fragments carrying a
// live @defer are not expanded; they are reported on the collection instead.
func collectFields(scope *execScope, objectType *schema.Type, selectionSet language.SelectionSet) *fieldCollection {
	collection := newFieldCollection()
	visitedFragments := make(map[string]bool)
	collectFieldsImpl(scope, objectType, selectionSet, collection, visitedFragments)
	return collection
}

func collectFieldsImpl(scope *execScope, objectType *schema.Type, selectionSet language.SelectionSet, collection *fieldCollection, visitedFragments map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !shouldIncludeNode(scope, sel.Directives) {
				continue
			}
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			collection.add(responseName, sel)

		case *language.InlineFragment:
			if !shouldIncludeNode(scope, sel.Directives) {
				continue
			}
			if !typeConditionMatches(scope, sel.TypeCondition, objectType) {
				continue
			}
			if label, ok := liveDefer(scope, sel.Directives, sel.Position); ok {
				collection.deferred = append(collection.deferred, deferredSelection{
					label:        label,
					selectionSet: sel.SelectionSet,
				})
				continue
			}
			collectFieldsImpl(scope, objectType, sel.SelectionSet, collection, visitedFragments)

		case *language.FragmentSpread:
			if !shouldIncludeNode(scope, sel.Directives) {
				continue
			}
			fragmentDef := getFragmentDefinition(scope.state.document, sel.Name)
			if fragmentDef == nil {
				continue
			}
			if !typeConditionMatches(scope, fragmentDef.TypeCondition, objectType) {
				continue
			}
			if !shouldIncludeNode(scope, fragmentDef.Directives) {
				continue
			}
			// A deferred spread is withheld whole; it does not consume the
			// visited mark, so the same fragment may still be expanded
			// un-deferred elsewhere in the selection set.
			if label, ok := liveDefer(scope, sel.Directives, sel.Position); ok {
				collection.deferred = append(collection.deferred, deferredSelection{
					label:        label,
					selectionSet: fragmentDef.SelectionSet,
				})
				continue
			}
			if visitedFragments[sel.Name] {
				continue
			}
			visitedFragments[sel.Name] = true
			collectFieldsImpl(scope, objectType, fragmentDef.SelectionSet, collection, visitedFragments)
		}
	}
}

// liveDefer reports whether the directive list carries an @defer that is
// active for this request: deferred delivery enabled, `if` truthy, and a
// unique, non-empty label. Invalid uses record a request error and fall back
// to treating the directive as absent.
func liveDefer(scope *execScope, directives language.DirectiveList, pos *language.Position) (string, bool) {
	d := directives.ForName("defer")
	if d == nil || !scope.state.deferEnabled {
		return "", false
	}
	if cond, ok := directiveArgumentValue(scope, d, "if"); ok {
		if enabled, ok := cond.(bool); ok && !enabled {
			return "", false
		}
	}
	label, _ := directiveArgumentValue(scope, d, "label")
	name, ok := label.(string)
	if !ok || name == "" {
		scope.addError(`@defer requires a non-empty "label" argument`, nil, pos)
		return "", false
	}
	if !scope.state.claimLabel(name) {
		scope.addError(fmt.Sprintf("@defer label %q is used more than once in the operation", name), nil, pos)
		return "", false
	}
	return name, true
}

// streamSpec is one live @stream directive on a collected list field.
type streamSpec struct {
	label        string
	initialCount int
	field        *language.Field
}

// collectStreamSpecs inspects the field occurrences of a collected list
// field for live @stream directives. allStreamed reports whether every
// occurrence streams; a merged un-streamed occurrence keeps the full list in
// the initial result while streamed occurrences still emit element patches.
func collectStreamSpecs(scope *execScope, fields []*language.Field) (specs []streamSpec, allStreamed bool) {
	allStreamed = true
	for _, f := range fields {
		d := f.Directives.ForName("stream")
		if d == nil || !scope.state.deferEnabled {
			allStreamed = false
			continue
		}
		if cond, ok := directiveArgumentValue(scope, d, "if"); ok {
			if enabled, ok := cond.(bool); ok && !enabled {
				allStreamed = false
				continue
			}
		}
		label, _ := directiveArgumentValue(scope, d, "label")
		name, ok := label.(string)
		if !ok || name == "" {
			scope.addError(`@stream requires a non-empty "label" argument`, nil, f.Position)
			allStreamed = false
			continue
		}
		count, err := streamInitialCount(scope, d)
		if err != nil {
			scope.addError(err.Error(), nil, f.Position)
			allStreamed = false
			continue
		}
		if !scope.state.claimLabel(name) {
			scope.addError(fmt.Sprintf("@stream label %q is used more than once in the operation", name), nil, f.Position)
			allStreamed = false
			continue
		}
		specs = append(specs, streamSpec{label: name, initialCount: count, field: f})
	}
	if len(specs) == 0 {
		allStreamed = false
	}
	return specs, allStreamed
}

// streamInitialCount reads the initialCount argument (the snake_case
// spelling is accepted as an alias) and validates it.
func streamInitialCount(scope *execScope, d *language.Directive) (int, error) {
	raw, ok := directiveArgumentValue(scope, d, "initialCount")
	if !ok {
		raw, ok = directiveArgumentValue(scope, d, "initial_count")
	}
	if !ok {
		return 0, fmt.Errorf(`@stream requires an "initialCount" argument`)
	}
	count, err := coerceToInt(raw)
	if err != nil {
		return 0, fmt.Errorf("@stream initialCount must be an Int: %v", err)
	}
	n := count.(int)
	if n < 0 {
		return 0, fmt.Errorf("@stream initialCount must be non-negative, got %d", n)
	}
	return n, nil
}

// typeConditionMatches reports whether a fragment with the given type
// condition applies to objectType, including interface and union
// membership.
func typeConditionMatches(scope *execScope, typeCondition string, objectType *schema.Type) bool {
	if typeCondition == "" || typeCondition == objectType.Name {
		return true
	}
	return scope.state.schema.IsPossibleType(typeCondition, objectType.Name)
}

// shouldIncludeNode checks if a node should be included based on directives
func shouldIncludeNode(scope *execScope, directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if skipIf, ok := directiveArgumentValue(scope, skip, "if"); ok {
			if skipBool, ok := skipIf.(bool); ok && skipBool {
				return false
			}
		}
	}
	if include := directives.ForName("include"); include != nil {
		if includeIf, ok := directiveArgumentValue(scope, include, "if"); ok {
			if includeBool, ok := includeIf.(bool); ok && !includeBool {
				return false
			}
		}
	}
	return true
}

// directiveArgumentValue gets the value of a directive argument, with
// variables substituted.
func directiveArgumentValue(scope *execScope, directive *language.Directive, argName string) (any, bool) {
	for _, arg := range directive.Arguments {
		if arg.Name == argName {
			return valueFromASTWithVars(arg.Value, scope.state.variableValues), true
		}
	}
	return nil, false
}

// getFragmentDefinition finds a fragment definition by name in the document
func getFragmentDefinition(document *language.QueryDocument, name string) *language.FragmentDefinition {
	if fd := document.Fragments.ForName(name); fd != nil {
		return fd
	}
	return nil
}
