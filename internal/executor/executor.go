package executor

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	future "github.com/hanpama/patchql/internal/future"
	language "github.com/hanpama/patchql/internal/language"
	schema "github.com/hanpama/patchql/internal/schema"
)

// Executor evaluates operations against a schema and a Runtime, producing an
// initial result plus a lazy patch stream for @defer/@stream work.
type Executor struct {
	runtime          Runtime
	schema           *schema.Schema
	deferredDelivery bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithDeferredDelivery toggles @defer/@stream handling. When disabled, both
// directives are treated as no-ops and all data appears in the initial
// result; the same operations remain accepted.
func WithDeferredDelivery(enabled bool) Option {
	return func(e *Executor) { e.deferredDelivery = enabled }
}

func NewExecutor(runtime Runtime, sch *schema.Schema, opts ...Option) *Executor {
	e := &Executor{runtime: runtime, schema: sch, deferredDelivery: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// executionState holds the per-operation state shared by the initial phase
// and all deferred units.
type executionState struct {
	runtime        Runtime
	schema         *schema.Schema
	document       *language.QueryDocument
	operation      *language.OperationDefinition
	variableValues map[string]any
	ctx            context.Context
	deferEnabled   bool
	dispatcher     *patchDispatcher

	// labels is the operation-wide registry enforcing label uniqueness.
	// Deferred units register labels from their own goroutines.
	mu     sync.Mutex
	labels map[string]struct{}
}

// claimLabel records a directive label; it reports false when the label was
// already used in this operation.
func (st *executionState) claimLabel(label string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.labels[label]; ok {
		return false
	}
	st.labels[label] = struct{}{}
	return true
}

// execScope binds execution to an error sink and, for deferred work, to the
// unit being resolved. Errors and null propagation stay inside the scope:
// the initial phase writes to the top-level errors, each unit to its own
// patch.
type execScope struct {
	state *executionState
	errs  *errorList
	unit  *deferredUnit // nil during the initial phase
	base  int           // path length of the scope root, the null-propagation boundary
}

func (scope *execScope) addError(message string, path Path, pos *language.Position) {
	scope.errs.add(GraphQLError{Message: message, Path: path, Locations: locations(pos)})
}

// registerUnit hands a unit to the dispatcher, as a child of the current
// unit when execution is already inside one.
func (scope *execScope) registerUnit(u *deferredUnit) {
	if scope.unit == nil {
		scope.state.dispatcher.register(u)
		return
	}
	scope.state.dispatcher.registerChild(u, scope.unit)
}

// errorList accumulates located errors for one scope. Each scope is mutated
// from a single goroutine, so no locking is needed.
type errorList struct {
	errors []GraphQLError
}

func (l *errorList) add(err GraphQLError) {
	l.errors = append(l.errors, err)
}

func (l *errorList) hasErrorAt(path Path) bool {
	for _, err := range l.errors {
		if err.Path.Equal(path) {
			return true
		}
	}
	return false
}

func locations(pos *language.Position) []Location {
	if pos == nil {
		return nil
	}
	return []Location{{Line: pos.Line, Column: pos.Column}}
}

// ExecuteRequest evaluates the operation named operationName (or the sole
// operation) in document against the schema and root value. The returned
// result carries the initial data, the top-level errors, and — iff at least
// one deferred or streamed unit was registered — a patch stream the caller
// drains.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	rootValue any,
) *ExecutionResult {
	operation := getOperation(document, operationName)
	if operation == nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: "operation not found"}}}
	}

	coercedVariableValues, err := coerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error()}}}
	}

	var rootType *schema.Type
	switch operation.Operation {
	case language.Query:
		rootType = e.schema.GetQueryType()
	case language.Mutation:
		rootType = e.schema.GetMutationType()
	default:
		return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf("unsupported operation type: %s", operation.Operation)}}}
	}
	if rootType == nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf("root type not found for %s operation", operation.Operation)}}}
	}

	state := &executionState{
		runtime:        e.runtime,
		schema:         e.schema,
		document:       document,
		operation:      operation,
		variableValues: coercedVariableValues,
		ctx:            ctx,
		deferEnabled:   e.deferredDelivery,
		labels:         make(map[string]struct{}),
	}
	state.dispatcher = newPatchDispatcher(state.runUnit)

	scope := &execScope{state: state, errs: &errorList{errors: []GraphQLError{}}}
	data := executeSelectionSet(scope, rootType, operation.SelectionSet, rootValue, EmptyPath())

	result := &ExecutionResult{Errors: scope.errs.errors}
	if !isNullish(data) {
		result.Data = data
	}
	if state.dispatcher.hasWork() {
		result.Patches = state.dispatcher.start()
	}
	return result
}

// runUnit resolves one deferred or streamed unit: the captured selection set
// (or list element) re-enters the standard execution loop at the captured
// path, with a fresh error sink bounding null propagation to the unit.
func (st *executionState) runUnit(u *deferredUnit) unitResult {
	scope := &execScope{
		state: st,
		errs:  &errorList{},
		unit:  u,
		base:  len(u.path),
	}
	var data any
	switch u.kind {
	case unitDefer:
		data = executeSelectionSet(scope, u.parentType, u.selectionSet, u.parentValue, u.path)
	case unitStream:
		data = completeValue(scope, u.elementType, []*language.Field{u.field}, u.element, u.path)
	}
	if isNullish(data) {
		data = nil
	}
	return unitResult{path: u.path, data: data, errors: scope.errs.errors}
}

// executeSelectionSet executes a selection set against objectValue and
// registers any @defer sites it carries.
func executeSelectionSet(scope *execScope, objectType *schema.Type, selectionSet language.SelectionSet, objectValue any, path Path) map[string]any {
	collection := collectFields(scope, objectType, selectionSet)

	for _, d := range collection.deferred {
		scope.registerUnit(&deferredUnit{
			kind:         unitDefer,
			label:        d.label,
			path:         path,
			parentType:   objectType,
			parentValue:  objectValue,
			selectionSet: d.selectionSet,
		})
	}

	resultMap := make(map[string]any)
	for _, collectedField := range collection.orderedFields() {
		responseName := collectedField.ResponseName
		fields := collectedField.Fields
		fieldPath := path.AppendField(responseName)

		if fields[0].Name == "__typename" {
			resultMap[responseName] = objectType.Name
			continue
		}

		fieldDef := objectType.Field(fields[0].Name)
		if fieldDef == nil {
			scope.addError(fmt.Sprintf("Cannot query field '%s' on type '%s'", fields[0].Name, objectType.Name), fieldPath, fields[0].Position)
			continue
		}

		fieldResult := executeField(scope, objectType, fieldDef, objectValue, fields, responseName, fieldPath)

		// Non-Null violations bubble to the nearest nullable ancestor; in the
		// initial result that can be the whole data, while at the root of a
		// deferred or streamed unit the field is written as null instead.
		if schema.IsNonNull(fieldDef.Type) && isNullish(fieldResult) {
			if len(path) > scope.base || scope.unit == nil {
				return nil
			}
			resultMap[responseName] = nil
			continue
		}

		if isNullish(fieldResult) {
			resultMap[responseName] = nil
		} else {
			resultMap[responseName] = fieldResult
		}
	}

	return resultMap
}

// executeField resolves one collected field occurrence and completes its
// value. A synchronously returned error and a failed future are treated
// identically.
func executeField(scope *execScope, objectType *schema.Type, fieldDef *schema.Field, objectValue any, fields []*language.Field, responseName string, path Path) any {
	field := fields[0]
	argumentValues := coerceArgumentValues(scope, fieldDef, field.Arguments, path)

	info := ResolveInfo{
		FieldName:      field.Name,
		ResponseName:   responseName,
		ParentType:     objectType,
		ReturnType:     fieldDef.Type,
		Path:           path,
		Schema:         scope.state.schema,
		Operation:      scope.state.operation,
		VariableValues: scope.state.variableValues,
		Field:          field,
	}

	resolved, err := scope.state.runtime.ResolveField(scope.state.ctx, objectValue, argumentValues, info)
	if err == nil {
		resolved, err = liftValue(scope.state.ctx, resolved)
	}
	if err != nil {
		scope.addError(err.Error(), path, field.Position)
		return nil
	}
	return completeValue(scope, fieldDef.Type, fields, resolved, path)
}

// liftValue lifts the resolver's value-or-future sum into a plain value.
func liftValue(ctx context.Context, v any) (any, error) {
	if f, ok := v.(*future.Future); ok {
		return f.Await(ctx)
	}
	return v, nil
}

// completeValue completes a value
func completeValue(scope *execScope, fieldType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	if f, ok := result.(*future.Future); ok {
		var err error
		result, err = f.Await(scope.state.ctx)
		if err != nil {
			scope.addError(err.Error(), path, fields[0].Position)
			result = nil
		}
	}

	if schema.IsNonNull(fieldType) {
		if isNullish(result) {
			if !scope.errs.hasErrorAt(path) {
				scope.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", path.Key()), path, fields[0].Position)
			}
			return nil
		}
		inner := schema.Unwrap(fieldType)
		completed := completeValue(scope, inner, fields, result, path)
		if isNullish(completed) {
			// Error already recorded at original path; propagate only
			return nil
		}
		return completed
	}

	if isNullish(result) {
		return nil
	}

	if schema.IsList(fieldType) {
		return completeListValue(scope, fieldType, fields, result, path)
	}

	namedType := schema.GetNamedType(fieldType)
	typeObj := scope.state.schema.Types[namedType]
	if typeObj == nil {
		scope.addError(fmt.Sprintf("Unknown type: %s", namedType), path, nil)
		return nil
	}

	switch typeObj.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		serialized, err := scope.state.runtime.SerializeLeafValue(scope.state.ctx, namedType, result)
		if err != nil {
			scope.addError(err.Error(), path, nil)
			return nil
		}
		return serialized
	case schema.TypeKindObject:
		return completeObjectValue(scope, typeObj, fields, result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return completeAbstractValue(scope, namedType, fields, result, path)
	default:
		scope.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", typeObj.Kind), path, nil)
		return nil
	}
}

// completeListValue completes a list value. Live @stream directives split
// the list: leading elements complete inline, trailing elements register one
// stream unit each, carrying the owning directive's sub-selection at the
// element's indexed path.
func completeListValue(scope *execScope, listType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	items, ok := toSlice(result)
	if !ok {
		scope.addError(fmt.Sprintf("Expected list value, got %T", result), path, nil)
		return nil
	}
	inner := schema.Unwrap(listType)

	// @stream binds to the field's own list, never to lists nested below an
	// index segment.
	var specs []streamSpec
	allStreamed := false
	if len(path) > 0 {
		if _, insideElement := path[len(path)-1].(int); !insideElement {
			specs, allStreamed = collectStreamSpecs(scope, fields)
		}
	}

	inlineCount := len(items)
	if allStreamed {
		for _, spec := range specs {
			if spec.initialCount < inlineCount {
				inlineCount = spec.initialCount
			}
		}
	}

	completed := make([]any, inlineCount)
	for i := 0; i < inlineCount; i++ {
		p := path.AppendIndex(i)
		v := completeValue(scope, inner, fields, items[i], p)
		if schema.IsNonNull(inner) && isNullish(v) {
			// Propagate null to the list field; error already recorded by inner completion
			return nil
		}
		completed[i] = v
	}

	for _, spec := range specs {
		for i := spec.initialCount; i < len(items); i++ {
			scope.registerUnit(&deferredUnit{
				kind:        unitStream,
				label:       spec.label,
				path:        path.AppendIndex(i),
				elementType: inner,
				element:     items[i],
				field:       spec.field,
			})
		}
	}

	return completed
}

func completeObjectValue(scope *execScope, objectType *schema.Type, fields []*language.Field, result any, path Path) any {
	sub := mergeSelectionSets(fields)
	return executeSelectionSet(scope, objectType, sub, result, path)
}

func completeAbstractValue(scope *execScope, abstractTypeName string, fields []*language.Field, result any, path Path) any {
	typeName, err := scope.state.runtime.ResolveType(scope.state.ctx, abstractTypeName, result)
	if err != nil {
		scope.addError(err.Error(), path, nil)
		return nil
	}
	objectType := scope.state.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		scope.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractTypeName, typeName), path, nil)
		return nil
	}
	if !scope.state.schema.IsPossibleType(abstractTypeName, typeName) {
		scope.addError(fmt.Sprintf("Runtime type %s is not a possible type for %s", typeName, abstractTypeName), path, nil)
		return nil
	}
	return completeObjectValue(scope, objectType, fields, result, path)
}

func toSlice(result any) ([]any, bool) {
	if direct, ok := result.([]any); ok {
		return direct, true
	}
	rv := reflect.ValueOf(result)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// getOperation retrieves the operation from the document
func getOperation(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if operationName == "" && len(document.Operations) == 1 {
		return document.Operations[0]
	}
	for _, op := range document.Operations {
		if op.Name == operationName {
			return op
		}
	}
	return nil
}

// mergeSelectionSets merges selection sets from multiple fields
func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
