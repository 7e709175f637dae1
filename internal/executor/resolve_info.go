package executor

import (
	language "github.com/hanpama/patchql/internal/language"
	schema "github.com/hanpama/patchql/internal/schema"
)

// ResolveInfo carries per-field execution metadata to the Runtime.
type ResolveInfo struct {
	// FieldName is the schema field name; ResponseName is the alias the
	// value is delivered under.
	FieldName    string
	ResponseName string

	ParentType *schema.Type
	ReturnType *schema.TypeRef

	// Path is the response position of this field occurrence. For fields
	// resolved inside a deferred or streamed unit, the path is rooted at the
	// operation root, not at the unit.
	Path Path

	Schema         *schema.Schema
	Operation      *language.OperationDefinition
	VariableValues map[string]any

	// Field is the first AST field occurrence for this response position.
	Field *language.Field
}
