package executor

import (
	"context"
)

// Runtime defines the host integration surface for field resolution, abstract
// type resolution, and leaf-value serialization used by the Executor.
//
// General contract
//   - ResolveField is invoked once per collected field occurrence. It may
//     return a plain value or a *future.Future; the Executor lifts both into
//     the same shape, so a runtime is free to resolve some fields eagerly and
//     others on their own goroutines without the Executor knowing which is
//     which.
//   - A synchronously returned error and a failed future are treated
//     identically: the error becomes a located GraphQL error, the field value
//     becomes null, and Non-Null violations propagate to the nearest nullable
//     ancestor per the GraphQL spec.
//   - Errors raised while resolving fields inside a deferred or streamed unit
//     are attached to that unit's patch, never to the top-level errors of the
//     initial result.
//   - Implementations should be stateless or otherwise concurrency-safe: once
//     the initial result is assembled, deferred units resolve on their own
//     goroutines and may call ResolveField concurrently.
//   - Implementations must not mutate source or args values.
//
// Object/field identifiers
//   - info.ParentType is the parent GraphQL type (e.g. "User").
//   - info.FieldName is the GraphQL field name on that type (e.g. "posts").
//   - For root fields, info.ParentType is the root operation type.
//   - source is the parent object value (nil for root).
//   - args is the map of argument names to already-coerced Go values.
//
// Abstract types and leaf values
//   - ResolveType must return the concrete object type name for
//     interface/union values; the Executor validates it against the schema's
//     possible types.
//   - SerializeLeafValue must coerce scalars and enums into JSON-safe Go
//     values (string, float64, int, bool, ...). For enums, return the symbolic
//     name as string.
//
// Cancellation
//   - ctx is the context of the operation. When the patch-stream consumer
//     releases the stream early, in-flight resolution continues but its
//     results are discarded; runtimes that want promptness should respect ctx.
type Runtime interface {
	// ResolveField resolves one field occurrence. The returned value may be a
	// raw value or a *future.Future producing one.
	//
	// Return (nil, nil) to produce a GraphQL null for nullable fields.
	ResolveField(ctx context.Context, source any, args map[string]any, info ResolveInfo) (any, error)

	// ResolveType determines the concrete runtime type name for a value of an
	// abstract GraphQL type (interface or union).
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue serializes a scalar or enum value to a JSON-safe Go
	// value according to the schema and any custom scalar mappings.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}
