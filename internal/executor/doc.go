// Package executor implements an incremental GraphQL executor: it evaluates
// an operation against a schema and a Runtime, produces an initial result
// containing all non-deferred data, and exposes the data behind @defer and
// @stream directives as a lazy, asynchronous sequence of patches.
//
// # Overview
//
// Execution runs in two phases:
//   - The initial phase walks the operation's selection sets depth-first,
//     resolves every non-deferred field, and assembles the initial response
//     tree. Fragments carrying a live @defer and list tails behind @stream
//     are not executed; they are captured as deferred units and registered
//     with the patch dispatcher.
//   - The patch phase begins as soon as the initial result is assembled,
//     whether or not the caller drains ExecutionResult.Patches; each finished
//     patch waits until the caller takes it. Each registered unit re-enters the standard execution loop against its
//     captured parent value at its captured response path and produces one
//     patch (or contributes to a label's aggregate patch).
//
// # Directives
//
// At each fragment spread and inline fragment, @skip and @include are
// evaluated first. A fragment carrying @defer(label:, if:) is withheld from
// the current execution when deferred delivery is enabled and `if` is
// truthy; its full body — including fields that also appear un-deferred as
// siblings of the spread — resolves later and is emitted as a patch at the
// spread's parent path. A list field carrying @stream(label:, initialCount:,
// if:) completes its first initialCount elements inline; each trailing
// element becomes its own unit patched at the element's indexed path.
//
// Labels are required and must be unique across the operation. A duplicate
// or missing label records a request error and the directive is treated as
// absent, so execution still completes.
//
// # Patch Dispatcher
//
// The dispatcher owns all completion state, keyed by label and path key.
// Units found during the initial traversal are dispatched when the stream is
// created; units discovered while a unit resolves (nested @defer, @stream
// inside a deferred fragment) are registered as children of the running unit
// and dispatched when it completes, strictly before the parent's own
// completion is signalled. Within a label the deepest patches therefore
// complete first; across labels, emission order is the order in which each
// label's aggregate becomes ready. Deferred fragment units sharing a label
// merge into a single patch whose path is the longest common prefix of the
// unit paths; stream units emit one patch per element.
//
// # Resolver Contract
//
// A resolver is Runtime.ResolveField. It may return a plain value or a
// *future.Future; the executor lifts both uniformly, so the evaluator is
// monomorphic over asynchrony. A synchronously returned error and a failed
// future behave identically: the error is recorded as a located GraphQL
// error, the field becomes null, and Non-Null violations propagate to the
// nearest nullable ancestor. Errors raised inside a deferred or streamed
// unit attach to that unit's patch, never to the top-level errors of the
// initial result, and a failing resolver never halts its siblings.
//
// # Concurrency
//
// The initial phase runs on the caller's goroutine and awaits futures
// inline. Once the initial result is assembled, each top-level unit resolves
// on its own goroutine; children run on their parent's goroutine. Dispatcher
// state is guarded by a single mutex, each unit writes errors only to its
// own sink, and patches are handed to the consumer over the stream's
// channel. Releasing the stream early discards the patches of still-running
// units without interrupting them.
//
// # Compatibility
//
// With deferred delivery disabled (WithDeferredDelivery(false)), @defer and
// @stream are no-ops and the full response appears in the initial result.
// Merging the initial result and all patches of an enabled execution yields
// the same response tree as a disabled execution of the same operation.
package executor
