package executor

import (
	"sync"

	language "github.com/hanpama/patchql/internal/language"
	schema "github.com/hanpama/patchql/internal/schema"
)

type unitKind int

const (
	unitDefer unitKind = iota
	unitStream
)

// deferredUnit is one registered piece of deferred work: a single @defer site
// or a single @stream element. Units hold only captured values and a
// (label, path) back-reference; the dispatcher owns all completion state.
type deferredUnit struct {
	kind  unitKind
	label string
	path  Path

	// @defer: re-execute selectionSet against the captured parent.
	parentType   *schema.Type
	parentValue  any
	selectionSet language.SelectionSet

	// @stream: complete one trailing element under its owning field's
	// sub-selection.
	elementType *schema.TypeRef
	element     any
	field       *language.Field
}

// groupKey identifies the aggregation group a unit belongs to. Deferred
// fragment units sharing a label (aliased spreads, merged sub-patches) join
// one patch; stream units never merge across elements, so each element is
// its own group.
func (u *deferredUnit) groupKey() string {
	if u.kind == unitStream {
		return "s\x00" + u.label + "\x00" + u.path.Key()
	}
	return "d\x00" + u.label
}

// unitResult is the completed value of one unit prior to aggregation.
type unitResult struct {
	path   Path
	data   any
	errors []GraphQLError
}

type patchGroup struct {
	label   string
	pending int
	results []unitResult
}

// patchDispatcher accepts deferred units during execution and exposes the
// patch stream after the initial phase completes. Maps are keyed the same
// way on both sides of registration and completion: resolvers by
// (label, path key), children by (label, parent path key), groups by
// aggregation key.
//
// Lifecycle: units found during the initial traversal are registered, then
// start launches their resolution. Units discovered while a unit resolves
// (nested @defer/@stream) are registered as children of the running unit and
// dispatched when it completes, strictly before its own completion is
// signalled; within a label the deepest patches therefore finish first.
// Across groups, emission order is completion order.
type patchDispatcher struct {
	exec func(*deferredUnit) unitResult

	mu          sync.Mutex
	nonEmpty    bool
	started     bool
	fatal       bool
	groups      map[string]*patchGroup
	resolvers   map[string]map[string]*deferredUnit
	children    map[string]map[string][]*deferredUnit
	pending     []*deferredUnit
	outstanding int
	stream      *PatchStream
}

func newPatchDispatcher(exec func(*deferredUnit) unitResult) *patchDispatcher {
	return &patchDispatcher{
		exec:      exec,
		groups:    make(map[string]*patchGroup),
		resolvers: make(map[string]map[string]*deferredUnit),
		children:  make(map[string]map[string][]*deferredUnit),
	}
}

// hasWork reports whether any unit was ever registered.
func (d *patchDispatcher) hasWork() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nonEmpty
}

// register enqueues a unit found during the initial traversal. Resolution
// does not begin until start.
func (d *patchDispatcher) register(u *deferredUnit) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.install(u)
	d.pending = append(d.pending, u)
}

// registerChild stores a unit discovered during resolution of parent; it is
// dispatched when the parent's resolution completes. Reports false on an
// invariant violation (unknown parent label).
func (d *patchDispatcher) registerChild(u *deferredUnit, parent *deferredUnit) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.resolvers[parent.label]; !ok {
		d.fatal = true
		return false
	}
	d.install(u)
	pk := parent.path.Key()
	if d.children[parent.label] == nil {
		d.children[parent.label] = make(map[string][]*deferredUnit)
	}
	d.children[parent.label][pk] = append(d.children[parent.label][pk], u)
	return true
}

// install records the unit's completion promise. Caller holds d.mu.
// Installation of all of a group's units always precedes dispatch of any of
// them, so a group's pending count never reaches zero early.
func (d *patchDispatcher) install(u *deferredUnit) {
	d.nonEmpty = true
	d.outstanding++
	gk := u.groupKey()
	g := d.groups[gk]
	if g == nil {
		g = &patchGroup{label: u.label}
		d.groups[gk] = g
	}
	g.pending++
	if d.resolvers[u.label] == nil {
		d.resolvers[u.label] = make(map[string]*deferredUnit)
	}
	d.resolvers[u.label][u.path.Key()] = u
}

// start launches resolution of all registered units and returns the stream
// the consumer drains. Called at most once, after the initial traversal.
func (d *patchDispatcher) start() *PatchStream {
	d.mu.Lock()
	units := d.pending
	d.pending = nil
	d.started = true
	s := newPatchStream()
	d.stream = s
	d.mu.Unlock()

	for _, u := range units {
		go d.dispatch(u)
	}
	return s
}

// dispatch runs a unit's resolution, then its children, then signals its own
// completion. Children run on the dispatching goroutine so that their
// patches are emittable before the parent's.
func (d *patchDispatcher) dispatch(u *deferredUnit) {
	res := d.exec(u)

	d.mu.Lock()
	var kids []*deferredUnit
	if m := d.children[u.label]; m != nil {
		pk := u.path.Key()
		kids = m[pk]
		delete(m, pk)
	}
	d.mu.Unlock()

	for _, k := range kids {
		d.dispatch(k)
	}
	d.signal(u, res)
}

// signal delivers a unit's result to its group; the group's last arrival
// emits the aggregate patch.
func (d *patchDispatcher) signal(u *deferredUnit, res unitResult) {
	d.mu.Lock()
	g := d.groups[u.groupKey()]
	g.results = append(g.results, res)
	g.pending--
	ready := g.pending == 0 && !d.fatal
	var results []unitResult
	if ready {
		results = g.results
	}
	d.mu.Unlock()

	if ready {
		d.stream.emit(aggregatePatches(g.label, results))
	}

	d.mu.Lock()
	d.outstanding--
	last := d.outstanding == 0
	d.mu.Unlock()
	if last {
		d.stream.finish()
	}
}

// aggregatePatches merges a group's unit results into the emitted patch:
// data trees merge along their paths, errors accumulate, and the patch path
// is the longest common prefix of the unit paths.
func aggregatePatches(label string, results []unitResult) Patch {
	if len(results) == 1 {
		r := results[0]
		return Patch{Label: label, Path: r.path, Data: r.data, Errors: r.errors}
	}
	var acc any = make(map[string]any)
	lcp := results[0].path
	var errs []GraphQLError
	for _, r := range results {
		acc = applyPatch(acc, r.path, r.data)
		lcp = commonPrefix(lcp, r.path)
		errs = append(errs, r.errors...)
	}
	return Patch{Label: label, Path: lcp, Data: valueAtPath(acc, lcp), Errors: errs}
}

// applyPatch walks path into acc, creating intermediate containers as
// needed, and shallow-merges data at the leaf: object fields from data
// override existing fields, except that a list arriving where a list already
// sits is merged index-wise; any other value overwrites the position.
// The returned container replaces acc (list growth reallocates).
func applyPatch(acc any, path Path, data any) any {
	if len(path) == 0 {
		return shallowMerge(acc, data)
	}
	switch seg := path[0].(type) {
	case string:
		m, ok := acc.(map[string]any)
		if !ok {
			m = make(map[string]any)
		}
		m[seg] = applyPatch(m[seg], path[1:], data)
		return m
	case int:
		list, ok := acc.([]any)
		if !ok {
			list = []any{}
		}
		for len(list) <= seg {
			list = append(list, nil)
		}
		list[seg] = applyPatch(list[seg], path[1:], data)
		return list
	}
	return acc
}

func shallowMerge(existing, data any) any {
	if em, ok := existing.(map[string]any); ok {
		if dm, ok := data.(map[string]any); ok {
			for k, v := range dm {
				if el, ok := em[k].([]any); ok {
					if dl, ok := v.([]any); ok {
						em[k] = mergeLists(el, dl)
						continue
					}
				}
				em[k] = v
			}
			return em
		}
	}
	if el, ok := existing.([]any); ok {
		if dl, ok := data.([]any); ok {
			return mergeLists(el, dl)
		}
	}
	return data
}

// mergeLists reconciles a position that already holds a list with incoming
// list data: elements merge index-wise so that element patches applied at
// deeper indices survive a later shallow merge of their parent.
func mergeLists(existing, incoming []any) []any {
	out := existing
	for len(out) < len(incoming) {
		out = append(out, nil)
	}
	for i, v := range incoming {
		if v == nil {
			continue
		}
		if m1, ok := out[i].(map[string]any); ok {
			if m2, ok := v.(map[string]any); ok {
				for k, vv := range m2 {
					m1[k] = vv
				}
				continue
			}
		}
		out[i] = v
	}
	return out
}

// valueAtPath returns the value at path inside acc, or nil.
func valueAtPath(acc any, path Path) any {
	current := acc
	for _, elem := range path {
		switch seg := elem.(type) {
		case string:
			m, ok := current.(map[string]any)
			if !ok {
				return nil
			}
			current = m[seg]
		case int:
			list, ok := current.([]any)
			if !ok || seg >= len(list) {
				return nil
			}
			current = list[seg]
		}
	}
	return current
}
