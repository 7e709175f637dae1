package executor

import (
	"strconv"
	"strings"
)

// PathElement is a response field name (string) or a list index (int).
type PathElement any

// Path identifies a position in the response tree. Paths are immutable:
// AppendField and AppendIndex copy, so a captured Path is never changed by
// later traversal. Two paths are equal iff their segment sequences are equal.
type Path []PathElement

// EmptyPath is the root position.
func EmptyPath() Path { return Path{} }

// AppendField returns a new path extended with a response field name.
func (p Path) AppendField(name string) Path { return p.append(name) }

// AppendIndex returns a new path extended with a list index.
func (p Path) AppendIndex(i int) Path { return p.append(i) }

func (p Path) append(elem PathElement) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = elem
	return out
}

// Segments returns the path as a plain slice, the wire form used in patch and
// error objects.
func (p Path) Segments() []any {
	out := make([]any, len(p))
	for i, elem := range p {
		out[i] = elem
	}
	return out
}

// Key returns the canonical string form used as a map key. Segments are
// joined with "."; field names cannot contain the separator, so the form is
// injective.
func (p Path) Key() string {
	var b strings.Builder
	for i, elem := range p {
		if i > 0 {
			b.WriteByte('.')
		}
		switch v := elem.(type) {
		case string:
			b.WriteString(v)
		case int:
			b.WriteString(strconv.Itoa(v))
		}
	}
	return b.String()
}

func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// commonPrefix returns the longest path that is a prefix of both a and b.
func commonPrefix(a, b Path) Path {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i:i]
}
