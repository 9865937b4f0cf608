// FILE: lixenwraith/phaseconf/trie.go
package phaseconf

import (
	"sort"
	"strings"
)

// Wildcard is the template segment standing for any single map key.
const Wildcard = "*"

// PatternMap is a trie over key segments with at most one wildcard child per node.
// A node with a payload terminates a key template.
type PatternMap[T any] struct {
	children map[string]*PatternMap[T]
	wildcard *PatternMap[T]
	payload  T
	matched  bool
}

// NewPatternMap creates an empty trie node.
func NewPatternMap[T any]() *PatternMap[T] {
	return &PatternMap[T]{}
}

// Insert adds a template. A second payload at the same full path is a schema inconsistency.
func (m *PatternMap[T]) Insert(segments []string, payload T) error {
	node := m
	for _, seg := range segments {
		node = node.childOrCreate(seg)
	}
	if node.matched {
		return schemaErrorf("key template %q is declared twice", strings.Join(segments, "."))
	}
	node.payload, node.matched = payload, true
	return nil
}

func (m *PatternMap[T]) childOrCreate(seg string) *PatternMap[T] {
	if seg == Wildcard {
		if m.wildcard == nil {
			m.wildcard = NewPatternMap[T]()
		}
		return m.wildcard
	}
	if m.children == nil {
		m.children = make(map[string]*PatternMap[T])
	}
	child, ok := m.children[seg]
	if !ok {
		child = NewPatternMap[T]()
		m.children[seg] = child
	}
	return child
}

// Child returns the literal child for a segment, or nil.
func (m *PatternMap[T]) Child(name string) *PatternMap[T] {
	if m == nil {
		return nil
	}
	return m.children[name]
}

// Wildcard returns the wildcard child, or nil.
func (m *PatternMap[T]) Wildcard() *PatternMap[T] {
	if m == nil {
		return nil
	}
	return m.wildcard
}

// ChildNames returns the literal child segments in sorted order.
func (m *PatternMap[T]) ChildNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.children))
	for name := range m.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Matched returns the payload of this node.
func (m *PatternMap[T]) Matched() (T, bool) {
	if m == nil {
		var zero T
		return zero, false
	}
	return m.payload, m.matched
}

// IsEmpty reports whether the node has neither payload nor children.
func (m *PatternMap[T]) IsEmpty() bool {
	return m == nil || (!m.matched && len(m.children) == 0 && m.wildcard == nil)
}

// Match walks a key literal-first. A literal child always wins over the wildcard;
// the walk never backtracks.
func (m *PatternMap[T]) Match(it *NameIterator) (T, bool) {
	node := m
	for node != nil && it.HasNext() {
		seg := it.NextSegment()
		if child := node.Child(seg); child != nil {
			node = child
		} else {
			node = node.wildcard
		}
		it.Next()
	}
	return node.Matched()
}

// Walk visits every payload with its template segments, literal children in sorted order
// before the wildcard.
func (m *PatternMap[T]) Walk(fn func(path []string, payload T)) {
	m.walk(nil, fn)
}

func (m *PatternMap[T]) walk(path []string, fn func([]string, T)) {
	if m == nil {
		return
	}
	if m.matched {
		fn(path, m.payload)
	}
	for _, name := range m.ChildNames() {
		m.children[name].walk(append(path[:len(path):len(path)], name), fn)
	}
	m.wildcard.walk(append(path[:len(path):len(path)], Wildcard), fn)
}

// Templates lists every key template in walk order.
func (m *PatternMap[T]) Templates() []string {
	var out []string
	m.Walk(func(path []string, _ T) {
		out = append(out, strings.Join(path, "."))
	})
	return out
}

// PrunePatternMap returns a new trie holding the payloads keep accepts, transformed;
// branches left without payloads are dropped.
func PrunePatternMap[T, U any](m *PatternMap[T], keep func(T) (U, bool)) *PatternMap[U] {
	if m == nil {
		return nil
	}
	out := NewPatternMap[U]()
	if m.matched {
		out.payload, out.matched = keep(m.payload)
	}
	for name, child := range m.children {
		if pruned := PrunePatternMap(child, keep); !pruned.IsEmpty() {
			if out.children == nil {
				out.children = make(map[string]*PatternMap[U])
			}
			out.children[name] = pruned
		}
	}
	if pruned := PrunePatternMap(m.wildcard, keep); !pruned.IsEmpty() {
		out.wildcard = pruned
	}
	return out
}

// MergePatternMaps returns a new trie holding the union of a and b.
// When both carry a payload at one path, combine decides; a nil combine keeps a's payload.
// The inputs are not modified.
func MergePatternMaps[T any](a, b *PatternMap[T], combine func(left, right T) T) *PatternMap[T] {
	if a == nil && b == nil {
		return nil
	}
	out := NewPatternMap[T]()
	switch {
	case a != nil && a.matched && b != nil && b.matched:
		out.payload, out.matched = a.payload, true
		if combine != nil {
			out.payload = combine(a.payload, b.payload)
		}
	case a != nil && a.matched:
		out.payload, out.matched = a.payload, true
	case b != nil && b.matched:
		out.payload, out.matched = b.payload, true
	}

	names := make(map[string]struct{})
	for _, name := range a.ChildNames() {
		names[name] = struct{}{}
	}
	for _, name := range b.ChildNames() {
		names[name] = struct{}{}
	}
	if len(names) > 0 {
		out.children = make(map[string]*PatternMap[T], len(names))
		for name := range names {
			out.children[name] = MergePatternMaps(a.Child(name), b.Child(name), combine)
		}
	}
	out.wildcard = MergePatternMaps(a.Wildcard(), b.Wildcard(), combine)
	return out
}
