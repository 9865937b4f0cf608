// FILE: lixenwraith/phaseconf/routine.go
package phaseconf

import (
	"sort"
	"strconv"
	"strings"
)

// routine is the decision procedure of one (active node, ignored node) pair.
// Routines are data; run interprets them. Structurally identical routines are shared.
type routine struct {
	id       int
	match    Container
	ignored  bool
	children map[string]*routine
	wildcard *routine
}

// run dispatches the remainder of a key, one segment at a time:
// end of key, then literal child (active before ignored-only), then wildcard, else unknown.
func (r *routine) run(m *materializer, it *NameIterator) {
	for {
		if !it.HasNext() {
			switch {
			case r.match != nil:
				m.assign(r.match, it)
			case r.ignored:
			default:
				m.unknown(it)
			}
			return
		}
		next, ok := r.children[it.NextSegment()]
		if !ok {
			next = r.wildcard
		}
		if next == nil {
			m.unknown(it)
			return
		}
		it.Next()
		r = next
	}
}

type routinePair struct {
	active  *PatternMap[Container]
	ignored *PatternMap[Container]
}

// routineCompiler memoizes routines per node pair and hash-conses them by shape.
type routineCompiler struct {
	byPair  map[routinePair]*routine
	byShape map[string]*routine
	payload map[Container]int
}

func newRoutineCompiler() *routineCompiler {
	return &routineCompiler{
		byPair:  make(map[routinePair]*routine),
		byShape: make(map[string]*routine),
		payload: make(map[Container]int),
	}
}

// count returns the number of distinct routines emitted.
func (c *routineCompiler) count() int {
	return len(c.byShape)
}

func (c *routineCompiler) compile(active, ignored *PatternMap[Container]) *routine {
	pair := routinePair{active: active, ignored: ignored}
	if r, ok := c.byPair[pair]; ok {
		return r
	}

	r := &routine{children: make(map[string]*routine)}
	r.match, _ = active.Matched()
	_, r.ignored = ignored.Matched()

	for _, name := range active.ChildNames() {
		ign := ignored.Child(name)
		if ign == nil {
			ign = ignored.Wildcard()
		}
		r.children[name] = c.compile(active.Child(name), ign)
	}
	// an ignored-only literal still matches the active wildcard
	for _, name := range ignored.ChildNames() {
		if _, ok := r.children[name]; !ok {
			r.children[name] = c.compile(active.Wildcard(), ignored.Child(name))
		}
	}
	if active.Wildcard() != nil || ignored.Wildcard() != nil {
		r.wildcard = c.compile(active.Wildcard(), ignored.Wildcard())
	}

	shape := c.shape(r)
	if shared, ok := c.byShape[shape]; ok {
		c.byPair[pair] = shared
		return shared
	}
	r.id = len(c.byShape)
	c.byShape[shape] = r
	c.byPair[pair] = r
	return r
}

// shape is the structural key of a routine whose children are already interned.
func (c *routineCompiler) shape(r *routine) string {
	var b strings.Builder
	b.WriteString("m")
	if r.match != nil {
		id, ok := c.payload[r.match]
		if !ok {
			id = len(c.payload) + 1
			c.payload[r.match] = id
		}
		b.WriteString(strconv.Itoa(id))
	}
	if r.ignored {
		b.WriteString("|i")
	}
	b.WriteString("|w")
	if r.wildcard != nil {
		b.WriteString(strconv.Itoa(r.wildcard.id))
	}

	names := make([]string, 0, len(r.children))
	for name := range r.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString("|")
		b.WriteString(strconv.Quote(name))
		b.WriteString("=")
		b.WriteString(strconv.Itoa(r.children[name].id))
	}
	return b.String()
}
