// FILE: lixenwraith/phaseconf/resolver.go
package phaseconf

// materializer is the state of one phase run. It is single-threaded and discarded once the
// graph is published.
type materializer struct {
	prog    *Program
	pp      *phaseProgram
	sources *SourceSet
	diags   *Diagnostics
	roots   map[*ClassDefinition]*Group
	raw     map[string]string
	strict  map[string]bool
	created int
}

// read converts one key. Failures are recorded and reported as absent.
func (m *materializer) read(key string, conv Converter) (any, bool) {
	v, raw, found, err := m.sources.value(key, conv)
	if found {
		m.raw[key] = raw
	}
	if err != nil {
		m.diags.record(key, err)
		return nil, false
	}
	return v, true
}

// newGroup creates and initializes a group instance whose rendered key prefix is name.
// Items are read, non-optional groups created recursively, maps start empty and optional
// groups absent. PostInit runs last, exactly once per instance.
func (m *materializer) newGroup(def *ClassDefinition, name string) *Group {
	plan := m.prog.plans[def]
	g := newGroup(def, name)
	m.created++
	for _, step := range plan.steps {
		key := joinKey(name, step.property)
		switch step.kind {
		case stepItem:
			if v, ok := m.read(key, step.conv); ok {
				g.set(step.field, v)
			}
		case stepGroup:
			g.set(step.field, m.newGroup(step.plan.def, key))
		case stepOptionalGroup:
			g.set(step.field, (*Group)(nil))
		case stepMap:
			g.set(step.field, make(map[string]any))
		}
	}
	if def.PostInit != nil {
		def.PostInit(g)
	}
	return g
}

// assign handles a key that ended on a matched leaf. The cursor sits after the last segment
// and is left there.
func (m *materializer) assign(c Container, it *NameIterator) {
	switch c := c.(type) {
	case *FieldContainer:
		// Eager items were read with their group; a lazy item is read when its group is
		// created, so only the enclosing chain needs resolving.
		if !c.Lazy() {
			return
		}
		if c.member.PropertyName() != "" {
			it.Previous()
			m.enclosingOf(c, it)
			it.Next()
			return
		}
		m.enclosingOf(c, it)

	case *MapContainer:
		item, ok := c.member.(*ItemMember)
		if !ok {
			return
		}
		key := it.PreviousSegment()
		it.Previous()
		entries := m.mapOf(c, it)
		it.Next()
		if _, exists := entries[key]; exists {
			return
		}
		if v, ok := m.read(it.Name(), m.prog.converters[item]); ok {
			entries[key] = v
		}
	}
}

// enclosingOf returns the group holding fc's member, creating optional groups and map entry
// groups on first reference. The cursor is positioned before fc's own segment and is
// restored before returning.
func (m *materializer) enclosingOf(fc *FieldContainer, it *NameIterator) *Group {
	switch p := fc.parent.(type) {
	case nil:
		return m.roots[fc.member.Enclosing()]

	case *FieldContainer:
		gm := p.member.(*GroupMember)
		var outer *Group
		if gm.PropertyName() != "" {
			it.Previous()
			outer = m.enclosingOf(p, it)
			it.Next()
		} else {
			outer = m.enclosingOf(p, it)
		}
		g := outer.Group(gm.FieldName())
		if g == nil {
			g = m.newGroup(gm.Group, it.AllPreviousSegments())
			outer.set(gm.FieldName(), g)
		}
		return g

	case *MapContainer:
		gm := p.member.(*GroupMember)
		key := it.PreviousSegment()
		it.Previous()
		entries := m.mapOf(p, it)
		it.Next()
		if g, ok := entries[key].(*Group); ok {
			return g
		}
		g := m.newGroup(gm.Group, it.AllPreviousSegments())
		entries[key] = g
		return g
	}
	return nil
}

// mapOf returns the map whose entries mc describes, creating nested maps on first
// reference. The cursor is positioned before the entry key and is restored before returning.
func (m *materializer) mapOf(mc *MapContainer, it *NameIterator) map[string]any {
	switch p := mc.parent.(type) {
	case *FieldContainer:
		it.Previous()
		g := m.enclosingOf(p, it)
		it.Next()
		return g.mapField(p.member.FieldName())

	case *MapContainer:
		key := it.PreviousSegment()
		it.Previous()
		outer := m.mapOf(p, it)
		it.Next()
		inner, ok := outer[key].(map[string]any)
		if !ok {
			inner = make(map[string]any)
			outer[key] = inner
		}
		return inner
	}
	return nil
}

// unknown records a key no routine accepts. Keys only lenient sources offer are skipped.
func (m *materializer) unknown(it *NameIterator) {
	if !m.strict[it.Name()] {
		return
	}
	if m.pp.phase == PhaseRunTime {
		m.diags.UnknownAtStart(it)
		return
	}
	m.diags.Unknown(it)
}
