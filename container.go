// FILE: lixenwraith/phaseconf/container.go
package phaseconf

import "strings"

// Container locates a schema member inside the materialized graph.
// Parents are navigation back-references only; the trie owns the containers.
type Container interface {
	// Parent is the container of the enclosing group or map, nil for root members.
	Parent() Container
	// Member is the schema member stored at this location.
	Member() Member
	// Template is the dotted key template of this location, relative to the key prefix.
	Template() string
	// Lazy reports whether the location lies inside a map entry or an optional group.
	Lazy() bool
}

// FieldContainer is a member reached through a named field of its enclosing group.
type FieldContainer struct {
	parent   Container
	member   Member
	template string
	lazy     bool
}

// MapContainer is an entry value reached through one dynamic key segment of a map.
// Its member is the map's nested value member; its parent locates the map itself.
type MapContainer struct {
	parent   Container
	member   Member
	template string
}

func newFieldContainer(parent Container, member Member, template string) *FieldContainer {
	lazy := false
	if parent != nil {
		lazy = parent.Lazy()
		if _, ok := parent.(*MapContainer); ok {
			lazy = true
		}
		if gm, ok := parent.Member().(*GroupMember); ok && gm.Optional {
			lazy = true
		}
	}
	return &FieldContainer{parent: parent, member: member, template: template, lazy: lazy}
}

func (c *FieldContainer) Parent() Container { return c.parent }
func (c *FieldContainer) Member() Member    { return c.member }
func (c *FieldContainer) Template() string  { return c.template }
func (c *FieldContainer) Lazy() bool        { return c.lazy }

func (c *MapContainer) Parent() Container { return c.parent }
func (c *MapContainer) Member() Member    { return c.member }
func (c *MapContainer) Template() string  { return c.template }

// Lazy is always true: map entries exist only once a key names them.
func (c *MapContainer) Lazy() bool { return true }

// patternBuilder collects the key templates of one phase.
type patternBuilder struct {
	trie       *PatternMap[Container]
	containers []Container
}

// buildPatternMaps builds the active trie of every phase, indexed by Phase.
// Payloads are leaf containers: items reached by field and map values reached by key.
func buildPatternMaps(schema *Schema) ([phaseCount]*PatternMap[Container], []Container, error) {
	var tries [phaseCount]*PatternMap[Container]
	for i := range tries {
		tries[i] = NewPatternMap[Container]()
	}
	b := &patternBuilder{}
	for _, root := range schema.Roots {
		b.trie = tries[root.Phase]
		if err := b.addClass(root.ClassDefinition, nil, splitSegments(root.Name)); err != nil {
			return tries, nil, err
		}
	}
	return tries, b.containers, nil
}

func (b *patternBuilder) addClass(def *ClassDefinition, parent Container, path []string) error {
	for _, m := range def.Members {
		if err := b.addMember(m, parent, path); err != nil {
			return err
		}
	}
	return nil
}

func (b *patternBuilder) addMember(m Member, parent Container, path []string) error {
	if p := m.PropertyName(); p != "" {
		path = append(path[:len(path):len(path)], p)
	}
	fc := newFieldContainer(parent, m, strings.Join(path, "."))
	b.containers = append(b.containers, fc)

	switch v := m.(type) {
	case *ItemMember:
		return b.trie.Insert(path, fc)
	case *GroupMember:
		return b.addClass(v.Group, fc, path)
	case *MapMember:
		return b.addMapValue(v.Nested, fc, path)
	}
	return schemaErrorf("unrecognized member type %T", m)
}

// addMapValue descends through one wildcard level for the value member of a map.
func (b *patternBuilder) addMapValue(nested Member, parent Container, path []string) error {
	path = append(path[:len(path):len(path)], Wildcard)
	mc := &MapContainer{parent: parent, member: nested, template: strings.Join(path, ".")}
	b.containers = append(b.containers, mc)

	switch v := nested.(type) {
	case *ItemMember:
		return b.trie.Insert(path, mc)
	case *GroupMember:
		return b.addClass(v.Group, mc, path)
	case *MapMember:
		return b.addMapValue(v.Nested, mc, path)
	}
	return schemaErrorf("unrecognized map value type %T", nested)
}
