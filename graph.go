// FILE: lixenwraith/phaseconf/graph.go
package phaseconf

import (
	"bytes"
	"fmt"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Group is one materialized instance of a ClassDefinition.
// Field values are converted leaves, *Group for groups (nil while an optional group is
// absent) and map[string]any for maps.
type Group struct {
	def    *ClassDefinition
	name   string
	values map[string]any
}

func newGroup(def *ClassDefinition, name string) *Group {
	return &Group{def: def, name: name, values: make(map[string]any, len(def.Members))}
}

// Definition returns the class of the group.
func (g *Group) Definition() *ClassDefinition { return g.def }

// Name returns the rendered key prefix of the group.
func (g *Group) Name() string { return g.name }

// Get returns the value of a field. Map fields are returned as copies.
func (g *Group) Get(field string) (any, bool) {
	v, ok := g.values[field]
	if m, isMap := v.(map[string]any); isMap {
		return cloneEntries(m), ok
	}
	return v, ok
}

// Group returns a nested group field, nil when absent.
func (g *Group) Group(field string) *Group {
	nested, _ := g.values[field].(*Group)
	return nested
}

// Map returns a copy of a map field, nil when the field is not a map.
// Entry groups are shared with the graph.
func (g *Group) Map(field string) map[string]any {
	m, ok := g.values[field].(map[string]any)
	if !ok {
		return nil
	}
	return cloneEntries(m)
}

// cloneEntries copies a map field, descending into maps of maps.
func cloneEntries(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = cloneEntries(nested)
		}
		out[k] = v
	}
	return out
}

func (g *Group) mapField(field string) map[string]any {
	m, ok := g.values[field].(map[string]any)
	if !ok {
		m = make(map[string]any)
		g.values[field] = m
	}
	return m
}

func (g *Group) set(field string, v any) {
	g.values[field] = v
}

// AsMap renders the group keyed by property names. Unwrapped groups merge into their
// parent, absent optional groups and nil values are omitted.
func (g *Group) AsMap() map[string]any {
	out := make(map[string]any)
	g.renderInto(out)
	return out
}

func (g *Group) renderInto(out map[string]any) {
	if g == nil {
		return
	}
	for _, m := range g.def.Members {
		v, ok := g.values[m.FieldName()]
		if !ok || isNilValue(v) {
			continue
		}
		if nested, isGroup := v.(*Group); isGroup && m.PropertyName() == "" {
			nested.renderInto(out)
			continue
		}
		out[m.PropertyName()] = renderValue(v)
	}
}

func renderValue(v any) any {
	switch t := v.(type) {
	case *Group:
		return t.AsMap()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, entry := range t {
			if !isNilValue(entry) {
				out[k] = renderValue(entry)
			}
		}
		return out
	default:
		return v
	}
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

type graphRoot struct {
	def   *RootDefinition
	group *Group
}

// Graph is the immutable result of one phase transition.
type Graph struct {
	phase      Phase
	generation uuid.UUID
	created    time.Time
	prefix     string
	roots      []graphRoot
	warnings   []Problem
	raw        map[string]string
}

// Phase returns the phase the graph was materialized for.
func (g *Graph) Phase() Phase { return g.phase }

// Generation identifies this materialization.
func (g *Graph) Generation() uuid.UUID { return g.generation }

// Created returns the materialization time.
func (g *Graph) Created() time.Time { return g.created }

// Warnings returns the problems that did not fail the phase.
func (g *Graph) Warnings() []Problem {
	out := make([]Problem, len(g.warnings))
	copy(out, g.warnings)
	return out
}

// RawValues returns the raw strings read for every key a source provided.
func (g *Graph) RawValues() map[string]string {
	out := make(map[string]string, len(g.raw))
	for k, v := range g.raw {
		out[k] = v
	}
	return out
}

// Root returns the instance of the root with the given name.
func (g *Graph) Root(name string) *Group {
	for _, r := range g.roots {
		if r.def.Name == name {
			return r.group
		}
	}
	return nil
}

// RootNames lists the root names in schema order.
func (g *Graph) RootNames() []string {
	names := make([]string, len(g.roots))
	for i, r := range g.roots {
		names[i] = r.def.Name
	}
	return names
}

// AsMap renders every root as one nested map, keyed without the key prefix.
func (g *Graph) AsMap() map[string]any {
	out := make(map[string]any)
	for _, r := range g.roots {
		rendered := r.group.AsMap()
		if r.def.Name == "" {
			for k, v := range rendered {
				out[k] = v
			}
			continue
		}
		setNestedValue(out, r.def.Name, rendered)
	}
	return out
}

// Lookup returns the value at a dotted path, relative to the key prefix.
func (g *Graph) Lookup(path string) (any, bool) {
	return lookupPath(g.AsMap(), path)
}

func lookupPath(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, seg := range splitSegments(path) {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return current, true
}

// Scan decodes the value at a dotted path into target using toml tags.
// An empty path scans the whole graph.
func (g *Graph) Scan(path string, target any) error {
	var data map[string]any
	if path == "" {
		data = g.AsMap()
	} else {
		v, ok := g.Lookup(path)
		if !ok {
			return fmt.Errorf("path %q not found in %s graph", path, g.phase)
		}
		if data, ok = v.(map[string]any); !ok {
			return fmt.Errorf("path %q is not a group or map", path)
		}
	}
	if err := scanInto(data, target); err != nil {
		return fmt.Errorf("failed to scan %q: %w", path, err)
	}
	return nil
}

// Export renders the graph for document encoders, key prefix included. Durations and
// other Stringer leaves become strings and optional values are dereferenced.
func (g *Graph) Export() map[string]any {
	data := g.AsMap()
	if g.prefix != "" {
		wrapped := make(map[string]any)
		setNestedValue(wrapped, g.prefix, data)
		data = wrapped
	}
	return exportable(data).(map[string]any)
}

// MarshalTOML renders the graph as a TOML document, key prefix included.
func (g *Graph) MarshalTOML() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(g.Export()); err != nil {
		return nil, fmt.Errorf("failed to marshal config data to TOML: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveTOML writes the graph to a TOML file atomically.
func (g *Graph) SaveTOML(path string) error {
	data, err := g.MarshalTOML()
	if err != nil {
		return err
	}
	return atomicWriteFile(path, data)
}

// exportable rewrites values into shapes every document encoder accepts.
func exportable(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, entry := range t {
			out[k] = exportable(entry)
		}
		return out
	case time.Time:
		return t
	case time.Duration:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return exportable(rv.Elem().Interface())
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = exportable(rv.Index(i).Interface())
		}
		return out
	}
	return v
}
