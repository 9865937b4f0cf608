// FILE: lixenwraith/phaseconf/schema.go
package phaseconf

import (
	"fmt"
	"strings"
)

// Phase identifies when a configuration root becomes available.
type Phase int

const (
	// PhaseBuildTime roots are read ahead of time only
	PhaseBuildTime Phase = iota
	// PhaseBuildAndRunTimeFixed roots are read ahead of time and stay visible, unchanged, at start time
	PhaseBuildAndRunTimeFixed
	// PhaseRunTime roots are read once when the process starts
	PhaseRunTime

	phaseCount = int(PhaseRunTime) + 1
)

// Phases lists every phase in transition order.
var Phases = []Phase{PhaseBuildTime, PhaseBuildAndRunTimeFixed, PhaseRunTime}

func (p Phase) String() string {
	switch p {
	case PhaseBuildTime:
		return "build-time"
	case PhaseBuildAndRunTimeFixed:
		return "build-and-run-time-fixed"
	case PhaseRunTime:
		return "run-time"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Valid reports whether p is one of the three known phases.
func (p Phase) Valid() bool {
	return p >= PhaseBuildTime && p <= PhaseRunTime
}

// ParsePhase accepts the names returned by Phase.String.
func ParsePhase(s string) (Phase, error) {
	for _, p := range Phases {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	switch strings.ToLower(s) {
	case "build", "buildtime":
		return PhaseBuildTime, nil
	case "fixed":
		return PhaseBuildAndRunTimeFixed, nil
	case "run", "runtime":
		return PhaseRunTime, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// Member is one field of a ClassDefinition: an *ItemMember, *GroupMember or *MapMember.
type Member interface {
	// FieldName is the key under which a materialized Group stores this member.
	FieldName() string
	// PropertyName is the key segment contributed by this member, empty when unwrapped.
	PropertyName() string
	// Enclosing is the definition that owns this member.
	Enclosing() *ClassDefinition

	setEnclosing(def *ClassDefinition)
}

type memberBase struct {
	Name      string
	Property  string
	enclosing *ClassDefinition
}

func (m *memberBase) FieldName() string                { return m.Name }
func (m *memberBase) PropertyName() string             { return m.Property }
func (m *memberBase) Enclosing() *ClassDefinition      { return m.enclosing }
func (m *memberBase) setEnclosing(def *ClassDefinition) { m.enclosing = def }

// ItemMember is a leaf value converted from a raw string.
type ItemMember struct {
	memberBase
	Type       ConverterType
	Default    string
	HasDefault bool
}

// GroupMember holds a nested group. Optional groups stay absent until one of their keys is seen.
type GroupMember struct {
	memberBase
	Group    *ClassDefinition
	Optional bool
}

// MapMember holds entries keyed by one dynamic key segment.
// Nested describes the entry value and never has a property name of its own.
type MapMember struct {
	memberBase
	Nested Member
}

// Item creates an item member.
func Item(name, property string, t ConverterType) *ItemMember {
	return &ItemMember{memberBase: memberBase{Name: name, Property: property}, Type: t}
}

// WithDefault sets the default value string and returns the member.
func (m *ItemMember) WithDefault(value string) *ItemMember {
	m.Default, m.HasDefault = value, true
	return m
}

// NestedGroup creates a group member.
func NestedGroup(name, property string, def *ClassDefinition, optional bool) *GroupMember {
	return &GroupMember{memberBase: memberBase{Name: name, Property: property}, Group: def, Optional: optional}
}

// MapOf creates a map member whose entries are described by nested.
func MapOf(name, property string, nested Member) *MapMember {
	return &MapMember{memberBase: memberBase{Name: name, Property: property}, Nested: nested}
}

// MapValue creates the nested item of a map with leaf values.
func MapValue(t ConverterType) *ItemMember {
	return &ItemMember{memberBase: memberBase{Name: "*"}, Type: t}
}

// MapGroup creates the nested group of a map with group values.
func MapGroup(def *ClassDefinition) *GroupMember {
	return &GroupMember{memberBase: memberBase{Name: "*"}, Group: def}
}

// MapOfMaps creates the nested map of a map with map values.
func MapOfMaps(nested Member) *MapMember {
	return &MapMember{memberBase: memberBase{Name: "*"}, Nested: nested}
}

// ClassDefinition is the shape of a group: an ordered list of members.
type ClassDefinition struct {
	Name    string
	Members []Member
	// PostInit runs once for every instance, after all of its members are initialized.
	PostInit func(g *Group)
}

// NewClass creates a class definition and claims ownership of its members.
func NewClass(name string, members ...Member) *ClassDefinition {
	def := &ClassDefinition{Name: name, Members: members}
	def.adopt()
	return def
}

func (d *ClassDefinition) adopt() {
	for _, m := range d.Members {
		m.setEnclosing(d)
		if mm, ok := m.(*MapMember); ok {
			adoptNested(d, mm)
		}
	}
}

// adoptNested gives map value members the map's enclosing definition.
func adoptNested(d *ClassDefinition, mm *MapMember) {
	if mm.Nested == nil {
		return
	}
	mm.Nested.setEnclosing(d)
	if inner, ok := mm.Nested.(*MapMember); ok {
		adoptNested(d, inner)
	}
}

// RootDefinition is a top-level class bound to a key prefix and a phase.
type RootDefinition struct {
	*ClassDefinition
	// Name is the dotted key prefix of the root, possibly empty.
	Name  string
	Phase Phase
}

// NewRoot creates a root definition.
func NewRoot(name string, phase Phase, def *ClassDefinition) *RootDefinition {
	return &RootDefinition{ClassDefinition: def, Name: name, Phase: phase}
}

// Schema is the ordered set of roots handed to Compile.
type Schema struct {
	Roots []*RootDefinition
}

// NewSchema creates a schema from roots.
func NewSchema(roots ...*RootDefinition) *Schema {
	return &Schema{Roots: roots}
}

// RootsIn returns the roots declared for a phase, in schema order.
func (s *Schema) RootsIn(phase Phase) []*RootDefinition {
	var out []*RootDefinition
	for _, r := range s.Roots {
		if r.Phase == phase {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks structural invariants that the compiler relies on.
func (s *Schema) Validate() error {
	if s == nil {
		return schemaErrorf("nil schema")
	}
	classRoots := make(map[*ClassDefinition]*RootDefinition)
	for i, r := range s.Roots {
		if r == nil || r.ClassDefinition == nil {
			return schemaErrorf("root %d has no class definition", i)
		}
		if !r.Phase.Valid() {
			return fmt.Errorf("root %q: %w: %d", r.Name, ErrUnknownPhase, int(r.Phase))
		}
		if other, dup := classRoots[r.ClassDefinition]; dup {
			return schemaErrorf("class %s is shared by roots %q and %q", r.ClassDefinition.Name, other.Name, r.Name)
		}
		classRoots[r.ClassDefinition] = r
		for _, seg := range splitSegments(r.Name) {
			if !isValidKeySegment(seg) {
				return schemaErrorf("invalid segment %q in root name %q", seg, r.Name)
			}
		}
		if err := validateClass(r.ClassDefinition, make(map[*ClassDefinition]bool)); err != nil {
			return fmt.Errorf("root %q: %w", r.Name, err)
		}
	}
	return nil
}

func validateClass(def *ClassDefinition, visiting map[*ClassDefinition]bool) error {
	if visiting[def] {
		return schemaErrorf("class %s contains itself", def.Name)
	}
	visiting[def] = true
	defer delete(visiting, def)

	fields := make(map[string]bool, len(def.Members))
	for _, m := range def.Members {
		if m == nil {
			return schemaErrorf("class %s has a nil member", def.Name)
		}
		if m.FieldName() == "" || fields[m.FieldName()] {
			return schemaErrorf("class %s has an empty or duplicate field %q", def.Name, m.FieldName())
		}
		fields[m.FieldName()] = true
		if p := m.PropertyName(); p != "" && !isValidKeySegment(p) {
			return schemaErrorf("class %s: invalid property name %q", def.Name, p)
		}
		if _, isGroup := m.(*GroupMember); !isGroup && m.PropertyName() == "" {
			return schemaErrorf("class %s: only groups may omit a property name, %q does not", def.Name, m.FieldName())
		}
		if m.Enclosing() != def {
			return schemaErrorf("member %q is not owned by class %s", m.FieldName(), def.Name)
		}
		if err := validateMember(m, visiting); err != nil {
			return err
		}
	}
	return nil
}

func validateMember(m Member, visiting map[*ClassDefinition]bool) error {
	switch v := m.(type) {
	case *ItemMember:
		if v.Type == nil {
			return schemaErrorf("item %q has no converter type", v.Name)
		}
	case *GroupMember:
		if v.Group == nil {
			return schemaErrorf("group %q has no definition", v.Name)
		}
		return validateClass(v.Group, visiting)
	case *MapMember:
		if v.Nested == nil {
			return schemaErrorf("map %q has no value member", v.Name)
		}
		if v.Nested.PropertyName() != "" {
			return schemaErrorf("map %q value member must not have a property name", v.Name)
		}
		if g, ok := v.Nested.(*GroupMember); ok && g.Optional {
			return schemaErrorf("map %q value group cannot be optional", v.Name)
		}
		return validateMember(v.Nested, visiting)
	default:
		return schemaErrorf("unrecognized member type %T", m)
	}
	return nil
}
