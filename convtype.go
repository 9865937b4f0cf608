// FILE: lixenwraith/phaseconf/convtype.go
package phaseconf

import (
	"fmt"
	"reflect"
)

// ConverterType describes how a converter for a schema member is composed.
// Variants are comparable values: two structurally equal descriptors compare equal
// with ==, which is what the converter cache keys on. Pointer variants are rejected.
type ConverterType interface {
	// RuntimeType is the Go type produced by converters built from this descriptor.
	RuntimeType() reflect.Type
	fmt.Stringer
	converterType()
}

// CollectionKind selects the collection factory of a CollectionOf descriptor.
type CollectionKind int

const (
	CollectionList CollectionKind = iota
	CollectionSet
	CollectionSortedSet
)

func (k CollectionKind) String() string {
	switch k {
	case CollectionList:
		return "list"
	case CollectionSet:
		return "set"
	case CollectionSortedSet:
		return "sorted-set"
	default:
		return fmt.Sprintf("collection(%d)", int(k))
	}
}

// Leaf converts a single raw value into Type.
// ConvertWith optionally names an explicit converter type implementing Converter.
type Leaf struct {
	Type        reflect.Type
	ConvertWith reflect.Type
}

// ArrayOf converts a comma separated value into a slice of the element type.
type ArrayOf struct {
	Element   ConverterType
	ArrayType reflect.Type
}

// CollectionOf converts a comma separated value into a list, set or sorted set.
type CollectionOf struct {
	Element ConverterType
	Kind    CollectionKind
}

// OptionalOf converts an absent or empty value into a nil pointer instead of a missing value.
type OptionalOf struct {
	Nested ConverterType
}

// MinMaxValidated checks the converted value against at least one bound.
// Bounds are raw strings converted with the nested converter.
type MinMaxValidated struct {
	Nested       ConverterType
	Min          string
	Max          string
	HasMin       bool
	HasMax       bool
	MinInclusive bool
	MaxInclusive bool
}

// PatternValidated checks the raw value against a regular expression before conversion.
type PatternValidated struct {
	Nested  ConverterType
	Pattern string
}

// LowerBoundCheckOf requires Bound to be assignable to the converted value's type.
// A nil Bound leaves the nested converter unchanged.
type LowerBoundCheckOf struct {
	Nested ConverterType
	Bound  reflect.Type
}

// UpperBoundCheckOf requires the converted value's type to be assignable to Bound.
// A nil Bound leaves the nested converter unchanged.
type UpperBoundCheckOf struct {
	Nested ConverterType
	Bound  reflect.Type
}

// LeafFor returns the leaf descriptor of T.
func LeafFor[T any]() Leaf {
	return Leaf{Type: reflect.TypeFor[T]()}
}

func (l Leaf) RuntimeType() reflect.Type { return l.Type }

func (a ArrayOf) RuntimeType() reflect.Type {
	if a.ArrayType != nil {
		return a.ArrayType
	}
	return reflect.SliceOf(a.Element.RuntimeType())
}

func (c CollectionOf) RuntimeType() reflect.Type {
	return reflect.SliceOf(c.Element.RuntimeType())
}

func (o OptionalOf) RuntimeType() reflect.Type {
	return reflect.PointerTo(o.Nested.RuntimeType())
}

func (m MinMaxValidated) RuntimeType() reflect.Type   { return m.Nested.RuntimeType() }
func (p PatternValidated) RuntimeType() reflect.Type  { return p.Nested.RuntimeType() }
func (b LowerBoundCheckOf) RuntimeType() reflect.Type { return b.Nested.RuntimeType() }
func (b UpperBoundCheckOf) RuntimeType() reflect.Type { return b.Nested.RuntimeType() }

func (l Leaf) String() string {
	if l.ConvertWith != nil {
		return fmt.Sprintf("%v(%v)", l.Type, l.ConvertWith)
	}
	return fmt.Sprint(l.Type)
}

func (a ArrayOf) String() string      { return fmt.Sprintf("array<%v>", a.Element) }
func (c CollectionOf) String() string { return fmt.Sprintf("%v<%v>", c.Kind, c.Element) }
func (o OptionalOf) String() string   { return fmt.Sprintf("optional<%v>", o.Nested) }

func (m MinMaxValidated) String() string {
	lo, hi := "(", ")"
	if m.MinInclusive {
		lo = "["
	}
	if m.MaxInclusive {
		hi = "]"
	}
	return fmt.Sprintf("%v%s%s,%s%s", m.Nested, lo, m.Min, m.Max, hi)
}

func (p PatternValidated) String() string  { return fmt.Sprintf("%v~/%s/", p.Nested, p.Pattern) }
func (b LowerBoundCheckOf) String() string { return fmt.Sprintf("%v>:%v", b.Nested, b.Bound) }
func (b UpperBoundCheckOf) String() string { return fmt.Sprintf("%v<:%v", b.Nested, b.Bound) }

func (Leaf) converterType()              {}
func (ArrayOf) converterType()           {}
func (CollectionOf) converterType()      {}
func (OptionalOf) converterType()        {}
func (MinMaxValidated) converterType()   {}
func (PatternValidated) converterType()  {}
func (LowerBoundCheckOf) converterType() {}
func (UpperBoundCheckOf) converterType() {}
