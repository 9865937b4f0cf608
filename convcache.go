// FILE: lixenwraith/phaseconf/convcache.go
package phaseconf

import (
	"fmt"
	"reflect"
	"regexp"
)

// ConverterCache holds exactly one converter per distinct ConverterType.
// Composite converters are built bottom-up from cached nested converters.
// The cache is append-only and is not safe for concurrent mutation; Compile
// fills it completely before any materialization reads from it.
type ConverterCache struct {
	converters map[ConverterType]Converter
	registered map[reflect.Type]Converter
	order      []reflect.Type
}

// NewConverterCache creates an empty cache.
func NewConverterCache() *ConverterCache {
	return &ConverterCache{
		converters: make(map[ConverterType]Converter),
		registered: make(map[reflect.Type]Converter),
	}
}

// Len returns the number of distinct converters built so far.
func (c *ConverterCache) Len() int {
	return len(c.converters)
}

// RegisteredTypes lists, in first-seen order, the leaf types served by built-in converters.
func (c *ConverterCache) RegisteredTypes() []reflect.Type {
	out := make([]reflect.Type, len(c.order))
	copy(out, c.order)
	return out
}

// ConverterFor returns the built-in converter registered for a leaf type.
func (c *ConverterCache) ConverterFor(t reflect.Type) (Converter, bool) {
	conv, ok := c.registered[t]
	return conv, ok
}

// Resolve returns the converter for a descriptor, building and caching it on first use.
func (c *ConverterCache) Resolve(t ConverterType) (Converter, error) {
	if t == nil {
		return nil, schemaErrorf("nil converter type")
	}
	if !isConverterVariant(t) {
		return nil, schemaErrorf("unrecognized converter type %T", t)
	}
	if conv, ok := c.converters[t]; ok {
		return conv, nil
	}

	conv, err := c.build(t)
	if err != nil {
		return nil, err
	}
	c.converters[t] = conv
	return conv, nil
}

func (c *ConverterCache) build(t ConverterType) (Converter, error) {
	switch v := t.(type) {
	case Leaf:
		if v.Type == nil {
			return nil, schemaErrorf("leaf converter type without a Go type")
		}
		if v.ConvertWith != nil {
			return newExplicitConverter(v)
		}
		conv := newDecodeConverter(v.Type)
		if _, seen := c.registered[v.Type]; !seen {
			c.registered[v.Type] = conv
			c.order = append(c.order, v.Type)
		}
		return conv, nil

	case ArrayOf:
		elem, err := c.Resolve(v.Element)
		if err != nil {
			return nil, err
		}
		sliceType := v.RuntimeType()
		if sliceType.Kind() != reflect.Slice {
			return nil, schemaErrorf("array type %v is not a slice", sliceType)
		}
		return &sliceConverter{element: elem, sliceType: sliceType}, nil

	case CollectionOf:
		elem, err := c.Resolve(v.Element)
		if err != nil {
			return nil, err
		}
		conv := &sliceConverter{element: elem, sliceType: v.RuntimeType()}
		switch v.Kind {
		case CollectionList:
		case CollectionSet:
			conv.unique = true
		case CollectionSortedSet:
			conv.unique, conv.sorted = true, true
		default:
			return nil, schemaErrorf("unsupported collection kind %v", v.Kind)
		}
		return conv, nil

	case OptionalOf:
		nested, err := c.Resolve(v.Nested)
		if err != nil {
			return nil, err
		}
		return &optionalConverter{nested: nested, elem: v.Nested.RuntimeType()}, nil

	case MinMaxValidated:
		nested, err := c.Resolve(v.Nested)
		if err != nil {
			return nil, err
		}
		if !v.HasMin && !v.HasMax {
			return nil, schemaErrorf("range validation on %v without any bound", v.Nested)
		}
		conv := &rangeConverter{
			nested:       nested,
			minRaw:       v.Min,
			maxRaw:       v.Max,
			minInclusive: v.MinInclusive,
			maxInclusive: v.MaxInclusive,
		}
		if v.HasMin {
			if conv.min, err = convertBound(nested, v.Min); err != nil {
				return nil, err
			}
		}
		if v.HasMax {
			if conv.max, err = convertBound(nested, v.Max); err != nil {
				return nil, err
			}
		}
		return conv, nil

	case PatternValidated:
		nested, err := c.Resolve(v.Nested)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile("^(?:" + v.Pattern + ")$")
		if err != nil {
			return nil, schemaErrorf("invalid pattern %q: %v", v.Pattern, err)
		}
		return &patternConverter{nested: nested, pattern: re, source: v.Pattern}, nil

	case LowerBoundCheckOf:
		nested, err := c.Resolve(v.Nested)
		if err != nil || v.Bound == nil {
			return nested, err
		}
		return &boundConverter{nested: nested, bound: v.Bound}, nil

	case UpperBoundCheckOf:
		nested, err := c.Resolve(v.Nested)
		if err != nil || v.Bound == nil {
			return nested, err
		}
		return &boundConverter{nested: nested, bound: v.Bound, upper: true}, nil
	}
	return nil, schemaErrorf("unrecognized converter type %T", t)
}

// newExplicitConverter instantiates the converter named by Leaf.ConvertWith.
func newExplicitConverter(l Leaf) (Converter, error) {
	with := l.ConvertWith
	if with.Kind() == reflect.Ptr {
		with = with.Elem()
	}
	if with == hyphenateEnumType {
		conv, err := NewHyphenateEnumConverter(l.Type)
		if err != nil {
			return nil, schemaErrorf("%v", err)
		}
		return conv, nil
	}
	conv, ok := reflect.New(with).Interface().(Converter)
	if !ok {
		return nil, schemaErrorf("explicit converter %v does not implement Converter", l.ConvertWith)
	}
	return conv, nil
}

func convertBound(conv Converter, raw string) (any, error) {
	v, err := conv.Convert(raw)
	if err != nil {
		return nil, schemaErrorf("invalid bound %q: %v", raw, err)
	}
	if v == nil {
		return nil, schemaErrorf("empty bound")
	}
	return v, nil
}

func isConverterVariant(t ConverterType) bool {
	switch t.(type) {
	case Leaf, ArrayOf, CollectionOf, OptionalOf, MinMaxValidated, PatternValidated,
		LowerBoundCheckOf, UpperBoundCheckOf:
		return true
	}
	return false
}

// describe renders cache contents for debug logging.
func (c *ConverterCache) describe() []string {
	out := make([]string, 0, len(c.converters))
	for t := range c.converters {
		out = append(out, fmt.Sprint(t))
	}
	return out
}
