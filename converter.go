// FILE: lixenwraith/phaseconf/converter.go
package phaseconf

import (
	"cmp"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Converter turns a raw string into a typed value.
// An empty input converts to nil, which callers treat as an absent value.
type Converter interface {
	Convert(raw string) (any, error)
}

// ConverterFunc adapts a function to Converter
type ConverterFunc func(raw string) (any, error)

func (f ConverterFunc) Convert(raw string) (any, error) { return f(raw) }

// sliceConverter backs ArrayOf and CollectionOf
type sliceConverter struct {
	element   Converter
	sliceType reflect.Type
	unique    bool
	sorted    bool
}

func (c *sliceConverter) Convert(raw string) (any, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return nil, nil
	}

	out := reflect.MakeSlice(c.sliceType, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for i, part := range parts {
		v, err := c.element.Convert(part)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if v == nil {
			continue
		}
		if c.unique {
			key := setKey(v)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = reflect.Append(out, reflect.ValueOf(v))
	}

	if c.sorted {
		var sortErr error
		sort.SliceStable(out.Interface(), func(i, j int) bool {
			n, err := compareValues(out.Index(i).Interface(), out.Index(j).Interface())
			if err != nil && sortErr == nil {
				sortErr = err
			}
			return n < 0
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}
	return out.Interface(), nil
}

// setKey identifies an element by the value it holds, so pointer elements compare by pointee.
func setKey(v any) string {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "<nil>"
		}
		rv = rv.Elem()
	}
	return fmt.Sprintf("%#v", rv.Interface())
}

// optionalConverter yields a typed nil pointer for absent input
type optionalConverter struct {
	nested Converter
	elem   reflect.Type
}

func (c *optionalConverter) Convert(raw string) (any, error) {
	empty := reflect.Zero(reflect.PointerTo(c.elem)).Interface()
	if strings.TrimSpace(raw) == "" {
		return empty, nil
	}
	v, err := c.nested.Convert(raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return empty, nil
	}
	ptr := reflect.New(c.elem)
	ptr.Elem().Set(reflect.ValueOf(v))
	return ptr.Interface(), nil
}

// rangeConverter enforces one or two bounds on the converted value
type rangeConverter struct {
	nested       Converter
	min, max     any
	minRaw       string
	maxRaw       string
	minInclusive bool
	maxInclusive bool
}

func (c *rangeConverter) Convert(raw string) (any, error) {
	v, err := c.nested.Convert(raw)
	if err != nil || v == nil {
		return v, err
	}
	if c.min != nil {
		n, err := compareValues(v, c.min)
		if err != nil {
			return nil, err
		}
		if n < 0 || (n == 0 && !c.minInclusive) {
			op := ">"
			if c.minInclusive {
				op = ">="
			}
			return nil, fmt.Errorf("value %v must be %s %s", v, op, c.minRaw)
		}
	}
	if c.max != nil {
		n, err := compareValues(v, c.max)
		if err != nil {
			return nil, err
		}
		if n > 0 || (n == 0 && !c.maxInclusive) {
			op := "<"
			if c.maxInclusive {
				op = "<="
			}
			return nil, fmt.Errorf("value %v must be %s %s", v, op, c.maxRaw)
		}
	}
	return v, nil
}

// patternConverter checks the raw text before handing it to the nested converter
type patternConverter struct {
	nested  Converter
	pattern *regexp.Regexp
	source  string
}

func (c *patternConverter) Convert(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && !c.pattern.MatchString(trimmed) {
		return nil, fmt.Errorf("value %q does not match pattern %q", trimmed, c.source)
	}
	return c.nested.Convert(raw)
}

// boundConverter checks assignability between the converted value's type and a bound
type boundConverter struct {
	nested Converter
	bound  reflect.Type
	upper  bool
}

func (c *boundConverter) Convert(raw string) (any, error) {
	v, err := c.nested.Convert(raw)
	if err != nil || v == nil {
		return v, err
	}
	actual := reflect.TypeOf(v)
	if c.upper && !actual.AssignableTo(c.bound) {
		return nil, fmt.Errorf("value of type %v is not assignable to %v", actual, c.bound)
	}
	if !c.upper && !c.bound.AssignableTo(actual) {
		return nil, fmt.Errorf("type %v is not assignable to value of type %v", c.bound, actual)
	}
	return v, nil
}

// Enumerated is implemented by named types whose legal values form a closed set.
// The zero value of the type must be usable as a receiver.
type Enumerated interface {
	EnumConstants() []any
}

// HyphenateEnumConverter accepts enum constants written in hyphenated lower case,
// so FooBar, FOO_BAR and foo-bar all select the same constant.
type HyphenateEnumConverter struct {
	target reflect.Type
	byName map[string]any
	names  []string
}

var hyphenateEnumType = reflect.TypeFor[HyphenateEnumConverter]()

// NewHyphenateEnumConverter builds the converter for an Enumerated target type.
func NewHyphenateEnumConverter(target reflect.Type) (*HyphenateEnumConverter, error) {
	if target == nil {
		return nil, fmt.Errorf("hyphenated enum converter requires a target type")
	}
	en, ok := reflect.Zero(target).Interface().(Enumerated)
	if !ok {
		return nil, fmt.Errorf("type %v does not implement Enumerated", target)
	}
	c := &HyphenateEnumConverter{target: target, byName: make(map[string]any)}
	for _, constant := range en.EnumConstants() {
		name := hyphenate(fmt.Sprint(constant))
		c.byName[name] = constant
		c.names = append(c.names, name)
	}
	return c, nil
}

func (c *HyphenateEnumConverter) Convert(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if v, ok := c.byName[hyphenate(raw)]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%q is not a valid %v, expected one of [%s]", raw, c.target, strings.Join(c.names, ", "))
}

// hyphenate lower-cases a constant name and separates its words with dashes.
func hyphenate(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r == '_' || r == '-':
			b.WriteByte('-')
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('-')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitList splits a comma separated value; a backslash escapes the next character.
func splitList(raw string) []string {
	var parts []string
	var cur strings.Builder
	escaped := false
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			parts = append(parts, s)
		}
		cur.Reset()
	}
	for _, r := range raw {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return parts
}

// joinList is the inverse of splitList.
func joinList(items []string) string {
	escaped := make([]string, len(items))
	for i, item := range items {
		item = strings.ReplaceAll(item, `\`, `\\`)
		escaped[i] = strings.ReplaceAll(item, ",", `\,`)
	}
	return strings.Join(escaped, ",")
}

// compareValues orders two converted values of the same kind.
func compareValues(a, b any) (int, error) {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb), nil
		}
	}
	va, vb := reflect.Indirect(reflect.ValueOf(a)), reflect.Indirect(reflect.ValueOf(b))
	if !va.IsValid() || !vb.IsValid() {
		return 0, fmt.Errorf("cannot compare %v with %v", a, b)
	}
	switch va.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if vb.CanInt() {
			return cmp.Compare(va.Int(), vb.Int()), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if vb.CanUint() {
			return cmp.Compare(va.Uint(), vb.Uint()), nil
		}
	case reflect.Float32, reflect.Float64:
		if vb.CanFloat() {
			return cmp.Compare(va.Float(), vb.Float()), nil
		}
	case reflect.String:
		if vb.Kind() == reflect.String {
			return cmp.Compare(va.String(), vb.String()), nil
		}
	}
	return 0, fmt.Errorf("values of type %T and %T are not ordered", a, b)
}
