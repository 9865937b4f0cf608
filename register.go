// FILE: lixenwraith/phaseconf/register.go
package phaseconf

import (
	"encoding"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strings"
	"time"
)

var (
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	timeType            = reflect.TypeFor[time.Time]()
	urlType             = reflect.TypeFor[url.URL]()
	ipNetType           = reflect.TypeFor[net.IPNet]()
)

// RootFromStruct derives a root definition from a tagged struct.
// It uses struct tags (`toml:"..."`) to determine the property names, and the
// values of the passed struct as defaults. Supported tags:
//
//	toml:"name"            property name, "-" skips the field, ",squash" unwraps a nested struct
//	default:"value"        default value string, overrides the field value
//	required:"true"        no default even when the field value is non-zero
//	min:"1" max:"10"       range validation; exclusive:"min|max|both" makes a bound strict
//	pattern:"regexp"       raw value must match
//	convert:"hyphenate"    enum converter for types implementing Enumerated
//	collection:"set"       slice flavour: list (default), set or sorted-set
//
// Pointer-to-struct fields become optional groups, map[string]T fields become maps and
// pointer leaves become optional items. Leaves whose default renders empty are optional.
func RootFromStruct(name string, phase Phase, structWithDefaults any) (*RootDefinition, error) {
	def, err := ClassFromStruct(structWithDefaults)
	if err != nil {
		return nil, err
	}
	return NewRoot(name, phase, def), nil
}

// ClassFromStruct derives a class definition from a tagged struct.
func ClassFromStruct(structWithDefaults any) (*ClassDefinition, error) {
	v := reflect.ValueOf(structWithDefaults)

	// Handle pointer or direct struct value
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("ClassFromStruct requires a non-nil struct pointer or value")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("ClassFromStruct requires a struct or struct pointer, got %T", structWithDefaults)
	}

	r := &structReflector{visiting: make(map[reflect.Type]bool)}
	def := r.class(v, "")
	if len(r.errors) > 0 {
		return nil, fmt.Errorf("failed to register %d field(s): %s", len(r.errors), strings.Join(r.errors, "; "))
	}
	return def, nil
}

type structReflector struct {
	visiting map[reflect.Type]bool
	errors   []string
}

func (r *structReflector) fail(fieldPath string, format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf("field %s: %s", fieldPath, fmt.Sprintf(format, args...)))
}

func (r *structReflector) class(v reflect.Value, fieldPath string) *ClassDefinition {
	t := v.Type()
	if r.visiting[t] {
		r.fail(fieldPath, "type %v contains itself", t)
		return NewClass(t.Name())
	}
	r.visiting[t] = true
	defer delete(r.visiting, t)

	var members []Member
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		// Get tag value or use field name
		tag := field.Tag.Get("toml")
		if tag == "-" {
			continue
		}
		key := field.Name
		squash := false
		if tag != "" {
			parts := strings.Split(tag, ",")
			if parts[0] != "" {
				key = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "squash" {
					squash = true
				}
			}
		}

		path := fieldPath + field.Name
		if m := r.member(field, v.Field(i), key, squash, path); m != nil {
			members = append(members, m)
		}
	}
	return NewClass(t.Name(), members...)
}

func (r *structReflector) member(field reflect.StructField, fv reflect.Value, key string, squash bool, path string) Member {
	ft := field.Type
	switch {
	case isGroupStruct(ft):
		property := key
		if squash {
			property = ""
		}
		return NestedGroup(field.Name, property, r.class(fv, path+"."), false)

	case ft.Kind() == reflect.Ptr && isGroupStruct(ft.Elem()):
		nested := fv
		if fv.IsNil() {
			nested = reflect.New(ft.Elem())
		}
		return NestedGroup(field.Name, key, r.class(nested.Elem(), path+"."), true)

	case ft.Kind() == reflect.Map:
		if ft.Key().Kind() != reflect.String {
			r.fail(path, "map keys must be strings, got %v", ft.Key())
			return nil
		}
		nested := r.mapValue(ft.Elem(), field, path)
		if nested == nil {
			return nil
		}
		return MapOf(field.Name, key, nested)
	}

	item := Item(field.Name, key, r.converterType(ft, field, path))
	if item.Type == nil {
		return nil
	}
	r.applyDefault(item, field, fv, path)
	return item
}

// mapValue builds the nested member of a map field from its element type.
func (r *structReflector) mapValue(elem reflect.Type, field reflect.StructField, path string) Member {
	switch {
	case isGroupStruct(elem):
		return MapGroup(r.class(reflect.New(elem).Elem(), path+".*."))
	case elem.Kind() == reflect.Map:
		if elem.Key().Kind() != reflect.String {
			r.fail(path, "map keys must be strings, got %v", elem.Key())
			return nil
		}
		nested := r.mapValue(elem.Elem(), field, path)
		if nested == nil {
			return nil
		}
		return MapOfMaps(nested)
	}
	t := r.converterType(elem, field, path)
	if t == nil {
		return nil
	}
	return MapValue(t)
}

// converterType composes the descriptor of a leaf field from its type and tags.
func (r *structReflector) converterType(ft reflect.Type, field reflect.StructField, path string) ConverterType {
	var ct ConverterType
	switch {
	case ft.Kind() == reflect.Ptr:
		nested := r.converterType(ft.Elem(), reflect.StructField{Tag: field.Tag}, path)
		if nested == nil {
			return nil
		}
		return OptionalOf{Nested: nested}

	case ft.Kind() == reflect.Slice && !isLeafSlice(ft):
		if isGroupStruct(ft.Elem()) {
			r.fail(path, "slices of groups are not supported, use a map")
			return nil
		}
		elem := r.baseLeaf(ft.Elem(), field)
		kind := CollectionList
		switch field.Tag.Get("collection") {
		case "", "list":
		case "set":
			kind = CollectionSet
		case "sorted-set":
			kind = CollectionSortedSet
		default:
			r.fail(path, "unknown collection kind %q", field.Tag.Get("collection"))
			return nil
		}
		ct = CollectionOf{Element: r.validated(elem, field), Kind: kind}
		return ct

	case ft.Kind() == reflect.Array:
		elem := r.baseLeaf(ft.Elem(), field)
		return ArrayOf{Element: r.validated(elem, field), ArrayType: reflect.SliceOf(ft.Elem())}

	case ft.Kind() == reflect.Struct && !isLeafStruct(ft):
		r.fail(path, "struct type %v cannot be a leaf", ft)
		return nil
	}
	return r.validated(r.baseLeaf(ft, field), field)
}

func (r *structReflector) baseLeaf(t reflect.Type, field reflect.StructField) Leaf {
	leaf := Leaf{Type: t}
	if field.Tag.Get("convert") == "hyphenate" {
		leaf.ConvertWith = hyphenateEnumType
	}
	return leaf
}

// validated wraps a leaf with the range and pattern checks named by tags.
func (r *structReflector) validated(ct ConverterType, field reflect.StructField) ConverterType {
	minV, hasMin := field.Tag.Lookup("min")
	maxV, hasMax := field.Tag.Lookup("max")
	if hasMin || hasMax {
		exclusive := field.Tag.Get("exclusive")
		ct = MinMaxValidated{
			Nested:       ct,
			Min:          minV,
			Max:          maxV,
			HasMin:       hasMin,
			HasMax:       hasMax,
			MinInclusive: exclusive != "min" && exclusive != "both",
			MaxInclusive: exclusive != "max" && exclusive != "both",
		}
	}
	if pattern, ok := field.Tag.Lookup("pattern"); ok {
		ct = PatternValidated{Nested: ct, Pattern: pattern}
	}
	return ct
}

// applyDefault takes the default from the tag, else from the field value.
func (r *structReflector) applyDefault(item *ItemMember, field reflect.StructField, fv reflect.Value, path string) {
	if field.Tag.Get("required") == "true" {
		return
	}
	if d, ok := field.Tag.Lookup("default"); ok {
		item.WithDefault(d)
		return
	}
	if d := renderDefault(fv); d != "" {
		item.WithDefault(d)
		return
	}
	// Zero strings and empty lists would otherwise be required
	if _, isOptional := item.Type.(OptionalOf); !isOptional {
		item.Type = OptionalOf{Nested: item.Type}
	}
}

// renderDefault renders a field value as the raw string a source would provide.
func renderDefault(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	switch val := v.Interface().(type) {
	case time.Duration:
		return val.String()
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339)
	case net.IP:
		if val == nil {
			return ""
		}
		return val.String()
	case fmt.Stringer:
		if v.Kind() == reflect.Struct && v.IsZero() {
			return ""
		}
		return val.String()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]string, v.Len())
		for i := range items {
			items[i] = renderDefault(v.Index(i))
		}
		return joinList(items)
	case reflect.Struct:
		if u, ok := v.Interface().(url.URL); ok {
			return u.String()
		}
		return ""
	}
	return fmt.Sprint(v.Interface())
}

// isGroupStruct reports whether a struct type maps to a group rather than a leaf.
func isGroupStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && !isLeafStruct(t)
}

func isLeafStruct(t reflect.Type) bool {
	switch t {
	case timeType, urlType, ipNetType:
		return true
	}
	return reflect.PointerTo(t).Implements(textUnmarshalerType)
}

// isLeafSlice reports slices decoded from one scalar, like net.IP or []byte.
func isLeafSlice(t reflect.Type) bool {
	return t.Elem().Kind() == reflect.Uint8 || reflect.PointerTo(t).Implements(textUnmarshalerType)
}
