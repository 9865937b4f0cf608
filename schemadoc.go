// FILE: lixenwraith/phaseconf/schemadoc.go
package phaseconf

import (
	"bytes"
	"fmt"
	"net"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// documentTypes maps the type names a schema document may use to Go types.
var documentTypes = map[string]reflect.Type{
	"string":   reflect.TypeFor[string](),
	"bool":     reflect.TypeFor[bool](),
	"int":      reflect.TypeFor[int](),
	"int8":     reflect.TypeFor[int8](),
	"int16":    reflect.TypeFor[int16](),
	"int32":    reflect.TypeFor[int32](),
	"int64":    reflect.TypeFor[int64](),
	"uint":     reflect.TypeFor[uint](),
	"uint8":    reflect.TypeFor[uint8](),
	"uint16":   reflect.TypeFor[uint16](),
	"uint32":   reflect.TypeFor[uint32](),
	"uint64":   reflect.TypeFor[uint64](),
	"float32":  reflect.TypeFor[float32](),
	"float64":  reflect.TypeFor[float64](),
	"duration": reflect.TypeFor[time.Duration](),
	"time":     timeType,
	"url":      urlType,
	"ip":       reflect.TypeFor[net.IP](),
	"ipnet":    reflect.TypeFor[*net.IPNet](),
}

// DocumentTypeNames lists the leaf type names schema documents accept.
func DocumentTypeNames() []string {
	names := make([]string, 0, len(documentTypes))
	for name := range documentTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type schemaDoc struct {
	Classes map[string]classDoc `yaml:"classes" json:"classes"`
	Roots   []rootDoc           `yaml:"roots" json:"roots"`
}

type classDoc struct {
	Members []memberDoc `yaml:"members" json:"members"`
}

type rootDoc struct {
	Name  string `yaml:"name" json:"name"`
	Phase string `yaml:"phase" json:"phase"`
	Class string `yaml:"class" json:"class"`
}

type memberDoc struct {
	Field      string     `yaml:"field" json:"field"`
	Property   string     `yaml:"property" json:"property"`
	Kind       string     `yaml:"kind" json:"kind"`
	Type       string     `yaml:"type" json:"type"`
	Collection string     `yaml:"collection" json:"collection"`
	Default    *string    `yaml:"default" json:"default"`
	Min        *string    `yaml:"min" json:"min"`
	Max        *string    `yaml:"max" json:"max"`
	Exclusive  string     `yaml:"exclusive" json:"exclusive"`
	Pattern    string     `yaml:"pattern" json:"pattern"`
	Optional   bool       `yaml:"optional" json:"optional"`
	Class      string     `yaml:"class" json:"class"`
	Value      *memberDoc `yaml:"value" json:"value"`
}

// ParseSchemaDocument reads a YAML or JSON schema description. An empty format is
// detected from the content. Classes are referenced by name from roots and group members;
// every reference builds a distinct class instance so roots never share one.
//
//	classes:
//	  Server:
//	    members:
//	      - {field: Port, property: port, kind: item, type: int, default: "8080"}
//	      - {field: Headers, property: headers, kind: map, value: {kind: item, type: string}}
//	roots:
//	  - {name: server, phase: run-time, class: Server}
func ParseSchemaDocument(data []byte, format string) (*Schema, error) {
	if format == "" || format == "auto" {
		format = "yaml"
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
			format = "json"
		}
	}

	var doc schemaDoc
	switch format {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML schema document: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON schema document: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported schema document format: %s", format)
	}

	b := &docBuilder{classes: doc.Classes, visiting: make(map[string]bool)}
	roots := make([]*RootDefinition, 0, len(doc.Roots))
	for _, rd := range doc.Roots {
		phase, err := ParsePhase(rd.Phase)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", rd.Name, err)
		}
		def, err := b.class(rd.Class)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", rd.Name, err)
		}
		roots = append(roots, NewRoot(rd.Name, phase, def))
	}

	schema := NewSchema(roots...)
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

type docBuilder struct {
	classes  map[string]classDoc
	visiting map[string]bool
}

func (b *docBuilder) class(name string) (*ClassDefinition, error) {
	cd, ok := b.classes[name]
	if !ok {
		return nil, fmt.Errorf("unknown class %q", name)
	}
	if b.visiting[name] {
		return nil, fmt.Errorf("class %q contains itself", name)
	}
	b.visiting[name] = true
	defer delete(b.visiting, name)

	members := make([]Member, 0, len(cd.Members))
	for i := range cd.Members {
		m, err := b.member(&cd.Members[i], false)
		if err != nil {
			return nil, fmt.Errorf("class %q member %q: %w", name, cd.Members[i].Field, err)
		}
		members = append(members, m)
	}
	return NewClass(name, members...), nil
}

// member builds one member. Map values take the wildcard name and no property.
func (b *docBuilder) member(md *memberDoc, mapValue bool) (Member, error) {
	switch md.Kind {
	case "", "item":
		t, err := md.converterType()
		if err != nil {
			return nil, err
		}
		if mapValue {
			return MapValue(t), nil
		}
		item := Item(md.Field, md.Property, t)
		if md.Default != nil {
			item.WithDefault(*md.Default)
		}
		return item, nil

	case "group":
		def, err := b.class(md.Class)
		if err != nil {
			return nil, err
		}
		if mapValue {
			return MapGroup(def), nil
		}
		return NestedGroup(md.Field, md.Property, def, md.Optional), nil

	case "map":
		if md.Value == nil {
			return nil, fmt.Errorf("map without value member")
		}
		nested, err := b.member(md.Value, true)
		if err != nil {
			return nil, err
		}
		if mapValue {
			return MapOfMaps(nested), nil
		}
		return MapOf(md.Field, md.Property, nested), nil
	}
	return nil, fmt.Errorf("unknown member kind %q", md.Kind)
}

func (md *memberDoc) converterType() (ConverterType, error) {
	t, ok := documentTypes[strings.ToLower(md.Type)]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", md.Type)
	}
	var ct ConverterType = Leaf{Type: t}
	if md.Min != nil || md.Max != nil {
		mm := MinMaxValidated{
			Nested:       ct,
			HasMin:       md.Min != nil,
			HasMax:       md.Max != nil,
			MinInclusive: md.Exclusive != "min" && md.Exclusive != "both",
			MaxInclusive: md.Exclusive != "max" && md.Exclusive != "both",
		}
		if md.Min != nil {
			mm.Min = *md.Min
		}
		if md.Max != nil {
			mm.Max = *md.Max
		}
		ct = mm
	}
	if md.Pattern != "" {
		ct = PatternValidated{Nested: ct, Pattern: md.Pattern}
	}

	switch md.Collection {
	case "":
	case "list":
		ct = CollectionOf{Element: ct, Kind: CollectionList}
	case "set":
		ct = CollectionOf{Element: ct, Kind: CollectionSet}
	case "sorted-set":
		ct = CollectionOf{Element: ct, Kind: CollectionSortedSet}
	default:
		return nil, fmt.Errorf("unknown collection kind %q", md.Collection)
	}

	if md.Optional {
		ct = OptionalOf{Nested: ct}
	}
	return ct, nil
}
