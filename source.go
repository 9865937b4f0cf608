// FILE: lixenwraith/phaseconf/source.go
package phaseconf

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Source is one prioritized provider of raw configuration values.
type Source interface {
	// Name identifies the source in logs and reports.
	Name() string
	// Ordinal orders sources; a higher ordinal wins.
	Ordinal() int
	// Lookup returns the raw value of a fully qualified key.
	Lookup(key string) (string, bool)
	// PropertyNames lists the keys the source knows, used by the sweep.
	PropertyNames() []string
}

// lenientSource is implemented by sources whose property names are derived guesses.
// Names only such sources offer are never reported as unknown.
type lenientSource interface {
	lenient() bool
}

// MapSource serves values from a flat map of dotted keys.
type MapSource struct {
	name    string
	ordinal int
	values  map[string]string
}

// NewMapSource creates a map source. The map is copied.
func NewMapSource(name string, ordinal int, values map[string]string) *MapSource {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &MapSource{name: name, ordinal: ordinal, values: copied}
}

func (s *MapSource) Name() string { return s.name }
func (s *MapSource) Ordinal() int { return s.ordinal }

func (s *MapSource) Lookup(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *MapSource) PropertyNames() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Values returns a copy of the served map.
func (s *MapSource) Values() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// EnvSource reads keys from environment variables through an EnvTransformFunc.
type EnvSource struct {
	ordinal   int
	prefix    string
	transform EnvTransformFunc
	whitelist map[string]bool
}

// NewEnvSource creates an environment source from the env fields of opts.
func NewEnvSource(ordinal int, opts LoadOptions) *EnvSource {
	transform := opts.EnvTransform
	if transform == nil {
		transform = defaultEnvTransform(opts.EnvPrefix)
	}
	return &EnvSource{ordinal: ordinal, prefix: opts.EnvPrefix, transform: transform, whitelist: opts.EnvWhitelist}
}

func (s *EnvSource) Name() string  { return "env" }
func (s *EnvSource) Ordinal() int  { return s.ordinal }
func (s *EnvSource) lenient() bool { return true }

func (s *EnvSource) Lookup(key string) (string, bool) {
	if s.whitelist != nil && !s.whitelist[key] {
		return "", false
	}
	v, ok := os.LookupEnv(s.transform(key))
	if !ok || len(v) > MaxValueSize {
		return "", false
	}
	return v, true
}

// PropertyNames derives lower-case dotted keys from prefixed variables.
// Without a prefix the environment is not enumerated.
func (s *EnvSource) PropertyNames() []string {
	if s.prefix == "" {
		return nil
	}
	var names []string
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		rest, ok := strings.CutPrefix(name, s.prefix)
		if !ok || rest == "" {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(rest, "_", "."))
		if s.whitelist != nil && !s.whitelist[key] {
			continue
		}
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

// Discover maps keys to the environment variables that currently provide them.
func (s *EnvSource) Discover(keys []string) map[string]string {
	discovered := make(map[string]string)
	for _, key := range keys {
		envVar := s.transform(key)
		if _, exists := os.LookupEnv(envVar); exists {
			discovered[key] = envVar
		}
	}
	return discovered
}

// NewCLISource parses --key value, --key=value and boolean --flag arguments.
func NewCLISource(ordinal int, args []string) (*MapSource, error) {
	parsed, err := parseArgs(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCLIParse, err)
	}
	return &MapSource{name: "cli", ordinal: ordinal, values: parsed}, nil
}

// FileSource serves a flattened TOML, JSON or YAML document.
type FileSource struct {
	MapSource
	path   string
	format string
}

// NewFileSource reads and flattens a configuration file.
// A missing file yields an error matching ErrConfigNotFound.
func NewFileSource(path string, ordinal int, opts LoadOptions) (*FileSource, error) {
	data, err := readConfigFile(path, opts.Security)
	if err != nil {
		return nil, err
	}
	return NewDocumentSource(path, data, opts.FileFormat, ordinal)
}

// NewDocumentSource parses an in-memory document. Format may be empty to detect it.
func NewDocumentSource(name string, data []byte, format string, ordinal int) (*FileSource, error) {
	format = resolveFormat(format, name, data)
	doc, err := parseDocument(data, format, name)
	if err != nil {
		return nil, err
	}
	return &FileSource{
		MapSource: MapSource{name: "file:" + name, ordinal: ordinal, values: flattenMap(doc, "")},
		path:      name,
		format:    format,
	}, nil
}

// Path returns the file the source was read from.
func (s *FileSource) Path() string { return s.path }

// Format returns the detected or forced document format.
func (s *FileSource) Format() string { return s.format }

// ViperSource adapts a viper instance. Viper keys are case-insensitive.
type ViperSource struct {
	v       *viper.Viper
	ordinal int
}

// NewViperSource wraps v.
func NewViperSource(v *viper.Viper, ordinal int) *ViperSource {
	return &ViperSource{v: v, ordinal: ordinal}
}

func (s *ViperSource) Name() string { return "viper" }
func (s *ViperSource) Ordinal() int { return s.ordinal }

func (s *ViperSource) Lookup(key string) (string, bool) {
	if !s.v.IsSet(key) {
		return "", false
	}
	switch val := s.v.Get(key).(type) {
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = rawString(item)
		}
		return joinList(items), true
	case []string:
		return joinList(val), true
	case map[string]any:
		return "", false
	default:
		return rawString(val), true
	}
}

func (s *ViperSource) PropertyNames() []string {
	names := s.v.AllKeys()
	sort.Strings(names)
	return names
}

// DefaultValuesSource answers schema defaults from a pruned default trie.
// It lists no property names: literal defaults are applied by the eager wave and
// wildcard defaults only matter for keys some other source names.
type DefaultValuesSource struct {
	defaults *PatternMap[string]
	prefix   []string
}

func newDefaultValuesSource(defaults *PatternMap[string], prefix []string) *DefaultValuesSource {
	return &DefaultValuesSource{defaults: defaults, prefix: prefix}
}

func (s *DefaultValuesSource) Name() string            { return "default values" }
func (s *DefaultValuesSource) Ordinal() int            { return OrdinalDefaultValues }
func (s *DefaultValuesSource) PropertyNames() []string { return nil }

func (s *DefaultValuesSource) Lookup(key string) (string, bool) {
	it := NewNameIterator(key)
	if !consumePrefix(it, s.prefix) {
		return "", false
	}
	return s.defaults.Match(it)
}

// consumePrefix advances it past the key prefix segments, false if the key lies outside it.
func consumePrefix(it *NameIterator, prefix []string) bool {
	for _, seg := range prefix {
		if !it.NextSegmentEquals(seg) {
			return false
		}
		it.Next()
	}
	return true
}

// SourceSet merges sources by descending ordinal.
type SourceSet struct {
	sources []Source
}

// NewSourceSet orders sources; equal ordinals keep argument order. Nil sources are skipped.
func NewSourceSet(sources ...Source) *SourceSet {
	set := &SourceSet{}
	for _, s := range sources {
		if s != nil {
			set.sources = append(set.sources, s)
		}
	}
	sort.SliceStable(set.sources, func(i, j int) bool {
		return set.sources[i].Ordinal() > set.sources[j].Ordinal()
	})
	return set
}

// Sources returns the sources in lookup order.
func (s *SourceSet) Sources() []Source {
	out := make([]Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// Lookup returns the first non-empty value and the name of the source providing it.
func (s *SourceSet) Lookup(key string) (raw, source string, found bool) {
	for _, src := range s.sources {
		if v, ok := src.Lookup(key); ok && v != "" {
			return v, src.Name(), true
		}
	}
	return "", "", false
}

// Value looks a key up and converts it. Absent and empty values are converted from the
// empty string, so optional converters succeed and required ones report a missing value.
func (s *SourceSet) Value(key string, conv Converter) (any, error) {
	v, _, _, err := s.value(key, conv)
	return v, err
}

func (s *SourceSet) value(key string, conv Converter) (v any, raw string, found bool, err error) {
	raw, _, found = s.Lookup(key)
	if len(raw) > MaxValueSize {
		return nil, raw, found, &InvalidValueError{Key: key, Raw: raw[:64] + "...", Cause: ErrValueSize}
	}
	v, err = conv.Convert(raw)
	if err != nil {
		return nil, raw, found, &InvalidValueError{Key: key, Raw: raw, Cause: err}
	}
	if v == nil {
		return nil, raw, found, &MissingValueError{Key: key}
	}
	return v, raw, found, nil
}

// PropertyNames returns the de-duplicated, sorted union of every source's names.
func (s *SourceSet) PropertyNames() []string {
	names, _ := s.propertyNames()
	return names
}

// propertyNames also reports which names come from strict sources only.
func (s *SourceSet) propertyNames() ([]string, map[string]bool) {
	seen := make(map[string]bool)
	for _, src := range s.sources {
		strict := true
		if l, ok := src.(lenientSource); ok && l.lenient() {
			strict = false
		}
		for _, name := range src.PropertyNames() {
			seen[name] = seen[name] || strict
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, seen
}
