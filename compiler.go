// FILE: lixenwraith/phaseconf/compiler.go
package phaseconf

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option configures Compile.
type Option func(*compileOptions)

type compileOptions struct {
	keyPrefix       string
	logger          *zap.Logger
	additionalTypes []reflect.Type
	runTimeDefaults map[string]string
}

// WithKeyPrefix sets the leading key segments every swept key must start with, e.g. "app".
func WithKeyPrefix(prefix string) Option {
	return func(o *compileOptions) { o.keyPrefix = prefix }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *compileOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAdditionalTypes pre-resolves built-in converters for types no member declares,
// so ConverterCache.ConverterFor can serve them later.
func WithAdditionalTypes(types ...reflect.Type) Option {
	return func(o *compileOptions) { o.additionalTypes = append(o.additionalTypes, types...) }
}

// WithRunTimeDefaults supplies default values decided ahead of time for run-time keys.
// They rank above schema defaults and below every other source.
func WithRunTimeDefaults(values map[string]string) Option {
	return func(o *compileOptions) { o.runTimeDefaults = values }
}

// Program is a compiled schema: tries, converters, initializer plans and decision
// routines for every phase. It is immutable and safe for concurrent Materialize calls.
type Program struct {
	schema     *Schema
	prefix     []string
	prefixName string
	logger     *zap.Logger
	cache      *ConverterCache
	converters map[Member]Converter
	plans      map[*ClassDefinition]*initPlan
	phases     [phaseCount]*phaseProgram

	runTimeDefaults *MapSource
}

// phaseProgram is everything one phase's materialization reads.
type phaseProgram struct {
	phase     Phase
	roots     []*RootDefinition
	active    *PatternMap[Container]
	ignored   *PatternMap[Container]
	defaults  *PatternMap[string]
	entry     *routine
	routines  int
	templates []string
}

type stepKind int

const (
	stepItem stepKind = iota
	stepGroup
	stepOptionalGroup
	stepMap
)

// initStep initializes one member of a new group instance.
type initStep struct {
	kind     stepKind
	field    string
	property string
	conv     Converter
	plan     *initPlan
}

// initPlan is the per-class initializer shared by the eager wave and lazy creation.
type initPlan struct {
	def   *ClassDefinition
	steps []initStep
}

// Compile validates a schema and compiles it for all three phases.
// Every failure is a schema inconsistency; user values are never read here.
func Compile(schema *Schema, opts ...Option) (*Program, error) {
	o := compileOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	p := &Program{
		schema:     schema,
		prefix:     splitSegments(o.keyPrefix),
		prefixName: o.keyPrefix,
		logger:     o.logger,
		cache:      NewConverterCache(),
		converters: make(map[Member]Converter),
		plans:      make(map[*ClassDefinition]*initPlan),
	}
	if o.runTimeDefaults != nil {
		p.runTimeDefaults = NewMapSource("run time defaults", OrdinalRunTimeDefaults, o.runTimeDefaults)
	}

	for _, t := range o.additionalTypes {
		if _, err := p.cache.Resolve(Leaf{Type: t}); err != nil {
			return nil, fmt.Errorf("additional type %v: %w", t, err)
		}
	}

	tries, containers, err := buildPatternMaps(schema)
	if err != nil {
		return nil, err
	}
	for _, c := range containers {
		if err := p.resolveMember(c); err != nil {
			return nil, err
		}
	}
	for _, root := range schema.Roots {
		p.planFor(root.ClassDefinition)
	}

	for _, phase := range Phases {
		var ignored *PatternMap[Container]
		for _, other := range Phases {
			if other != phase {
				ignored = MergePatternMaps(ignored, tries[other], nil)
			}
		}
		rc := newRoutineCompiler()
		pp := &phaseProgram{
			phase:    phase,
			roots:    schema.RootsIn(phase),
			active:   tries[phase],
			ignored:  ignored,
			defaults: PrunePatternMap(tries[phase], defaultOf),
			entry:    rc.compile(tries[phase], ignored),
		}
		pp.routines = rc.count()
		for _, t := range tries[phase].Templates() {
			pp.templates = append(pp.templates, joinKey(o.keyPrefix, t))
		}
		p.phases[phase] = pp

		p.logger.Debug("phase compiled",
			zap.Stringer("phase", phase),
			zap.Int("roots", len(pp.roots)),
			zap.Int("templates", len(pp.templates)),
			zap.Int("routines", pp.routines))
	}

	p.logger.Debug("schema compiled",
		zap.Int("converters", p.cache.Len()),
		zap.Strings("converter_types", p.cache.describe()),
		zap.Int("classes", len(p.plans)),
		zap.Duration("elapsed", time.Since(start)))
	return p, nil
}

// resolveMember resolves the converter of an item and checks its default.
func (p *Program) resolveMember(c Container) error {
	item, ok := c.Member().(*ItemMember)
	if !ok {
		return nil
	}
	conv, err := p.cache.Resolve(item.Type)
	if err != nil {
		return fmt.Errorf("key %s: %w", c.Template(), err)
	}
	p.converters[item] = conv
	if item.HasDefault {
		if _, err := conv.Convert(item.Default); err != nil {
			return schemaErrorf("key %s: default %q is not valid: %v", c.Template(), item.Default, err)
		}
	}
	return nil
}

func defaultOf(c Container) (string, bool) {
	if item, ok := c.Member().(*ItemMember); ok && item.HasDefault {
		return item.Default, true
	}
	return "", false
}

// planFor builds, once per class, the initializer of its instances.
func (p *Program) planFor(def *ClassDefinition) *initPlan {
	if plan, ok := p.plans[def]; ok {
		return plan
	}
	plan := &initPlan{def: def}
	p.plans[def] = plan
	for _, m := range def.Members {
		step := initStep{field: m.FieldName(), property: m.PropertyName()}
		switch v := m.(type) {
		case *ItemMember:
			step.kind, step.conv = stepItem, p.converters[v]
		case *GroupMember:
			step.kind, step.plan = stepGroup, p.planFor(v.Group)
			if v.Optional {
				step.kind = stepOptionalGroup
			}
		case *MapMember:
			step.kind = stepMap
			p.planMapValues(v)
		}
		plan.steps = append(plan.steps, step)
	}
	return plan
}

// planMapValues plans the group classes reachable as map entry values.
func (p *Program) planMapValues(mm *MapMember) {
	switch v := mm.Nested.(type) {
	case *GroupMember:
		p.planFor(v.Group)
	case *MapMember:
		p.planMapValues(v)
	}
}

// Schema returns the compiled schema.
func (p *Program) Schema() *Schema { return p.schema }

// KeyPrefix returns the configured key prefix.
func (p *Program) KeyPrefix() string { return p.prefixName }

// Converters returns the converter cache filled by Compile.
func (p *Program) Converters() *ConverterCache { return p.cache }

// RoutineCount returns the number of distinct decision routines of a phase.
func (p *Program) RoutineCount(phase Phase) int {
	if !phase.Valid() {
		return 0
	}
	return p.phases[phase].routines
}

// Templates lists the key templates of a phase, key prefix included.
func (p *Program) Templates(phase Phase) []string {
	if !phase.Valid() {
		return nil
	}
	out := make([]string, len(p.phases[phase].templates))
	copy(out, p.phases[phase].templates)
	return out
}

// DefaultFor returns the schema default of a fully qualified key in a phase.
func (p *Program) DefaultFor(phase Phase, key string) (string, bool) {
	if !phase.Valid() {
		return "", false
	}
	return newDefaultValuesSource(p.phases[phase].defaults, p.prefix).Lookup(key)
}

// Match returns the container a fully qualified key resolves to in a phase.
func (p *Program) Match(phase Phase, key string) (Container, bool) {
	if !phase.Valid() {
		return nil, false
	}
	it := NewNameIterator(key)
	if !consumePrefix(it, p.prefix) {
		return nil, false
	}
	return p.phases[phase].active.Match(it)
}

// Materialize builds the object graph of one phase from sources.
// Schema defaults are added as the lowest-priority source. Every invalid, missing and,
// at run time, unknown key is collected first; any of them fails the phase with one
// *ConfigurationError.
func (p *Program) Materialize(phase Phase, sources ...Source) (*Graph, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, int(phase))
	}
	pp := p.phases[phase]

	all := append(sources[:len(sources):len(sources)], newDefaultValuesSource(pp.defaults, p.prefix))
	if phase == PhaseRunTime && p.runTimeDefaults != nil {
		all = append(all, p.runTimeDefaults)
	}
	set := NewSourceSet(all...)

	m := &materializer{
		prog:    p,
		pp:      pp,
		sources: set,
		diags:   NewDiagnostics(phase, pp.templates),
		roots:   make(map[*ClassDefinition]*Group, len(pp.roots)),
		raw:     make(map[string]string),
	}

	// Eager wave
	graph := &Graph{phase: phase, generation: uuid.New(), created: time.Now(), prefix: p.prefixName}
	for _, root := range pp.roots {
		g := m.newGroup(root.ClassDefinition, joinKey(p.prefixName, root.Name))
		m.roots[root.ClassDefinition] = g
		graph.roots = append(graph.roots, graphRoot{def: root, group: g})
	}

	// Sweep wave
	names, strict := set.propertyNames()
	m.strict = strict
	swept := 0
	for _, name := range names {
		it := NewNameIterator(name)
		if !consumePrefix(it, p.prefix) {
			continue
		}
		swept++
		pp.entry.run(m, it)
	}

	graph.warnings = m.diags.Warnings()
	graph.raw = m.raw
	for _, w := range graph.warnings {
		p.logger.Warn("configuration warning",
			zap.Stringer("phase", phase),
			zap.String("key", w.Key),
			zap.String("problem", w.String()))
	}

	if err := m.diags.Err(); err != nil {
		p.logger.Error("phase failed",
			zap.Stringer("phase", phase),
			zap.Int("problems", len(err.(*ConfigurationError).Problems)))
		return nil, err
	}

	p.logger.Info("phase materialized",
		zap.Stringer("phase", phase),
		zap.String("generation", graph.generation.String()),
		zap.Int("roots", len(graph.roots)),
		zap.Int("keys_swept", swept),
		zap.Int("groups_created", m.created),
		zap.Strings("sources", sourceNames(set)))
	return graph, nil
}

func sourceNames(set *SourceSet) []string {
	var names []string
	for _, s := range set.Sources() {
		names = append(names, fmt.Sprintf("%s(%d)", s.Name(), s.Ordinal()))
	}
	return names
}
