// FILE: lixenwraith/phaseconf/builder.go
package phaseconf

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// ValidatorFunc defines the signature for a function that can validate a built Runtime.
// It receives the runtime after both startup transitions and should return an error if validation fails.
type ValidatorFunc func(rt *Runtime) error

// Builder provides a fluent interface for building a configuration runtime
type Builder struct {
	schema     *Schema
	roots      []*RootDefinition
	prefix     string
	opts       LoadOptions
	file       string
	args       []string
	extra      []Source
	defaults   map[string]string
	discovery  *FileDiscoveryOptions
	discovered DiscoveredFile
	logger     *zap.Logger
	err        error
	validators []ValidatorFunc
}

// NewBuilder creates a new configuration builder
func NewBuilder() *Builder {
	return &Builder{
		opts:       DefaultLoadOptions(),
		args:       os.Args[1:],
		logger:     zap.NewNop(),
		validators: make([]ValidatorFunc, 0),
	}
}

// WithSchema sets a complete schema. Roots added with WithRoots or WithStruct are appended to it.
func (b *Builder) WithSchema(schema *Schema) *Builder {
	b.schema = schema
	return b
}

// WithRoots adds root definitions
func (b *Builder) WithRoots(roots ...*RootDefinition) *Builder {
	b.roots = append(b.roots, roots...)
	return b
}

// WithStruct adds a root derived from a tagged struct holding default values
func (b *Builder) WithStruct(name string, phase Phase, structWithDefaults any) *Builder {
	root, err := RootFromStruct(name, phase, structWithDefaults)
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("failed to register root %q: %w", name, err))
		return b
	}
	b.roots = append(b.roots, root)
	return b
}

// WithKeyPrefix sets the leading key segments of every configuration key
func (b *Builder) WithKeyPrefix(prefix string) *Builder {
	b.prefix = prefix
	return b
}

// WithEnvPrefix sets the environment variable prefix
func (b *Builder) WithEnvPrefix(prefix string) *Builder {
	b.opts.EnvPrefix = prefix
	return b
}

// WithFile sets the configuration file path
func (b *Builder) WithFile(path string) *Builder {
	b.file = path
	return b
}

// WithFileDiscovery locates the configuration file at Build time when WithFile is not used.
// The discovery CLI flag is removed from the arguments handed to the CLI source.
func (b *Builder) WithFileDiscovery(opts FileDiscoveryOptions) *Builder {
	b.discovery = &opts
	return b
}

// WithFileFormat forces the configuration file format
func (b *Builder) WithFileFormat(format string) *Builder {
	b.opts.FileFormat = format
	return b
}

// WithSecurity sets the file access restrictions
func (b *Builder) WithSecurity(sec SecurityOptions) *Builder {
	b.opts.Security = &sec
	return b
}

// WithArgs sets the command-line arguments
func (b *Builder) WithArgs(args []string) *Builder {
	b.args = args
	return b
}

// WithSources sets the precedence order of the standard sources (first = highest priority)
func (b *Builder) WithSources(sources ...SourceKind) *Builder {
	b.opts.Sources = sources
	return b
}

// WithSource adds a custom source. Its own ordinal places it among the standard sources.
func (b *Builder) WithSource(src Source) *Builder {
	if src != nil {
		b.extra = append(b.extra, src)
	}
	return b
}

// WithEnvTransform sets a custom environment variable transformer
func (b *Builder) WithEnvTransform(fn EnvTransformFunc) *Builder {
	b.opts.EnvTransform = fn
	return b
}

// WithEnvWhitelist limits which paths are checked for env vars
func (b *Builder) WithEnvWhitelist(paths ...string) *Builder {
	if b.opts.EnvWhitelist == nil {
		b.opts.EnvWhitelist = make(map[string]bool)
	}
	for _, path := range paths {
		b.opts.EnvWhitelist[path] = true
	}
	return b
}

// WithRunTimeDefaults supplies run-time default values decided at build time
func (b *Builder) WithRunTimeDefaults(values map[string]string) *Builder {
	b.defaults = values
	return b
}

// WithLogger sets the logger used by the program, runtime and watcher
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithValidator adds a validation function that runs at the end of the build process
// Multiple validators can be added and are executed in the order they are added
func (b *Builder) WithValidator(fn ValidatorFunc) *Builder {
	if fn != nil {
		b.validators = append(b.validators, fn)
	}
	return b
}

// Build compiles the schema and runs the fixed and run-time transitions.
// A missing configuration file is reported as ErrConfigNotFound alongside a usable runtime.
func (b *Builder) Build() (*Runtime, error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.discovery != nil {
		var found DiscoveredFile
		found, b.args = b.discovery.discover(b.opts, b.args)
		if b.file == "" && found.Path != "" {
			b.file = found.Path
			b.discovered = found
			b.logger.Debug("configuration file discovered",
				zap.String("path", found.Path),
				zap.String("via", string(found.Via)))
		}
	}

	schema := NewSchema(b.roots...)
	if b.schema != nil {
		schema = NewSchema(append(append([]*RootDefinition{}, b.schema.Roots...), b.roots...)...)
	}

	program, err := Compile(schema,
		WithKeyPrefix(b.prefix),
		WithLogger(b.logger),
		WithRunTimeDefaults(b.defaults))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	loader := &sourceLoader{
		file:   b.file,
		args:   b.args,
		opts:   b.opts,
		extra:  b.extra,
		logger: b.logger,
	}
	rt := NewRuntime(program, loader.load)
	rt.file = b.file

	for _, phase := range []Phase{PhaseBuildAndRunTimeFixed, PhaseRunTime} {
		if _, err := rt.Refresh(phase); err != nil {
			return nil, err
		}
	}

	// Run validators
	for _, validator := range b.validators {
		if err := validator(rt); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	// ErrConfigNotFound or nil
	return rt, loader.missingFile()
}

// Discovered reports the file chosen by file discovery during Build, zero when discovery
// was not used or WithFile took precedence.
func (b *Builder) Discovered() DiscoveredFile {
	return b.discovered
}

// MustBuild is like Build but panics on error
func (b *Builder) MustBuild() *Runtime {
	rt, err := b.Build()
	if err != nil {
		// Ignore ErrConfigNotFound as it is not a fatal error for MustBuild.
		// The application can proceed with defaults/env vars.
		if !errors.Is(err, ErrConfigNotFound) {
			panic(fmt.Sprintf("config build failed: %v", err))
		}
	}
	return rt
}

// BuildAndScan builds and decodes the configuration at path into the provided target struct pointer.
// The path is relative to the key prefix, usually a root name.
func (b *Builder) BuildAndScan(path string, target any) error {
	rt, err := b.Build()
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		return err
	}

	if err := rt.Scan(path, target); err != nil {
		return fmt.Errorf("failed to scan final config into target: %w", err)
	}

	// ErrConfigNotFound or nil
	return err
}

// sourceLoader produces fresh standard sources on every transition
type sourceLoader struct {
	file   string
	args   []string
	opts   LoadOptions
	extra  []Source
	logger *zap.Logger

	mu      sync.Mutex
	missing error
}

func (l *sourceLoader) load(phase Phase) ([]Source, error) {
	var sources []Source
	var errs []error

	if ordinal, ok := l.opts.OrdinalOf(SourceFile); ok && l.file != "" {
		src, err := NewFileSource(l.file, ordinal, l.opts)
		switch {
		case errors.Is(err, ErrConfigNotFound):
			// Not fatal, the application can run with defaults/env
			l.setMissing(err)
			l.logger.Debug("configuration file not found", zap.String("path", l.file))
		case err != nil:
			errs = append(errs, err)
		default:
			l.setMissing(nil)
			sources = append(sources, src)
		}
	}

	if ordinal, ok := l.opts.OrdinalOf(SourceEnv); ok {
		sources = append(sources, NewEnvSource(ordinal, l.opts))
	}

	if ordinal, ok := l.opts.OrdinalOf(SourceCLI); ok && len(l.args) > 0 {
		src, err := NewCLISource(ordinal, l.args)
		if err != nil {
			errs = append(errs, err)
		} else {
			sources = append(sources, src)
		}
	}

	sources = append(sources, l.extra...)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	l.logger.Debug("sources loaded",
		zap.Stringer("phase", phase),
		zap.Int("count", len(sources)))
	return sources, nil
}

func (l *sourceLoader) setMissing(err error) {
	l.mu.Lock()
	l.missing = err
	l.mu.Unlock()
}

func (l *sourceLoader) missingFile() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.missing
}
