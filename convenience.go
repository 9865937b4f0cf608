// FILE: lixenwraith/phaseconf/convenience.go
package phaseconf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// Quick creates a fully configured Runtime with a single call
// The struct becomes one unnamed run-time root; this is the recommended way to
// initialize configuration for most applications
func Quick(structDefaults any, envPrefix, configFile string) (*Runtime, error) {
	opts := DefaultLoadOptions()
	opts.EnvPrefix = envPrefix
	return QuickCustom(structDefaults, opts, configFile)
}

// QuickCustom creates a Runtime with custom load options
func QuickCustom(structDefaults any, opts LoadOptions, configFile string) (*Runtime, error) {
	b := NewBuilder().WithFile(configFile)
	b.opts = opts

	// Register defaults from struct if provided
	if structDefaults != nil {
		b.WithStruct("", PhaseRunTime, structDefaults)
	}
	return b.Build()
}

// MustQuick is like Quick but panics on error
func MustQuick(structDefaults any, envPrefix, configFile string) *Runtime {
	rt, err := Quick(structDefaults, envPrefix, configFile)
	if err != nil && !IsConfigNotFound(err) {
		panic(fmt.Sprintf("config initialization failed: %v", err))
	}
	return rt
}

// IsConfigNotFound reports whether err only signals a missing configuration file
func IsConfigNotFound(err error) bool {
	return errors.Is(err, ErrConfigNotFound)
}

// GenerateFlags creates pflag entries for every literal key template of a phase, with
// schema defaults as flag defaults. Wildcard templates have no fixed key and are skipped.
func (p *Program) GenerateFlags(phase Phase) *pflag.FlagSet {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	for _, key := range p.Templates(phase) {
		if strings.Contains(key, Wildcard) {
			continue
		}
		def, _ := p.DefaultFor(phase, key)
		fs.String(key, def, fmt.Sprintf("Config: %s", key))
	}
	return fs
}

// BindFlags returns the flags set on the command line as a CLI-ordinal source
func BindFlags(fs *pflag.FlagSet) *MapSource {
	values := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) {
		values[f.Name] = f.Value.String()
	})
	return NewMapSource("flags", ordinalTop, values)
}

// Validate checks that every named path is present in a published graph
func (r *Runtime) Validate(required ...string) error {
	var missing []string
	for _, path := range required {
		v, ok := r.Lookup(path)
		if !ok || isNilValue(v) {
			missing = append(missing, path)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Debug returns a formatted string showing every published graph and the raw values it read
func (r *Runtime) Debug() string {
	var b strings.Builder
	b.WriteString("Configuration Debug Info:\n")
	if prefix := r.program.KeyPrefix(); prefix != "" {
		b.WriteString(fmt.Sprintf("Key prefix: %s\n", prefix))
	}

	for _, phase := range Phases {
		g := r.Graph(phase)
		if g == nil {
			continue
		}
		b.WriteString(fmt.Sprintf("Phase %s:\n", phase))
		b.WriteString(fmt.Sprintf("  Generation: %s\n", g.Generation()))
		b.WriteString(fmt.Sprintf("  Created: %s\n", g.Created().Format("2006-01-02T15:04:05Z07:00")))

		raw := g.RawValues()
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("  Values:\n")
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("    %s = %q\n", k, raw[k]))
		}
		for _, w := range g.Warnings() {
			b.WriteString(fmt.Sprintf("  Warning: %s\n", w))
		}
	}
	return b.String()
}

// Dump writes the merged configuration to stdout in TOML format
func (r *Runtime) Dump() error {
	return r.DumpTo(os.Stdout)
}

// DumpTo writes the merged configuration to w in TOML format
func (r *Runtime) DumpTo(w io.Writer) error {
	data, err := r.AsMap()
	if err != nil {
		return err
	}
	if prefix := r.program.KeyPrefix(); prefix != "" {
		wrapped := make(map[string]any)
		setNestedValue(wrapped, prefix, data)
		data = wrapped
	}
	return toml.NewEncoder(w).Encode(exportable(data))
}
