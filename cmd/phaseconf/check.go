// FILE: lixenwraith/phaseconf/cmd/phaseconf/check.go
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lixenwraith/phaseconf"
)

// schemaFlags are the flags shared by every command that compiles a schema
type schemaFlags struct {
	path      string
	format    string
	keyPrefix string
	verbose   bool
}

func (f *schemaFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "schema", "s", "", "Schema document (YAML or JSON)")
	cmd.Flags().StringVar(&f.format, "schema-format", "", "Schema document format (yaml, json), detected when empty")
	cmd.Flags().StringVar(&f.keyPrefix, "key-prefix", "", "Leading segments of every configuration key")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log compilation and materialization details")
	_ = cmd.MarkFlagRequired("schema")
}

func (f *schemaFlags) newLogger() (*zap.Logger, error) {
	if !f.verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

func (f *schemaFlags) loadProgram(logger *zap.Logger) (*phaseconf.Program, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", f.path, err)
	}
	format := f.format
	if format == "" && strings.HasSuffix(f.path, ".json") {
		format = "json"
	}
	schema, err := phaseconf.ParseSchemaDocument(data, format)
	if err != nil {
		return nil, err
	}
	return phaseconf.Compile(schema,
		phaseconf.WithKeyPrefix(f.keyPrefix),
		phaseconf.WithLogger(logger))
}

type checkOptions struct {
	schemaFlags
	phase     string
	file      string
	envPrefix string
	set       []string
	output    string
}

func newCheckCmd() *cobra.Command {
	o := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Materialize a phase and report every configuration problem",
		Long: `Compile the schema, read the configuration file, environment and --set values, and
materialize one phase. The run-time phase first materializes the fixed phase and sees
the values it read, as an application would at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.OutOrStdout())
		},
	}
	o.register(cmd)
	cmd.Flags().StringVarP(&o.phase, "phase", "p", phaseconf.PhaseRunTime.String(), "Phase to materialize")
	cmd.Flags().StringVarP(&o.file, "config", "c", "", "Configuration file (TOML, YAML or JSON)")
	cmd.Flags().StringVar(&o.envPrefix, "env-prefix", "", "Environment variable prefix, e.g. MYAPP_")
	cmd.Flags().StringArrayVar(&o.set, "set", nil, "Set a key, key=value (repeatable)")
	cmd.Flags().StringVarP(&o.output, "output", "o", "report", "Output format: report, json, toml, yaml")
	return cmd
}

func (o *checkOptions) run(w io.Writer) error {
	phase, err := phaseconf.ParsePhase(o.phase)
	if err != nil {
		return err
	}
	logger, err := o.newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	program, err := o.loadProgram(logger)
	if err != nil {
		return err
	}

	sources, err := o.sources()
	if err != nil {
		return err
	}

	rt := phaseconf.NewRuntime(program, nil)
	if phase == phaseconf.PhaseRunTime {
		if _, err := rt.Transition(phaseconf.PhaseBuildAndRunTimeFixed, sources...); err != nil {
			return reportFailure(w, phaseconf.PhaseBuildAndRunTimeFixed, err)
		}
	}
	graph, err := rt.Transition(phase, sources...)
	if err != nil {
		return reportFailure(w, phase, err)
	}
	return writeGraph(w, graph, o.output)
}

// sources builds file, env and --set sources with the standard precedence.
func (o *checkOptions) sources() ([]phaseconf.Source, error) {
	opts := phaseconf.DefaultLoadOptions()
	opts.EnvPrefix = o.envPrefix

	var sources []phaseconf.Source
	if o.file != "" {
		ordinal, _ := opts.OrdinalOf(phaseconf.SourceFile)
		src, err := phaseconf.NewFileSource(o.file, ordinal, opts)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if o.envPrefix != "" {
		ordinal, _ := opts.OrdinalOf(phaseconf.SourceEnv)
		sources = append(sources, phaseconf.NewEnvSource(ordinal, opts))
	}
	if len(o.set) > 0 {
		values := make(map[string]string, len(o.set))
		for _, kv := range o.set {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid --set value %q, expected key=value", kv)
			}
			values[key] = value
		}
		ordinal, _ := opts.OrdinalOf(phaseconf.SourceCLI)
		sources = append(sources, phaseconf.NewMapSource("cli", ordinal, values))
	}
	return sources, nil
}

func writeGraph(w io.Writer, graph *phaseconf.Graph, output string) error {
	switch output {
	case "json":
		data, err := json.MarshalIndent(graph.Export(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "toml":
		return toml.NewEncoder(w).Encode(graph.Export())
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(graph.Export()); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	case "report", "":
		writeWarnings(w, graph.Warnings())
		green := color.New(color.FgGreen, color.Bold)
		green.Fprintf(w, "✓ %s configuration is valid", graph.Phase())
		color.New(color.FgHiBlack).Fprintf(w, " (generation %s)\n", graph.Generation())
		return nil
	}
	return fmt.Errorf("unknown output format %q", output)
}

func writeWarnings(w io.Writer, warnings []phaseconf.Problem) {
	yellow := color.New(color.FgYellow)
	for _, p := range warnings {
		yellow.Fprintf(w, "⚠ %s\n", p)
	}
}

// reportFailure prints the problems of a failed phase and returns a short error.
func reportFailure(w io.Writer, phase phaseconf.Phase, err error) error {
	var cfgErr *phaseconf.ConfigurationError
	if !errors.As(err, &cfgErr) {
		return err
	}
	red := color.New(color.FgRed, color.Bold)
	red.Fprintf(w, "✗ %s configuration is invalid\n", phase)
	for _, p := range cfgErr.Problems {
		color.New(color.FgRed).Fprintf(w, "  - %s\n", p)
	}
	return fmt.Errorf("%d configuration error(s) in phase %s", len(cfgErr.Problems), phase)
}
