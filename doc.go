// FILE: lixenwraith/phaseconf/doc.go

// Package phaseconf compiles a configuration schema into per-phase programs that
// materialize typed object graphs from layered sources: files (TOML, YAML, JSON),
// environment variables, command-line arguments, viper instances and schema defaults.
//
// A schema is a set of roots. Each root belongs to one phase:
//   - build-time: read ahead of time only
//   - build-and-run-time-fixed: read ahead of time, its values carried into run time
//   - run-time: read at startup and on every reload
//
// Keys of the other phases are silently ignored while a phase is materialized. Keys no
// phase declares are warnings ahead of time and errors at run time. Every invalid,
// missing and unknown key is collected before the phase fails with one report.
//
// Quick Start:
//
//	type Config struct {
//	    Server struct {
//	        Host    string            `toml:"host"`
//	        Port    int               `toml:"port" min:"1" max:"65535"`
//	        Headers map[string]string `toml:"headers"`
//	    } `toml:"server"`
//	}
//
//	defaults := Config{}
//	defaults.Server.Host = "localhost"
//	defaults.Server.Port = 8080
//
//	rt, err := phaseconf.Quick(defaults, "MYAPP_", "config.toml")
//	if err != nil && !phaseconf.IsConfigNotFound(err) {
//	    log.Fatal(err)
//	}
//
//	port, _ := rt.Int64("server.port")
//
// Default Precedence (highest to lowest):
//  1. Command-line arguments (--server.port=9090)
//  2. Environment variables (MYAPP_SERVER_PORT=9090)
//  3. Configuration file (config.toml)
//  4. Values read by the fixed phase (run-time phase only)
//  5. Run-time defaults, then schema defaults
//
// Custom Precedence:
//
//	rt, err := phaseconf.NewBuilder().
//	    WithStruct("app", phaseconf.PhaseRunTime, defaults).
//	    WithSources(
//	        phaseconf.SourceEnv, // Environment the highest priority
//	        phaseconf.SourceCLI,
//	        phaseconf.SourceFile,
//	    ).
//	    Build()
//
// Thread Safety:
// Compiled programs are immutable. A Runtime publishes graphs atomically; readers never
// block and transitions are serialized.
package phaseconf
