// FILE: lixenwraith/phaseconf/runtime.go
package phaseconf

import (
	"fmt"
	"sync"
	"sync/atomic"

	"dario.cat/mergo"
	"go.uber.org/zap"
)

// SourceFactory produces fresh sources for a phase transition.
type SourceFactory func(phase Phase) ([]Source, error)

// Runtime publishes one graph per phase. Readers never lock; transitions are serialized
// and a failed transition leaves the previously published graph in place.
type Runtime struct {
	program *Program
	factory SourceFactory
	logger  *zap.Logger

	mu     sync.Mutex
	graphs [phaseCount]atomic.Pointer[Graph]

	// file is the watched configuration file, empty when nothing is watched
	file    string
	watchMu sync.Mutex
	watcher *watcher
}

// NewRuntime creates a runtime for a compiled program. The factory may be nil when every
// transition passes its sources explicitly.
func NewRuntime(program *Program, factory SourceFactory) *Runtime {
	return &Runtime{program: program, factory: factory, logger: program.logger}
}

// Program returns the compiled program.
func (r *Runtime) Program() *Program { return r.program }

// Graph returns the last published graph of a phase, nil before its first transition.
func (r *Runtime) Graph(phase Phase) *Graph {
	if !phase.Valid() {
		return nil
	}
	return r.graphs[phase].Load()
}

// Transition materializes a phase and publishes the result.
// The run-time phase additionally sees the raw values read by the fixed phase.
func (r *Runtime) Transition(phase Phase, sources ...Source) (*Graph, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, int(phase))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(phase, sources)
}

// Refresh re-reads the factory's sources and transitions a phase again.
func (r *Runtime) Refresh(phase Phase) (*Graph, error) {
	if r.factory == nil {
		return nil, fmt.Errorf("runtime has no source factory")
	}
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, int(phase))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	sources, err := r.factory(phase)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources for %s: %w", phase, err)
	}
	return r.transitionLocked(phase, sources)
}

func (r *Runtime) transitionLocked(phase Phase, sources []Source) (*Graph, error) {
	if phase == PhaseRunTime {
		if fixed := r.graphs[PhaseBuildAndRunTimeFixed].Load(); fixed != nil {
			sources = append(sources[:len(sources):len(sources)],
				NewMapSource("build time config", OrdinalBuildTimeConfig, fixed.RawValues()))
		}
	}

	graph, err := r.program.Materialize(phase, sources...)
	if err != nil {
		if prev := r.graphs[phase].Load(); prev != nil {
			r.logger.Warn("transition failed, keeping previous graph",
				zap.Stringer("phase", phase),
				zap.String("generation", prev.Generation().String()))
		}
		return nil, err
	}
	r.graphs[phase].Store(graph)
	return graph, nil
}

// AsMap merges every published graph into one nested map, later phases overriding
// earlier ones where their keys overlap.
func (r *Runtime) AsMap() (map[string]any, error) {
	out := make(map[string]any)
	for _, phase := range Phases {
		g := r.Graph(phase)
		if g == nil {
			continue
		}
		if err := mergo.Merge(&out, g.AsMap(), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge %s graph: %w", phase, err)
		}
	}
	return out, nil
}

// Lookup returns the value at a dotted path across every published graph.
func (r *Runtime) Lookup(path string) (any, bool) {
	data, err := r.AsMap()
	if err != nil {
		return nil, false
	}
	return lookupPath(data, path)
}

// Scan decodes the value at a dotted path across every published graph into target.
// An empty path scans everything.
func (r *Runtime) Scan(path string, target any) error {
	data, err := r.AsMap()
	if err != nil {
		return err
	}
	if path != "" {
		v, ok := lookupPath(data, path)
		if !ok {
			return fmt.Errorf("path %q not found in any published graph", path)
		}
		if data, ok = v.(map[string]any); !ok {
			return fmt.Errorf("path %q is not a group or map", path)
		}
	}
	if err := scanInto(data, target); err != nil {
		return fmt.Errorf("failed to scan %q: %w", path, err)
	}
	return nil
}
