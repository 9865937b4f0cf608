// FILE: lixenwraith/phaseconf/diagnostic.go
package phaseconf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ProblemKind classifies one recorded diagnostic.
type ProblemKind int

const (
	ProblemInvalidValue ProblemKind = iota
	ProblemMissingValue
	ProblemUnknownKey
)

func (k ProblemKind) String() string {
	switch k {
	case ProblemInvalidValue:
		return "invalid-value"
	case ProblemMissingValue:
		return "missing-value"
	case ProblemUnknownKey:
		return "unknown-key"
	default:
		return fmt.Sprintf("problem(%d)", int(k))
	}
}

// Severity decides whether a problem fails its phase.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Problem is one recorded diagnostic.
type Problem struct {
	Kind       ProblemKind
	Severity   Severity
	Key        string
	Cause      error
	Suggestion string
}

func (p Problem) String() string {
	var b strings.Builder
	switch p.Kind {
	case ProblemInvalidValue:
		fmt.Fprintf(&b, "An invalid value was given for configuration key %q: %v", p.Key, unwrapCause(p.Cause))
	case ProblemMissingValue:
		fmt.Fprintf(&b, "The configuration key %q is required but no value was found in any source", p.Key)
	case ProblemUnknownKey:
		fmt.Fprintf(&b, "Unrecognized configuration key %q was provided", p.Key)
		if p.Suggestion != "" {
			fmt.Fprintf(&b, " (did you mean %q?)", p.Suggestion)
		}
	}
	return b.String()
}

// unwrapCause strips the InvalidValueError envelope whose key is already in the message.
func unwrapCause(err error) error {
	var iv *InvalidValueError
	if errors.As(err, &iv) && iv.Cause != nil {
		return iv.Cause
	}
	return err
}

const reportHeader = "One or more configuration errors has prevented the application from starting. The errors are:\n"

// Diagnostics collects the problems of one phase run without interrupting it.
type Diagnostics struct {
	phase     Phase
	problems  []Problem
	errors    int
	templates []string
}

// NewDiagnostics creates an aggregator. Templates are the literal key templates offered as
// suggestions for unknown keys.
func NewDiagnostics(phase Phase, templates []string) *Diagnostics {
	return &Diagnostics{phase: phase, templates: templates}
}

// InvalidValue records a value rejected by its converter.
func (d *Diagnostics) InvalidValue(key string, cause error) {
	d.add(Problem{Kind: ProblemInvalidValue, Severity: SeverityError, Key: key, Cause: cause})
}

// MissingValue records a required key without any value.
func (d *Diagnostics) MissingValue(key string, cause error) {
	d.add(Problem{Kind: ProblemMissingValue, Severity: SeverityError, Key: key, Cause: cause})
}

// Unknown records a key matched by no phase. Ahead of time it is only a warning.
func (d *Diagnostics) Unknown(it *NameIterator) {
	d.add(Problem{Kind: ProblemUnknownKey, Severity: SeverityWarning, Key: it.Name(), Suggestion: d.suggest(it.Name())})
}

// UnknownAtStart records a key matched by no phase while the process starts.
func (d *Diagnostics) UnknownAtStart(it *NameIterator) {
	d.add(Problem{Kind: ProblemUnknownKey, Severity: SeverityError, Key: it.Name(), Suggestion: d.suggest(it.Name())})
}

// record files a source lookup error under its matching kind.
func (d *Diagnostics) record(key string, err error) {
	var missing *MissingValueError
	if errors.As(err, &missing) {
		d.MissingValue(key, err)
		return
	}
	d.InvalidValue(key, err)
}

func (d *Diagnostics) add(p Problem) {
	d.problems = append(d.problems, p)
	if p.Severity == SeverityError {
		d.errors++
	}
}

// IsError reports whether any error-severity problem was recorded.
func (d *Diagnostics) IsError() bool {
	return d.errors > 0
}

// Problems returns every recorded problem in recording order.
func (d *Diagnostics) Problems() []Problem {
	out := make([]Problem, len(d.problems))
	copy(out, d.problems)
	return out
}

// Warnings returns only warning-severity problems.
func (d *Diagnostics) Warnings() []Problem {
	var out []Problem
	for _, p := range d.problems {
		if p.Severity == SeverityWarning {
			out = append(out, p)
		}
	}
	return out
}

// Report renders every error-severity problem as one message.
func (d *Diagnostics) Report() string {
	var b strings.Builder
	b.WriteString(reportHeader)
	for _, p := range d.problems {
		if p.Severity != SeverityError {
			continue
		}
		b.WriteString("  - ")
		b.WriteString(p.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Reset clears the aggregator for the next phase.
func (d *Diagnostics) Reset() {
	d.problems = nil
	d.errors = 0
}

// Err returns the aggregated phase failure, or nil when no error was recorded.
func (d *Diagnostics) Err() error {
	if !d.IsError() {
		return nil
	}
	var errs []Problem
	for _, p := range d.problems {
		if p.Severity == SeverityError {
			errs = append(errs, p)
		}
	}
	return &ConfigurationError{Phase: d.phase, Report: d.Report(), Problems: errs}
}

// suggest returns the closest known template within a small edit distance.
func (d *Diagnostics) suggest(key string) string {
	if len(d.templates) == 0 {
		return ""
	}
	best, bestDist := "", len(key)/3+2
	for _, t := range d.templates {
		if dist := fuzzy.LevenshteinDistance(key, t); dist < bestDist {
			best, bestDist = t, dist
		}
	}
	return best
}
