// FILE: lixenwraith/phaseconf/errors.go
package phaseconf

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound is returned when a configuration file does not exist. It is not fatal for builders.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrCLIParse wraps command-line argument parsing failures
	ErrCLIParse = errors.New("failed to parse command-line arguments")

	// ErrValueSize is returned when a raw value exceeds MaxValueSize
	ErrValueSize = errors.New("value size exceeds maximum")

	// ErrSchemaInconsistency marks bugs in the schema producer: colliding key templates,
	// unrecognized converter variants, unusable bounds or patterns.
	ErrSchemaInconsistency = errors.New("schema inconsistency")

	// ErrInvalidConfiguration is matched by every phase failure
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnknownPhase is returned for phase values outside the three known phases
	ErrUnknownPhase = errors.New("unknown configuration phase")
)

// MaxValueSize bounds a single raw value read from the environment or a file
const MaxValueSize = 1024 * 1024

// schemaErrorf formats an ErrSchemaInconsistency error.
func schemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaInconsistency, fmt.Sprintf(format, args...))
}

// InvalidValueError reports a raw value rejected by its converter.
type InvalidValueError struct {
	Key   string
	Raw   string
	Cause error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for key %s: %v", e.Raw, e.Key, e.Cause)
}

func (e *InvalidValueError) Unwrap() error { return e.Cause }

// MissingValueError reports a required key absent from every source.
type MissingValueError struct {
	Key string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("missing value for required key %s", e.Key)
}

// ConfigurationError is the single error a failed phase produces.
// Its message is the aggregated report; no internal frames are attached.
type ConfigurationError struct {
	Phase    Phase
	Report   string
	Problems []Problem
}

func (e *ConfigurationError) Error() string {
	return e.Report
}

// Is makes errors.Is(err, ErrInvalidConfiguration) match any phase failure.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}
