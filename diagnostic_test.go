// FILE: lixenwraith/phaseconf/diagnostic_test.go
package phaseconf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticsAggregation(t *testing.T) {
	d := NewDiagnostics(PhaseRunTime, []string{"server.port", "server.host"})
	assert.False(t, d.IsError())
	assert.NoError(t, d.Err())

	d.Unknown(NewNameIterator("server.hots"))
	assert.False(t, d.IsError(), "warnings never fail a phase")

	d.InvalidValue("server.port", &InvalidValueError{Key: "server.port", Raw: "x", Cause: errors.New("not a number")})
	d.record("server.tls.cert", &MissingValueError{Key: "server.tls.cert"})
	d.UnknownAtStart(NewNameIterator("server.prot"))
	require.True(t, d.IsError())

	assert.Len(t, d.Problems(), 4)
	warnings := d.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "server.host", warnings[0].Suggestion)

	err := d.Err()
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, cfgErr.Problems, 3)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))

	expected := reportHeader +
		`  - An invalid value was given for configuration key "server.port": not a number` + "\n" +
		`  - The configuration key "server.tls.cert" is required but no value was found in any source` + "\n" +
		`  - Unrecognized configuration key "server.prot" was provided (did you mean "server.port"?)` + "\n"
	assert.Equal(t, expected, err.Error())

	d.Reset()
	assert.False(t, d.IsError())
	assert.Empty(t, d.Problems())
}

func TestDiagnosticsSuggestion(t *testing.T) {
	d := NewDiagnostics(PhaseBuildTime, []string{"database.url", "database.pool"})

	tests := []struct {
		key      string
		expected string
	}{
		{"database.ulr", "database.url"},
		{"database.pol", "database.pool"},
		{"logging.level", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.expected, d.suggest(tt.key))
		})
	}

	assert.Empty(t, NewDiagnostics(PhaseRunTime, nil).suggest("anything"))
}

func TestProblemKindStrings(t *testing.T) {
	assert.Equal(t, "invalid-value", ProblemInvalidValue.String())
	assert.Equal(t, "missing-value", ProblemMissingValue.String())
	assert.Equal(t, "unknown-key", ProblemUnknownKey.String())
	assert.Equal(t, "problem(9)", ProblemKind(9).String())
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "warning", SeverityWarning.String())
}
