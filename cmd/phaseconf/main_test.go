// FILE: lixenwraith/phaseconf/cmd/phaseconf/main_test.go
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
classes:
  Server:
    members:
      - {field: Port, property: port, type: int, default: "8080"}
      - {field: Headers, property: headers, kind: map, value: {type: string}}
  Database:
    members:
      - {field: URL, property: url, type: string, default: "sqlite://app.db"}
roots:
  - {name: server, phase: run-time, class: Server}
  - {name: database, phase: fixed, class: Database}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestCheckValid(t *testing.T) {
	schema := writeFile(t, "schema.yaml", testSchema)
	config := writeFile(t, "app.toml", "[server]\nport = 9000\n[database]\nurl = \"postgres://db\"\n")

	out, err := run(t, "check", "-s", schema, "-c", config, "-p", "run-time", "-o", "report")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ run-time configuration is valid")

	out, err = run(t, "check", "-s", schema, "-c", config, "-p", "fixed", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"database": {"url": "postgres://db"}}`, out)
}

func TestCheckInvalid(t *testing.T) {
	schema := writeFile(t, "schema.yaml", testSchema)
	config := writeFile(t, "app.yaml", "server:\n  port: eighty\n  prot: 1\n")

	out, err := run(t, "check", "-s", schema, "-c", config, "-p", "run-time", "-o", "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 configuration error(s) in phase run-time")
	assert.Contains(t, out, "✗ run-time configuration is invalid")
	assert.Contains(t, out, `"server.port"`)
	assert.Contains(t, out, `did you mean "server.port"?`)
}

func TestKeys(t *testing.T) {
	schema := writeFile(t, "schema.yaml", testSchema)

	out, err := run(t, "keys", "-s", schema)
	require.NoError(t, err)
	assert.Contains(t, out, "server.headers.*")
	assert.Contains(t, out, `server.port = "8080"`)
	assert.Contains(t, out, `database.url = "sqlite://app.db"`)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "phaseconf version: dev")
}

func TestCommandsStartFresh(t *testing.T) {
	schema := writeFile(t, "schema.yaml", testSchema)
	config := writeFile(t, "app.toml", "[app.server]\nport = 9000\n")

	out, err := run(t, "check", "-s", schema, "-c", config, "--key-prefix", "app", "-o", "json",
		"--set", "app.server.headers.x-frame=DENY")
	require.NoError(t, err)
	assert.Contains(t, out, `"x-frame"`)

	out, err = run(t, "check", "-s", schema)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ run-time configuration is valid", "output format resets to report")

	out, err = run(t, "keys", "-s", schema)
	require.NoError(t, err)
	assert.Contains(t, out, "  server.port")
	assert.NotContains(t, out, "app.server.port", "key prefix does not leak from check")
}
