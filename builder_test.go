// FILE: lixenwraith/phaseconf/builder_test.go
package phaseconf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type appDatabase struct {
	URL  string `toml:"url" default:"sqlite://app.db"`
	Pool int    `toml:"pool" default:"4"`
}

type appServer struct {
	Port    int               `toml:"port" default:"8080"`
	Host    string            `toml:"host" default:"localhost"`
	Headers map[string]string `toml:"headers"`
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func appBuilder(t *testing.T) *Builder {
	return NewBuilder().
		WithStruct("database", PhaseBuildAndRunTimeFixed, appDatabase{}).
		WithStruct("server", PhaseRunTime, appServer{}).
		WithArgs(nil).
		WithLogger(zaptest.NewLogger(t))
}

func TestBuilderPrecedence(t *testing.T) {
	t.Setenv("PCBUILD_SERVER_PORT", "9500")
	path := writeConfig(t, t.TempDir(), "app.toml", `
[database]
url = "postgres://file"

[server]
port = 9000
host = "file"

[server.headers]
x-frame = "DENY"
`)

	rt, err := appBuilder(t).
		WithFile(path).
		WithEnvPrefix("PCBUILD_").
		WithArgs([]string{"--server.host=cli"}).
		Build()
	require.NoError(t, err)

	port, _ := rt.Lookup("server.port")
	assert.Equal(t, 9500, port, "env beats file")
	host, _ := rt.Lookup("server.host")
	assert.Equal(t, "cli", host, "cli beats env")
	url, _ := rt.Lookup("database.url")
	assert.Equal(t, "postgres://file", url)
	pool, _ := rt.Lookup("database.pool")
	assert.Equal(t, 4, pool)
	headers, _ := rt.Lookup("server.headers")
	assert.Equal(t, map[string]any{"x-frame": "DENY"}, headers)

	assert.NotNil(t, rt.Graph(PhaseBuildAndRunTimeFixed))
	assert.NotNil(t, rt.Graph(PhaseRunTime))
	assert.Nil(t, rt.Graph(PhaseBuildTime))
}

func TestBuilderSourceOrder(t *testing.T) {
	t.Setenv("PCORDER_SERVER_PORT", "9500")
	path := writeConfig(t, t.TempDir(), "app.toml", "[server]\nport = 9000\n")

	rt, err := appBuilder(t).
		WithFile(path).
		WithEnvPrefix("PCORDER_").
		WithArgs([]string{"--server.port=1"}).
		WithSources(SourceFile, SourceEnv).
		Build()
	require.NoError(t, err)

	port, _ := rt.Lookup("server.port")
	assert.Equal(t, 9000, port, "file listed first, cli not listed")
}

func TestBuilderMissingFile(t *testing.T) {
	rt, err := appBuilder(t).
		WithFile(filepath.Join(t.TempDir(), "absent.toml")).
		WithRunTimeDefaults(map[string]string{"server.host": "decided-at-build"}).
		Build()
	require.ErrorIs(t, err, ErrConfigNotFound)
	require.NotNil(t, rt, "a missing file still yields a usable runtime")

	port, _ := rt.Lookup("server.port")
	assert.Equal(t, 8080, port)
	host, _ := rt.Lookup("server.host")
	assert.Equal(t, "decided-at-build", host)
}

func TestBuilderCustomSource(t *testing.T) {
	rt, err := appBuilder(t).
		WithSource(NewMapSource("override", 1000, map[string]string{"server.port": "7000"})).
		WithSource(nil).
		Build()
	require.NoError(t, err)
	port, _ := rt.Lookup("server.port")
	assert.Equal(t, 7000, port)
}

func TestBuilderKeyPrefix(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "app.yaml", "app:\n  server:\n    port: 9001\n")

	rt, err := appBuilder(t).WithKeyPrefix("app").WithFile(path).Build()
	require.NoError(t, err)
	port, _ := rt.Lookup("server.port")
	assert.Equal(t, 9001, port, "lookups are relative to the key prefix")
	assert.Contains(t, rt.Program().Templates(PhaseRunTime), "app.server.port")
}

func TestBuilderErrors(t *testing.T) {
	t.Run("BadStruct", func(t *testing.T) {
		_, err := appBuilder(t).WithStruct("broken", PhaseRunTime, 42).Build()
		assert.ErrorContains(t, err, `failed to register root "broken"`)
	})

	t.Run("SchemaInconsistency", func(t *testing.T) {
		_, err := appBuilder(t).WithStruct("server", PhaseRunTime, appServer{}).Build()
		assert.ErrorIs(t, err, ErrSchemaInconsistency)
	})

	t.Run("InvalidValue", func(t *testing.T) {
		_, err := appBuilder(t).WithArgs([]string{"--server.port=http"}).Build()
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, PhaseRunTime, cfgErr.Phase)
	})

	t.Run("Validator", func(t *testing.T) {
		called := 0
		_, err := appBuilder(t).
			WithValidator(func(rt *Runtime) error {
				called++
				return rt.Validate("server.port", "database.url")
			}).
			WithValidator(func(*Runtime) error { return errors.New("port reserved") }).
			WithValidator(nil).
			Build()
		assert.Equal(t, 1, called)
		assert.ErrorContains(t, err, "configuration validation failed: port reserved")
	})

	t.Run("MustBuildPanics", func(t *testing.T) {
		assert.Panics(t, func() {
			appBuilder(t).WithArgs([]string{"--server.port=http"}).MustBuild()
		})
		assert.NotPanics(t, func() {
			rt := appBuilder(t).WithFile(filepath.Join(t.TempDir(), "absent.toml")).MustBuild()
			assert.NotNil(t, rt)
		})
	})
}

func TestBuilderWithSchema(t *testing.T) {
	rt, err := NewBuilder().
		WithSchema(serverSchema(nil)).
		WithArgs([]string{"--server.routes.api.target=http://api"}).
		Build()
	require.NoError(t, err)
	target, _ := rt.Lookup("server.routes.api.target")
	assert.Equal(t, "http://api", target)
}

func TestBuildAndScan(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "app.json", `{"server": {"port": 9100, "headers": {"x-a": "1"}}}`)

	var server appServer
	err := appBuilder(t).WithFile(path).BuildAndScan("server", &server)
	require.NoError(t, err)
	assert.Equal(t, 9100, server.Port)
	assert.Equal(t, "localhost", server.Host)
	assert.Equal(t, map[string]string{"x-a": "1"}, server.Headers)

	var fallback appServer
	err = appBuilder(t).WithFile(filepath.Join(t.TempDir(), "absent.json")).BuildAndScan("server", &fallback)
	assert.True(t, IsConfigNotFound(err))
	assert.Equal(t, 8080, fallback.Port)
}
