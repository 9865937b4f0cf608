// FILE: lixenwraith/phaseconf/source_test.go
package phaseconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceSetOrdering(t *testing.T) {
	low := NewMapSource("low", 100, map[string]string{"a": "low", "b": "low"})
	high := NewMapSource("high", 300, map[string]string{"a": "high", "b": ""})
	tie := NewMapSource("tie", 100, map[string]string{"c": "tie"})
	set := NewSourceSet(low, nil, high, tie)

	names := make([]string, 0, 3)
	for _, s := range set.Sources() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"high", "low", "tie"}, names, "equal ordinals keep argument order")

	raw, source, found := set.Lookup("a")
	assert.True(t, found)
	assert.Equal(t, "high", raw)
	assert.Equal(t, "high", source)

	raw, source, _ = set.Lookup("b")
	assert.Equal(t, "low", raw, "empty values fall through")
	assert.Equal(t, "low", source)

	_, _, found = set.Lookup("missing")
	assert.False(t, found)

	assert.Equal(t, []string{"a", "b", "c"}, set.PropertyNames())
}

func TestSourceSetValue(t *testing.T) {
	set := NewSourceSet(NewMapSource("m", 0, map[string]string{"port": "80", "bad": "x"}))

	v, err := set.Value("port", newDecodeConverter(intLeaf.Type))
	require.NoError(t, err)
	assert.Equal(t, 80, v)

	_, err = set.Value("bad", newDecodeConverter(intLeaf.Type))
	var invalid *InvalidValueError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "x", invalid.Raw)

	_, err = set.Value("absent", newDecodeConverter(intLeaf.Type))
	var missing *MissingValueError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "absent", missing.Key)
}

func TestMapSourceCopies(t *testing.T) {
	in := map[string]string{"a": "1"}
	src := NewMapSource("m", 0, in)
	in["a"] = "2"

	v, _ := src.Lookup("a")
	assert.Equal(t, "1", v)

	out := src.Values()
	out["a"] = "3"
	v, _ = src.Lookup("a")
	assert.Equal(t, "1", v)
}

func TestEnvSource(t *testing.T) {
	t.Setenv("PCENV_SERVER_PORT", "8081")
	t.Setenv("PCENV_SERVER_READ_TIMEOUT", "5s")
	t.Setenv("PCENV_LOG_LEVEL", "debug")

	t.Run("DefaultTransform", func(t *testing.T) {
		src := NewEnvSource(300, LoadOptions{EnvPrefix: "PCENV_"})
		v, ok := src.Lookup("server.port")
		assert.True(t, ok)
		assert.Equal(t, "8081", v)

		v, ok = src.Lookup("server.read-timeout")
		assert.True(t, ok)
		assert.Equal(t, "5s", v)

		assert.Equal(t, []string{"log.level", "server.port", "server.read.timeout"}, src.PropertyNames())
		assert.True(t, src.lenient())
	})

	t.Run("Whitelist", func(t *testing.T) {
		src := NewEnvSource(300, LoadOptions{
			EnvPrefix:    "PCENV_",
			EnvWhitelist: map[string]bool{"server.port": true},
		})
		_, ok := src.Lookup("log.level")
		assert.False(t, ok)
		assert.Equal(t, []string{"server.port"}, src.PropertyNames())
	})

	t.Run("CustomTransform", func(t *testing.T) {
		src := NewEnvSource(300, LoadOptions{
			EnvTransform: func(path string) string { return "PCENV_LOG_LEVEL" },
		})
		v, ok := src.Lookup("anything")
		assert.True(t, ok)
		assert.Equal(t, "debug", v)
		assert.Nil(t, src.PropertyNames(), "no prefix, no enumeration")
	})

	t.Run("Discover", func(t *testing.T) {
		src := NewEnvSource(300, LoadOptions{EnvPrefix: "PCENV_"})
		found := src.Discover([]string{"server.port", "server.host"})
		assert.Equal(t, map[string]string{"server.port": "PCENV_SERVER_PORT"}, found)
	})
}

func TestCLISource(t *testing.T) {
	src, err := NewCLISource(400, []string{
		"serve",
		"--server.port=9000",
		"--server.host", "example.com",
		"--verbose",
		"--",
		`--server.headers."x.trace"=on`,
	})
	require.NoError(t, err)
	assert.Equal(t, "cli", src.Name())
	assert.Equal(t, map[string]string{
		"server.port":              "9000",
		"server.host":              "example.com",
		"verbose":                  "true",
		`server.headers."x.trace"`: "on",
	}, src.Values())

	_, err = NewCLISource(400, []string{"--server..port=1"})
	assert.ErrorIs(t, err, ErrCLIParse)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"TOML", "app.toml", "[server]\nport = 9000\ntags = [\"a\", \"b,c\"]\n[server.headers]\n\"x.trace\" = \"on\"\n"},
		{"YAML", "app.yaml", "server:\n  port: 9000\n  tags: [a, \"b,c\"]\n  headers:\n    x.trace: \"on\"\n"},
		{"JSON", "app.json", `{"server": {"port": 9000, "tags": ["a", "b,c"], "headers": {"x.trace": "on"}}}`},
		{"DetectedFromContent", "app.conf", "[server]\nport = 9000\ntags = [\"a\", \"b,c\"]\n[server.headers]\n\"x.trace\" = \"on\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			src, err := NewFileSource(path, 200, LoadOptions{})
			require.NoError(t, err)
			assert.Equal(t, path, src.Path())
			assert.Equal(t, map[string]string{
				"server.port":              "9000",
				"server.tags":              `a,b\,c`,
				`server.headers."x.trace"`: "on",
			}, src.Values())

			conv, err := NewConverterCache().Resolve(CollectionOf{Element: stringLeaf})
			require.NoError(t, err)
			tags, err := conv.Convert(src.Values()["server.tags"])
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b,c"}, tags)
		})
	}
}

func TestFileSourceErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileSource(filepath.Join(dir, "absent.toml"), 200, LoadOptions{})
	assert.ErrorIs(t, err, ErrConfigNotFound)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[server\nport ="), 0600))
	_, err = NewFileSource(bad, 200, LoadOptions{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfigNotFound)

	big := filepath.Join(dir, "big.toml")
	require.NoError(t, os.WriteFile(big, []byte("key = \"0123456789\"\n"), 0600))
	_, err = NewFileSource(big, 200, LoadOptions{Security: &SecurityOptions{MaxFileSize: 4}})
	assert.ErrorContains(t, err, "exceeds maximum size")

	_, err = NewFileSource("../../etc/app.toml", 200, LoadOptions{Security: &SecurityOptions{PreventPathTraversal: true}})
	assert.ErrorContains(t, err, "path traversal")

	forced, err := NewDocumentSource("settings.txt", []byte(`{"a": 1}`), "json", 0)
	require.NoError(t, err)
	assert.Equal(t, "json", forced.Format())
}

func TestViperSource(t *testing.T) {
	v := viper.New()
	v.Set("Server.Port", 9000)
	v.Set("server.tags", []string{"a", "b,c"})
	v.Set("server.weights", []any{1, 2})
	v.Set("server.tls", map[string]any{"cert": "x"})

	src := NewViperSource(v, 250)
	assert.Equal(t, "viper", src.Name())
	assert.Equal(t, 250, src.Ordinal())

	port, ok := src.Lookup("server.port")
	assert.True(t, ok)
	assert.Equal(t, "9000", port)

	tags, _ := src.Lookup("server.tags")
	assert.Equal(t, `a,b\,c`, tags)
	weights, _ := src.Lookup("server.weights")
	assert.Equal(t, "1,2", weights)

	_, ok = src.Lookup("server.tls")
	assert.False(t, ok, "tables are not values")
	_, ok = src.Lookup("server.host")
	assert.False(t, ok)

	assert.Contains(t, src.PropertyNames(), "server.tls.cert")
}

func TestViperSourceMaterializes(t *testing.T) {
	v := viper.New()
	v.Set("server.port", 9500)
	v.Set("server.headers.x-frame", "DENY")

	graph, err := compileServer(t).Materialize(PhaseRunTime, NewViperSource(v, 250))
	require.NoError(t, err)
	port, _ := graph.Root("server").Get("Port")
	assert.Equal(t, 9500, port)
	assert.Equal(t, map[string]any{"x-frame": "DENY"}, graph.Root("server").Map("Headers"))
}

func TestDefaultValuesSource(t *testing.T) {
	p := compileServer(t, WithKeyPrefix("app"))
	src := newDefaultValuesSource(p.phases[PhaseRunTime].defaults, p.prefix)

	assert.Equal(t, OrdinalDefaultValues, src.Ordinal())
	assert.Nil(t, src.PropertyNames())
	v, ok := src.Lookup("app.server.routes.any.weight")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	_, ok = src.Lookup("server.port")
	assert.False(t, ok)
}
