// FILE: lixenwraith/phaseconf/resolver_test.go
package phaseconf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(kv map[string]string) Source {
	return NewMapSource("test", 200, kv)
}

func TestMaterializeDefaults(t *testing.T) {
	p := compileServer(t)

	graph, err := p.Materialize(PhaseRunTime)
	require.NoError(t, err)

	server := graph.Root("server")
	require.NotNil(t, server)
	port, _ := server.Get("Port")
	assert.Equal(t, 8080, port)
	host, _ := server.Get("Host")
	assert.Equal(t, "localhost", host)
	assert.Empty(t, server.Map("Headers"))
	assert.Empty(t, server.Map("Routes"))
	assert.Nil(t, server.Group("TLS"), "optional groups stay absent without keys")
	assert.Empty(t, graph.Warnings())
	assert.Equal(t, []string{"server"}, graph.RootNames())
	assert.Equal(t, PhaseRunTime, graph.Phase())
}

func TestMaterializeServerScenario(t *testing.T) {
	p := compileServer(t)

	graph, err := p.Materialize(PhaseRunTime, values(map[string]string{
		"server.host":              "0.0.0.0",
		"server.headers.x-frame":   "DENY",
		`server.headers."x.trace"`: "on",
	}))
	require.NoError(t, err)

	server := graph.Root("server")
	port, _ := server.Get("Port")
	assert.Equal(t, 8080, port)
	host, _ := server.Get("Host")
	assert.Equal(t, "0.0.0.0", host)
	assert.Equal(t, map[string]any{"x-frame": "DENY", "x.trace": "on"}, server.Map("Headers"))

	assert.Equal(t, map[string]string{
		"server.port":              "8080",
		"server.host":              "0.0.0.0",
		"server.headers.x-frame":   "DENY",
		`server.headers."x.trace"`: "on",
	}, graph.RawValues())
}

func TestMaterializeInvalidValue(t *testing.T) {
	p := compileServer(t)

	graph, err := p.Materialize(PhaseRunTime, values(map[string]string{
		"server.port": "not-a-number",
	}))
	require.Error(t, err)
	assert.Nil(t, graph)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, PhaseRunTime, cfgErr.Phase)
	require.Len(t, cfgErr.Problems, 1, "the sweep must not report the eager key again")
	assert.Equal(t, ProblemInvalidValue, cfgErr.Problems[0].Kind)
	assert.Equal(t, "server.port", cfgErr.Problems[0].Key)
	assert.Contains(t, err.Error(), reportHeader)
	assert.Contains(t, err.Error(), `"server.port"`)
}

func TestMaterializeMapEntryGroup(t *testing.T) {
	var inits postInits
	p, err := Compile(serverSchema(&inits))
	require.NoError(t, err)

	graph, err := p.Materialize(PhaseRunTime, values(map[string]string{
		"server.routes.api.target": "http://api:9000",
		"server.routes.api.weight": "3",
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, inits.routes, "two keys of one entry create it once")

	api, ok := graph.Root("server").Map("Routes")["api"].(*Group)
	require.True(t, ok)
	assert.Equal(t, "server.routes.api", api.Name())
	target, _ := api.Get("Target")
	assert.Equal(t, "http://api:9000", target)
	weight, _ := api.Get("Weight")
	assert.Equal(t, 3, weight)

	v, ok := graph.Lookup("server.routes.api.weight")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestMaterializeMapEntryDefaults(t *testing.T) {
	var inits postInits
	p, err := Compile(serverSchema(&inits))
	require.NoError(t, err)

	graph, err := p.Materialize(PhaseRunTime, values(map[string]string{
		"server.routes.api.target": "http://api",
		"server.routes.web.target": "http://web",
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, inits.routes)

	routes := graph.Root("server").Map("Routes")
	require.Len(t, routes, 2)
	for _, name := range []string{"api", "web"} {
		weight, _ := routes[name].(*Group).Get("Weight")
		assert.Equal(t, 1, weight, "entry %s takes the wildcard default", name)
	}
}

func TestMaterializeOptionalGroup(t *testing.T) {
	p := compileServer(t)

	graph, err := p.Materialize(PhaseRunTime, values(map[string]string{
		"server.tls.cert": "/etc/cert.pem",
	}))
	require.NoError(t, err)

	tls := graph.Root("server").Group("TLS")
	require.NotNil(t, tls)
	assert.Equal(t, "server.tls", tls.Name())
	cert, _ := tls.Get("Cert")
	assert.Equal(t, "/etc/cert.pem", cert)
	key, _ := tls.Get("Key")
	assert.Nil(t, key.(*string), "absent optional item is a typed nil")

	rendered := graph.AsMap()["server"].(map[string]any)["tls"]
	assert.Equal(t, map[string]any{"cert": "/etc/cert.pem"}, rendered)
}

func TestMaterializeOptionalGroupOnce(t *testing.T) {
	var inits postInits
	p, err := Compile(serverSchema(&inits))
	require.NoError(t, err)

	graph, err := p.Materialize(PhaseRunTime, values(map[string]string{
		"server.tls.cert": "/etc/cert.pem",
		"server.tls.key":  "/etc/key.pem",
	}))
	require.NoError(t, err)

	require.Len(t, inits.tls, 1, "two keys of one optional group create it once")
	tls := graph.Root("server").Group("TLS")
	assert.Same(t, inits.tls[0], tls)
	cert, _ := tls.Get("Cert")
	assert.Equal(t, "/etc/cert.pem", cert)
	key, _ := tls.Get("Key")
	require.NotNil(t, key.(*string))
	assert.Equal(t, "/etc/key.pem", *key.(*string))
	assert.Zero(t, inits.routes)
}

func TestMaterializeAggregatesProblems(t *testing.T) {
	p := compileServer(t)

	_, err := p.Materialize(PhaseRunTime, values(map[string]string{
		"server.port":              "x",
		"server.bogus":             "1",
		"server.routes.api.weight": "5",
		"server.tls.key":           "key.pem",
	}))
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))

	kinds := make([]ProblemKind, 0, len(cfgErr.Problems))
	keys := make([]string, 0, len(cfgErr.Problems))
	for _, p := range cfgErr.Problems {
		kinds = append(kinds, p.Kind)
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []ProblemKind{
		ProblemInvalidValue,
		ProblemUnknownKey,
		ProblemMissingValue,
		ProblemMissingValue,
	}, kinds)
	assert.Equal(t, []string{
		"server.port",
		"server.bogus",
		"server.routes.api.target",
		"server.tls.cert",
	}, keys)
}

func TestMaterializeUnknownKeys(t *testing.T) {
	p := compileServer(t)

	t.Run("WarningAheadOfTime", func(t *testing.T) {
		graph, err := p.Materialize(PhaseBuildAndRunTimeFixed, values(map[string]string{
			"database.urll": "postgres://db",
			"server.port":   "9090",
		}))
		require.NoError(t, err)

		warnings := graph.Warnings()
		require.Len(t, warnings, 1)
		assert.Equal(t, ProblemUnknownKey, warnings[0].Kind)
		assert.Equal(t, SeverityWarning, warnings[0].Severity)
		assert.Equal(t, "database.urll", warnings[0].Key)
		assert.Equal(t, "database.url", warnings[0].Suggestion)
	})

	t.Run("ErrorAtRunTime", func(t *testing.T) {
		_, err := p.Materialize(PhaseRunTime, values(map[string]string{
			"server.prot":  "9090",
			"database.url": "postgres://db",
		}))
		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		require.Len(t, cfgErr.Problems, 1, "keys of other phases are ignored")
		assert.Equal(t, SeverityError, cfgErr.Problems[0].Severity)
		assert.Equal(t, "server.port", cfgErr.Problems[0].Suggestion)
		assert.Contains(t, err.Error(), `did you mean "server.port"?`)
	})

	t.Run("InteriorKey", func(t *testing.T) {
		_, err := p.Materialize(PhaseRunTime, values(map[string]string{
			"server.routes": "x",
		}))
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("OutsideKeyPrefix", func(t *testing.T) {
		prefixed := compileServer(t, WithKeyPrefix("app"))
		graph, err := prefixed.Materialize(PhaseRunTime, values(map[string]string{
			"other.thing":     "x",
			"app.server.port": "9090",
		}))
		require.NoError(t, err)
		port, _ := graph.Root("server").Get("Port")
		assert.Equal(t, 9090, port)
	})
}

func TestMaterializeLenientEnvironment(t *testing.T) {
	t.Setenv("PCRESOLVE_SERVER_PORT", "9191")
	t.Setenv("PCRESOLVE_SERVER_NOT_A_KEY", "1")

	p := compileServer(t)
	env := NewEnvSource(300, LoadOptions{EnvPrefix: "PCRESOLVE_"})

	graph, err := p.Materialize(PhaseRunTime, env)
	require.NoError(t, err, "guessed environment names are never unknown keys")
	port, _ := graph.Root("server").Get("Port")
	assert.Equal(t, 9191, port)
}

func TestMaterializeSourcePrecedence(t *testing.T) {
	p := compileServer(t, WithRunTimeDefaults(map[string]string{
		"server.host": "runtime-default",
		"server.port": "7000",
	}))

	graph, err := p.Materialize(PhaseRunTime,
		NewMapSource("low", 100, map[string]string{"server.port": "1"}),
		NewMapSource("high", 400, map[string]string{"server.port": "2"}),
		NewMapSource("empty", 500, map[string]string{"server.port": ""}),
	)
	require.NoError(t, err)

	port, _ := graph.Root("server").Get("Port")
	assert.Equal(t, 2, port, "the highest ordinal with a non-empty value wins")
	host, _ := graph.Root("server").Get("Host")
	assert.Equal(t, "runtime-default", host, "run-time defaults rank above schema defaults")
}

func TestMaterializeMapOfMaps(t *testing.T) {
	schema := NewSchema(NewRoot("acl", PhaseRunTime, NewClass("ACL",
		MapOf("Rules", "rules", MapOfMaps(MapValue(OptionalOf{Nested: intLeaf}))),
	)))
	p, err := Compile(schema)
	require.NoError(t, err)

	graph, err := p.Materialize(PhaseRunTime, values(map[string]string{
		"acl.rules.admin.read":  "1",
		"acl.rules.admin.write": "2",
		"acl.rules.guest.read":  "3",
	}))
	require.NoError(t, err)

	v, ok := graph.Lookup("acl.rules.admin.write")
	require.True(t, ok)
	assert.Equal(t, 2, *(v.(*int)))
	rules := graph.Root("acl").Map("Rules")
	assert.Len(t, rules, 2)
	assert.Len(t, rules["guest"], 1)
}

func TestMaterializeUnwrappedGroup(t *testing.T) {
	inner := NewClass("Limits", Item("Max", "max", intLeaf).WithDefault("10"))
	schema := NewSchema(NewRoot("pool", PhaseRunTime, NewClass("Pool",
		Item("Size", "size", intLeaf).WithDefault("2"),
		NestedGroup("Limits", "", inner, false),
	)))
	p, err := Compile(schema)
	require.NoError(t, err)
	assert.Equal(t, []string{"pool.max", "pool.size"}, p.Templates(PhaseRunTime))

	graph, err := p.Materialize(PhaseRunTime, values(map[string]string{"pool.max": "20"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"pool": map[string]any{"max": 20, "size": 2}}, graph.AsMap())
	limit, _ := graph.Root("pool").Group("Limits").Get("Max")
	assert.Equal(t, 20, limit)
}

func TestMaterializeWildcardBesideOtherPhaseLiteral(t *testing.T) {
	schema := NewSchema(
		NewRoot("app.labels", PhaseBuildAndRunTimeFixed, NewClass("Labels",
			Item("Name", "name", stringLeaf).WithDefault("fixed"),
		)),
		NewRoot("app", PhaseRunTime, NewClass("App",
			MapOf("Labels", "labels", MapValue(stringLeaf)),
		)),
	)
	p, err := Compile(schema)
	require.NoError(t, err)

	t.Run("RunTimeEntry", func(t *testing.T) {
		graph, err := p.Materialize(PhaseRunTime, values(map[string]string{
			"app.labels.name": "v",
			"app.labels.team": "core",
		}))
		require.NoError(t, err)
		assert.Empty(t, graph.Warnings())
		assert.Equal(t, map[string]any{"name": "v", "team": "core"}, graph.Root("app").Map("Labels"))
	})

	t.Run("FixedLiteral", func(t *testing.T) {
		graph, err := p.Materialize(PhaseBuildAndRunTimeFixed, values(map[string]string{
			"app.labels.name": "v",
			"app.labels.team": "core",
		}))
		require.NoError(t, err)
		assert.Empty(t, graph.Warnings(), "run-time map entries are ignored in the fixed phase")
		name, _ := graph.Root("app.labels").Get("Name")
		assert.Equal(t, "v", name)
	})
}
