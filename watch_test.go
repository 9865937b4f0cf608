// FILE: lixenwraith/phaseconf/watch_test.go
package phaseconf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWatchOptions() WatchOptions {
	return WatchOptions{
		PollInterval:  MinPollInterval,
		Debounce:      50 * time.Millisecond,
		MaxWatchers:   4,
		ReloadTimeout: time.Second,
	}
}

// rewrite replaces the file content and moves its modification time forward so
// the poller sees a change even on coarse-grained filesystems.
func rewrite(t *testing.T, path, content string, bump time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	future := time.Now().Add(bump)
	require.NoError(t, os.Chtimes(path, future, future))
}

func nextEvent(t *testing.T, ch <-chan WatchEvent, kind WatchEventKind) WatchEvent {
	t.Helper()
	timeout := time.After(DefaultPollInterval + testWatchOptions().Debounce*debounceSettleMultiplier + 2*time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "channel closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestWatchReload(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "app.toml", "[server]\nport = 9000\n")
	rt, err := appBuilder(t).WithFile(path).Build()
	require.NoError(t, err)

	ch := rt.WatchWithOptions(testWatchOptions())
	defer rt.StopAutoUpdate()
	assert.True(t, rt.IsWatching())
	assert.Equal(t, 1, rt.WatcherCount())
	before := rt.Graph(PhaseRunTime)

	rewrite(t, path, "[server]\nport = 9100\nhost = \"example.com\"\n", time.Second)
	ev := nextEvent(t, ch, EventReloaded)
	assert.Equal(t, []string{"server.host", "server.port"}, ev.Changed)
	assert.Equal(t, rt.Graph(PhaseRunTime).Generation(), ev.Generation)
	assert.NotSame(t, before, rt.Graph(PhaseRunTime))

	port, _ := rt.Lookup("server.port")
	assert.Equal(t, 9100, port)
	fixed := rt.Graph(PhaseBuildAndRunTimeFixed)

	t.Run("InvalidEditKeepsGraph", func(t *testing.T) {
		current := rt.Graph(PhaseRunTime)
		rewrite(t, path, "[server]\nport = \"ninety\"\n", 2*time.Second)
		ev := nextEvent(t, ch, EventReloadFailed)
		assert.ErrorIs(t, ev.Err, ErrInvalidConfiguration)
		assert.Same(t, current, rt.Graph(PhaseRunTime))
	})

	t.Run("FixedPhaseUntouched", func(t *testing.T) {
		assert.Same(t, fixed, rt.Graph(PhaseBuildAndRunTimeFixed))
	})

	t.Run("FileDeleted", func(t *testing.T) {
		current := rt.Graph(PhaseRunTime)
		require.NoError(t, os.Remove(path))
		nextEvent(t, ch, EventFileDeleted)
		assert.Same(t, current, rt.Graph(PhaseRunTime))
	})

	rt.StopAutoUpdate()
	assert.False(t, rt.IsWatching())
	assert.Zero(t, rt.WatcherCount())
	for range ch {
		// drain until the subscriber channel is closed
	}
}

func TestWatchWithoutFile(t *testing.T) {
	rt, err := appBuilder(t).Build()
	require.NoError(t, err)

	ch := rt.Watch()
	_, open := <-ch
	assert.False(t, open)
	assert.False(t, rt.IsWatching())
}

func TestWatchSubscriberLimit(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "app.toml", "[server]\nport = 9000\n")
	rt, err := appBuilder(t).WithFile(path).Build()
	require.NoError(t, err)
	defer rt.StopAutoUpdate()

	opts := testWatchOptions()
	opts.MaxWatchers = 1
	first := rt.WatchWithOptions(opts)
	second := rt.WatchWithOptions(opts)

	_, open := <-second
	assert.False(t, open, "subscribers beyond the limit get a closed channel")
	assert.Equal(t, 1, rt.WatcherCount())

	select {
	case <-first:
		t.Fatal("first subscriber must stay open")
	default:
	}
}

func TestWatchPermissionsChanged(t *testing.T) {
	path := writeConfig(t, filepath.Join(t.TempDir()), "app.toml", "[server]\nport = 9000\n")
	rt, err := appBuilder(t).WithFile(path).Build()
	require.NoError(t, err)

	opts := testWatchOptions()
	opts.VerifyPermissions = true
	ch := rt.WatchWithOptions(opts)
	defer rt.StopAutoUpdate()

	require.NoError(t, os.Chmod(path, 0644))
	nextEvent(t, ch, EventPermissionsChanged)
}

func TestDiffRawValues(t *testing.T) {
	before := map[string]string{"a": "1", "b": "2", "c": "3"}
	after := map[string]string{"a": "1", "b": "20", "d": "4"}
	assert.Equal(t, []string{"b", "c", "d"}, diffRawValues(before, after))
	assert.Empty(t, diffRawValues(before, before))
	assert.Equal(t, []string{"a"}, diffRawValues(nil, map[string]string{"a": ""}))
}
