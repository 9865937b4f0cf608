// FILE: lixenwraith/phaseconf/watch.go
package phaseconf

import (
	"context"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultMaxWatchers = 100 // Prevent resource exhaustion

// WatchEventKind classifies a watcher notification
type WatchEventKind string

const (
	EventReloaded           WatchEventKind = "reloaded"
	EventReloadFailed       WatchEventKind = "reload_failed"
	EventReloadTimeout      WatchEventKind = "reload_timeout"
	EventFileDeleted        WatchEventKind = "file_deleted"
	EventPermissionsChanged WatchEventKind = "permissions_changed"
)

// WatchEvent is delivered to subscribers after every reload attempt or file incident
type WatchEvent struct {
	Kind WatchEventKind
	// Generation of the graph published by a successful reload
	Generation uuid.UUID
	// Changed lists the keys whose raw value changed, appeared or disappeared
	Changed []string
	// Err is the materialization failure of a failed reload
	Err error
}

// WatchOptions configures file watching behavior
type WatchOptions struct {
	// PollInterval for file stat checks (minimum 100ms)
	PollInterval time.Duration

	// Debounce duration to avoid rapid reloads
	Debounce time.Duration

	// MaxWatchers limits concurrent watch channels
	MaxWatchers int

	// ReloadTimeout for run-time rematerialization
	ReloadTimeout time.Duration

	// VerifyPermissions checks file hasn't been replaced with different permissions
	VerifyPermissions bool
}

// DefaultWatchOptions returns sensible defaults for file watching
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		PollInterval:      DefaultPollInterval,
		Debounce:          DefaultDebounce,
		MaxWatchers:       DefaultMaxWatchers,
		ReloadTimeout:     DefaultReloadTimeout,
		VerifyPermissions: true,
	}
}

// watcher manages file watching state
type watcher struct {
	mu               sync.RWMutex
	ctx              context.Context
	cancel           context.CancelFunc
	opts             WatchOptions
	filePath         string
	logger           *zap.Logger
	lastModTime      time.Time
	lastSize         int64
	lastMode         os.FileMode
	watching         atomic.Bool
	reloadInProgress atomic.Bool
	watchers         map[int64]chan WatchEvent // subscriber channels
	watcherID        atomic.Int64
	debounceTimer    *time.Timer
}

// AutoUpdate enables reloading of the run-time phase when the configuration file changes
func (r *Runtime) AutoUpdate() {
	r.AutoUpdateWithOptions(DefaultWatchOptions())
}

// AutoUpdateWithOptions enables automatic reloading with custom options
func (r *Runtime) AutoUpdateWithOptions(opts WatchOptions) {
	// Validate options
	if opts.PollInterval < MinPollInterval {
		opts.PollInterval = MinPollInterval
	}
	if opts.MaxWatchers <= 0 {
		opts.MaxWatchers = DefaultMaxWatchers
	}
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = DefaultReloadTimeout
	}

	r.watchMu.Lock()
	defer r.watchMu.Unlock()

	if r.file == "" || r.factory == nil {
		// No file configured, nothing to watch
		return
	}
	if r.watcher != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &watcher{
		ctx:      ctx,
		cancel:   cancel,
		opts:     opts,
		filePath: r.file,
		logger:   r.logger,
		watchers: make(map[int64]chan WatchEvent),
	}

	// Get initial file state
	if info, err := os.Stat(r.file); err == nil {
		w.lastModTime = info.ModTime()
		w.lastSize = info.Size()
		w.lastMode = info.Mode()
	}

	r.watcher = w
	w.watching.Store(true)
	go w.watchLoop(r)
}

// StopAutoUpdate stops automatic reloading and closes every subscriber channel
func (r *Runtime) StopAutoUpdate() {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()

	if r.watcher != nil {
		r.watcher.stop()
		r.watcher = nil
	}
}

// Watch returns a channel of reload events, starting the watcher with default options if needed
func (r *Runtime) Watch() <-chan WatchEvent {
	return r.WatchWithOptions(DefaultWatchOptions())
}

// WatchWithOptions returns a channel of reload events. Options apply only when the watcher starts.
func (r *Runtime) WatchWithOptions(opts WatchOptions) <-chan WatchEvent {
	r.AutoUpdateWithOptions(opts)

	r.watchMu.Lock()
	w := r.watcher
	r.watchMu.Unlock()

	if w == nil {
		// No file to watch, return closed channel
		ch := make(chan WatchEvent)
		close(ch)
		return ch
	}
	return w.subscribe()
}

// IsWatching returns true if auto-update is enabled
func (r *Runtime) IsWatching() bool {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	return r.watcher != nil && r.watcher.watching.Load()
}

// WatcherCount returns the number of active watch channels
func (r *Runtime) WatcherCount() int {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()

	if r.watcher == nil {
		return 0
	}

	r.watcher.mu.RLock()
	defer r.watcher.mu.RUnlock()
	return len(r.watcher.watchers)
}

// watchLoop is the main file watching loop
func (w *watcher) watchLoop(r *Runtime) {
	defer w.watching.Store(false)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.checkAndReload(r)
		}
	}
}

// checkAndReload checks if file changed and triggers reload
func (w *watcher) checkAndReload(r *Runtime) {
	info, err := os.Stat(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// File was deleted, the last graph stays published
			w.notifyWatchers(WatchEvent{Kind: EventFileDeleted})
		}
		return
	}

	// Compare modification time and size
	changed := !info.ModTime().Equal(w.lastModTime) || info.Size() != w.lastSize

	// SECURITY: Verify permissions haven't changed suspiciously
	if w.opts.VerifyPermissions && w.lastMode != 0 && info.Mode() != w.lastMode {
		if (info.Mode() & 0077) != (w.lastMode & 0077) {
			// World/group permissions changed - potential security issue
			w.logger.Warn("configuration file permissions changed, reload skipped",
				zap.String("path", w.filePath))
			w.notifyWatchers(WatchEvent{Kind: EventPermissionsChanged})
			return
		}
	}

	if changed {
		// Update tracked state
		w.lastModTime = info.ModTime()
		w.lastSize = info.Size()
		w.lastMode = info.Mode()

		// Debounce rapid changes
		w.mu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.debounceTimer = time.AfterFunc(w.opts.Debounce, func() {
			w.performReload(r)
		})
		w.mu.Unlock()
	}
}

// performReload rematerializes the run-time phase from fresh sources
func (w *watcher) performReload(r *Runtime) {
	// Prevent concurrent reloads
	if !w.reloadInProgress.CompareAndSwap(false, true) {
		return
	}
	defer w.reloadInProgress.Store(false)

	ctx, cancel := context.WithTimeout(w.ctx, w.opts.ReloadTimeout)
	defer cancel()

	var oldRaw map[string]string
	if prev := r.Graph(PhaseRunTime); prev != nil {
		oldRaw = prev.RawValues()
	}

	type result struct {
		graph *Graph
		err   error
	}
	done := make(chan result, 1)
	go func() {
		g, err := r.Refresh(PhaseRunTime)
		done <- result{graph: g, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			w.logger.Warn("configuration reload failed",
				zap.String("path", w.filePath),
				zap.Error(res.err))
			w.notifyWatchers(WatchEvent{Kind: EventReloadFailed, Err: res.err})
			return
		}
		changed := diffRawValues(oldRaw, res.graph.RawValues())
		w.logger.Info("configuration reloaded",
			zap.String("path", w.filePath),
			zap.String("generation", res.graph.Generation().String()),
			zap.Int("changed", len(changed)))
		w.notifyWatchers(WatchEvent{
			Kind:       EventReloaded,
			Generation: res.graph.Generation(),
			Changed:    changed,
		})

	case <-ctx.Done():
		w.notifyWatchers(WatchEvent{Kind: EventReloadTimeout, Err: ctx.Err()})
	}
}

// diffRawValues lists keys that differ between two raw value snapshots, sorted.
func diffRawValues(before, after map[string]string) []string {
	var changed []string
	for key, v := range after {
		if old, existed := before[key]; !existed || old != v {
			changed = append(changed, key)
		}
	}
	// Check for deletions
	for key := range before {
		if _, exists := after[key]; !exists {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

// subscribe creates a new watcher channel
func (w *watcher) subscribe() <-chan WatchEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Check watcher limit
	if len(w.watchers) >= w.opts.MaxWatchers {
		// Return closed channel to prevent resource exhaustion
		ch := make(chan WatchEvent)
		close(ch)
		return ch
	}

	// Create buffered channel to prevent blocking
	ch := make(chan WatchEvent, 10)
	id := w.watcherID.Add(1)
	w.watchers[id] = ch

	// Cleanup goroutine
	go func() {
		<-w.ctx.Done()
		w.mu.Lock()
		delete(w.watchers, id)
		close(ch)
		w.mu.Unlock()
	}()

	return ch
}

// notifyWatchers sends an event to all subscribers without blocking
func (w *watcher) notifyWatchers(ev WatchEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, ch := range w.watchers {
		select {
		case ch <- ev:
		default:
			// Channel full, subscriber misses this event
		}
	}
}

// stop terminates the watcher
func (w *watcher) stop() {
	if w.cancel != nil {
		w.cancel()
	}

	// Stop debounce timer
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.mu.Unlock()

	// Wait for watch loop to exit
	for i := 0; i < shutdownPollCycles && w.watching.Load(); i++ {
		time.Sleep(SpinWaitInterval)
	}
}
