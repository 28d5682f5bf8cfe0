// Package watcher flags session entries whose files vanish on disk.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/ctxpack/ctxpack/internal/domain/events"
	"github.com/ctxpack/ctxpack/internal/session"
)

const subscriberID = "stale-watcher"

// target identifies one session entry backed by a filesystem path.
type target struct {
	sessionID string
	location  string
}

// Watcher watches the parent directories of every filesystem-backed
// session entry and marks entries stale when their paths disappear.
// Staleness is advisory: the entry stays in the tree and is re-checked
// on the next load.
//
// The watcher doubles as an event hub subscriber so tree mutations
// trigger a rebuild of the watch set.
type Watcher struct {
	store      *session.Store
	debounceMS int

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	running bool
	cancel  context.CancelFunc

	debouncer *Debouncer

	// index maps a cleaned absolute path to the entries backed by it.
	index map[string][]target
	dirs  map[string]bool

	refresh chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewWatcher creates a stale-entry watcher over a session store.
func NewWatcher(store *session.Store, debounceMS int) *Watcher {
	return &Watcher{
		store:      store,
		debounceMS: debounceMS,
		index:      make(map[string][]target),
		dirs:       make(map[string]bool),
		refresh:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Start begins watching. The watch set is rebuilt whenever a refresh
// is requested, so new entries are picked up without a restart.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.debouncer = NewDebouncer(time.Duration(w.debounceMS)*time.Millisecond, w.handleVanished)
	w.running = true
	w.mu.Unlock()

	w.Refresh()

	go w.eventLoop(watchCtx)

	log.Info().
		Int("debounce_ms", w.debounceMS).
		Msg("stale-entry watcher started")

	return nil
}

// Stop terminates watching.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false

	w.once.Do(func() { close(w.done) })

	if w.cancel != nil {
		w.cancel()
	}
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		log.Info().Msg("stale-entry watcher stopped")
		return err
	}
	return nil
}

// IsRunning returns true if the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Refresh rebuilds the path index and watch set from the current
// session trees.
func (w *Watcher) Refresh() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running || w.watcher == nil {
		return
	}

	index := make(map[string][]target)
	dirs := make(map[string]bool)
	for _, sess := range w.store.List() {
		for _, loc := range sess.Locations() {
			abs, err := filepath.Abs(loc)
			if err != nil {
				continue
			}
			abs = filepath.Clean(abs)
			index[abs] = append(index[abs], target{sessionID: sess.ID, location: loc})
			dirs[filepath.Dir(abs)] = true
		}
	}

	for dir := range w.dirs {
		if !dirs[dir] {
			_ = w.watcher.Remove(dir)
		}
	}
	for dir := range dirs {
		if !w.dirs[dir] {
			if err := w.watcher.Add(dir); err != nil {
				log.Warn().Err(err).Str("dir", dir).Msg("failed to add watch")
			}
		}
	}

	w.index = index
	w.dirs = dirs
}

// eventLoop handles fsnotify events and refresh requests.
func (w *Watcher) eventLoop(ctx context.Context) {
	w.mu.Lock()
	fsw := w.watcher
	w.mu.Unlock()
	if fsw == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.refresh:
			w.Refresh()

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// handleEvent queues removals and renames of indexed paths for the
// debounce window. Editors often replace files by rename, so the
// debounced handler re-checks the path before flagging anything.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	path := filepath.Clean(event.Name)
	w.mu.Lock()
	_, tracked := w.index[path]
	w.mu.Unlock()
	if !tracked {
		return
	}

	w.debouncer.Add(path)
}

// handleVanished is called after the debounce window expires.
func (w *Watcher) handleVanished(path string) {
	// A save-by-rename recreates the path almost immediately.
	if _, err := os.Stat(path); err == nil {
		return
	}

	w.mu.Lock()
	targets := append([]target(nil), w.index[path]...)
	w.mu.Unlock()

	for _, tgt := range targets {
		sess, err := w.store.Get(tgt.sessionID)
		if err != nil {
			continue
		}
		if sess.MarkStale(tgt.location) {
			log.Info().
				Str("session_id", tgt.sessionID).
				Str("location", tgt.location).
				Msg("entry marked stale")
		}
	}
}

// --- ports.Subscriber ---
//
// The watcher subscribes to the hub so any tree or session mutation
// schedules a watch-set rebuild.

// ID returns the hub subscriber identifier.
func (w *Watcher) ID() string { return subscriberID }

// Send requests a refresh for events that change the watchable set.
func (w *Watcher) Send(event events.Event) error {
	switch event.Type() {
	case events.EventTypeTreeChanged, events.EventTypeSessionCreated, events.EventTypeSessionDeleted:
		select {
		case w.refresh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close signals the subscriber is finished.
func (w *Watcher) Close() error {
	w.once.Do(func() { close(w.done) })
	return nil
}

// Done returns a channel closed when the watcher shuts down.
func (w *Watcher) Done() <-chan struct{} { return w.done }
