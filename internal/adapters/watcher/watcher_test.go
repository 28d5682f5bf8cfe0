package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/domain/events"
	"github.com/ctxpack/ctxpack/internal/domain/ports"
	"github.com/ctxpack/ctxpack/internal/session"
)

type fakePersist struct{}

func (fakePersist) SaveIdentities([]ports.SessionIdentity) error { return nil }
func (fakePersist) SaveSnapshot(string, []byte) error            { return nil }
func (fakePersist) DeleteSnapshot(string) error                  { return nil }
func (fakePersist) LoadAll() (*ports.LoadResult, error) {
	return &ports.LoadResult{Snapshots: make(map[string][]byte)}, nil
}
func (fakePersist) Close() error { return nil }

func newTestSession(t *testing.T) (*session.Store, *session.Session) {
	t.Helper()
	store := session.NewStore(fakePersist{}, nil)
	t.Cleanup(store.Close)
	sess, err := store.Create("work")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return store, sess
}

func startWatcher(t *testing.T, store *session.Store) *Watcher {
	t.Helper()
	w := NewWatcher(store, 10)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestDebouncerCoalesces(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func(string) { fired.Add(1) })
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Add("a.txt")
	}
	d.Add("b.txt")

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 2 {
		t.Errorf("callback fired %d times, want 2", got)
	}
}

func TestDebouncerStopDropsPending(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func(string) { fired.Add(1) })

	d.Add("a.txt")
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("callback fired %d times after Stop, want 0", got)
	}
}

func TestRefreshBuildsIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	store, sess := newTestSession(t)
	if _, _, err := sess.Insert(session.RootLocation, []*domain.ResourceRef{domain.NewFileRef(path)}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	w := startWatcher(t, store)

	w.mu.Lock()
	targets := w.index[filepath.Clean(path)]
	watched := w.dirs[dir]
	w.mu.Unlock()

	if len(targets) != 1 || targets[0].sessionID != sess.ID {
		t.Fatalf("index entry = %+v, want one target for session %s", targets, sess.ID)
	}
	if !watched {
		t.Errorf("parent dir %s not in watch set", dir)
	}
}

func TestHandleVanishedMarksStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doomed.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	store, sess := newTestSession(t)
	if _, _, err := sess.Insert(session.RootLocation, []*domain.ResourceRef{domain.NewFileRef(path)}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	w := startWatcher(t, store)

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove test file: %v", err)
	}
	w.handleVanished(filepath.Clean(path))

	refs, ok := sess.Flatten(session.RootLocation)
	if !ok || len(refs) != 1 {
		t.Fatalf("flatten = %v entries, ok=%v", len(refs), ok)
	}
	if !refs[0].Stale {
		t.Error("entry not marked stale after path vanished")
	}
}

func TestHandleVanishedSkipsRecreatedPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kept.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	store, sess := newTestSession(t)
	if _, _, err := sess.Insert(session.RootLocation, []*domain.ResourceRef{domain.NewFileRef(path)}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	w := startWatcher(t, store)

	// Path still exists, so nothing should be flagged.
	w.handleVanished(filepath.Clean(path))

	refs, _ := sess.Flatten(session.RootLocation)
	if refs[0].Stale {
		t.Error("entry marked stale while path still exists")
	}
}

func TestSendSchedulesRefresh(t *testing.T) {
	store, _ := newTestSession(t)
	w := NewWatcher(store, 10)

	if err := w.Send(events.NewTreeChangedEvent("s1", "insert", 1, 0)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case <-w.refresh:
	default:
		t.Fatal("tree change did not schedule a refresh")
	}

	if err := w.Send(events.NewEntryStaleEvent("s1", "/tmp/x")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case <-w.refresh:
		t.Fatal("stale event should not schedule a refresh")
	default:
	}
}
