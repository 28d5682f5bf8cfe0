package storage

import (
	"path/filepath"
	"testing"

	"github.com/ctxpack/ctxpack/internal/domain/ports"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ctxpack.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoadIdentities(t *testing.T) {
	s := newTestStore(t)

	idents := []ports.SessionIdentity{
		{ID: "a", Name: "alpha", Position: 0},
		{ID: "b", Name: "beta", Position: 1},
	}
	if err := s.SaveIdentities(idents); err != nil {
		t.Fatalf("SaveIdentities: %v", err)
	}

	result, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(result.Identities) != 2 {
		t.Fatalf("expected 2 identities, got %d", len(result.Identities))
	}
	if result.Identities[0].Name != "alpha" || result.Identities[1].Name != "beta" {
		t.Errorf("unexpected order: %+v", result.Identities)
	}
}

func TestSaveIdentitiesReplaces(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveIdentities([]ports.SessionIdentity{{ID: "a", Name: "alpha"}}); err != nil {
		t.Fatalf("SaveIdentities: %v", err)
	}
	if err := s.SaveIdentities([]ports.SessionIdentity{{ID: "b", Name: "beta"}}); err != nil {
		t.Fatalf("SaveIdentities: %v", err)
	}

	result, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(result.Identities) != 1 || result.Identities[0].ID != "b" {
		t.Errorf("expected identity list replaced, got %+v", result.Identities)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveSnapshot("a", []byte(`{"version":2}`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.SaveSnapshot("a", []byte(`{"version":2,"entries":[]}`)); err != nil {
		t.Fatalf("SaveSnapshot overwrite: %v", err)
	}

	result, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	got, ok := result.Snapshots["a"]
	if !ok {
		t.Fatal("snapshot missing after save")
	}
	if string(got) != `{"version":2,"entries":[]}` {
		t.Errorf("snapshot not overwritten: %s", got)
	}
}

func TestDeleteSnapshot(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveSnapshot("a", []byte(`{}`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.DeleteSnapshot("a"); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if err := s.DeleteSnapshot("missing"); err != nil {
		t.Fatalf("DeleteSnapshot of absent row: %v", err)
	}

	result, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, ok := result.Snapshots["a"]; ok {
		t.Error("snapshot still present after delete")
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctxpack.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.SaveIdentities([]ports.SessionIdentity{{ID: "a", Name: "alpha"}}); err != nil {
		t.Fatalf("SaveIdentities: %v", err)
	}
	if err := s.SaveSnapshot("a", []byte(`{"version":2}`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()

	result, err := s2.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(result.Identities) != 1 {
		t.Fatalf("identities lost across reopen: %+v", result.Identities)
	}
	if _, ok := result.Snapshots["a"]; !ok {
		t.Error("snapshot lost across reopen")
	}
}
