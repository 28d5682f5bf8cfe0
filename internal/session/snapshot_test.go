package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctxpack/ctxpack/internal/domain"
)

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.go")
	if err := os.WriteFile(file, []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tree := NewTree()
	container := domain.NewContainerRef(dir)
	container.Children = []*domain.ResourceRef{domain.NewFileRef(file)}
	mustInsert(t, tree, RootLocation, container, domain.NewFileRef("myscheme://note/1"))

	data, err := TakeSnapshot(tree).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if snap.Version != SnapshotVersion {
		t.Errorf("version = %d, want %d", snap.Version, SnapshotVersion)
	}

	restored := snap.Restore()
	all, _ := restored.Flatten(RootLocation)
	want := []string{dir, file, "myscheme://note/1"}
	if len(all) != len(want) {
		t.Fatalf("restored %v, want %v", locations(all), want)
	}
	for i, loc := range want {
		if all[i].Location != loc {
			t.Fatalf("restored %v, want %v", locations(all), want)
		}
		if all[i].Stale {
			t.Errorf("%s restored stale", loc)
		}
	}
	if !all[0].IsContainer || all[1].IsContainer {
		t.Error("container flags lost in round trip")
	}
}

func TestDecodeSnapshotUpgradesV1(t *testing.T) {
	v1 := `{"version":1,"entries":[{"path":"/p/src","dir":true,"children":[{"path":"/p/src/a.go"}]}]}`

	snap, err := DecodeSnapshot([]byte(v1))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if snap.Version != SnapshotVersion {
		t.Errorf("upgraded version = %d, want %d", snap.Version, SnapshotVersion)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].Location != "/p/src" || !snap.Entries[0].Container {
		t.Fatalf("entries = %+v", snap.Entries)
	}
	if len(snap.Entries[0].Children) != 1 || snap.Entries[0].Children[0].Location != "/p/src/a.go" {
		t.Fatalf("children = %+v", snap.Entries[0].Children)
	}
}

func TestDecodeSnapshotAcceptsUntaggedLegacy(t *testing.T) {
	// Snapshots written before the version tag decode as version 0.
	legacy := `{"entries":[{"path":"/p/a.go"}]}`

	snap, err := DecodeSnapshot([]byte(legacy))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].Location != "/p/a.go" {
		t.Fatalf("entries = %+v", snap.Entries)
	}
}

func TestDecodeSnapshotRejectsUnknownVersion(t *testing.T) {
	_, err := DecodeSnapshot([]byte(`{"version":9,"entries":[]}`))
	if err == nil || !strings.Contains(err.Error(), "unsupported snapshot version 9") {
		t.Errorf("err = %v", err)
	}

	_, err = DecodeSnapshot([]byte(`not json`))
	if err == nil || !strings.Contains(err.Error(), "not valid JSON") {
		t.Errorf("err = %v", err)
	}
}

func TestRestoreMarksMissingPathsStale(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "live.go")
	if err := os.WriteFile(live, []byte("package live\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gone := filepath.Join(dir, "gone.go")

	snap := &Snapshot{
		Version: SnapshotVersion,
		Entries: []SnapshotNode{
			{Location: live},
			{Location: gone},
			{Location: "myscheme://opaque/thing"},
		},
	}

	roots := snap.Restore().Roots()
	if roots[0].Stale {
		t.Error("existing path restored stale")
	}
	if !roots[1].Stale {
		t.Error("missing path restored live")
	}
	if roots[2].Stale {
		t.Error("opaque location restored stale")
	}
}
