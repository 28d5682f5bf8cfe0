package session

import (
	"errors"
	"strings"
	"testing"

	"github.com/ctxpack/ctxpack/internal/domain"
)

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore(newRecordingPersist(), nil)
	defer store.Close()

	sess, err := store.Create("review")
	if err != nil {
		t.Fatal(err)
	}
	dir := domain.NewContainerRef("/p/src")
	dir.Children = []*domain.ResourceRef{
		domain.NewFileRef("/p/src/a.go"),
		domain.NewFileRef("/p/src/b.go"),
	}
	if _, _, err := sess.Insert(RootLocation, []*domain.ResourceRef{
		domain.NewFileRef("/p/readme.md"),
		dir,
	}, nil); err != nil {
		t.Fatal(err)
	}

	data, err := sess.ExportYAML()
	if err != nil {
		t.Fatalf("ExportYAML: %v", err)
	}
	if !strings.Contains(string(data), "name: review") {
		t.Errorf("export missing session name:\n%s", data)
	}

	imported, err := store.ImportYAML(data, "review-copy")
	if err != nil {
		t.Fatalf("ImportYAML: %v", err)
	}
	if imported.Name != "review-copy" {
		t.Errorf("imported name = %q", imported.Name)
	}

	all, _ := imported.Flatten(RootLocation)
	want := []string{"/p/readme.md", "/p/src", "/p/src/a.go", "/p/src/b.go"}
	got := locations(all)
	if len(got) != len(want) {
		t.Fatalf("imported tree %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("imported tree %v, want %v", got, want)
		}
	}
	ref, ok := imported.Find("/p/src")
	if !ok || !ref.IsContainer {
		t.Error("container flag lost on import")
	}
}

func TestImportUsesDocumentName(t *testing.T) {
	store := NewStore(newRecordingPersist(), nil)
	defer store.Close()

	sess, _ := store.Create("original")
	sess.Insert(RootLocation, []*domain.ResourceRef{domain.NewFileRef("/p/a.go")}, nil)
	data, err := sess.ExportYAML()
	if err != nil {
		t.Fatal(err)
	}

	// Importing alongside the original collides on name.
	if _, err := store.ImportYAML(data, ""); !errors.Is(err, domain.ErrSessionExists) {
		t.Errorf("import with taken document name: %v", err)
	}

	if err := store.Delete(sess.ID); err != nil {
		t.Fatal(err)
	}
	imported, err := store.ImportYAML(data, "")
	if err != nil {
		t.Fatalf("ImportYAML: %v", err)
	}
	if imported.Name != "original" {
		t.Errorf("imported name = %q, want document name", imported.Name)
	}
	if imported.Len() != 1 {
		t.Errorf("imported Len = %d, want 1", imported.Len())
	}
}

func TestImportRejectsBadYAML(t *testing.T) {
	store := NewStore(newRecordingPersist(), nil)
	defer store.Close()

	if _, err := store.ImportYAML([]byte("[ unclosed"), ""); err == nil {
		t.Error("malformed document imported without error")
	}
}
