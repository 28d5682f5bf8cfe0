package session

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/ctxpack/ctxpack/internal/domain"
)

func locations(refs []*domain.ResourceRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Location)
	}
	return out
}

func mustInsert(t *testing.T, tree *Tree, parent string, items ...*domain.ResourceRef) {
	t.Helper()
	added, _, err := tree.Insert(parent, items, nil)
	if err != nil {
		t.Fatalf("Insert under %q: %v", parent, err)
	}
	if added != len(items) {
		t.Fatalf("Insert under %q added %d of %d", parent, added, len(items))
	}
}

func TestInsertPreservesOrder(t *testing.T) {
	tree := NewTree()
	mustInsert(t, tree,
		RootLocation,
		domain.NewFileRef("/p/b.go"),
		domain.NewFileRef("/p/a.go"),
		domain.NewFileRef("/p/c.go"),
	)

	got := locations(tree.Roots())
	want := []string{"/p/b.go", "/p/a.go", "/p/c.go"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("roots = %v, want %v", got, want)
		}
	}
}

func TestInsertSkipsDuplicateSiblings(t *testing.T) {
	tree := NewTree()
	mustInsert(t, tree, RootLocation, domain.NewFileRef("/p/a.go"))

	added, skipped, err := tree.Insert(RootLocation, []*domain.ResourceRef{
		domain.NewFileRef("/p/a.go"),
		domain.NewFileRef("/p/b.go"),
		domain.NewFileRef("/p/b.go"),
	}, nil)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if added != 1 || skipped != 2 {
		t.Errorf("added %d skipped %d, want 1/2", added, skipped)
	}

	// The same location under a different parent is not a duplicate.
	dir := domain.NewContainerRef("/q")
	mustInsert(t, tree, RootLocation, dir)
	added, skipped, err = tree.Insert("/q", []*domain.ResourceRef{domain.NewFileRef("/p/a.go")}, nil)
	if err != nil {
		t.Fatalf("Insert under container: %v", err)
	}
	if added != 1 || skipped != 0 {
		t.Errorf("nested insert added %d skipped %d, want 1/0", added, skipped)
	}
}

func TestInsertAppliesExclusion(t *testing.T) {
	tree := NewTree()
	exclude := func(ref *domain.ResourceRef) bool {
		return strings.HasSuffix(ref.Location, ".log")
	}

	added, skipped, err := tree.Insert(RootLocation, []*domain.ResourceRef{
		domain.NewFileRef("/p/a.go"),
		domain.NewFileRef("/p/out.log"),
	}, exclude)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if added != 1 || skipped != 1 {
		t.Errorf("added %d skipped %d, want 1/1", added, skipped)
	}
	if tree.Find("/p/out.log") != nil {
		t.Error("excluded entry present in tree")
	}
}

func TestInsertParentErrors(t *testing.T) {
	tree := NewTree()
	mustInsert(t, tree, RootLocation, domain.NewFileRef("/p/leaf.go"))

	_, _, err := tree.Insert("/missing", []*domain.ResourceRef{domain.NewFileRef("/x")}, nil)
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("missing parent: %v, want ErrEntryNotFound", err)
	}

	_, _, err = tree.Insert("/p/leaf.go", []*domain.ResourceRef{domain.NewFileRef("/x")}, nil)
	if !errors.Is(err, domain.ErrNotContainer) {
		t.Errorf("leaf parent: %v, want ErrNotContainer", err)
	}
}

func TestRemoveSubtreeAndUndo(t *testing.T) {
	tree := NewTree()
	dir := domain.NewContainerRef("/p/src")
	dir.Children = []*domain.ResourceRef{
		domain.NewFileRef("/p/src/a.go"),
		domain.NewFileRef("/p/src/b.go"),
	}
	mustInsert(t, tree, RootLocation,
		domain.NewFileRef("/p/readme.md"),
		dir,
		domain.NewFileRef("/p/main.go"),
	)

	if !tree.Remove("/p/src") {
		t.Fatal("Remove returned false")
	}
	if tree.Len() != 2 {
		t.Fatalf("Len = %d after subtree removal, want 2", tree.Len())
	}
	if tree.Find("/p/src/a.go") != nil {
		t.Error("descendant survived subtree removal")
	}

	if !tree.UndoLastRemoval() {
		t.Fatal("UndoLastRemoval returned false")
	}
	got := locations(tree.Roots())
	want := []string{"/p/readme.md", "/p/src", "/p/main.go"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("roots after undo = %v, want %v", got, want)
		}
	}
	if tree.Find("/p/src/a.go") == nil {
		t.Error("descendant missing after undo")
	}
}

func TestRemoveAbsentIsNoOp(t *testing.T) {
	tree := NewTree()
	mustInsert(t, tree, RootLocation, domain.NewFileRef("/p/a.go"))

	if tree.Remove("/missing") {
		t.Error("Remove of absent location returned true")
	}
	if tree.RemovalLogLen() != 0 {
		t.Error("no-op removal touched the removal log")
	}
	if tree.UndoLastRemoval() {
		t.Error("undo with empty log returned true")
	}
}

func TestUndoWithVanishedParent(t *testing.T) {
	tree := NewTree()
	dir := domain.NewContainerRef("/p/src")
	dir.Children = []*domain.ResourceRef{domain.NewFileRef("/p/src/a.go")}
	mustInsert(t, tree, RootLocation, dir)

	if !tree.Remove("/p/src/a.go") {
		t.Fatal("Remove child failed")
	}
	if !tree.Remove("/p/src") {
		t.Fatal("Remove parent failed")
	}

	// Undoing the child restore goes to the root's end because its
	// recorded parent is gone... but the parent removal is undone first.
	if !tree.UndoLastRemoval() {
		t.Fatal("undo parent failed")
	}
	if tree.Find("/p/src") == nil {
		t.Fatal("parent missing after undo")
	}

	if !tree.UndoLastRemoval() {
		t.Fatal("undo child failed")
	}
	ref, parent, _ := tree.locate("/p/src/a.go")
	if ref == nil {
		t.Fatal("child missing after undo")
	}
	if parent == nil || parent.Location != "/p/src" {
		t.Errorf("child restored under %v, want /p/src", parent)
	}
}

func TestUndoSkipsWhenDuplicateAppeared(t *testing.T) {
	tree := NewTree()
	mustInsert(t, tree, RootLocation, domain.NewFileRef("/p/a.go"))

	if !tree.Remove("/p/a.go") {
		t.Fatal("Remove failed")
	}
	mustInsert(t, tree, RootLocation, domain.NewFileRef("/p/a.go"))

	if !tree.UndoLastRemoval() {
		t.Error("undo should still consume the log entry")
	}
	if tree.Len() != 1 {
		t.Errorf("Len = %d, want 1 (no duplicate sibling)", tree.Len())
	}
	if tree.RemovalLogLen() != 0 {
		t.Error("log entry not consumed")
	}
}

func TestRemovalLogBounded(t *testing.T) {
	tree := NewTree()
	for i := 0; i < removalLogCapacity+10; i++ {
		loc := fmt.Sprintf("/p/f%d.go", i)
		mustInsert(t, tree, RootLocation, domain.NewFileRef(loc))
		if !tree.Remove(loc) {
			t.Fatalf("Remove %s failed", loc)
		}
	}
	if tree.RemovalLogLen() != removalLogCapacity {
		t.Errorf("log length = %d, want %d", tree.RemovalLogLen(), removalLogCapacity)
	}
}

func TestReorder(t *testing.T) {
	tree := NewTree()
	mustInsert(t, tree, RootLocation,
		domain.NewFileRef("/a"),
		domain.NewFileRef("/b"),
		domain.NewFileRef("/c"),
	)

	if err := tree.Reorder(RootLocation, 0, 2); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	got := locations(tree.Roots())
	want := []string{"/b", "/c", "/a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("roots = %v, want %v", got, want)
		}
	}

	if err := tree.Reorder(RootLocation, 0, 3); !errors.Is(err, domain.ErrIndexOutOfRange) {
		t.Errorf("out-of-range reorder: %v", err)
	}
	if err := tree.Reorder(RootLocation, -1, 0); !errors.Is(err, domain.ErrIndexOutOfRange) {
		t.Errorf("negative reorder: %v", err)
	}
	if err := tree.Reorder("/missing", 0, 0); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("missing parent reorder: %v", err)
	}
}

func TestFlatten(t *testing.T) {
	tree := NewTree()
	dir := domain.NewContainerRef("/p/src")
	dir.Children = []*domain.ResourceRef{
		domain.NewFileRef("/p/src/a.go"),
		domain.NewFileRef("/p/src/b.go"),
	}
	mustInsert(t, tree, RootLocation, domain.NewFileRef("/p/readme.md"), dir)

	all, ok := tree.Flatten(RootLocation)
	if !ok {
		t.Fatal("Flatten root returned false")
	}
	want := []string{"/p/readme.md", "/p/src", "/p/src/a.go", "/p/src/b.go"}
	got := locations(all)
	if len(got) != len(want) {
		t.Fatalf("flatten = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("flatten = %v, want %v", got, want)
		}
	}

	sub, ok := tree.Flatten("/p/src")
	if !ok || len(sub) != 3 || sub[0].Location != "/p/src" {
		t.Errorf("subtree flatten = %v", locations(sub))
	}

	if _, ok := tree.Flatten("/missing"); ok {
		t.Error("Flatten of absent location returned true")
	}
}

// --- properties ---

// generateLocation draws from a small pool so operations collide often.
func generateLocation(t *rapid.T, label string) string {
	n := rapid.IntRange(0, 11).Draw(t, label)
	return fmt.Sprintf("/pool/f%d", n)
}

func checkSiblingUniqueness(t *rapid.T, siblings []*domain.ResourceRef) {
	seen := make(map[string]struct{}, len(siblings))
	for _, s := range siblings {
		if _, dup := seen[s.Location]; dup {
			t.Fatalf("duplicate sibling location %s", s.Location)
		}
		seen[s.Location] = struct{}{}
		checkSiblingUniqueness(t, s.Children)
	}
}

func TestTreeOperationsKeepSiblingsUnique(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := NewTree()
		ops := rapid.IntRange(1, 60).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				_, _, _ = tree.Insert(RootLocation, []*domain.ResourceRef{
					domain.NewFileRef(generateLocation(t, "insert")),
				}, nil)
			case 1:
				tree.Remove(generateLocation(t, "remove"))
			case 2:
				tree.UndoLastRemoval()
			case 3:
				if n := len(tree.Roots()); n > 1 {
					from := rapid.IntRange(0, n-1).Draw(t, "from")
					to := rapid.IntRange(0, n-1).Draw(t, "to")
					_ = tree.Reorder(RootLocation, from, to)
				}
			}
			checkSiblingUniqueness(t, tree.Roots())
		}
	})
}

func TestRemoveThenUndoRestoresSequence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := NewTree()
		n := rapid.IntRange(1, 10).Draw(t, "entries")
		for i := 0; i < n; i++ {
			_, _, _ = tree.Insert(RootLocation, []*domain.ResourceRef{
				domain.NewFileRef(fmt.Sprintf("/pool/f%d", i)),
			}, nil)
		}

		before, _ := tree.Flatten(RootLocation)
		beforeLocs := locations(before)

		victim := fmt.Sprintf("/pool/f%d", rapid.IntRange(0, n-1).Draw(t, "victim"))
		if !tree.Remove(victim) {
			t.Fatalf("Remove %s failed", victim)
		}
		if !tree.UndoLastRemoval() {
			t.Fatal("undo failed")
		}

		after, _ := tree.Flatten(RootLocation)
		afterLocs := locations(after)
		if len(afterLocs) != len(beforeLocs) {
			t.Fatalf("sequence length %d after undo, want %d", len(afterLocs), len(beforeLocs))
		}
		for i := range beforeLocs {
			if afterLocs[i] != beforeLocs[i] {
				t.Fatalf("sequence %v after undo, want %v", afterLocs, beforeLocs)
			}
		}
	})
}
