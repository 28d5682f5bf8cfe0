// Package session implements the session resource tree and the store
// of named sessions.
package session

import (
	"github.com/ctxpack/ctxpack/internal/domain"
)

// removalLogCapacity bounds the undo history per tree. The oldest
// entry is discarded when the log is full.
const removalLogCapacity = 32

// RootLocation addresses the tree root in operations that take a
// parent location.
const RootLocation = ""

// removal captures one removed subtree with enough state to undo it.
// The subtree is a value snapshot (deep copy), never a reference into
// the live tree.
type removal struct {
	ref            *domain.ResourceRef
	parentLocation string // RootLocation when removed from the root
	index          int
}

// ExcludeFunc reports whether an item should be excluded on insert.
type ExcludeFunc func(ref *domain.ResourceRef) bool

// Tree owns one ordered forest of resource refs. Sibling order is
// authoritative: only Insert, Remove, UndoLastRemoval and Reorder
// change it, never a read operation.
//
// Tree is not safe for concurrent use; the owning Session serializes
// access.
type Tree struct {
	roots    []*domain.ResourceRef
	removals []removal
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{roots: make([]*domain.ResourceRef, 0)}
}

// Roots returns the root sibling sequence.
func (t *Tree) Roots() []*domain.ResourceRef {
	return t.roots
}

// Len returns the total number of refs in the forest.
func (t *Tree) Len() int {
	n := 0
	for _, r := range t.roots {
		n += r.Count()
	}
	return n
}

// Find returns the first ref with the given location in pre-order, or
// nil when absent.
func (t *Tree) Find(location string) *domain.ResourceRef {
	ref, _, _ := t.locate(location)
	return ref
}

// locate returns the ref, its parent (nil for root level) and its
// sibling index.
func (t *Tree) locate(location string) (*domain.ResourceRef, *domain.ResourceRef, int) {
	return locateIn(t.roots, nil, location)
}

func locateIn(siblings []*domain.ResourceRef, parent *domain.ResourceRef, location string) (*domain.ResourceRef, *domain.ResourceRef, int) {
	for i, ref := range siblings {
		if ref.Location == location {
			return ref, parent, i
		}
		if ref.IsContainer {
			if found, p, idx := locateIn(ref.Children, ref, location); found != nil {
				return found, p, idx
			}
		}
	}
	return nil, nil, -1
}

// siblingsOf returns the child sequence addressed by parentLocation,
// or an error when the parent is missing or not a container.
func (t *Tree) siblingsOf(parentLocation string) (*[]*domain.ResourceRef, error) {
	if parentLocation == RootLocation {
		return &t.roots, nil
	}
	parent := t.Find(parentLocation)
	if parent == nil {
		return nil, domain.ErrEntryNotFound
	}
	if !parent.IsContainer {
		return nil, domain.ErrNotContainer
	}
	return &parent.Children, nil
}

// Insert appends items to the end of the parent's child sequence.
// Items matching the exclusion predicate and items whose location
// already exists among the current siblings are skipped, not errored
// on. Returns the counts actually inserted and skipped.
func (t *Tree) Insert(parentLocation string, items []*domain.ResourceRef, exclude ExcludeFunc) (added, skipped int, err error) {
	siblings, err := t.siblingsOf(parentLocation)
	if err != nil {
		return 0, 0, err
	}

	seen := make(map[string]struct{}, len(*siblings))
	for _, s := range *siblings {
		seen[s.Location] = struct{}{}
	}

	for _, item := range items {
		if item == nil {
			continue
		}
		if exclude != nil && exclude(item) {
			skipped++
			continue
		}
		if _, dup := seen[item.Location]; dup {
			skipped++
			continue
		}
		*siblings = append(*siblings, item)
		seen[item.Location] = struct{}{}
		added++
	}
	return added, skipped, nil
}

// Remove removes the ref with the given location, including its entire
// subtree for containers, and records a removal-log entry. Removing an
// absent location is a silent no-op; the removal log is untouched.
func (t *Tree) Remove(location string) bool {
	ref, parent, idx := t.locate(location)
	if ref == nil {
		return false
	}

	entry := removal{ref: ref.Clone(), index: idx}
	if parent == nil {
		t.roots = append(t.roots[:idx], t.roots[idx+1:]...)
	} else {
		entry.parentLocation = parent.Location
		parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
	}

	t.removals = append(t.removals, entry)
	if len(t.removals) > removalLogCapacity {
		t.removals = t.removals[1:]
	}
	return true
}

// UndoLastRemoval pops the most recent removal-log entry and reinserts
// its subtree at the recorded position. When the recorded parent no
// longer exists the subtree goes to the end of the root sequence; when
// the recorded index is past the current sequence length the subtree
// goes to the end. Returns whether an undo occurred.
func (t *Tree) UndoLastRemoval() bool {
	if len(t.removals) == 0 {
		return false
	}
	entry := t.removals[len(t.removals)-1]
	t.removals = t.removals[:len(t.removals)-1]

	siblings := &t.roots
	if entry.parentLocation != RootLocation {
		if parent := t.Find(entry.parentLocation); parent != nil && parent.IsContainer {
			siblings = &parent.Children
		} else {
			// Prior parent is gone: fall back to the root's end.
			entry.index = len(t.roots)
		}
	}

	// A sibling with the same location may have been inserted since
	// the removal; reinserting would break sibling uniqueness.
	for _, s := range *siblings {
		if s.Location == entry.ref.Location {
			return true
		}
	}

	idx := entry.index
	if idx > len(*siblings) {
		idx = len(*siblings)
	}
	*siblings = append(*siblings, nil)
	copy((*siblings)[idx+1:], (*siblings)[idx:])
	(*siblings)[idx] = entry.ref
	return true
}

// RemovalLogLen returns the number of undoable removals.
func (t *Tree) RemovalLogLen() int {
	return len(t.removals)
}

// Reorder moves one child within the sibling sequence addressed by
// parentLocation from fromIndex to toIndex.
func (t *Tree) Reorder(parentLocation string, fromIndex, toIndex int) error {
	siblings, err := t.siblingsOf(parentLocation)
	if err != nil {
		return err
	}
	n := len(*siblings)
	if fromIndex < 0 || fromIndex >= n || toIndex < 0 || toIndex >= n {
		return domain.ErrIndexOutOfRange
	}
	if fromIndex == toIndex {
		return nil
	}

	moved := (*siblings)[fromIndex]
	*siblings = append((*siblings)[:fromIndex], (*siblings)[fromIndex+1:]...)
	*siblings = append(*siblings, nil)
	copy((*siblings)[toIndex+1:], (*siblings)[toIndex:])
	(*siblings)[toIndex] = moved
	return nil
}

// Flatten returns the depth-first pre-order sequence of every ref in
// the subtree rooted at location, including the subtree root itself,
// or the whole forest for RootLocation. The sequence is recomputed
// from current state on every call. The second return is false when
// the location is not present.
func (t *Tree) Flatten(location string) ([]*domain.ResourceRef, bool) {
	if location == RootLocation {
		out := make([]*domain.ResourceRef, 0, t.Len())
		for _, r := range t.roots {
			out = flattenInto(out, r)
		}
		return out, true
	}
	ref := t.Find(location)
	if ref == nil {
		return nil, false
	}
	return flattenInto(make([]*domain.ResourceRef, 0, ref.Count()), ref), true
}

func flattenInto(out []*domain.ResourceRef, ref *domain.ResourceRef) []*domain.ResourceRef {
	out = append(out, ref)
	for _, c := range ref.Children {
		out = flattenInto(out, c)
	}
	return out
}

// MarkStale flags the ref at location as stale. Returns whether the
// location was present.
func (t *Tree) MarkStale(location string) bool {
	ref := t.Find(location)
	if ref == nil {
		return false
	}
	ref.Stale = true
	return true
}
