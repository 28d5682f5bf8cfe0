package session

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ctxpack/ctxpack/internal/domain"
)

// SnapshotVersion is the current snapshot schema version.
//
// v1 identified resources by filesystem path; v2 switched to opaque
// locations so archive-internal entries and editor buffers can be
// persisted. Old snapshots are upgraded on load, never rewritten in
// place until the next mutation.
const SnapshotVersion = 2

// Snapshot is the persisted shape of one session tree: hierarchy of
// locations, container flags and order. File content is never
// persisted; it is re-read live when needed.
type Snapshot struct {
	Version int            `json:"version"`
	Entries []SnapshotNode `json:"entries"`
}

// SnapshotNode is one persisted ref.
type SnapshotNode struct {
	Location  string         `json:"location"`
	Container bool           `json:"container,omitempty"`
	Children  []SnapshotNode `json:"children,omitempty"`
}

// snapshotV1 is the legacy path-based snapshot shape.
type snapshotV1 struct {
	Version int              `json:"version"`
	Entries []snapshotV1Node `json:"entries"`
}

type snapshotV1Node struct {
	Path     string           `json:"path"`
	Dir      bool             `json:"dir,omitempty"`
	Children []snapshotV1Node `json:"children,omitempty"`
}

// TakeSnapshot captures the tree's current hierarchy.
func TakeSnapshot(t *Tree) *Snapshot {
	return &Snapshot{
		Version: SnapshotVersion,
		Entries: snapshotNodes(t.Roots()),
	}
}

func snapshotNodes(refs []*domain.ResourceRef) []SnapshotNode {
	nodes := make([]SnapshotNode, 0, len(refs))
	for _, r := range refs {
		nodes = append(nodes, SnapshotNode{
			Location:  r.Location,
			Container: r.IsContainer,
			Children:  snapshotNodes(r.Children),
		})
	}
	return nodes
}

// Encode serializes the snapshot.
func (s *Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot parses a persisted snapshot of any supported schema
// version and upgrades it to the current shape.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("snapshot is not valid JSON: %w", err)
	}

	switch probe.Version {
	case 0, 1:
		// Version 0 predates the version tag and shares the v1 shape.
		var old snapshotV1
		if err := json.Unmarshal(data, &old); err != nil {
			return nil, fmt.Errorf("decoding v1 snapshot: %w", err)
		}
		return upgradeV1(&old), nil
	case SnapshotVersion:
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decoding snapshot: %w", err)
		}
		return &snap, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot version %d", probe.Version)
	}
}

// upgradeV1 converts a path-based snapshot to location-based identity.
// A v1 path is already a valid plain-path location, so the upgrade is
// a field rename plus the version bump.
func upgradeV1(old *snapshotV1) *Snapshot {
	return &Snapshot{
		Version: SnapshotVersion,
		Entries: upgradeV1Nodes(old.Entries),
	}
}

func upgradeV1Nodes(nodes []snapshotV1Node) []SnapshotNode {
	out := make([]SnapshotNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, SnapshotNode{
			Location:  n.Path,
			Container: n.Dir,
			Children:  upgradeV1Nodes(n.Children),
		})
	}
	return out
}

// Restore reconstructs a tree from the snapshot. Locations that no
// longer resolve are kept as stale entries rather than dropped, so the
// user can see and remove them explicitly.
func (s *Snapshot) Restore() *Tree {
	t := NewTree()
	t.roots = restoreNodes(s.Entries)
	return t
}

func restoreNodes(nodes []SnapshotNode) []*domain.ResourceRef {
	refs := make([]*domain.ResourceRef, 0, len(nodes))
	for _, n := range nodes {
		var ref *domain.ResourceRef
		if n.Container {
			ref = domain.NewContainerRef(n.Location)
			ref.Children = restoreNodes(n.Children)
		} else {
			ref = domain.NewFileRef(n.Location)
		}
		ref.Stale = !resolves(n.Location)
		refs = append(refs, ref)
	}
	return refs
}

// resolves reports whether a location still points at something. Only
// plain filesystem locations are checked; opaque locations are assumed
// live since the core cannot probe them.
func resolves(location string) bool {
	path, err := domain.FilePath(location)
	if err != nil {
		return true
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}
