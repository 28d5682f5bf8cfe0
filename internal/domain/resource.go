// Package domain contains the core value types and errors shared across ctxpack.
package domain

import (
	"crypto/sha1"
	"encoding/hex"
)

// ResourceRef is an identity-bearing pointer to an addressable item
// (file, directory, or other location). It never holds the item's
// content; content is re-read live when an artifact is generated.
type ResourceRef struct {
	Location    string         `json:"location"`
	DisplayName string         `json:"display_name"`
	IsContainer bool           `json:"is_container"`
	Children    []*ResourceRef `json:"children,omitempty"`

	// Stale marks an entry whose location no longer resolves (the
	// resource was deleted or moved externally). Stale entries are
	// kept visible so the user can remove them explicitly.
	Stale bool `json:"stale,omitempty"`
}

// NewFileRef creates a leaf ref for a location.
func NewFileRef(location string) *ResourceRef {
	return &ResourceRef{
		Location:    location,
		DisplayName: DisplayName(location),
	}
}

// NewContainerRef creates a container ref for a location. An empty
// child list is valid (container with no loaded children yet).
func NewContainerRef(location string) *ResourceRef {
	return &ResourceRef{
		Location:    location,
		DisplayName: DisplayName(location),
		IsContainer: true,
		Children:    make([]*ResourceRef, 0),
	}
}

// ID returns a stable identifier derived from the canonical location
// string. Two refs with equal locations are the same resource.
func (r *ResourceRef) ID() string {
	sum := sha1.Sum([]byte(r.Location))
	return hex.EncodeToString(sum[:8])
}

// Clone returns a deep copy of the ref and its subtree. Removal-log
// entries store clones so an undone subtree carries no references into
// the live tree.
func (r *ResourceRef) Clone() *ResourceRef {
	cp := *r
	if r.Children != nil {
		cp.Children = make([]*ResourceRef, len(r.Children))
		for i, c := range r.Children {
			cp.Children[i] = c.Clone()
		}
	}
	return &cp
}

// Count returns the number of refs in the subtree including r itself.
func (r *ResourceRef) Count() int {
	n := 1
	for _, c := range r.Children {
		n += c.Count()
	}
	return n
}
