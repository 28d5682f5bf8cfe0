package ports

import "github.com/ctxpack/ctxpack/internal/domain"

// SessionIdentity is the durable identity of one session. Identities
// survive a crash mid-write; the most recent tree mutation may be lost
// but cross-session identity is never corrupted.
type SessionIdentity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"` // creation order
}

// LoadResult is everything a store restores at startup. Errs holds
// per-session decode failures; a corrupt snapshot for one session must
// not affect others.
type LoadResult struct {
	Identities []SessionIdentity
	Snapshots  map[string][]byte // session id -> encoded snapshot
	Errs       []*domain.PersistenceError
}

// PersistenceStore persists session identities and tree snapshots.
type PersistenceStore interface {
	// SaveIdentities replaces the stored identity list.
	SaveIdentities(identities []SessionIdentity) error

	// SaveSnapshot persists the encoded tree snapshot for a session.
	SaveSnapshot(sessionID string, snapshot []byte) error

	// DeleteSnapshot discards any persisted snapshot for a session.
	DeleteSnapshot(sessionID string) error

	// LoadAll restores identities and snapshots.
	LoadAll() (*LoadResult, error)

	// Close releases the underlying storage.
	Close() error
}
