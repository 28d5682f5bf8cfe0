// Package ports defines the contracts between the core and its
// external collaborators. Test doubles implementing these interfaces
// are sufficient to validate the core without real tooling.
package ports

import "context"

// Change is one entry in a repository's change-set against the
// baseline revision.
type Change struct {
	Path        string `json:"path"`
	RenamedFrom string `json:"renamed_from,omitempty"`
}

// Repository is a handle to one owning repository. Any call may fail
// with a *domain.RepoCommandError carrying the raw command output.
type Repository interface {
	// Root returns the repository's canonical root path.
	Root() string

	// Name returns a human-readable repository name.
	Name() string

	// Changes returns the full change-set against the baseline
	// (the most recent committed state).
	Changes(ctx context.Context) ([]Change, error)

	// Diff returns the diff text against the baseline for one
	// relative path, or for the whole repository when path is empty.
	Diff(ctx context.Context, path string) (string, error)
}

// RepositoryResolver resolves a resource location to its owning
// repository. It returns (nil, nil) when no repository owns the
// location. Resolution is deterministic for a given location at a
// given point in time.
type RepositoryResolver interface {
	Resolve(ctx context.Context, location string) (Repository, error)
}
