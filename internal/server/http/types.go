package http

import (
	"github.com/ctxpack/ctxpack/internal/diff"
	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/session"
)

// SessionInfo is the summary representation of a session.
type SessionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Entries int    `json:"entries"`
}

// SessionDetail adds the entry forest to the summary.
type SessionDetail struct {
	SessionInfo
	Entries []*domain.ResourceRef `json:"tree"`
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	Name string `json:"name"`
}

// RenameSessionRequest is the body of PUT /api/sessions/{id}.
type RenameSessionRequest struct {
	Name string `json:"name"`
}

// InsertItem describes one entry to insert.
type InsertItem struct {
	Location  string `json:"location"`
	Container bool   `json:"container"`
}

// InsertEntriesRequest is the body of POST /api/sessions/{id}/entries.
type InsertEntriesRequest struct {
	ParentLocation string       `json:"parent_location"`
	Items          []InsertItem `json:"items"`
}

// InsertEntriesResponse reports the insertion outcome.
type InsertEntriesResponse struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// ReorderRequest is the body of POST /api/sessions/{id}/reorder.
type ReorderRequest struct {
	ParentLocation string `json:"parent_location"`
	FromIndex      int    `json:"from_index"`
	ToIndex        int    `json:"to_index"`
}

// DiffResponse is the body of GET /api/sessions/{id}/diff.
type DiffResponse struct {
	Scope   string            `json:"scope"`
	Summary string            `json:"summary"`
	Diff    string            `json:"diff"`
	Items   []diff.ItemResult `json:"items"`
	Errors  []diff.PathError  `json:"errors,omitempty"`
	Diffed  int               `json:"diffed"`
	Skipped int               `json:"skipped"`
	Errored int               `json:"errored"`
}

func sessionInfo(sess *session.Session) SessionInfo {
	return SessionInfo{
		ID:      sess.ID,
		Name:    sess.Name,
		Entries: sess.Len(),
	}
}
