package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session name already in use")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrNotContainer     = errors.New("entry is not a container")
	ErrInvalidLocation  = errors.New("invalid resource location")
	ErrNotRepo          = errors.New("not inside a repository")
	ErrResolverRequired = errors.New("repository resolver is not available")
	ErrFileTooLarge     = errors.New("file exceeds size limit")
	ErrBinaryContent    = errors.New("file content is binary")
	ErrSubscriberClosed = errors.New("subscriber is closed")
)

// RepoCommandError represents a failed source-control command for one
// path or change. It never aborts sibling work; the aggregator records
// it as a per-item error entry.
type RepoCommandError struct {
	Op     string // Operation that failed (e.g. "diff", "changes")
	Path   string // Relative path, empty for whole-repository requests
	Stderr string // Raw command error output, may be empty
	Err    error  // Underlying error
}

func (e *RepoCommandError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("repository %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepoCommandError) Unwrap() error {
	return e.Err
}

// NewRepoCommandError creates a new RepoCommandError.
func NewRepoCommandError(op, path, stderr string, err error) *RepoCommandError {
	return &RepoCommandError{Op: op, Path: path, Stderr: stderr, Err: err}
}

// PersistenceError represents a snapshot read/write failure scoped to
// one session. Other sessions are unaffected.
type PersistenceError struct {
	SessionID string
	Op        string // "save", "load", "decode", "delete"
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s for session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(sessionID, op string, err error) *PersistenceError {
	return &PersistenceError{SessionID: sessionID, Op: op, Err: err}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
