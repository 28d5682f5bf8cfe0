// Package events defines the event types ctxpack publishes to
// connected clients.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Session lifecycle events
	EventTypeSessionCreated EventType = "session_created"
	EventTypeSessionRenamed EventType = "session_renamed"
	EventTypeSessionDeleted EventType = "session_deleted"

	// Tree events
	EventTypeTreeChanged EventType = "tree_changed"
	EventTypeEntryStale  EventType = "entry_stale"

	// Diff events
	EventTypeDiffProgress  EventType = "diff_progress"
	EventTypeDiffCompleted EventType = "diff_completed"

	// Response events
	EventTypeError EventType = "error"
)

// Event is the base interface for all events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)

	// GetSessionID returns the ID of the session the event concerns,
	// or "" for global events.
	GetSessionID() string
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType EventType   `json:"event"`
	EventTime time.Time   `json:"timestamp"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, payload interface{}) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
	}
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// ToJSON serializes the event to JSON.
func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// GetSessionID returns the ID of the session the event concerns, or
// "" for global events such as diff progress.
func (e *BaseEvent) GetSessionID() string {
	return e.SessionID
}

// SessionPayload is the payload for session lifecycle events.
type SessionPayload struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name,omitempty"`
}

// TreeChangedPayload is the payload for tree_changed events.
type TreeChangedPayload struct {
	SessionID string `json:"session_id"`
	Op        string `json:"op"` // "insert", "remove", "undo", "reorder"
	Added     int    `json:"added,omitempty"`
	Skipped   int    `json:"skipped,omitempty"`
}

// EntryStalePayload is the payload for entry_stale events.
type EntryStalePayload struct {
	SessionID string `json:"session_id"`
	Location  string `json:"location"`
}

// DiffProgressPayload is the payload for diff_progress events:
// "processing repository i of N".
type DiffProgressPayload struct {
	Scope      string `json:"scope"`
	Repository string `json:"repository"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
}

// DiffCompletedPayload is the payload for diff_completed events.
type DiffCompletedPayload struct {
	Scope   string `json:"scope"`
	Diffed  int    `json:"diffed"`
	Skipped int    `json:"skipped"`
	Errored int    `json:"errored"`
	Summary string `json:"summary"`
}

// ErrorPayload is the payload for error events.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewSessionEvent creates a session lifecycle event.
func NewSessionEvent(eventType EventType, sessionID, name string) *BaseEvent {
	e := NewEvent(eventType, SessionPayload{SessionID: sessionID, Name: name})
	e.SessionID = sessionID
	return e
}

// NewTreeChangedEvent creates a new tree_changed event.
func NewTreeChangedEvent(sessionID, op string, added, skipped int) *BaseEvent {
	e := NewEvent(EventTypeTreeChanged, TreeChangedPayload{
		SessionID: sessionID,
		Op:        op,
		Added:     added,
		Skipped:   skipped,
	})
	e.SessionID = sessionID
	return e
}

// NewEntryStaleEvent creates a new entry_stale event.
func NewEntryStaleEvent(sessionID, location string) *BaseEvent {
	e := NewEvent(EventTypeEntryStale, EntryStalePayload{
		SessionID: sessionID,
		Location:  location,
	})
	e.SessionID = sessionID
	return e
}

// NewDiffProgressEvent creates a new diff_progress event.
func NewDiffProgressEvent(scope, repository string, index, total int) *BaseEvent {
	return NewEvent(EventTypeDiffProgress, DiffProgressPayload{
		Scope:      scope,
		Repository: repository,
		Index:      index,
		Total:      total,
	})
}

// NewDiffCompletedEvent creates a new diff_completed event.
func NewDiffCompletedEvent(scope string, diffed, skipped, errored int, summary string) *BaseEvent {
	return NewEvent(EventTypeDiffCompleted, DiffCompletedPayload{
		Scope:   scope,
		Diffed:  diffed,
		Skipped: skipped,
		Errored: errored,
		Summary: summary,
	})
}

// NewErrorEvent creates a new error event.
func NewErrorEvent(code, message string) *BaseEvent {
	return NewEvent(EventTypeError, ErrorPayload{Code: code, Message: message})
}
