package hub

import (
	"sync"

	"github.com/ctxpack/ctxpack/internal/domain/events"
	"github.com/ctxpack/ctxpack/internal/domain/ports"
)

// FilteredSubscriber wraps a subscriber and filters events by session
// ID. Global events (no session ID) are always forwarded. With no
// sessions subscribed, every event is forwarded.
type FilteredSubscriber struct {
	inner    ports.Subscriber
	sessions map[string]bool
	mu       sync.RWMutex
}

// NewFilteredSubscriber creates a filtered subscriber wrapping inner.
func NewFilteredSubscriber(inner ports.Subscriber) *FilteredSubscriber {
	return &FilteredSubscriber{
		inner:    inner,
		sessions: make(map[string]bool),
	}
}

// ID returns the wrapped subscriber's identifier.
func (f *FilteredSubscriber) ID() string {
	return f.inner.ID()
}

// Send forwards the event when it passes the filter. Filtered-out
// events are silently dropped.
func (f *FilteredSubscriber) Send(event events.Event) error {
	if !f.shouldForward(event) {
		return nil
	}
	return f.inner.Send(event)
}

// Close closes the wrapped subscriber.
func (f *FilteredSubscriber) Close() error {
	return f.inner.Close()
}

// Done returns the wrapped subscriber's done channel.
func (f *FilteredSubscriber) Done() <-chan struct{} {
	return f.inner.Done()
}

// SubscribeSession narrows the filter to include sessionID.
func (f *FilteredSubscriber) SubscribeSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionID] = true
}

// UnsubscribeSession removes a session from the filter.
func (f *FilteredSubscriber) UnsubscribeSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
}

// SubscribeAll clears the filter, forwarding every event again.
func (f *FilteredSubscriber) SubscribeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = make(map[string]bool)
}

// IsFiltering reports whether a session filter is active.
func (f *FilteredSubscriber) IsFiltering() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sessions) > 0
}

func (f *FilteredSubscriber) shouldForward(event events.Event) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.sessions) == 0 {
		return true
	}
	sessionID := event.GetSessionID()
	if sessionID == "" {
		return true
	}
	return f.sessions[sessionID]
}
