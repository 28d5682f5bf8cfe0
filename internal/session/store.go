package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/domain/events"
	"github.com/ctxpack/ctxpack/internal/domain/ports"
)

// snapshotQueueSize bounds the per-session write queue. Sends block
// when the queue is full so snapshots are never persisted out of
// order relative to their mutations.
const snapshotQueueSize = 16

// Session is a named, independently persisted collection of resource
// refs with its own ordered hierarchy.
type Session struct {
	ID   string
	Name string

	mu       sync.Mutex
	tree     *Tree
	store    *Store
	snaps    chan []byte
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// stop terminates the session's snapshot writer exactly once.
func (sess *Session) stop() {
	sess.stopOnce.Do(func() { close(sess.done) })
}

// Store manages the collection of named sessions and their
// persistence.
type Store struct {
	persist ports.PersistenceStore
	hub     ports.EventHub // may be nil

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string // creation order
	wg       sync.WaitGroup
	closed   bool
}

// NewStore creates a session store backed by persist. The hub is
// optional; when set, session and tree changes are published to it.
func NewStore(persist ports.PersistenceStore, hub ports.EventHub) *Store {
	return &Store{
		persist:  persist,
		hub:      hub,
		sessions: make(map[string]*Session),
		order:    make([]string, 0),
	}
}

// Load restores all sessions from persistence. A corrupt snapshot for
// one session degrades that session to an empty tree and never blocks
// startup of the others.
func (s *Store) Load() error {
	result, err := s.persist.LoadAll()
	if err != nil {
		return err
	}

	for _, perr := range result.Errs {
		log.Warn().Err(perr).Str("session_id", perr.SessionID).Msg("snapshot unreadable, session starts empty")
	}

	identities := make([]ports.SessionIdentity, len(result.Identities))
	copy(identities, result.Identities)
	sort.SliceStable(identities, func(i, j int) bool {
		return identities[i].Position < identities[j].Position
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ident := range identities {
		sess := s.newSession(ident.ID, ident.Name)
		if raw, ok := result.Snapshots[ident.ID]; ok {
			snap, derr := DecodeSnapshot(raw)
			if derr != nil {
				log.Warn().Err(derr).Str("session_id", ident.ID).Msg("snapshot decode failed, session starts empty")
			} else {
				sess.tree = snap.Restore()
			}
		}
		s.sessions[ident.ID] = sess
		s.order = append(s.order, ident.ID)
	}

	log.Info().Int("sessions", len(s.order)).Msg("sessions restored")
	return nil
}

// newSession builds a session and starts its snapshot writer.
func (s *Store) newSession(id, name string) *Session {
	sess := &Session{
		ID:     id,
		Name:   name,
		tree:   NewTree(),
		store:  s,
		snaps:  make(chan []byte, snapshotQueueSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	s.wg.Add(1)
	go sess.snapshotWriter(&s.wg)
	return sess
}

// Create allocates a new empty session and persists its identity
// immediately.
func (s *Store) Create(name string) (*Session, error) {
	if name == "" {
		return nil, domain.NewValidationError("name", "session name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.Name == name {
			return nil, domain.ErrSessionExists
		}
	}

	sess := s.newSession(uuid.NewString(), name)
	s.sessions[sess.ID] = sess
	s.order = append(s.order, sess.ID)

	if err := s.persist.SaveIdentities(s.identitiesLocked()); err != nil {
		return nil, err
	}

	log.Info().Str("session_id", sess.ID).Str("name", name).Msg("session created")
	s.publish(events.NewSessionEvent(events.EventTypeSessionCreated, sess.ID, name))
	return sess, nil
}

// Rename changes a session's name.
func (s *Store) Rename(id, name string) error {
	if name == "" {
		return domain.NewValidationError("name", "session name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	for _, existing := range s.sessions {
		if existing.ID != id && existing.Name == name {
			return domain.ErrSessionExists
		}
	}

	sess.Name = name
	if err := s.persist.SaveIdentities(s.identitiesLocked()); err != nil {
		return err
	}

	s.publish(events.NewSessionEvent(events.EventTypeSessionRenamed, id, name))
	return nil
}

// Delete removes a session, discarding its tree, its removal log and
// any pending persisted snapshot.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	err := s.persist.SaveIdentities(s.identitiesLocked())
	s.mu.Unlock()

	sess.stop()
	// Wait for the writer to finish draining; a queued write landing
	// after the delete would leave an orphan snapshot behind.
	<-sess.exited
	if derr := s.persist.DeleteSnapshot(id); derr != nil {
		log.Warn().Err(derr).Str("session_id", id).Msg("failed to delete snapshot")
	}
	if err != nil {
		return err
	}

	log.Info().Str("session_id", id).Msg("session deleted")
	s.publish(events.NewSessionEvent(events.EventTypeSessionDeleted, id, sess.Name))
	return nil
}

// Get returns a session by id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// GetByName returns a session by name.
func (s *Store) GetByName(name string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if sess := s.sessions[id]; sess.Name == name {
			return sess, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

// List returns all sessions in creation order.
func (s *Store) List() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id])
	}
	return out
}

// Close stops all snapshot writers and waits for queued writes to
// drain.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.stop()
	}
	s.wg.Wait()
}

func (s *Store) identitiesLocked() []ports.SessionIdentity {
	identities := make([]ports.SessionIdentity, 0, len(s.order))
	for pos, id := range s.order {
		identities = append(identities, ports.SessionIdentity{
			ID:       id,
			Name:     s.sessions[id].Name,
			Position: pos,
		})
	}
	return identities
}

func (s *Store) publish(e events.Event) {
	if s.hub != nil {
		s.hub.Publish(e)
	}
}

// --- Session operations ---

// snapshotWriter drains the session's write queue. Writes are
// serialized per session so a later mutation is never persisted before
// an earlier one.
func (sess *Session) snapshotWriter(wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(sess.exited)
	for {
		select {
		case data := <-sess.snaps:
			sess.write(data)
		case <-sess.done:
			// Drain whatever is still queued.
			for {
				select {
				case data := <-sess.snaps:
					sess.write(data)
				default:
					return
				}
			}
		}
	}
}

func (sess *Session) write(data []byte) {
	if err := sess.store.persist.SaveSnapshot(sess.ID, data); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("snapshot write failed")
	}
}

// scheduleSnapshot encodes the current tree and queues it for
// persistence. Fire-and-forget: the caller does not wait for the
// write.
func (sess *Session) scheduleSnapshot() {
	data, err := TakeSnapshot(sess.tree).Encode()
	if err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("snapshot encode failed")
		return
	}
	select {
	case sess.snaps <- data:
	case <-sess.done:
	}
}

// Insert appends items under parentLocation (RootLocation for the
// root), applying the exclusion predicate and sibling deduplication,
// and schedules a persistence snapshot.
func (sess *Session) Insert(parentLocation string, items []*domain.ResourceRef, exclude ExcludeFunc) (added, skipped int, err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	added, skipped, err = sess.tree.Insert(parentLocation, items, exclude)
	if err != nil {
		return added, skipped, err
	}
	if added > 0 {
		sess.scheduleSnapshot()
	}
	sess.store.publish(events.NewTreeChangedEvent(sess.ID, "insert", added, skipped))
	return added, skipped, nil
}

// Remove removes the entry at location (subtree included) and
// schedules a snapshot. A no-op when the location is absent.
func (sess *Session) Remove(location string) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	removed := sess.tree.Remove(location)
	if removed {
		sess.scheduleSnapshot()
		sess.store.publish(events.NewTreeChangedEvent(sess.ID, "remove", 0, 0))
	}
	return removed
}

// UndoLastRemoval restores the most recently removed subtree.
func (sess *Session) UndoLastRemoval() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	undone := sess.tree.UndoLastRemoval()
	if undone {
		sess.scheduleSnapshot()
		sess.store.publish(events.NewTreeChangedEvent(sess.ID, "undo", 0, 0))
	}
	return undone
}

// Reorder moves one child within a sibling sequence.
func (sess *Session) Reorder(parentLocation string, fromIndex, toIndex int) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.tree.Reorder(parentLocation, fromIndex, toIndex); err != nil {
		return err
	}
	sess.scheduleSnapshot()
	sess.store.publish(events.NewTreeChangedEvent(sess.ID, "reorder", 0, 0))
	return nil
}

// Flatten returns the pre-order sequence of the subtree at location,
// or the whole forest for RootLocation.
func (sess *Session) Flatten(location string) ([]*domain.ResourceRef, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.tree.Flatten(location)
}

// Roots returns the root entries.
func (sess *Session) Roots() []*domain.ResourceRef {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.tree.Roots()
}

// Find returns the entry at location, if present.
func (sess *Session) Find(location string) (*domain.ResourceRef, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	ref := sess.tree.Find(location)
	return ref, ref != nil
}

// Len returns the total number of entries in the session.
func (sess *Session) Len() int {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.tree.Len()
}

// MarkStale flags an entry whose resource vanished externally. The
// flag is advisory and not persisted; staleness is recomputed on load.
func (sess *Session) MarkStale(location string) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.tree.MarkStale(location) {
		return false
	}
	sess.store.publish(events.NewEntryStaleEvent(sess.ID, location))
	return true
}

// Locations returns every plain-path location in the session, used by
// the stale-entry watcher to build its watch set.
func (sess *Session) Locations() []string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	refs, _ := sess.tree.Flatten(RootLocation)
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if domain.IsFileLocation(r.Location) {
			out = append(out, r.Location)
		}
	}
	return out
}
