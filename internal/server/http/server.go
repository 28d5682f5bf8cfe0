// Package http provides the REST/WebSocket server for serve mode.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ctxpack/ctxpack/internal/diff"
	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/domain/ports"
	"github.com/ctxpack/ctxpack/internal/generate"
	"github.com/ctxpack/ctxpack/internal/hub"
	"github.com/ctxpack/ctxpack/internal/security"
	"github.com/ctxpack/ctxpack/internal/session"
)

// Server exposes sessions, artifacts and diff aggregation over HTTP,
// with an event stream on /ws.
type Server struct {
	store      *session.Store
	aggregator *diff.Aggregator
	generator  *generate.Generator
	hub        ports.EventHub
	exclude    func(string) bool
	origins    *security.OriginChecker
	upgrader   websocket.Upgrader

	addr       string
	httpServer *http.Server
}

// New creates the server. hub may be nil; /ws then rejects connections.
// Browser origins are restricted to localhost when the server binds a
// loopback host.
func New(host string, port int, store *session.Store, aggregator *diff.Aggregator, generator *generate.Generator, hub ports.EventHub, exclude func(string) bool) *Server {
	origins := security.NewOriginChecker(nil, isLoopbackHost(host))
	return &Server{
		store:      store,
		aggregator: aggregator,
		generator:  generator,
		hub:        hub,
		exclude:    exclude,
		origins:    origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.CheckOrigin,
		},
		addr: fmt.Sprintf("%s:%d", host, port),
	}
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler builds the route tree with CORS applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Session CRUD
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleRenameSession).Methods("PUT")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Entry operations
	api.HandleFunc("/sessions/{id}/entries", s.handleInsertEntries).Methods("POST")
	api.HandleFunc("/sessions/{id}/entries", s.handleRemoveEntry).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/undo", s.handleUndo).Methods("POST")
	api.HandleFunc("/sessions/{id}/reorder", s.handleReorder).Methods("POST")

	// Derived artifacts
	api.HandleFunc("/sessions/{id}/diff", s.handleDiff).Methods("GET")
	api.HandleFunc("/sessions/{id}/blocks", s.handleBlocks).Methods("GET")
	api.HandleFunc("/sessions/{id}/tree", s.handleTree).Methods("GET")

	// WebSocket event stream
	router.HandleFunc("/ws", s.handleWebSocket)

	return s.corsMiddleware(router)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	log.Info().Msg("stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "ctxpack",
		"timestamp": time.Now().Unix(),
	})
}

// handleListSessions handles GET /api/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.store.List()
	result := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionInfo(sess))
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": result,
	})
}

// handleCreateSession handles POST /api/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.store.Create(req.Name)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, sessionInfo(sess))
}

// handleGetSession handles GET /api/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	info := sessionInfo(sess)
	s.respondJSON(w, http.StatusOK, SessionDetail{
		SessionInfo: info,
		Entries:     sess.Roots(),
	})
}

// handleRenameSession handles PUT /api/sessions/{id}
func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req RenameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.Rename(id, req.Name); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// handleDeleteSession handles DELETE /api/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.Delete(id); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// handleInsertEntries handles POST /api/sessions/{id}/entries
func (s *Server) handleInsertEntries(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req InsertEntriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		s.respondError(w, http.StatusBadRequest, "items is required")
		return
	}

	items := make([]*domain.ResourceRef, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Location == "" {
			s.respondError(w, http.StatusBadRequest, "item location cannot be empty")
			return
		}
		if item.Container {
			items = append(items, domain.NewContainerRef(item.Location))
		} else {
			items = append(items, domain.NewFileRef(item.Location))
		}
	}

	var exclude session.ExcludeFunc
	if s.exclude != nil {
		exclude = func(ref *domain.ResourceRef) bool { return s.exclude(ref.Location) }
	}

	added, skipped, err := sess.Insert(req.ParentLocation, items, exclude)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, InsertEntriesResponse{Added: added, Skipped: skipped})
}

// handleRemoveEntry handles DELETE /api/sessions/{id}/entries?location=
func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	location := r.URL.Query().Get("location")
	if location == "" {
		s.respondError(w, http.StatusBadRequest, "location is required")
		return
	}

	removed := sess.Remove(location)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
}

// handleUndo handles POST /api/sessions/{id}/undo
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"undone": sess.UndoLastRemoval(),
	})
}

// handleReorder handles POST /api/sessions/{id}/reorder
func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := sess.Reorder(req.ParentLocation, req.FromIndex, req.ToIndex); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// handleDiff handles GET /api/sessions/{id}/diff?location=
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if s.aggregator == nil {
		s.respondError(w, http.StatusServiceUnavailable, "diff aggregation not available")
		return
	}

	entries, scope, ok := s.resolveScope(w, sess, r.URL.Query().Get("location"))
	if !ok {
		return
	}

	report, err := s.aggregator.Aggregate(r.Context(), entries, scope)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	diffed, untracked, nonTrackable, errored := report.Counts()
	s.respondJSON(w, http.StatusOK, DiffResponse{
		Scope:   scope.Name,
		Summary: report.Summary(),
		Diff:    report.MergedText,
		Items:   report.Items,
		Errors:  report.Errors,
		Diffed:  diffed,
		Skipped: untracked + nonTrackable,
		Errored: errored,
	})
}

// handleBlocks handles GET /api/sessions/{id}/blocks?location=
func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if s.generator == nil {
		s.respondError(w, http.StatusServiceUnavailable, "artifact generation not available")
		return
	}

	location := r.URL.Query().Get("location")
	refs, found := sess.Flatten(location)
	if !found {
		s.respondError(w, http.StatusNotFound, "entry not found")
		return
	}

	blocks, err := s.generator.Blocks(r.Context(), refs)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"blocks": blocks,
	})
}

// handleTree handles GET /api/sessions/{id}/tree?location=
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if s.generator == nil {
		s.respondError(w, http.StatusServiceUnavailable, "artifact generation not available")
		return
	}

	location := r.URL.Query().Get("location")
	var roots []*domain.ResourceRef
	if location == "" {
		roots = sess.Roots()
	} else {
		ref, found := sess.Find(location)
		if !found {
			s.respondError(w, http.StatusNotFound, "entry not found")
			return
		}
		roots = []*domain.ResourceRef{ref}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tree": s.generator.Tree(roots),
	})
}

// handleWebSocket handles the event stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.respondError(w, http.StatusServiceUnavailable, "event stream not available")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket")
		return
	}

	client := NewClient(conn, func(id string) {
		s.hub.Unsubscribe(id)
	})
	client.Start()

	// ?session=<id> narrows the stream to the named sessions; global
	// events still come through.
	var sub ports.Subscriber = NewClientSubscriber(client)
	if ids := r.URL.Query()["session"]; len(ids) > 0 {
		filtered := hub.NewFilteredSubscriber(sub)
		for _, id := range ids {
			filtered.SubscribeSession(id)
		}
		sub = filtered
	}
	s.hub.Subscribe(sub)

	log.Info().Str("client_id", client.ID()).Msg("websocket client connected")
}

// resolveScope maps a location query parameter to the entries and
// scope label for aggregation. Empty location means the whole session.
func (s *Server) resolveScope(w http.ResponseWriter, sess *session.Session, location string) ([]*domain.ResourceRef, diff.Scope, bool) {
	if location == "" {
		return sess.Roots(), diff.Scope{Name: sess.Name, WholeSession: true}, true
	}
	ref, found := sess.Find(location)
	if !found {
		s.respondError(w, http.StatusNotFound, "entry not found")
		return nil, diff.Scope{}, false
	}
	return []*domain.ResourceRef{ref}, diff.Scope{Name: ref.DisplayName}, true
}

// lookupSession resolves the {id} path variable, writing a 404 when
// the session does not exist.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := mux.Vars(r)["id"]
	sess, err := s.store.Get(id)
	if err != nil {
		s.respondDomainError(w, err)
		return nil, false
	}
	return sess, true
}

// respondDomainError maps domain errors to HTTP status codes.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrEntryNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSessionExists):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrIndexOutOfRange), errors.Is(err, domain.ErrNotContainer), errors.As(err, &verr):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrResolverRequired):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// respondError sends an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]interface{}{
		"error": message,
	})
}

// corsMiddleware adds CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.origins.CheckOriginValue(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
