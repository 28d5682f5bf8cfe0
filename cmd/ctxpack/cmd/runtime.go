package cmd

import (
	"errors"
	"fmt"

	"github.com/ctxpack/ctxpack/internal/adapters/storage"
	"github.com/ctxpack/ctxpack/internal/config"
	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/session"
)

// runtime bundles what a one-shot CLI command needs: loaded config and
// the session store over local storage. close drains queued snapshot
// writes before releasing the database.
type runtime struct {
	cfg     *config.Config
	persist *storage.SQLiteStore
	store   *session.Store
}

func openRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg)

	persist, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	store := session.NewStore(persist, nil)
	if err := store.Load(); err != nil {
		_ = persist.Close()
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	return &runtime{cfg: cfg, persist: persist, store: store}, nil
}

func (r *runtime) close() {
	r.store.Close()
	if err := r.persist.Close(); err != nil {
		fmt.Printf("warning: failed to close storage: %v\n", err)
	}
}

// findSession resolves a session by name first, then by ID.
func (r *runtime) findSession(nameOrID string) (*session.Session, error) {
	sess, err := r.store.GetByName(nameOrID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}
	return r.store.Get(nameOrID)
}
