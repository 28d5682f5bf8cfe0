// Package storage implements the persistence store on SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/domain/ports"
)

// storeSchemaVersion tags the database layout. The snapshot payload
// carries its own schema version and is migrated by the session
// package, not here.
const storeSchemaVersion = 1

// SQLiteStore implements the PersistenceStore port on a local SQLite
// database. Identity writes are transactional so a crash mid-write
// never corrupts cross-session identity; at worst the most recent
// tree snapshot is lost.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn().Err(err).Str("pragma", pragma).Msg("failed to set pragma")
		}
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

var _ ports.PersistenceStore = (*SQLiteStore)(nil)

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			position INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			session_id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO NOTHING",
		storeSchemaVersion,
	)
	return err
}

// SaveIdentities replaces the stored identity list in one transaction.
func (s *SQLiteStore) SaveIdentities(identities []ports.SessionIdentity) error {
	tx, err := s.db.Begin()
	if err != nil {
		return domain.NewPersistenceError("", "save", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM sessions"); err != nil {
		return domain.NewPersistenceError("", "save", err)
	}
	for _, ident := range identities {
		if _, err := tx.Exec(
			"INSERT INTO sessions (id, name, position) VALUES (?, ?, ?)",
			ident.ID, ident.Name, ident.Position,
		); err != nil {
			return domain.NewPersistenceError(ident.ID, "save", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.NewPersistenceError("", "save", err)
	}
	return nil
}

// SaveSnapshot upserts the encoded tree snapshot for one session.
func (s *SQLiteStore) SaveSnapshot(sessionID string, snapshot []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO snapshots (session_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, sessionID, snapshot, time.Now().Unix())
	if err != nil {
		return domain.NewPersistenceError(sessionID, "save", err)
	}
	return nil
}

// DeleteSnapshot discards any persisted snapshot for a session.
func (s *SQLiteStore) DeleteSnapshot(sessionID string) error {
	if _, err := s.db.Exec("DELETE FROM snapshots WHERE session_id = ?", sessionID); err != nil {
		return domain.NewPersistenceError(sessionID, "delete", err)
	}
	return nil
}

// LoadAll restores identities and snapshots. A snapshot row that fails
// to read is reported per session and never blocks the others.
func (s *SQLiteStore) LoadAll() (*ports.LoadResult, error) {
	result := &ports.LoadResult{
		Identities: make([]ports.SessionIdentity, 0),
		Snapshots:  make(map[string][]byte),
	}

	rows, err := s.db.Query("SELECT id, name, position FROM sessions ORDER BY position")
	if err != nil {
		return nil, domain.NewPersistenceError("", "load", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var ident ports.SessionIdentity
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.Position); err != nil {
			return nil, domain.NewPersistenceError("", "load", err)
		}
		result.Identities = append(result.Identities, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("", "load", err)
	}

	snapRows, err := s.db.Query("SELECT session_id, data FROM snapshots")
	if err != nil {
		// Identities survive even when the snapshot table is gone.
		result.Errs = append(result.Errs, domain.NewPersistenceError("", "load", err))
		return result, nil
	}
	defer func() { _ = snapRows.Close() }()
	for snapRows.Next() {
		var sessionID string
		var data []byte
		if err := snapRows.Scan(&sessionID, &data); err != nil {
			result.Errs = append(result.Errs, domain.NewPersistenceError(sessionID, "decode", err))
			continue
		}
		result.Snapshots[sessionID] = data
	}
	if err := snapRows.Err(); err != nil {
		result.Errs = append(result.Errs, domain.NewPersistenceError("", "load", err))
	}

	return result, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
