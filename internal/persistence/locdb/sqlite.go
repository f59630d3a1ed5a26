package locdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chunkwake.ai/internal/sim/deferred"
)

// Store is the durable LocationStore: pending command sets keyed by
// cell position, scoped to a system identifier so multiple deferred
// systems can share one database file. All calls happen on the world
// loop goroutine; the single-connection discipline keeps sqlite happy.
type Store struct {
	db       *sql.DB
	systemID string

	log *log.Logger
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL keeps registration writes cheap during dispatch-heavy ticks.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS systems (
			system_id TEXT PRIMARY KEY,
			blob TEXT NOT NULL DEFAULT '',
			attached_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS pending (
			system_id TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			commands_json TEXT NOT NULL,
			PRIMARY KEY (system_id, x, y, z)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_xz ON pending(system_id, x, z);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Attach binds the store to a system identifier, re-attaching to any
// pending sets a previous process persisted under it. Reports whether
// prior state existed.
func (s *Store) Attach(systemID string) (resumed bool, err error) {
	if systemID == "" {
		return false, fmt.Errorf("empty system id")
	}
	var n int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM pending WHERE system_id = ?`, systemID).Scan(&n)
	if err != nil {
		return false, err
	}
	_, err = s.db.Exec(
		`INSERT INTO systems (system_id, attached_at) VALUES (?, ?)
		 ON CONFLICT(system_id) DO UPDATE SET attached_at = excluded.attached_at`,
		systemID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, err
	}
	s.systemID = systemID
	return n > 0, nil
}

// Blob returns the system's free-form persisted data.
func (s *Store) Blob() ([]byte, error) {
	var blob string
	err := s.db.QueryRow(`SELECT blob FROM systems WHERE system_id = ?`, s.systemID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(blob), nil
}

func (s *Store) SetBlob(blob []byte) error {
	_, err := s.db.Exec(`UPDATE systems SET blob = ? WHERE system_id = ?`, string(blob), s.systemID)
	return err
}

func (s *Store) SetLogger(l *log.Logger) { s.log = l }

func (s *Store) Close() error { return s.db.Close() }

// Get implements deferred.LocationStore.
func (s *Store) Get(pos deferred.Vec3i) *deferred.Entry {
	var raw string
	err := s.db.QueryRow(
		`SELECT commands_json FROM pending WHERE system_id = ? AND x = ? AND y = ? AND z = ?`,
		s.systemID, pos.X, pos.Y, pos.Z,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		s.logf("get %v: %v", pos, err)
		return nil
	}
	e, err := decodeEntry(pos, raw)
	if err != nil {
		s.logf("get %v: %v", pos, err)
		return nil
	}
	return e
}

func (s *Store) Create(pos deferred.Vec3i) *deferred.Entry {
	return &deferred.Entry{Pos: pos}
}

func (s *Store) Update(e *deferred.Entry) error {
	raw, err := json.Marshal(e.Commands)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO pending (system_id, x, y, z, commands_json) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(system_id, x, y, z) DO UPDATE SET commands_json = excluded.commands_json`,
		s.systemID, e.Pos.X, e.Pos.Y, e.Pos.Z, string(raw),
	)
	return err
}

func (s *Store) Delete(e *deferred.Entry) error {
	_, err := s.db.Exec(
		`DELETE FROM pending WHERE system_id = ? AND x = ? AND y = ? AND z = ?`,
		s.systemID, e.Pos.X, e.Pos.Y, e.Pos.Z,
	)
	return err
}

func (s *Store) EntriesInChunk(cx, cz int) []*deferred.Entry {
	x0, z0 := cx*16, cz*16
	rows, err := s.db.Query(
		`SELECT x, y, z, commands_json FROM pending
		 WHERE system_id = ? AND x BETWEEN ? AND ? AND z BETWEEN ? AND ?
		 ORDER BY x, z, y`,
		s.systemID, x0, x0+15, z0, z0+15,
	)
	if err != nil {
		s.logf("entries in chunk (%d,%d): %v", cx, cz, err)
		return nil
	}
	defer rows.Close()
	return s.scanEntries(rows)
}

func (s *Store) BatchComplete(entries []*deferred.Entry) {}

// All implements deferred.Enumerator for snapshot export and the
// inspector.
func (s *Store) All() []*deferred.Entry {
	rows, err := s.db.Query(
		`SELECT x, y, z, commands_json FROM pending WHERE system_id = ? ORDER BY x, z, y`,
		s.systemID,
	)
	if err != nil {
		s.logf("all entries: %v", err)
		return nil
	}
	defer rows.Close()
	return s.scanEntries(rows)
}

func (s *Store) scanEntries(rows *sql.Rows) []*deferred.Entry {
	var out []*deferred.Entry
	for rows.Next() {
		var pos deferred.Vec3i
		var raw string
		if err := rows.Scan(&pos.X, &pos.Y, &pos.Z, &raw); err != nil {
			s.logf("scan entry: %v", err)
			continue
		}
		e, err := decodeEntry(pos, raw)
		if err != nil {
			s.logf("decode entry at %v: %v", pos, err)
			continue
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		s.logf("scan entries: %v", err)
	}
	return out
}

func decodeEntry(pos deferred.Vec3i, raw string) (*deferred.Entry, error) {
	e := &deferred.Entry{Pos: pos}
	if err := json.Unmarshal([]byte(raw), &e.Commands); err != nil {
		return nil, fmt.Errorf("commands json: %w", err)
	}
	return e, nil
}

func (s *Store) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
