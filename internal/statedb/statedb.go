// Package statedb persists device history and session telemetry in SQLite:
// which panels were connected to, with what rotation, plus a bounded journal
// of session events and capture-rate samples.
package statedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// eventJournalCap bounds the events table; older rows are pruned on insert.
const eventJournalCap = 1000

// StateDB wraps a SQLite database for device/session persistence.
// Thread-safe for concurrent use from multiple goroutines within one process.
// Multiple OS processes can safely read/write via WAL mode + busy timeout.
type StateDB struct {
	db *sql.DB
}

// DeviceRow is one remembered device.
type DeviceRow struct {
	Host          string
	Rotation      int
	LastConnected time.Time
}

// EventRow is one session lifecycle event.
type EventRow struct {
	ID        int64
	Host      string
	Event     string
	Detail    string
	CreatedAt time.Time
}

// FPSSample is one capture-rate measurement.
type FPSSample struct {
	Host       string
	FPS        int
	RecordedAt time.Time
}

// Open creates or opens a SQLite database at dbPath with WAL mode and busy timeout.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: foreign keys: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g., testing).
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist and records the schema version.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS devices (
			host           TEXT PRIMARY KEY,
			rotation       INTEGER NOT NULL DEFAULT 0,
			last_connected INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("statedb: create devices: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS session_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			host       TEXT NOT NULL,
			event      TEXT NOT NULL,
			detail     TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create session_events: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS fps_samples (
			host        TEXT NOT NULL,
			fps         INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create fps_samples: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// --- Devices ---

// SaveDevice inserts or updates a remembered device.
func (s *StateDB) SaveDevice(d *DeviceRow) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO devices (host, rotation, last_connected)
		VALUES (?, ?, ?)
	`, d.Host, d.Rotation, d.LastConnected.Unix())
	return err
}

// TouchDevice records a successful connection to host with the given rotation.
func (s *StateDB) TouchDevice(host string, rotation int) error {
	return s.SaveDevice(&DeviceRow{
		Host:          host,
		Rotation:      rotation,
		LastConnected: time.Now(),
	})
}

// LoadDevices returns remembered devices, most recently connected first.
func (s *StateDB) LoadDevices() ([]*DeviceRow, error) {
	rows, err := s.db.Query(`
		SELECT host, rotation, last_connected
		FROM devices ORDER BY last_connected DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*DeviceRow
	for rows.Next() {
		d := &DeviceRow{}
		var connectedUnix int64
		if err := rows.Scan(&d.Host, &d.Rotation, &connectedUnix); err != nil {
			return nil, err
		}
		if connectedUnix > 0 {
			d.LastConnected = time.Unix(connectedUnix, 0)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// GetDevice returns the remembered row for host, or nil when unknown.
func (s *StateDB) GetDevice(host string) (*DeviceRow, error) {
	d := &DeviceRow{}
	var connectedUnix int64
	err := s.db.QueryRow(`
		SELECT host, rotation, last_connected FROM devices WHERE host = ?
	`, host).Scan(&d.Host, &d.Rotation, &connectedUnix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if connectedUnix > 0 {
		d.LastConnected = time.Unix(connectedUnix, 0)
	}
	return d, nil
}

// DeleteDevice forgets a device by host.
func (s *StateDB) DeleteDevice(host string) error {
	_, err := s.db.Exec("DELETE FROM devices WHERE host = ?", host)
	return err
}

// --- Session events ---

// RecordEvent appends one event to the journal and prunes beyond the cap.
func (s *StateDB) RecordEvent(host, event, detail string) error {
	if _, err := s.db.Exec(`
		INSERT INTO session_events (host, event, detail, created_at)
		VALUES (?, ?, ?, ?)
	`, host, event, detail, time.Now().Unix()); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		DELETE FROM session_events WHERE id NOT IN (
			SELECT id FROM session_events ORDER BY id DESC LIMIT ?
		)
	`, eventJournalCap)
	return err
}

// RecentEvents returns up to limit events, newest first.
func (s *StateDB) RecentEvents(limit int) ([]*EventRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, host, event, detail, created_at
		FROM session_events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*EventRow
	for rows.Next() {
		e := &EventRow{}
		var createdUnix int64
		if err := rows.Scan(&e.ID, &e.Host, &e.Event, &e.Detail, &createdUnix); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdUnix, 0)
		result = append(result, e)
	}
	return result, rows.Err()
}

// --- Capture-rate samples ---

// RecordFPSSample stores one capture-rate measurement for host.
func (s *StateDB) RecordFPSSample(host string, fps int) error {
	_, err := s.db.Exec(`
		INSERT INTO fps_samples (host, fps, recorded_at) VALUES (?, ?, ?)
	`, host, fps, time.Now().Unix())
	return err
}

// AverageFPS returns the mean capture rate for host since the cutoff. ok is
// false when no samples exist in the window.
func (s *StateDB) AverageFPS(host string, since time.Time) (float64, bool, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT AVG(fps) FROM fps_samples WHERE host = ? AND recorded_at >= ?
	`, host, since.Unix()).Scan(&avg)
	if err != nil {
		return 0, false, err
	}
	if !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}

// PruneFPSSamples deletes samples older than the cutoff.
func (s *StateDB) PruneFPSSamples(before time.Time) error {
	_, err := s.db.Exec("DELETE FROM fps_samples WHERE recorded_at < ?", before.Unix())
	return err
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
