package schedule

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists schedule entries in SQLite so they survive restarts.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the schedule database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open schedule db: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS schedules (
		id               TEXT PRIMARY KEY,
		start_hour       INTEGER NOT NULL,
		start_minute     INTEGER NOT NULL,
		duration_seconds REAL NOT NULL,
		day_mask         INTEGER NOT NULL DEFAULT 127,
		enabled          INTEGER NOT NULL DEFAULT 1,
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schedule db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadEntries returns all persisted entries, oldest first.
func (s *Store) LoadEntries() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, start_hour, start_minute, duration_seconds, day_mask, enabled, created_at
		FROM schedules ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			seconds   float64
			mask      uint8
			enabled   int
			createdAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.StartHour, &e.StartMinute, &seconds, &mask, &enabled, &createdAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		e.Duration = time.Duration(seconds * float64(time.Second))
		e.Days = MaskToDays(mask)
		e.Enabled = enabled != 0
		e.CreatedAt = createdAt
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveEntry inserts or replaces one entry.
func (s *Store) SaveEntry(e Entry) error {
	enabled := 0
	if e.Enabled {
		enabled = 1
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO schedules (id, start_hour, start_minute, duration_seconds, day_mask, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			start_hour = excluded.start_hour,
			start_minute = excluded.start_minute,
			duration_seconds = excluded.duration_seconds,
			day_mask = excluded.day_mask,
			enabled = excluded.enabled,
			updated_at = CURRENT_TIMESTAMP`,
		e.ID, e.StartHour, e.StartMinute, e.Duration.Seconds(), DaysToMask(e.Days), enabled, createdAt)
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", e.ID, err)
	}
	return nil
}

// DeleteEntry removes one entry; deleting an absent id is not an error.
func (s *Store) DeleteEntry(id string) error {
	if _, err := s.db.Exec(`DELETE FROM schedules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	return nil
}
