package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const dbFile = "tempo.db"

// Store persists sync bookkeeping between runs: the version watermark,
// a history of sync cycles, and per-date activity totals. It satisfies
// the sync engine's Bookkeeper interface.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the bookkeeping database under
// baseDir and applies the schema.
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(baseDir, dbFile)

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps reads cheap while writes are serialized.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens an in-memory store, used by tests and one-shot runs.
func OpenMemory() (*Store, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Each pooled connection would otherwise get its own empty
	// in-memory database.
	conn.SetMaxOpenConns(1)
	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sync_state (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			watermark  INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS sync_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at DATETIME NOT NULL,
			kind       TEXT NOT NULL,
			fetched    INTEGER NOT NULL DEFAULT 0,
			applied    INTEGER NOT NULL DEFAULT 0,
			error      TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS day_counts (
			date  TEXT PRIMARY KEY,
			total INTEGER NOT NULL
		);
		INSERT OR IGNORE INTO sync_state (id, watermark) VALUES (1, 0);
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// LoadWatermark returns the persisted version watermark.
func (s *Store) LoadWatermark() (int64, error) {
	var v int64
	err := s.conn.QueryRow(`SELECT watermark FROM sync_state WHERE id = 1`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load watermark: %w", err)
	}
	return v, nil
}

// SaveWatermark persists the watermark.
func (s *Store) SaveWatermark(v int64) error {
	_, err := s.conn.Exec(`
		UPDATE sync_state SET watermark = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1
	`, v)
	if err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}

// AppendHistory records the outcome of one sync cycle.
func (s *Store) AppendHistory(startedAt time.Time, kind string, fetched, applied int, errMsg string) error {
	_, err := s.conn.Exec(`
		INSERT INTO sync_history (started_at, kind, fetched, applied, error)
		VALUES (?, ?, ?, ?, ?)
	`, startedAt.UTC().Format("2006-01-02 15:04:05"), kind, fetched, applied, errMsg)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// HistoryEntry is a row from the sync_history table.
type HistoryEntry struct {
	ID        int64
	StartedAt time.Time
	Kind      string
	Fetched   int
	Applied   int
	Error     string
}

// HistoryTail returns the most recent sync cycles, newest first.
func (s *Store) HistoryTail(limit int) ([]HistoryEntry, error) {
	rows, err := s.conn.Query(`
		SELECT id, started_at, kind, fetched, applied, error
		FROM sync_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.Fetched, &e.Applied, &e.Error); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		parsed, parseErr := parseTimestamp(ts)
		if parseErr != nil {
			return nil, parseErr
		}
		e.StartedAt = parsed
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateDayCounts replaces the stored per-date totals with the given
// snapshot.
func (s *Store) UpdateDayCounts(totals map[string]int) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM day_counts`); err != nil {
		return fmt.Errorf("clear day counts: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO day_counts (date, total) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare day counts: %w", err)
	}
	defer stmt.Close()
	for date, total := range totals {
		if _, err := stmt.Exec(date, total); err != nil {
			return fmt.Errorf("insert day count %s: %w", date, err)
		}
	}
	return tx.Commit()
}

// DayCounts returns the stored per-date totals.
func (s *Store) DayCounts() (map[string]int, error) {
	rows, err := s.conn.Query(`SELECT date, total FROM day_counts`)
	if err != nil {
		return nil, fmt.Errorf("query day counts: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var date string
		var total int
		if err := rows.Scan(&date, &total); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		totals[date] = total
	}
	return totals, rows.Err()
}

// parseTimestamp tries common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006-01-02T15:04:05Z07:00",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}
