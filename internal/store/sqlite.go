package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS templates (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			content     TEXT NOT NULL DEFAULT '',
			uploaded_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS history (
			id             TEXT PRIMARY KEY,
			ticket_id      TEXT NOT NULL,
			ticket_summary TEXT NOT NULL DEFAULT '',
			test_plan      TEXT NOT NULL,
			generated_at   TEXT NOT NULL,
			provider_used  TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_history_generated ON history(generated_at);
		CREATE INDEX IF NOT EXISTS idx_history_ticket ON history(ticket_id);
	`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// --- settings ---

func (s *SQLiteStore) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: set setting %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Setting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: setting %q", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("store: get setting %q: %w", key, err)
	}
	return value, nil
}

// --- templates ---

func (s *SQLiteStore) SaveTemplate(t *Template) error {
	_, err := s.db.Exec(`INSERT INTO templates (id, name, content, uploaded_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, t.Content, t.UploadedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: save template: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Template(id string) (*Template, error) {
	row := s.db.QueryRow(`SELECT id, name, content, uploaded_at FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: template %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get template: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTemplates() ([]*Template, error) {
	rows, err := s.db.Query(`SELECT id, name, content, uploaded_at FROM templates ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list templates scan: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *SQLiteStore) DeleteTemplate(id string) error {
	result, err := s.db.Exec(`DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete template: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: template %q", ErrNotFound, id)
	}
	return nil
}

// --- history ---

func (s *SQLiteStore) SaveHistory(h *HistoryEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO history (id, ticket_id, ticket_summary, test_plan, generated_at, provider_used)
		VALUES (?, ?, ?, ?, ?, ?)
	`, h.ID, h.TicketID, h.TicketSummary, h.TestPlan, h.GeneratedAt.Format(time.RFC3339Nano), h.Provider)
	if err != nil {
		return fmt.Errorf("store: save history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(id string) (*HistoryEntry, error) {
	row := s.db.QueryRow(`SELECT id, ticket_id, ticket_summary, test_plan, generated_at, provider_used FROM history WHERE id = ?`, id)

	var h HistoryEntry
	var generatedAt string
	err := row.Scan(&h.ID, &h.TicketID, &h.TicketSummary, &h.TestPlan, &generatedAt, &h.Provider)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: history %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get history: %w", err)
	}
	h.GeneratedAt, _ = time.Parse(time.RFC3339Nano, generatedAt)
	return &h, nil
}

func (s *SQLiteStore) ListHistory(limit int) ([]*HistoryEntry, error) {
	query := `SELECT id, ticket_id, ticket_summary, generated_at, provider_used FROM history ORDER BY generated_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var generatedAt string
		if err := rows.Scan(&h.ID, &h.TicketID, &h.TicketSummary, &generatedAt, &h.Provider); err != nil {
			return nil, fmt.Errorf("store: list history scan: %w", err)
		}
		h.GeneratedAt, _ = time.Parse(time.RFC3339Nano, generatedAt)
		entries = append(entries, &h)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) PruneHistory(keep int) (int, error) {
	result, err := s.db.Exec(`
		DELETE FROM history WHERE id NOT IN (
			SELECT id FROM history ORDER BY generated_at DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("store: prune history: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanTemplate(row scannable) (*Template, error) {
	var t Template
	var uploadedAt string
	if err := row.Scan(&t.ID, &t.Name, &t.Content, &uploadedAt); err != nil {
		return nil, err
	}
	t.UploadedAt, _ = time.Parse(time.RFC3339, uploadedAt)
	return &t, nil
}
