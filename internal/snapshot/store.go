// Package snapshot persists the last-known canonical event lists and
// the exam set in a single SQLite database.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the sqlite driver

	"studiplan/internal/model"
)

// Store wraps the SQLite connection. It exclusively owns the persisted
// Event and Exam collections.
type Store struct {
	conn *sql.DB
}

// Meta describes a family's snapshot without loading its payload.
type Meta struct {
	LastUpdated time.Time `json:"last_updated"`
	EventCount  int       `json:"event_count"`
}

// Open creates the database file (and parent directory) if needed and
// ensures the schema is up to date.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{conn: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// LoadEvents returns the last persisted event list for a family, or
// nil when the family has never been populated.
func (s *Store) LoadEvents(family string) ([]model.Event, error) {
	var payload string
	err := s.conn.QueryRow(`SELECT payload FROM snapshots WHERE family = ?`, family).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", family, err)
	}

	var events []model.Event
	if err := json.Unmarshal([]byte(payload), &events); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", family, err)
	}
	return events, nil
}

// SaveEvents replaces a family's snapshot as a whole document.
func (s *Store) SaveEvents(family string, events []model.Event) error {
	if events == nil {
		events = []model.Event{}
	}
	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", family, err)
	}

	_, err = s.conn.Exec(`
		INSERT INTO snapshots (family, payload, event_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(family) DO UPDATE SET
			payload = excluded.payload,
			event_count = excluded.event_count,
			updated_at = excluded.updated_at
	`, family, string(payload), len(events), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", family, err)
	}
	return nil
}

// FamilyMeta returns when a family's snapshot was last replaced and how
// many events it holds. A never-populated family yields a zero Meta.
func (s *Store) FamilyMeta(family string) (Meta, error) {
	var m Meta
	err := s.conn.QueryRow(
		`SELECT event_count, updated_at FROM snapshots WHERE family = ?`, family,
	).Scan(&m.EventCount, &m.LastUpdated)
	if err == sql.ErrNoRows {
		return Meta{}, nil
	}
	if err != nil {
		return Meta{}, fmt.Errorf("failed to read snapshot meta %s: %w", family, err)
	}
	return m, nil
}

// ListExams returns all persisted exams, oldest first.
func (s *Store) ListExams() ([]model.Exam, error) {
	rows, err := s.conn.Query(`SELECT payload FROM exams ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}
	defer rows.Close()

	exams := make([]model.Exam, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan exam row: %w", err)
		}
		var exam model.Exam
		if err := json.Unmarshal([]byte(payload), &exam); err != nil {
			return nil, fmt.Errorf("failed to decode exam: %w", err)
		}
		exams = append(exams, exam)
	}
	return exams, rows.Err()
}

// GetExam returns one exam by id, or nil when absent.
func (s *Store) GetExam(id string) (*model.Exam, error) {
	var payload string
	err := s.conn.QueryRow(`SELECT payload FROM exams WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load exam %s: %w", id, err)
	}
	var exam model.Exam
	if err := json.Unmarshal([]byte(payload), &exam); err != nil {
		return nil, fmt.Errorf("failed to decode exam %s: %w", id, err)
	}
	return &exam, nil
}

// PutExam inserts or replaces an exam as a whole document.
func (s *Store) PutExam(exam model.Exam) error {
	payload, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("failed to encode exam %s: %w", exam.ID, err)
	}
	createdAt := exam.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.conn.Exec(`
		INSERT INTO exams (id, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`, exam.ID, string(payload), createdAt)
	if err != nil {
		return fmt.Errorf("failed to save exam %s: %w", exam.ID, err)
	}
	return nil
}

// DeleteExam removes an exam; deleting an absent id is a no-op.
func (s *Store) DeleteExam(id string) error {
	if _, err := s.conn.Exec(`DELETE FROM exams WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete exam %s: %w", id, err)
	}
	return nil
}

// CountExams reports how many exams are persisted.
func (s *Store) CountExams() (int, error) {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM exams`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count exams: %w", err)
	}
	return n, nil
}
