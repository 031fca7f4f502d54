// Package store persists what leaves the assistant: a JSON audit trail per
// export and a SQLite submission history. The audit log carries a hash of
// the source text, never the text itself.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ymiyake/contractintake/form"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("store: closed")

// ErrNotFound is returned when a submission ID has no row.
var ErrNotFound = errors.New("store: submission not found")

// Submission is one exported contract request.
type Submission struct {
	ID         string       `json:"id"`
	CreatedAt  time.Time    `json:"created_at"`
	SourceHash string       `json:"source_hash"`
	OutputPath string       `json:"output_path"`
	Record     *form.Record `json:"record"`
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS submissions (
	id          TEXT PRIMARY KEY,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	source_hash TEXT NOT NULL,
	output_path TEXT NOT NULL,
	record_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
`

// Store wraps the SQLite database holding the submission history.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	closed bool
}

// Open opens (or creates) the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db}, nil
}

// Close closes the underlying database. Further calls return nil.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Save records one exported submission and returns its generated ID.
func (s *Store) Save(ctx context.Context, rec *form.Record, sourceHash, outputPath string) (string, error) {
	if err := s.guard(); err != nil {
		return "", err
	}

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, created_at, source_hash, output_path, record_json)
		VALUES (?, ?, ?, ?, ?)
	`, id, time.Now().UTC(), sourceHash, outputPath, string(recordJSON))
	if err != nil {
		return "", fmt.Errorf("inserting submission: %w", err)
	}
	return id, nil
}

// List returns the most recent submissions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Submission, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, source_hash, output_path, record_json
		FROM submissions ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// Get retrieves one submission by ID.
func (s *Store) Get(ctx context.Context, id string) (*Submission, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, source_hash, output_path, record_json
		FROM submissions WHERE id = ?
	`, id)
	sub, err := scanSubmission(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sub, err
}

func scanSubmission(scan func(...any) error) (*Submission, error) {
	var sub Submission
	var recordJSON string
	if err := scan(&sub.ID, &sub.CreatedAt, &sub.SourceHash, &sub.OutputPath, &recordJSON); err != nil {
		return nil, err
	}
	sub.Record = &form.Record{}
	if err := json.Unmarshal([]byte(recordJSON), sub.Record); err != nil {
		return nil, fmt.Errorf("decoding record for %s: %w", sub.ID, err)
	}
	return &sub, nil
}
