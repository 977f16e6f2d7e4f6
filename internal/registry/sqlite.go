package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/dgallion1/notesmith/internal/section"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS manifests (
    doc_id     TEXT PRIMARY KEY,
    body       TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS layers (
    doc_id     TEXT NOT NULL,
    key        TEXT NOT NULL,
    layer      TEXT NOT NULL,
    body       TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (doc_id, key, layer)
);

CREATE TABLE IF NOT EXISTS diagnostics (
    doc_id     TEXT NOT NULL,
    key        TEXT NOT NULL,
    layer      TEXT NOT NULL,
    body       TEXT NOT NULL,
    written_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (doc_id, key, layer)
);
`

// SQLiteStore keeps every document in one SQLite database in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and creates the
// schema if needed.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open database: %w", err)
	}

	// SQLite has a single writer; one pooled connection avoids SQLITE_BUSY
	// between connections of this process.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) LoadManifest(ctx context.Context, docID string) (Manifest, error) {
	if !ValidDocID(docID) {
		return Manifest{}, fmt.Errorf("%w: %q", ErrInvalidDocument, docID)
	}
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM manifests WHERE doc_id = ?", docID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Manifest{}, ErrNotFound
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("sqlite store: load manifest %q: %w", docID, err)
	}
	var m Manifest
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return Manifest{}, fmt.Errorf("sqlite store: decode manifest %q: %w", docID, err)
	}
	return m, nil
}

func (s *SQLiteStore) SaveManifest(ctx context.Context, m Manifest) error {
	if !ValidDocID(m.DocumentID) {
		return fmt.Errorf("%w: %q", ErrInvalidDocument, m.DocumentID)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("sqlite store: encode manifest: %w", err)
	}
	const q = `
		INSERT INTO manifests (doc_id, body, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(doc_id) DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, q, m.DocumentID, string(body)); err != nil {
		return fmt.Errorf("sqlite store: save manifest %q: %w", m.DocumentID, err)
	}
	return nil
}

func (s *SQLiteStore) ReadLayer(ctx context.Context, docID, key string, layer section.Layer) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM layers WHERE doc_id = ? AND key = ? AND layer = ?",
		docID, key, string(layer)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite store: read %s/%s: %w", layer, key, err)
	}
	return body, nil
}

func (s *SQLiteStore) WriteLayer(ctx context.Context, docID, key string, layer section.Layer, text string) error {
	if !ValidDocID(docID) {
		return fmt.Errorf("%w: %q", ErrInvalidDocument, docID)
	}
	const q = `
		INSERT INTO layers (doc_id, key, layer, body, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(doc_id, key, layer) DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, q, docID, key, string(layer), text); err != nil {
		return fmt.Errorf("sqlite store: write %s/%s: %w", layer, key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteLayer(ctx context.Context, docID, key string, layer section.Layer) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM layers WHERE doc_id = ? AND key = ? AND layer = ?",
		docID, key, string(layer)); err != nil {
		return fmt.Errorf("sqlite store: delete %s/%s: %w", layer, key, err)
	}
	return nil
}

func (s *SQLiteStore) WriteDiagnostic(ctx context.Context, docID string, d Diagnostic) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("sqlite store: encode diagnostic: %w", err)
	}
	const q = `
		INSERT INTO diagnostics (doc_id, key, layer, body, written_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_id, key, layer) DO UPDATE SET body = excluded.body, written_at = excluded.written_at`
	if _, err := s.db.ExecContext(ctx, q, docID, d.Key, string(d.Layer), string(body), d.WrittenAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("sqlite store: write diagnostic %s: %w", d.Key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteDiagnostic(ctx context.Context, docID, key string, layer section.Layer) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM diagnostics WHERE doc_id = ? AND key = ? AND layer = ?",
		docID, key, string(layer)); err != nil {
		return fmt.Errorf("sqlite store: delete diagnostic %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) ListDiagnostics(ctx context.Context, docID string) ([]Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM diagnostics WHERE doc_id = ? ORDER BY key, layer", docID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list diagnostics: %w", err)
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlite store: scan diagnostic: %w", err)
		}
		var d Diagnostic
		if err := json.Unmarshal([]byte(body), &d); err != nil {
			return nil, fmt.Errorf("sqlite store: decode diagnostic: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc_id FROM manifests ORDER BY doc_id")
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list documents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite store: scan document: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
