package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/thesislens/internal/models"
)

var sqliteIDPattern = regexp.MustCompile(`^[A-Za-z0-9:_-]{1,128}$`)

// SQLiteStore keeps theses in a local SQLite database. It serves the same reads as
// MongoStore and also accepts imports.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL: %w", ErrStoreUnavailable, err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS theses (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		author_name TEXT NOT NULL DEFAULT '',
		abstract TEXT NOT NULL DEFAULT '',
		full_text TEXT NOT NULL DEFAULT '',
		file_path TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CountDocuments returns the total number of theses.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM theses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return count, nil
}

// ListDocuments returns all theses in insertion order.
func (s *SQLiteStore) ListDocuments(ctx context.Context, includeFullText bool) ([]*models.ThesisDocument, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns(includeFullText)+` FROM theses ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var docs []*models.ThesisDocument
	for rows.Next() {
		var doc models.ThesisDocument
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Author, &doc.Abstract, &doc.FullText); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return docs, nil
}

// GetDocument returns a thesis by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string, includeFullText bool) (*models.ThesisDocument, error) {
	if err := s.ValidateID(id); err != nil {
		return nil, err
	}
	var doc models.ThesisDocument
	err := s.db.QueryRowContext(ctx, selectColumns(includeFullText)+` FROM theses WHERE id = ?`, id).
		Scan(&doc.ID, &doc.Title, &doc.Author, &doc.Abstract, &doc.FullText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return &doc, nil
}

// ValidateID accepts 1-128 characters of letters, digits, ':', '_' and '-'.
func (s *SQLiteStore) ValidateID(id string) error {
	if !sqliteIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// UpsertDocument inserts doc or replaces the thesis with the same id, keeping its
// original position in list order.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *models.ThesisDocument) error {
	return s.BatchUpsertDocuments(ctx, []*models.ThesisDocument{doc})
}

// BatchUpsertDocuments upserts docs in one transaction.
func (s *SQLiteStore) BatchUpsertDocuments(ctx context.Context, docs []*models.ThesisDocument) error {
	for _, doc := range docs {
		if err := s.ValidateID(doc.ID); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO theses (id, title, author_name, abstract, full_text, file_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   author_name = excluded.author_name,
		   abstract = excluded.abstract,
		   full_text = excluded.full_text,
		   file_path = excluded.file_path,
		   updated_at = excluded.updated_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Title, doc.Author, doc.Abstract, doc.FullText, doc.FilePath, now, now); err != nil {
			return fmt.Errorf("upsert %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// Ping checks that the database can still be used.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func selectColumns(includeFullText bool) string {
	if includeFullText {
		return `SELECT id, title, author_name, abstract, full_text`
	}
	return `SELECT id, title, author_name, abstract, ''`
}
