package kidneymatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kidney-match-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite match store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanMatch scans a row into a KidneyMatch.
func scanMatch(s scanner) (*domain.KidneyMatch, error) {
	m := &domain.KidneyMatch{}
	var (
		score     sql.NullInt64
		status    string
		matchedAt sql.NullTime
	)

	err := s.Scan(&m.ID, &m.DonorID, &m.PatientID, &score, &status, &matchedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	m.Status = domain.MatchStatus(status)
	if score.Valid {
		v := int(score.Int64)
		m.CompatibilityScore = &v
	}
	if matchedAt.Valid {
		at := matchedAt.Time
		m.MatchedAt = &at
	}
	return m, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kidney_matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		donor_id INTEGER NOT NULL,
		patient_id INTEGER NOT NULL,
		compatibility_score INTEGER,
		status TEXT NOT NULL DEFAULT 'PENDING',
		matched_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(donor_id, patient_id)
	);

	CREATE INDEX IF NOT EXISTS idx_kidney_matches_status ON kidney_matches(status);
	CREATE INDEX IF NOT EXISTS idx_kidney_matches_patient ON kidney_matches(patient_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Create inserts a new record.
func (s *SQLiteStore) Create(ctx context.Context, match *domain.KidneyMatch) error {
	if err := match.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO kidney_matches (
			donor_id, patient_id, compatibility_score, status, matched_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		match.DonorID,
		match.PatientID,
		nullableScore(match.CompatibilityScore),
		string(match.Status),
		nullableTime(match.MatchedAt),
		now,
		now,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return fmt.Errorf("match for donor %d and patient %d: %w", match.DonorID, match.PatientID, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	match.ID = id
	match.CreatedAt = now
	match.UpdatedAt = now

	return nil
}

// Get retrieves a record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*domain.KidneyMatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM kidney_matches WHERE id = ?`, id)

	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("kidney match %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return m, nil
}

// List returns records matching filter with pagination.
func (s *SQLiteStore) List(ctx context.Context, filter Filter, limit, offset int) ([]*domain.KidneyMatch, error) {
	limit, offset = normalizePage(limit, offset)
	where, args := filter.where(questionMark)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM kidney_matches`+where+` ORDER BY id ASC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.KidneyMatch, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// Count returns the number of records matching filter.
func (s *SQLiteStore) Count(ctx context.Context, filter Filter) (int64, error) {
	where, args := filter.where(questionMark)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kidney_matches"+where, args...).Scan(&count)
	return count, err
}

// Update applies a partial update.
func (s *SQLiteStore) Update(ctx context.Context, id int64, update Update) (*domain.KidneyMatch, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return m, nil
	}
	if err := update.Apply(m); err != nil {
		return nil, err
	}

	m.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE kidney_matches SET
			compatibility_score = ?,
			status = ?,
			matched_at = ?,
			updated_at = ?
		WHERE id = ?
	`,
		nullableScore(m.CompatibilityScore),
		string(m.Status),
		nullableTime(m.MatchedAt),
		m.UpdatedAt,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update: %w", err)
	}
	return m, nil
}

// Delete removes a record by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM kidney_matches WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("kidney match %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ExportJSON exports all records to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, Filter{}, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list matches: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports records from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (int, int, error) {
	return importMatches(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isSQLiteUnique(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableScore(score *int) any {
	if score == nil {
		return nil
	}
	return *score
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func writeExport(writer io.Writer, matches []*domain.KidneyMatch) error {
	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(matches),
		Matches:    matches,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importMatches creates every exported record whose donor/patient pair is not yet stored.
func importMatches(ctx context.Context, store Store, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, m := range export.Matches {
		if m == nil {
			continue
		}
		m.ID = 0
		if err := store.Create(ctx, m); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				skipped++
				continue
			}
			return imported, skipped, fmt.Errorf("failed to import match for donor %d and patient %d: %w",
				m.DonorID, m.PatientID, err)
		}
		imported++
	}

	return imported, skipped, nil
}
