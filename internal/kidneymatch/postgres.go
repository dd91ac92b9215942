package kidneymatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lib/pq"

	"github.com/kidney-match-server/internal/domain"
)

// PostgreSQL error codes the store maps onto domain errors.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL match store.
// It expects the kidney_matches table to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL match store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Create inserts a new record.
func (s *PostgresStore) Create(ctx context.Context, match *domain.KidneyMatch) error {
	if err := match.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO kidney_matches (
			donor_id, patient_id, compatibility_score, status, matched_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`,
		match.DonorID,
		match.PatientID,
		nullableScore(match.CompatibilityScore),
		string(match.Status),
		nullableTime(match.MatchedAt),
		now,
		now,
	).Scan(&match.ID, &match.CreatedAt, &match.UpdatedAt)
	if err != nil {
		return mapPQError(err, match)
	}

	return nil
}

// Get retrieves a record by ID.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*domain.KidneyMatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM kidney_matches WHERE id = $1`, id)

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
func (s *PostgresStore) List(ctx context.Context, filter Filter, limit, offset int) ([]*domain.KidneyMatch, error) {
	limit, offset = normalizePage(limit, offset)
	where, args := filter.where(dollar)

	query := fmt.Sprintf(`SELECT %s FROM kidney_matches%s ORDER BY id ASC LIMIT $%d OFFSET $%d`,
		selectColumns, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
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
func (s *PostgresStore) Count(ctx context.Context, filter Filter) (int64, error) {
	where, args := filter.where(dollar)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kidney_matches"+where, args...).Scan(&count)
	return count, err
}

// Update applies a partial update in a single statement. Unset fields keep their value.
func (s *PostgresStore) Update(ctx context.Context, id int64, update Update) (*domain.KidneyMatch, error) {
	if update.IsEmpty() {
		return s.Get(ctx, id)
	}

	probe := domain.KidneyMatch{DonorID: 1, PatientID: 1}
	if err := update.Apply(&probe); err != nil {
		return nil, err
	}

	var status any
	if update.Status != nil {
		status = string(*update.Status)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE kidney_matches SET
			compatibility_score = COALESCE($1, compatibility_score),
			status = COALESCE($2, status),
			matched_at = COALESCE($3, matched_at),
			updated_at = $4
		WHERE id = $5
		RETURNING `+selectColumns,
		nullableScore(update.CompatibilityScore),
		status,
		nullableTime(update.MatchedAt),
		time.Now().UTC(),
		id,
	)

	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("kidney match %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update: %w", err)
	}
	return m, nil
}

// Delete removes a record by ID.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM kidney_matches WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("kidney match %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ExportJSON exports all records to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, Filter{}, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list matches: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports records from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (int, int, error) {
	return importMatches(ctx, s, reader)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func mapPQError(err error, match *domain.KidneyMatch) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return fmt.Errorf("match for donor %d and patient %d: %w", match.DonorID, match.PatientID, domain.ErrDuplicate)
		case pqForeignKeyViolation:
			return domain.NewValidationError("donor_id", "donor or patient does not exist", match.DonorID)
		}
	}
	return fmt.Errorf("failed to insert: %w", err)
}
