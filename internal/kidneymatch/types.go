// Package kidneymatch stores clinician decisions on proposed donor-patient kidney pairs.
//
// A record is created when a clinician shortlists a donor for a patient and moves through
// PENDING, APPROVED or REJECTED, and finally COMPLETED. Scores on records are the
// clinician-entered 0..100 compatibility, independent of the automated evaluation.
package kidneymatch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kidney-match-server/internal/domain"
)

// DefaultPageSize is the listing page size when the caller does not specify one.
const DefaultPageSize = 25

// Filter narrows a listing. Zero values are ignored.
type Filter struct {
	DonorID   int64
	PatientID int64
	Status    domain.MatchStatus
}

// Update is a partial update. Nil fields are left unchanged.
type Update struct {
	CompatibilityScore *int
	Status             *domain.MatchStatus
	MatchedAt          *time.Time
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.CompatibilityScore == nil && u.Status == nil && u.MatchedAt == nil
}

// Apply copies the set fields onto m and validates the result.
func (u Update) Apply(m *domain.KidneyMatch) error {
	if u.CompatibilityScore != nil {
		score := *u.CompatibilityScore
		m.CompatibilityScore = &score
	}
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.MatchedAt != nil {
		at := *u.MatchedAt
		m.MatchedAt = &at
	}
	return m.Validate()
}

// Store defines the interface for kidney match storage operations.
type Store interface {
	// Create inserts a new record. A second record for the same donor and patient fails
	// with domain.ErrDuplicate.
	Create(ctx context.Context, match *domain.KidneyMatch) error

	// Get returns a record by ID or domain.ErrNotFound.
	Get(ctx context.Context, id int64) (*domain.KidneyMatch, error)

	// List returns records matching filter in ID order.
	List(ctx context.Context, filter Filter, limit, offset int) ([]*domain.KidneyMatch, error)

	// Count returns the number of records matching filter.
	Count(ctx context.Context, filter Filter) (int64, error)

	// Update applies a partial update and returns the stored record.
	Update(ctx context.Context, id int64, update Update) (*domain.KidneyMatch, error)

	// Delete removes a record or returns domain.ErrNotFound.
	Delete(ctx context.Context, id int64) error

	// ExportJSON writes every record to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON loads records from reader, skipping pairs that already exist.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string                `json:"version"`
	ExportedAt time.Time             `json:"exported_at"`
	Count      int                   `json:"count"`
	Matches    []*domain.KidneyMatch `json:"matches"`
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

const selectColumns = `id, donor_id, patient_id, compatibility_score, status, matched_at, created_at, updated_at`

// placeholder renders the n-th (1-based) bind parameter for a driver.
type placeholder func(n int) string

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// where renders the filter as a WHERE clause (empty when unfiltered) and its arguments.
func (f Filter) where(ph placeholder) (string, []any) {
	var clauses []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, column+" = "+ph(len(args)))
	}

	if f.DonorID > 0 {
		add("donor_id", f.DonorID)
	}
	if f.PatientID > 0 {
		add("patient_id", f.PatientID)
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}
