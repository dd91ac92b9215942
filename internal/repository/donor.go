package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/profile"
)

// DonorRepository reads donor rows joined with their contact details
type DonorRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewDonorRepository creates a new donor repository
func NewDonorRepository(db *pgxpool.Pool, logger *logrus.Logger) *DonorRepository {
	return &DonorRepository{
		db:  db,
		log: logger,
	}
}

const donorColumns = `
	d.id, d.full_name, d.donor_type, d.availability,
	COALESCE(d.location, ''),
	COALESCE(c.location, c.city, d.location, ''),
	COALESCE(c.phone, ''),
	d.blood_group, d.rh_factor, d.crossmatch_result, d.hla_typing::text,
	d.gfr, d.creatinine_level, d.age, d.bmi,
	d.diabetes, d.hypertension, d.medical_history`

// kidneyLocationClause matches the donor row location, contact location or contact city.
const kidneyLocationClause = `(d.location ILIKE $2 OR c.location ILIKE $2 OR c.city ILIKE $2)`

// bloodLocationClause matches the donor row location or contact city.
const bloodLocationClause = `(d.location ILIKE $2 OR c.city ILIKE $2)`

// ListAvailable returns one page of available donors of the given type, newest first,
// together with the total number of matching rows.
func (r *DonorRepository) ListAvailable(ctx context.Context, filter domain.DonorFilter) ([]domain.Donor, int, error) {
	donorType := filter.DonorType
	if donorType == "" {
		donorType = domain.DonorTypeKidney
	}

	where, args := donorWhere(donorType, filter.Location, kidneyLocationClause)

	total, err := r.count(ctx, where, args)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"donor_type": donorType,
			"location":   filter.Location,
			"error":      err,
		}).Error("Failed to count available donors")
		return nil, 0, fmt.Errorf("counting available donors: %w", err)
	}

	query := `SELECT ` + donorColumns + `
		FROM donors d
		LEFT JOIN contacts c ON c.user_id = d.user_id
		WHERE ` + where + `
		ORDER BY d.id DESC
		LIMIT $` + fmt.Sprint(len(args)+1) + ` OFFSET $` + fmt.Sprint(len(args)+2)

	rows, err := r.db.Query(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"donor_type": donorType,
			"error":      err,
		}).Error("Failed to list available donors")
		return nil, 0, fmt.Errorf("listing available donors: %w", err)
	}
	defer rows.Close()

	donors := make([]domain.Donor, 0, filter.Limit)
	for rows.Next() {
		donor, err := scanDonor(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning donor row: %w", err)
		}
		donors = append(donors, *donor)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating donor rows: %w", err)
	}

	return donors, total, nil
}

// ListBloodDonors returns one page of the public blood bank listing.
func (r *DonorRepository) ListBloodDonors(ctx context.Context, filter domain.DonorFilter) ([]domain.BloodDonor, int, error) {
	where, args := donorWhere(domain.DonorTypeBlood, filter.Location, bloodLocationClause)

	total, err := r.count(ctx, where, args)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"location": filter.Location,
			"error":    err,
		}).Error("Failed to count blood donors")
		return nil, 0, fmt.Errorf("counting blood donors: %w", err)
	}

	query := `SELECT d.id, d.full_name,
			COALESCE(c.city, d.location, ''),
			COALESCE(d.blood_group, ''), COALESCE(d.rh_factor, ''), COALESCE(c.phone, '')
		FROM donors d
		LEFT JOIN contacts c ON c.user_id = d.user_id
		WHERE ` + where + `
		ORDER BY d.id DESC
		LIMIT $` + fmt.Sprint(len(args)+1) + ` OFFSET $` + fmt.Sprint(len(args)+2)

	rows, err := r.db.Query(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		r.log.WithField("error", err).Error("Failed to list blood donors")
		return nil, 0, fmt.Errorf("listing blood donors: %w", err)
	}
	defer rows.Close()

	donors := make([]domain.BloodDonor, 0, filter.Limit)
	for rows.Next() {
		var d domain.BloodDonor
		if err := rows.Scan(&d.ID, &d.FullName, &d.Location, &d.BloodGroup, &d.RhFactor, &d.Phone); err != nil {
			return nil, 0, fmt.Errorf("scanning blood donor row: %w", err)
		}
		donors = append(donors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating blood donor rows: %w", err)
	}

	return donors, total, nil
}

// GetByID retrieves a donor by its ID regardless of availability
func (r *DonorRepository) GetByID(ctx context.Context, id int64) (*domain.Donor, error) {
	query := `SELECT ` + donorColumns + `
		FROM donors d
		LEFT JOIN contacts c ON c.user_id = d.user_id
		WHERE d.id = $1`

	donor, err := scanDonor(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("donor not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"donor_id": id,
			"error":    err,
		}).Error("Failed to get donor by ID")
		return nil, fmt.Errorf("getting donor by ID: %w", err)
	}

	return donor, nil
}

func (r *DonorRepository) count(ctx context.Context, where string, args []any) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*)
		FROM donors d
		LEFT JOIN contacts c ON c.user_id = d.user_id
		WHERE `+where, args...).Scan(&total)
	return total, err
}

// donorWhere builds the shared availability/type filter. The location clause may only
// reference $2.
func donorWhere(donorType domain.DonorType, location, locationClause string) (string, []any) {
	where := `d.availability = TRUE AND d.donor_type = $1`
	args := []any{string(donorType)}

	if loc := strings.TrimSpace(location); loc != "" {
		where += ` AND ` + locationClause
		args = append(args, "%"+escapeLike(loc)+"%")
	}
	return where, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanDonor(row pgx.Row) (*domain.Donor, error) {
	var (
		d                                     domain.Donor
		donorType                             string
		bloodGroup, rhFactor, crossmatch, hla *string
		medicalHistory                        *string
	)

	err := row.Scan(
		&d.ID,
		&d.FullName,
		&donorType,
		&d.Availability,
		&d.DonorLocation,
		&d.Location,
		&d.Phone,
		&bloodGroup,
		&rhFactor,
		&crossmatch,
		&hla,
		&d.Profile.GFR,
		&d.Profile.CreatinineLevel,
		&d.Profile.Age,
		&d.Profile.BMI,
		&d.Profile.Diabetes,
		&d.Profile.Hypertension,
		&medicalHistory,
	)
	if err != nil {
		return nil, err
	}

	d.DonorType = domain.DonorType(donorType)
	d.Profile.BloodGroup = deref(bloodGroup)
	d.Profile.RhFactor = deref(rhFactor)
	d.Profile.Crossmatch = domain.ParseCrossmatch(deref(crossmatch))
	d.Profile.MedicalHistory = deref(medicalHistory)
	d.Profile.Location = d.Location
	if hla != nil {
		d.Profile.HLATyping = profile.NormalizeHLA(*hla)
	} else {
		d.Profile.HLATyping = []string{}
	}

	return &d, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
