package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/profile"
)

// PatientRepository resolves patient rows
type PatientRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(db *pgxpool.Pool, logger *logrus.Logger) *PatientRepository {
	return &PatientRepository{
		db:  db,
		log: logger,
	}
}

const patientSelect = `
	SELECT id, COALESCE(user_id, ''), full_name,
		blood_group, rh_factor, crossmatch_result, hla_typing::text,
		pra_score, current_creatinine, gfr, age, bmi,
		diabetes, hypertension, previous_transplant, diagnosis, location
	FROM patients`

// GetByUserID retrieves the patient registered for an authenticated user
func (r *PatientRepository) GetByUserID(ctx context.Context, userID string) (*domain.Patient, error) {
	patient, err := scanPatient(r.db.QueryRow(ctx, patientSelect+` WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("patient not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to get patient by user ID")
		return nil, fmt.Errorf("getting patient by user ID: %w", err)
	}
	return patient, nil
}

// GetByID retrieves a patient by its ID
func (r *PatientRepository) GetByID(ctx context.Context, id int64) (*domain.Patient, error) {
	patient, err := scanPatient(r.db.QueryRow(ctx, patientSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("patient not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"patient_id": id,
			"error":      err,
		}).Error("Failed to get patient by ID")
		return nil, fmt.Errorf("getting patient by ID: %w", err)
	}
	return patient, nil
}

func scanPatient(row pgx.Row) (*domain.Patient, error) {
	var (
		p                                     domain.Patient
		bloodGroup, rhFactor, crossmatch, hla *string
		diagnosis, location                   *string
	)

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.FullName,
		&bloodGroup,
		&rhFactor,
		&crossmatch,
		&hla,
		&p.Profile.PRAScore,
		&p.Profile.CreatinineLevel,
		&p.Profile.GFR,
		&p.Profile.Age,
		&p.Profile.BMI,
		&p.Profile.Diabetes,
		&p.Profile.Hypertension,
		&p.Profile.PreviousTransplant,
		&diagnosis,
		&location,
	)
	if err != nil {
		return nil, err
	}

	p.Profile.BloodGroup = deref(bloodGroup)
	p.Profile.RhFactor = deref(rhFactor)
	p.Profile.Crossmatch = domain.ParseCrossmatch(deref(crossmatch))
	p.Profile.Diagnosis = deref(diagnosis)
	p.Profile.Location = deref(location)
	if hla != nil {
		p.Profile.HLATyping = profile.NormalizeHLA(*hla)
	} else {
		p.Profile.HLATyping = []string{}
	}

	return &p, nil
}
