package domain

import (
	"fmt"
	"time"
)

// Donor is a registered donor row as returned by the donor source.
//
// DonorLocation is the location stored on the donor row itself; Location is the
// contact-resolved one (contact location, then contact city, then donor location).
type Donor struct {
	ID            int64        `json:"id"`
	FullName      string       `json:"full_name"`
	DonorType     DonorType    `json:"donor_type"`
	Availability  bool         `json:"availability"`
	DonorLocation string       `json:"donor_location,omitempty"`
	Location      string       `json:"location,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Profile       DonorProfile `json:"-"`
}

// Patient is a registered patient row.
type Patient struct {
	ID       int64          `json:"id"`
	UserID   string         `json:"user_id,omitempty"`
	FullName string         `json:"full_name"`
	Profile  PatientProfile `json:"-"`
}

// BloodDonor is the limited projection exposed by the public blood bank listing.
type BloodDonor struct {
	ID         int64  `json:"id"`
	FullName   string `json:"full_name"`
	Location   string `json:"location,omitempty"`
	BloodGroup string `json:"blood_group,omitempty"`
	RhFactor   string `json:"rh_factor,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// DonorFilter narrows the donor listing.
type DonorFilter struct {
	DonorType DonorType
	Location  string
	Limit     int
	Offset    int
}

// MatchStatus is the clinical workflow state of a proposed donor-patient match.
type MatchStatus string

const (
	MatchPending   MatchStatus = "PENDING"
	MatchApproved  MatchStatus = "APPROVED"
	MatchRejected  MatchStatus = "REJECTED"
	MatchCompleted MatchStatus = "COMPLETED"
)

// IsValid validates the match status.
func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchPending, MatchApproved, MatchRejected, MatchCompleted:
		return true
	default:
		return false
	}
}

// KidneyMatch records a clinician's decision about a donor-patient pair.
type KidneyMatch struct {
	ID                 int64       `json:"id"`
	DonorID            int64       `json:"donor_id"`
	PatientID          int64       `json:"patient_id"`
	CompatibilityScore *int        `json:"compatibility_score"`
	Status             MatchStatus `json:"status"`
	MatchedAt          *time.Time  `json:"matched_at"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Validate checks the record before it is persisted.
func (m *KidneyMatch) Validate() error {
	if m.DonorID <= 0 {
		return NewValidationError("donor_id", "donor_id is required", m.DonorID)
	}
	if m.PatientID <= 0 {
		return NewValidationError("patient_id", "patient_id is required", m.PatientID)
	}
	if m.CompatibilityScore != nil && (*m.CompatibilityScore < 0 || *m.CompatibilityScore > 100) {
		return NewValidationError("compatibility_score", "must be between 0 and 100", *m.CompatibilityScore)
	}
	if m.Status == "" {
		m.Status = MatchPending
	}
	if !m.Status.IsValid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", m.Status), m.Status)
	}
	return nil
}
