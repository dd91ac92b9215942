// Package domain contains core business entities and types for kidney donor-patient
// compatibility matching.
//
// Profiles are flattened attribute bags describing the clinical and demographic state of a
// donor or patient at the time of a match request. Nothing here carries identity or
// lifecycle beyond a single evaluation, except the stored Donor, Patient and KidneyMatch rows.
package domain

import (
	"strings"
)

// Crossmatch is the laboratory crossmatch outcome recorded for a donor or patient.
type Crossmatch string

const (
	CrossmatchPositive Crossmatch = "POSITIVE"
	CrossmatchNegative Crossmatch = "NEGATIVE"
	CrossmatchUnknown  Crossmatch = "UNKNOWN"
)

// ParseCrossmatch maps free text onto the closed crossmatch enumeration.
// Empty or unrecognised values become CrossmatchUnknown.
func ParseCrossmatch(s string) Crossmatch {
	switch Crossmatch(strings.ToUpper(strings.TrimSpace(s))) {
	case CrossmatchPositive:
		return CrossmatchPositive
	case CrossmatchNegative:
		return CrossmatchNegative
	default:
		return CrossmatchUnknown
	}
}

// IsValid reports whether the value is one of the known crossmatch outcomes.
func (c Crossmatch) IsValid() bool {
	switch c {
	case CrossmatchPositive, CrossmatchNegative, CrossmatchUnknown:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the crossmatch outcome.
func (c Crossmatch) String() string {
	if c == "" {
		return string(CrossmatchUnknown)
	}
	return string(c)
}

// EvaluationStatus tells whether a donor was hard-rejected or fully scored.
type EvaluationStatus string

const (
	StatusRejected  EvaluationStatus = "REJECTED"
	StatusEvaluated EvaluationStatus = "EVALUATED"
)

// String returns the string representation of the status.
func (s EvaluationStatus) String() string {
	return string(s)
}

// RiskLevel is the clinical risk tier derived from the final score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low Risk"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
	RiskVeryHigh RiskLevel = "Very High"
)

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	return string(r)
}

// Action is the advisory recommendation paired with each risk tier.
type Action string

const (
	ActionRecommended Action = "Recommended"
	ActionAcceptable  Action = "Acceptable"
	ActionCaution     Action = "Caution"
	ActionAvoid       Action = "Avoid"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// DonorType is the kind of donation a donor registered for.
type DonorType string

const (
	DonorTypeKidney DonorType = "KIDNEY"
	DonorTypeBlood  DonorType = "BLOOD"
	DonorTypeEye    DonorType = "EYE"
)

// IsValid validates the donor type.
func (t DonorType) IsValid() bool {
	switch t {
	case DonorTypeKidney, DonorTypeBlood, DonorTypeEye:
		return true
	default:
		return false
	}
}

// DonorProfile holds the donor attributes that take part in compatibility scoring.
// Optional numeric markers are nil when the value is unknown.
type DonorProfile struct {
	BloodGroup      string     `json:"blood_group,omitempty" yaml:"blood_group"`
	RhFactor        string     `json:"rh_factor,omitempty" yaml:"rh_factor"`
	Crossmatch      Crossmatch `json:"crossmatch_result" yaml:"crossmatch_result"`
	HLATyping       []string   `json:"hla_typing" yaml:"hla_typing"`
	GFR             *float64   `json:"gfr,omitempty" yaml:"gfr"`
	CreatinineLevel *float64   `json:"creatinine_level,omitempty" yaml:"creatinine_level"`
	Age             *float64   `json:"age,omitempty" yaml:"age"`
	BMI             *float64   `json:"bmi,omitempty" yaml:"bmi"`
	Diabetes        bool       `json:"diabetes" yaml:"diabetes"`
	Hypertension    bool       `json:"hypertension" yaml:"hypertension"`
	Location        string     `json:"location,omitempty" yaml:"location"`
	MedicalHistory  string     `json:"medical_history,omitempty" yaml:"medical_history"`
}

// PatientProfile holds the recipient attributes used for scoring. It shares the
// overlapping donor fields and adds sensitization and transplant history.
type PatientProfile struct {
	BloodGroup         string     `json:"blood_group,omitempty" yaml:"blood_group"`
	RhFactor           string     `json:"rh_factor,omitempty" yaml:"rh_factor"`
	Crossmatch         Crossmatch `json:"crossmatch_result" yaml:"crossmatch_result"`
	HLATyping          []string   `json:"hla_typing" yaml:"hla_typing"`
	PRAScore           *float64   `json:"pra_score,omitempty" yaml:"pra_score"`
	GFR                *float64   `json:"gfr,omitempty" yaml:"gfr"`
	CreatinineLevel    *float64   `json:"creatinine_level,omitempty" yaml:"creatinine_level"`
	Age                *float64   `json:"age,omitempty" yaml:"age"`
	BMI                *float64   `json:"bmi,omitempty" yaml:"bmi"`
	Diabetes           bool       `json:"diabetes" yaml:"diabetes"`
	Hypertension       bool       `json:"hypertension" yaml:"hypertension"`
	PreviousTransplant bool       `json:"previous_transplant" yaml:"previous_transplant"`
	Diagnosis          string     `json:"diagnosis,omitempty" yaml:"diagnosis"`
	Location           string     `json:"location,omitempty" yaml:"location"`
}

// SubScores are the independently clamped components of the weighted final score.
type SubScores struct {
	HLAScore    float64 `json:"hla_score"`
	PRAScore    float64 `json:"pra_score"`
	KidneyScore float64 `json:"kidney_score"`
	AgeScore    float64 `json:"age_score"`
	BMIScore    float64 `json:"bmi_score"`
}

// EvaluationResult is the explainable verdict for one donor-patient pair.
type EvaluationResult struct {
	Status     EvaluationStatus `json:"status"`
	FinalScore float64          `json:"final_score"`
	RiskLevel  RiskLevel        `json:"risk_level"`
	Action     Action           `json:"action"`
	Reasons    []string         `json:"reasons"`
	Warnings   []string         `json:"warnings"`
	SubScores  SubScores        `json:"subscores"`
}

// IsRejected reports whether a hard rejection rule fired.
func (r EvaluationResult) IsRejected() bool {
	return r.Status == StatusRejected
}

// LogFields returns structured logging fields for audit trails.
func (r EvaluationResult) LogFields() map[string]any {
	return map[string]any{
		"status":      string(r.Status),
		"final_score": r.FinalScore,
		"risk_level":  string(r.RiskLevel),
		"action":      string(r.Action),
		"warnings":    len(r.Warnings),
	}
}
