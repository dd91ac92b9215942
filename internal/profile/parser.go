// Package profile converts loosely typed donor and patient attributes into the canonical
// typed profiles consumed by the compatibility scorer.
//
// Input arrives from JSON bodies, query strings, YAML files and database rows, so the same
// attribute may be a number, a numeric string, a JSON-encoded array or a comma separated
// list. Parsing never fails: values that cannot be interpreted are treated as absent.
package profile

import (
	"encoding/json"
	"math"
	"net/url"
	"strings"

	"github.com/spf13/cast"

	"github.com/kidney-match-server/internal/domain"
)

// ParseDonorProfile builds a DonorProfile from a loose attribute map.
func ParseDonorProfile(raw map[string]any) domain.DonorProfile {
	return domain.DonorProfile{
		BloodGroup:      String(raw["blood_group"]),
		RhFactor:        String(raw["rh_factor"]),
		Crossmatch:      domain.ParseCrossmatch(String(raw["crossmatch_result"])),
		HLATyping:       NormalizeHLA(raw["hla_typing"]),
		GFR:             Float(raw["gfr"]),
		CreatinineLevel: Float(raw["creatinine_level"]),
		Age:             Float(raw["age"]),
		BMI:             Float(raw["bmi"]),
		Diabetes:        Bool(raw["diabetes"]),
		Hypertension:    Bool(raw["hypertension"]),
		Location:        String(raw["location"]),
		MedicalHistory:  String(raw["medical_history"]),
	}
}

// ParsePatientProfile builds a PatientProfile from a loose attribute map. Creatinine is
// read from current_creatinine first, then creatinine_level; diagnosis falls back to
// medical_history.
func ParsePatientProfile(raw map[string]any) domain.PatientProfile {
	creatinine := Float(raw["current_creatinine"])
	if creatinine == nil {
		creatinine = Float(raw["creatinine_level"])
	}
	diagnosis := String(raw["diagnosis"])
	if diagnosis == "" {
		diagnosis = String(raw["medical_history"])
	}

	return domain.PatientProfile{
		BloodGroup:         String(raw["blood_group"]),
		RhFactor:           String(raw["rh_factor"]),
		Crossmatch:         domain.ParseCrossmatch(String(raw["crossmatch_result"])),
		HLATyping:          NormalizeHLA(raw["hla_typing"]),
		PRAScore:           Float(raw["pra_score"]),
		GFR:                Float(raw["gfr"]),
		CreatinineLevel:    creatinine,
		Age:                Float(raw["age"]),
		BMI:                Float(raw["bmi"]),
		Diabetes:           Bool(raw["diabetes"]),
		Hypertension:       Bool(raw["hypertension"]),
		PreviousTransplant: Bool(raw["previous_transplant"]),
		Diagnosis:          diagnosis,
		Location:           String(raw["location"]),
	}
}

// patientQueryKeys are the query parameters accepted as ad-hoc patient overrides.
var patientQueryKeys = []string{
	"blood_group",
	"rh_factor",
	"crossmatch_result",
	"pra_score",
	"age",
	"bmi",
	"medical_history",
	"previous_transplant",
	"location",
}

// PatientFromQuery builds the patient context from request query parameters. HLA typing may
// be given once (JSON array or comma list) or repeated as hla_typing / hla_typing[].
func PatientFromQuery(q url.Values) domain.PatientProfile {
	raw := make(map[string]any, len(patientQueryKeys)+1)
	for _, key := range patientQueryKeys {
		if q.Has(key) {
			raw[key] = q.Get(key)
		}
	}

	switch {
	case len(q["hla_typing[]"]) > 0:
		raw["hla_typing"] = q["hla_typing[]"]
	case len(q["hla_typing"]) > 1:
		raw["hla_typing"] = q["hla_typing"]
	case q.Has("hla_typing"):
		raw["hla_typing"] = q.Get("hla_typing")
	}

	return ParsePatientProfile(raw)
}

// NormalizeHLA converts an HLA typing value into upper-cased, trimmed antigen markers with
// empty entries dropped. Lists are taken element by element; a string is decoded as a JSON
// array when possible and split on commas otherwise. Any other value yields an empty set.
func NormalizeHLA(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return []string{}
	case []string:
		return normalizeMarkers(v)
	case []any:
		markers := make([]string, 0, len(v))
		for _, item := range v {
			if s, err := cast.ToStringE(item); err == nil {
				markers = append(markers, s)
			}
		}
		return normalizeMarkers(markers)
	case []byte:
		return NormalizeHLA(string(v))
	case string:
		var decoded []any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			return NormalizeHLA(decoded)
		}
		return normalizeMarkers(strings.Split(v, ","))
	default:
		return []string{}
	}
}

// Float interprets a lab or demographic value. Numbers and numeric strings are accepted;
// booleans, non-finite values and anything unparsable are absent.
func Float(raw any) *float64 {
	switch v := raw.(type) {
	case nil, bool:
		return nil
	case *float64:
		return v
	case string:
		raw = strings.TrimSpace(v)
		if raw == "" {
			return nil
		}
	case []byte:
		return Float(string(v))
	}

	f, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Bool interprets a flag. Besides booleans, non-zero numbers and the strings
// 1, true, on and yes (any case) are true.
func Bool(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes":
			return true
		}
		return false
	case []byte:
		return Bool(string(v))
	}

	f, err := cast.ToFloat64E(raw)
	return err == nil && f != 0
}

// String renders a scalar attribute as trimmed text. Non-scalar values are empty.
func String(raw any) string {
	if raw == nil {
		return ""
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func normalizeMarkers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, marker := range in {
		if m := strings.ToUpper(strings.TrimSpace(marker)); m != "" {
			out = append(out, m)
		}
	}
	return out
}
