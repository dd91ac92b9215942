package profile

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidney-match-server/internal/domain"
)

func TestNormalizeHLA(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected []string
	}{
		{"Nil", nil, []string{}},
		{"String slice", []string{" a1", "B8 ", ""}, []string{"A1", "B8"}},
		{"Any slice", []any{"a2", 7, "  "}, []string{"A2", "7"}},
		{"JSON array string", `["a1","dr3"]`, []string{"A1", "DR3"}},
		{"JSON array bytes", []byte(`["B44"]`), []string{"B44"}},
		{"Comma separated", "a1, b8 ,,dr4", []string{"A1", "B8", "DR4"}},
		{"Single marker", "A1", []string{"A1"}},
		{"Empty string", "", []string{}},
		{"Number", 42, []string{}},
		{"Map", map[string]any{"a": "A1"}, []string{}},
		{"Nested objects skipped", []any{map[string]any{"x": 1}, "A1"}, []string{"A1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeHLA(tt.input))
		})
	}
}

func TestFloat(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected *float64
	}{
		{"Float", 85.5, ptr(85.5)},
		{"Int", 60, ptr(60)},
		{"Numeric string", " 1.3 ", ptr(1.3)},
		{"JSON number", json.Number("12"), ptr(12)},
		{"Empty string", "", nil},
		{"Text", "high", nil},
		{"Bool", true, nil},
		{"NaN string", "NaN", nil},
		{"Nil", nil, nil},
		{"Slice", []any{1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Float(tt.input)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.expected, *got, 1e-9)
		})
	}
}

func TestBool(t *testing.T) {
	tests := []struct {
		input    any
		expected bool
	}{
		{true, true},
		{false, false},
		{"1", true},
		{"TRUE", true},
		{" on ", true},
		{"yes", true},
		{"0", false},
		{"no", false},
		{"off", false},
		{"", false},
		{1, true},
		{0, false},
		{1.0, true},
		{nil, false},
		{[]any{}, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Bool(tt.input), "input %#v", tt.input)
	}
}

func TestParseDonorProfile(t *testing.T) {
	donor := ParseDonorProfile(map[string]any{
		"blood_group":       " A+ ",
		"rh_factor":         "+",
		"crossmatch_result": "negative",
		"hla_typing":        `["A1","B8"]`,
		"gfr":               "90",
		"creatinine_level":  1.1,
		"age":               35,
		"bmi":               "not measured",
		"diabetes":          "0",
		"hypertension":      "yes",
		"location":          "Colombo",
	})

	assert.Equal(t, "A+", donor.BloodGroup)
	assert.Equal(t, "+", donor.RhFactor)
	assert.Equal(t, domain.CrossmatchNegative, donor.Crossmatch)
	assert.Equal(t, []string{"A1", "B8"}, donor.HLATyping)
	require.NotNil(t, donor.GFR)
	assert.Equal(t, 90.0, *donor.GFR)
	require.NotNil(t, donor.CreatinineLevel)
	assert.Equal(t, 1.1, *donor.CreatinineLevel)
	require.NotNil(t, donor.Age)
	assert.Equal(t, 35.0, *donor.Age)
	assert.Nil(t, donor.BMI)
	assert.False(t, donor.Diabetes)
	assert.True(t, donor.Hypertension)
	assert.Equal(t, "Colombo", donor.Location)
}

func TestParseDonorProfile_Empty(t *testing.T) {
	donor := ParseDonorProfile(nil)

	assert.Equal(t, domain.CrossmatchUnknown, donor.Crossmatch)
	assert.Empty(t, donor.HLATyping)
	assert.Nil(t, donor.GFR)
	assert.Nil(t, donor.CreatinineLevel)
	assert.False(t, donor.Diabetes)
}

func TestParsePatientProfile(t *testing.T) {
	t.Run("Current creatinine preferred", func(t *testing.T) {
		patient := ParsePatientProfile(map[string]any{
			"current_creatinine":  "2.4",
			"creatinine_level":    "1.0",
			"pra_score":           "85",
			"previous_transplant": 1,
			"diagnosis":           "ESRD",
			"medical_history":     "ignored",
		})

		require.NotNil(t, patient.CreatinineLevel)
		assert.Equal(t, 2.4, *patient.CreatinineLevel)
		require.NotNil(t, patient.PRAScore)
		assert.Equal(t, 85.0, *patient.PRAScore)
		assert.True(t, patient.PreviousTransplant)
		assert.Equal(t, "ESRD", patient.Diagnosis)
	})

	t.Run("Fallbacks", func(t *testing.T) {
		patient := ParsePatientProfile(map[string]any{
			"creatinine_level":  1.0,
			"medical_history":   "Polycystic kidney disease",
			"crossmatch_result": "pending",
		})

		require.NotNil(t, patient.CreatinineLevel)
		assert.Equal(t, 1.0, *patient.CreatinineLevel)
		assert.Equal(t, "Polycystic kidney disease", patient.Diagnosis)
		assert.Equal(t, domain.CrossmatchUnknown, patient.Crossmatch)
		assert.Nil(t, patient.PRAScore)
	})
}

func TestPatientFromQuery(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		hla  []string
	}{
		{"Comma list", "hla_typing=A1,B8", []string{"A1", "B8"}},
		{"JSON array", "hla_typing=" + url.QueryEscape(`["a1","dr4"]`), []string{"A1", "DR4"}},
		{"Repeated key", "hla_typing=A1&hla_typing=B8", []string{"A1", "B8"}},
		{"Bracket key", "hla_typing[]=A2&hla_typing[]=DR3", []string{"A2", "DR3"}},
		{"Absent", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.hla, PatientFromQuery(q).HLATyping)
		})
	}

	q := url.Values{}
	q.Set("blood_group", "AB+")
	q.Set("pra_score", "12.5")
	q.Set("crossmatch_result", "POSITIVE")
	q.Set("previous_transplant", "on")
	q.Set("medical_history", "CKD stage 5")
	q.Set("age", "")

	patient := PatientFromQuery(q)
	assert.Equal(t, "AB+", patient.BloodGroup)
	require.NotNil(t, patient.PRAScore)
	assert.Equal(t, 12.5, *patient.PRAScore)
	assert.Equal(t, domain.CrossmatchPositive, patient.Crossmatch)
	assert.True(t, patient.PreviousTransplant)
	assert.Equal(t, "CKD stage 5", patient.Diagnosis)
	assert.Nil(t, patient.Age)
}

func ptr(v float64) *float64 { return &v }
