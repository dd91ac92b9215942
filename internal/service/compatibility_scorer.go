package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kidney-match-server/internal/domain"
)

// Scoring weights for the combined score. They sum to 1.
const (
	weightHLA    = 0.40
	weightPRA    = 0.20
	weightKidney = 0.20
	weightAge    = 0.10
	weightBMI    = 0.10
)

// hlaNormalizer is the fixed denominator for HLA match counts. It does not depend on
// how many antigens were actually typed.
const hlaNormalizer = 6.0

const (
	neutralScore = 0.5

	praRejectThreshold  = 80.0
	praRejectMinHLA     = 4
	praPenaltyThreshold = 50.0
	praPenaltyMinHLA    = 3

	praPenalty                = 0.20
	previousTransplantPenalty = 0.10
	highRiskKidneyPenalty     = 0.10

	gfrHighRisk        = 60.0
	creatinineHighRisk = 1.3
)

// aboCompatibility lists, for each donor ABO group, the recipient groups it may donate to.
var aboCompatibility = map[string][]string{
	"O":  {"O", "A", "B", "AB"},
	"A":  {"A", "AB"},
	"B":  {"B", "AB"},
	"AB": {"AB"},
}

// pairContext carries values derived once per evaluation and shared by the rules.
type pairContext struct {
	donor         domain.DonorProfile
	patient       domain.PatientProfile
	donorBG       string
	patientBG     string
	donorABO      string
	patientABO    string
	hlaMatchCount int
	pra           float64
}

// RejectionRule is a hard rule that short-circuits scoring when it fires.
type RejectionRule struct {
	Code    string
	Name    string
	Warning string
	check   func(pc *pairContext) (reason string, fired bool)
}

// CompatibilityScorer classifies a donor against a patient using hard rejection rules,
// weighted sub-scores and penalty adjustments. It holds no mutable state and is safe for
// concurrent use.
type CompatibilityScorer struct {
	rules []RejectionRule
}

// NewCompatibilityScorer creates a scorer with the standard rejection rules in their
// evaluation order.
func NewCompatibilityScorer() *CompatibilityScorer {
	return &CompatibilityScorer{
		rules: []RejectionRule{
			{
				Code:    "ABO",
				Name:    "ABO incompatibility",
				Warning: "Hard rejection rule triggered: ABO incompatibility",
				check:   checkABO,
			},
			{
				Code:    "XM",
				Name:    "Positive crossmatch",
				Warning: "Hard rejection rule triggered: Positive crossmatch",
				check:   checkCrossmatch,
			},
			{
				Code:    "COMORBIDITY",
				Name:    "Donor comorbidity",
				Warning: "Medical safety hard rejection triggered",
				check:   checkComorbidity,
			},
			{
				Code:    "PRA",
				Name:    "High sensitization without sufficient HLA match",
				Warning: "Immunological hard requirement not satisfied",
				check:   checkSensitization,
			},
		},
	}
}

// Rules returns the hard rejection rules in evaluation order.
func (s *CompatibilityScorer) Rules() []RejectionRule {
	rules := make([]RejectionRule, len(s.rules))
	copy(rules, s.rules)
	return rules
}

// Evaluate scores one donor against one patient.
func (s *CompatibilityScorer) Evaluate(donor domain.DonorProfile, patient domain.PatientProfile) domain.EvaluationResult {
	pc := newPairContext(donor, patient)

	for _, rule := range s.rules {
		if reason, fired := rule.check(pc); fired {
			return rejected(reason, rule.Warning)
		}
	}

	warnings := make([]string, 0, 4)

	highRiskKidney := (donor.GFR != nil && *donor.GFR < gfrHighRisk) ||
		(donor.CreatinineLevel != nil && *donor.CreatinineLevel > creatinineHighRisk)
	if highRiskKidney {
		warnings = append(warnings, "Donor kidney function marked HIGH RISK (GFR<60 or Creatinine>1.3)")
	}

	sub := domain.SubScores{
		HLAScore:    clamp(float64(pc.hlaMatchCount) / hlaNormalizer),
		PRAScore:    clamp(1 - pc.pra/100.0),
		KidneyScore: kidneyScore(donor.GFR, donor.CreatinineLevel),
	}

	if patient.Age != nil && donor.Age != nil {
		sub.AgeScore = similarity(*patient.Age, *donor.Age, 40.0)
	} else {
		sub.AgeScore = neutralScore
		warnings = append(warnings, "Age data incomplete; neutral age score applied")
	}

	if patient.BMI != nil && donor.BMI != nil {
		sub.BMIScore = similarity(*patient.BMI, *donor.BMI, 15.0)
	} else {
		sub.BMIScore = neutralScore
		warnings = append(warnings, "BMI data incomplete; neutral BMI score applied")
	}

	final := sub.HLAScore*weightHLA +
		sub.PRAScore*weightPRA +
		sub.KidneyScore*weightKidney +
		sub.AgeScore*weightAge +
		sub.BMIScore*weightBMI

	if pc.pra > praPenaltyThreshold && pc.hlaMatchCount < praPenaltyMinHLA {
		final = math.Max(0, final-praPenalty)
		warnings = append(warnings, fmt.Sprintf("Heavy PRA/HLA penalty applied (PRA %s%%, HLA %d/6)",
			formatNumber(pc.pra), pc.hlaMatchCount))
	}

	if patient.PreviousTransplant {
		final = math.Max(0, final-previousTransplantPenalty)
		warnings = append(warnings, "Previous transplant increases rejection risk")
	}

	if highRiskKidney {
		final = math.Max(0, final-highRiskKidneyPenalty)
	}

	final, risk, action := finalTier(final)

	reasons := []string{
		fmt.Sprintf("HLA match: %d/6", pc.hlaMatchCount),
		fmt.Sprintf("PRA: %s%%", formatNumber(pc.pra)),
		fmt.Sprintf("Crossmatch: %s", donor.Crossmatch.String()),
		fmt.Sprintf("Kidney function score: %.2f", round2(sub.KidneyScore)),
	}

	return domain.EvaluationResult{
		Status:     domain.StatusEvaluated,
		FinalScore: final,
		RiskLevel:  risk,
		Action:     action,
		Reasons:    reasons,
		Warnings:   warnings,
		SubScores: domain.SubScores{
			HLAScore:    round4(sub.HLAScore),
			PRAScore:    round4(sub.PRAScore),
			KidneyScore: round4(sub.KidneyScore),
			AgeScore:    round4(sub.AgeScore),
			BMIScore:    round4(sub.BMIScore),
		},
	}
}

// ClassifyRisk maps a final score onto its risk tier. Lower bounds are inclusive.
func ClassifyRisk(score float64) (domain.RiskLevel, domain.Action) {
	switch {
	case score >= 0.80:
		return domain.RiskLow, domain.ActionRecommended
	case score >= 0.60:
		return domain.RiskModerate, domain.ActionAcceptable
	case score >= 0.40:
		return domain.RiskHigh, domain.ActionCaution
	default:
		return domain.RiskVeryHigh, domain.ActionAvoid
	}
}

// RiskTier describes one row of the risk classification table.
type RiskTier struct {
	MinScore  float64          `json:"min_score"`
	RiskLevel domain.RiskLevel `json:"risk_level"`
	Action    domain.Action    `json:"action"`
}

// RiskTiers returns the classification table from the best tier to the worst.
func RiskTiers() []RiskTier {
	return []RiskTier{
		{MinScore: 0.80, RiskLevel: domain.RiskLow, Action: domain.ActionRecommended},
		{MinScore: 0.60, RiskLevel: domain.RiskModerate, Action: domain.ActionAcceptable},
		{MinScore: 0.40, RiskLevel: domain.RiskHigh, Action: domain.ActionCaution},
		{MinScore: 0, RiskLevel: domain.RiskVeryHigh, Action: domain.ActionAvoid},
	}
}

// HLAMatchCount returns the number of antigen markers shared by donor and patient.
func HLAMatchCount(donor, patient []string) int {
	if len(donor) == 0 || len(patient) == 0 {
		return 0
	}
	patientSet := make(map[string]struct{}, len(patient))
	for _, marker := range patient {
		if m := normalizeMarker(marker); m != "" {
			patientSet[m] = struct{}{}
		}
	}
	seen := make(map[string]struct{}, len(donor))
	count := 0
	for _, marker := range donor {
		m := normalizeMarker(marker)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		if _, ok := patientSet[m]; ok {
			count++
		}
	}
	return count
}

// ABOFromBloodGroup strips the Rh sign from a combined blood group ("AB+" -> "AB").
// It returns "" when no blood group is recorded.
func ABOFromBloodGroup(bloodGroup string) string {
	bg := strings.ToUpper(strings.TrimSpace(bloodGroup))
	if bg == "" {
		return ""
	}
	return strings.NewReplacer("+", "", "-", "").Replace(bg)
}

// IsABOCompatible reports whether a donor ABO group may donate to a recipient ABO group.
func IsABOCompatible(donorABO, patientABO string) bool {
	for _, recipient := range aboCompatibility[donorABO] {
		if recipient == patientABO {
			return true
		}
	}
	return false
}

func newPairContext(donor domain.DonorProfile, patient domain.PatientProfile) *pairContext {
	pc := &pairContext{
		donor:         donor,
		patient:       patient,
		donorBG:       strings.ToUpper(strings.TrimSpace(donor.BloodGroup)),
		patientBG:     strings.ToUpper(strings.TrimSpace(patient.BloodGroup)),
		donorABO:      ABOFromBloodGroup(donor.BloodGroup),
		patientABO:    ABOFromBloodGroup(patient.BloodGroup),
		hlaMatchCount: HLAMatchCount(donor.HLATyping, patient.HLATyping),
	}
	if patient.PRAScore != nil {
		pc.pra = *patient.PRAScore
	}
	return pc
}

func checkABO(pc *pairContext) (string, bool) {
	if pc.donorABO == "" || pc.patientABO == "" {
		return "", false
	}
	if IsABOCompatible(pc.donorABO, pc.patientABO) {
		return "", false
	}
	return fmt.Sprintf("Blood group incompatibility (%s → %s)", pc.donorBG, pc.patientBG), true
}

func checkCrossmatch(pc *pairContext) (string, bool) {
	if pc.donor.Crossmatch == domain.CrossmatchPositive || pc.patient.Crossmatch == domain.CrossmatchPositive {
		return "Crossmatch result is POSITIVE", true
	}
	return "", false
}

func checkComorbidity(pc *pairContext) (string, bool) {
	if pc.donor.Diabetes || pc.donor.Hypertension {
		return "Severe donor condition risk (diabetes/hypertension)", true
	}
	return "", false
}

func checkSensitization(pc *pairContext) (string, bool) {
	if pc.pra > praRejectThreshold && pc.hlaMatchCount < praRejectMinHLA {
		return fmt.Sprintf("High PRA (%s%%) requires HLA match >= 4; current %d/6",
			formatNumber(pc.pra), pc.hlaMatchCount), true
	}
	return "", false
}

func rejected(reason, warning string) domain.EvaluationResult {
	return domain.EvaluationResult{
		Status:     domain.StatusRejected,
		FinalScore: 0.0,
		RiskLevel:  domain.RiskVeryHigh,
		Action:     domain.ActionAvoid,
		Reasons:    []string{reason},
		Warnings:   []string{warning},
		SubScores:  domain.SubScores{},
	}
}

// kidneyScore averages the GFR and creatinine terms. A missing marker contributes the
// neutral score.
func kidneyScore(gfr, creatinine *float64) float64 {
	gfrTerm := neutralScore
	if gfr != nil {
		gfrTerm = clamp((*gfr - 60.0) / 60.0)
	}
	creatinineTerm := neutralScore
	if creatinine != nil {
		creatinineTerm = clamp((2.0 - *creatinine) / 1.3)
	}
	return clamp((gfrTerm + creatinineTerm) / 2.0)
}

// similarity is 1 for identical values and falls linearly to 0 at a difference of span.
func similarity(a, b, span float64) float64 {
	ratio := math.Min(math.Abs(a-b)/span, 1.0)
	return clamp(1 - ratio)
}

func normalizeMarker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// finalTier rounds the raw score to four decimals and classifies the rounded value.
func finalTier(raw float64) (float64, domain.RiskLevel, domain.Action) {
	final := round4(clamp(raw))
	risk, action := ClassifyRisk(final)
	return final, risk, action
}

// round2 rounds halves away from zero; %.2f alone rounds them to even.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// formatNumber renders a value without trailing zeros: 85 -> "85", 12.5 -> "12.5".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
