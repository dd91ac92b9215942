package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/kidneymatch"
	"github.com/kidney-match-server/internal/profile"
	"github.com/kidney-match-server/internal/service"
)

// Tool names.
const (
	toolEvaluate    = "evaluate_compatibility"
	toolRiskTiers   = "risk_tiers"
	toolRecordMatch = "record_kidney_match"
	toolListMatches = "list_kidney_matches"
)

const maxListLimit = 100

// EvaluateParams defines parameters for evaluate_compatibility tool
type EvaluateParams struct {
	Donor   map[string]any `json:"donor" jsonschema:"donor profile fields"`
	Patient map[string]any `json:"patient" jsonschema:"patient profile fields"`
}

// EvaluateResult defines the result structure for evaluate_compatibility tool
type EvaluateResult struct {
	domain.EvaluationResult
	MatchScore                 float64 `json:"match_score"`
	DoctorConfirmationRequired bool    `json:"doctor_confirmation_required"`
}

// RiskTiersParams takes no arguments.
type RiskTiersParams struct{}

// RiskTiersResult defines the result structure for risk_tiers tool
type RiskTiersResult struct {
	Tiers []service.RiskTier `json:"tiers"`
}

// RecordMatchParams defines parameters for record_kidney_match tool
type RecordMatchParams struct {
	DonorID            int64  `json:"donor_id"`
	PatientID          int64  `json:"patient_id"`
	CompatibilityScore *int   `json:"compatibility_score,omitempty" jsonschema:"clinician score 0..100"`
	Status             string `json:"status,omitempty" jsonschema:"PENDING, APPROVED, REJECTED or COMPLETED"`
}

// ListMatchesParams defines parameters for list_kidney_matches tool
type ListMatchesParams struct {
	DonorID   int64  `json:"donor_id,omitempty"`
	PatientID int64  `json:"patient_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// ListMatchesResult defines the result structure for list_kidney_matches tool
type ListMatchesResult struct {
	Total   int64                 `json:"total"`
	Matches []*domain.KidneyMatch `json:"matches"`
}

// handleEvaluate handles the evaluate_compatibility tool invocation
func (s *Server) handleEvaluate(ctx context.Context, req *mcp.CallToolRequest, params EvaluateParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolEvaluate).Info("Tool invoked")

	if params.Donor == nil || params.Patient == nil {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("donor and patient are required")), nil, nil
	}

	evaluation := s.scorer.Evaluate(profile.ParseDonorProfile(params.Donor), profile.ParsePatientProfile(params.Patient))
	s.metrics.IncrementOutcome(evaluation.Status.String(), evaluation.RiskLevel.String())

	result := EvaluateResult{
		EvaluationResult:           evaluation,
		MatchScore:                 service.MatchScore(evaluation.FinalScore),
		DoctorConfirmationRequired: true,
	}

	text := fmt.Sprintf("%s: score %.2f%%, risk %s, action %s", evaluation.Status, result.MatchScore, evaluation.RiskLevel, evaluation.Action)
	if len(evaluation.Warnings) > 0 {
		text += "\nWarnings: " + strings.Join(evaluation.Warnings, "; ")
	}
	text += "\n" + service.DefaultEthics.Message

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, result, nil
}

// handleRiskTiers handles the risk_tiers tool invocation
func (s *Server) handleRiskTiers(ctx context.Context, req *mcp.CallToolRequest, _ RiskTiersParams) (*mcp.CallToolResult, any, error) {
	tiers := service.RiskTiers()

	var b strings.Builder
	for _, tier := range tiers {
		fmt.Fprintf(&b, ">= %.2f  %s  %s\n", tier.MinScore, tier.RiskLevel, tier.Action)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
	}, RiskTiersResult{Tiers: tiers}, nil
}

// handleRecordMatch handles the record_kidney_match tool invocation
func (s *Server) handleRecordMatch(ctx context.Context, req *mcp.CallToolRequest, params RecordMatchParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolRecordMatch).Info("Tool invoked")

	record := &domain.KidneyMatch{
		DonorID:            params.DonorID,
		PatientID:          params.PatientID,
		CompatibilityScore: params.CompatibilityScore,
		Status:             domain.MatchStatus(strings.ToUpper(strings.TrimSpace(params.Status))),
	}
	if err := s.matches.Create(ctx, record); err != nil {
		return s.createErrorResult("Failed to record match", err), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("Recorded match %d: donor %d, patient %d, %s", record.ID, record.DonorID, record.PatientID, record.Status),
		}},
	}, record, nil
}

// handleListMatches handles the list_kidney_matches tool invocation
func (s *Server) handleListMatches(ctx context.Context, req *mcp.CallToolRequest, params ListMatchesParams) (*mcp.CallToolResult, any, error) {
	filter := kidneymatch.Filter{
		DonorID:   params.DonorID,
		PatientID: params.PatientID,
		Status:    domain.MatchStatus(strings.ToUpper(strings.TrimSpace(params.Status))),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return s.createErrorResult("Invalid parameter", fmt.Errorf("unknown status %q", params.Status)), nil, nil
	}

	limit := params.Limit
	if limit > maxListLimit {
		limit = maxListLimit
	}

	total, err := s.matches.Count(ctx, filter)
	if err != nil {
		return s.createErrorResult("Failed to count matches", err), nil, nil
	}
	records, err := s.matches.List(ctx, filter, limit, params.Offset)
	if err != nil {
		return s.createErrorResult("Failed to list matches", err), nil, nil
	}
	if records == nil {
		records = []*domain.KidneyMatch{}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("%d of %d recorded matches", len(records), total),
		}},
	}, ListMatchesResult{Total: total, Matches: records}, nil
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	s.logger.WithError(err).Warn(message)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
