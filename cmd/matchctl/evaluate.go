package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/profile"
	"github.com/kidney-match-server/internal/service"
)

type evaluateFlags struct {
	donor   string
	patient string
	output  string
	failOn  bool
}

func newEvaluateCmd() *cobra.Command {
	f := &evaluateFlags{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score one donor profile against one patient profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.OutOrStdout(), f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.donor, "donor", "", "Donor profile file (YAML or JSON)")
	flags.StringVar(&f.patient, "patient", "", "Patient profile file (YAML or JSON)")
	flags.StringVar(&f.output, "output", "text", "Output format: json or text")
	flags.BoolVar(&f.failOn, "fail-on-reject", false, "Exit with status 2 when a hard rejection rule fires")
	_ = cmd.MarkFlagRequired("donor")
	_ = cmd.MarkFlagRequired("patient")

	return cmd
}

func runEvaluate(w io.Writer, f *evaluateFlags) error {
	if f.output != "json" && f.output != "text" {
		return fmt.Errorf("unknown output format %q (want json or text)", f.output)
	}

	donorRaw, err := loadProfile(f.donor)
	if err != nil {
		return err
	}
	patientRaw, err := loadProfile(f.patient)
	if err != nil {
		return err
	}

	result := service.NewCompatibilityScorer().Evaluate(
		profile.ParseDonorProfile(donorRaw),
		profile.ParsePatientProfile(patientRaw),
	)

	if f.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	} else {
		renderText(w, result)
	}

	if f.failOn && result.IsRejected() {
		return &exitErr{code: 2, msg: "donor rejected: " + strings.Join(result.Reasons, "; ")}
	}
	return nil
}

// loadProfile reads a loose profile object. JSON is a subset of YAML, so one decoder
// serves both formats.
func loadProfile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("profile %s is empty", path)
	}
	return raw, nil
}

func renderText(w io.Writer, r domain.EvaluationResult) {
	fmt.Fprintf(w, "Status:      %s\n", r.Status)
	fmt.Fprintf(w, "Match score: %.2f%%\n", service.MatchScore(r.FinalScore))
	fmt.Fprintf(w, "Risk level:  %s\n", r.RiskLevel)
	fmt.Fprintf(w, "Action:      %s\n", r.Action)

	if !r.IsRejected() {
		s := r.SubScores
		fmt.Fprintf(w, "Sub-scores:  HLA %.2f  PRA %.2f  kidney %.2f  age %.2f  BMI %.2f\n",
			s.HLAScore, s.PRAScore, s.KidneyScore, s.AgeScore, s.BMIScore)
	}

	section(w, "Reasons", r.Reasons)
	section(w, "Warnings", r.Warnings)
	fmt.Fprintf(w, "\n%s\n", service.DefaultEthics.Message)
}

func section(w io.Writer, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, line := range lines {
		fmt.Fprintf(w, "  - %s\n", line)
	}
}
