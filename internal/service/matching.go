package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kidney-match-server/internal/cache"
	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/metrics"
	"github.com/kidney-match-server/internal/profile"
)

const (
	defaultPerPage     = 10
	maxPerPage         = 50
	defaultConcurrency = 8

	matchPageCachePrefix = "match_page"
	cacheResultMiss      = "miss"
)

// MatchQuery describes one scored donor listing request.
type MatchQuery struct {
	// UserID identifies the authenticated caller. When a patient row exists for it,
	// that row replaces Overrides as the patient context.
	UserID      string
	Overrides   domain.PatientProfile
	Location    string
	Page        int
	PerPage     int
	SortByScore bool
	// Path is the listing URL without query string, used for page links.
	Path string
}

// MatchRow is a donor row merged with its evaluation.
type MatchRow struct {
	ID               int64    `json:"id"`
	DonorID          int64    `json:"donor_id"`
	FullName         string   `json:"full_name"`
	DonorLocation    string   `json:"donor_location"`
	Location         string   `json:"location"`
	Phone            string   `json:"phone"`
	BloodGroup       string   `json:"blood_group"`
	RhFactor         string   `json:"rh_factor"`
	CrossmatchResult string   `json:"crossmatch_result"`
	HLATyping        []string `json:"hla_typing"`
	GFR              *float64 `json:"gfr"`
	CreatinineLevel  *float64 `json:"creatinine_level"`
	Age              *float64 `json:"age"`
	BMI              *float64 `json:"bmi"`
	MedicalHistory   string   `json:"medical_history"`
	Diabetes         bool     `json:"diabetes"`
	Hypertension     bool     `json:"hypertension"`

	FinalMatchScore            float64                 `json:"final_match_score"`
	MatchScore                 float64                 `json:"match_score"`
	RiskLevel                  domain.RiskLevel        `json:"risk_level"`
	Action                     domain.Action           `json:"action"`
	Status                     domain.EvaluationStatus `json:"status"`
	Reasons                    []string                `json:"reasons"`
	Warnings                   []string                `json:"warnings"`
	SubScores                  domain.SubScores        `json:"subscores"`
	DoctorConfirmationRequired bool                    `json:"doctor_confirmation_required"`
}

// MatchPage is a page of scored donors.
type MatchPage = Page[MatchRow]

// BloodDonorPage is a page of the public blood bank listing.
type BloodDonorPage = Page[domain.BloodDonor]

// MatchingService scores available donors against a patient context.
type MatchingService struct {
	donors   domain.DonorRepository
	patients domain.PatientRepository
	scorer   domain.CompatibilityScorer
	cache    *cache.Tiered
	metrics  *metrics.Metrics
	config   domain.MatchingConfig
	logger   *logrus.Logger
}

// NewMatchingService creates a matching service. pageCache and m may be nil.
func NewMatchingService(
	donors domain.DonorRepository,
	patients domain.PatientRepository,
	scorer domain.CompatibilityScorer,
	pageCache *cache.Tiered,
	m *metrics.Metrics,
	config domain.MatchingConfig,
	logger *logrus.Logger,
) *MatchingService {
	if config.DefaultPerPage < 1 {
		config.DefaultPerPage = defaultPerPage
	}
	if config.MaxPerPage < 1 {
		config.MaxPerPage = maxPerPage
	}
	if config.Concurrency < 1 {
		config.Concurrency = defaultConcurrency
	}

	return &MatchingService{
		donors:   donors,
		patients: patients,
		scorer:   scorer,
		cache:    pageCache,
		metrics:  m,
		config:   config,
		logger:   logger,
	}
}

// MatchDonors returns one page of available kidney donors, each scored against the
// resolved patient context. Rows keep donor source order unless SortByScore is set.
func (s *MatchingService) MatchDonors(ctx context.Context, query MatchQuery) (*MatchPage, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveMatchPage(time.Since(start)) }()

	paging := NormalizePaging(query.Page, query.PerPage, s.config.DefaultPerPage, s.config.MaxPerPage)

	patient, fromRegistry, err := s.resolvePatient(ctx, query)
	if err != nil {
		return nil, err
	}

	key, err := cache.Key(matchPageCachePrefix, patient, query.Location, paging.Page, paging.PerPage, query.SortByScore, query.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache key: %w", err)
	}
	if page, ok := s.cachedPage(ctx, key); ok {
		return page, nil
	}

	fetchCtx := ctx
	if s.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.config.QueryTimeout)
		defer cancel()
	}

	donors, total, err := s.donors.ListAvailable(fetchCtx, domain.DonorFilter{
		DonorType: domain.DonorTypeKidney,
		Location:  query.Location,
		Limit:     paging.PerPage,
		Offset:    paging.Offset(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load donors: %w", err)
	}

	rows, err := s.scoreDonors(ctx, donors, patient)
	if err != nil {
		return nil, err
	}

	if query.SortByScore {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].FinalMatchScore > rows[j].FinalMatchScore
		})
	}

	page := NewPage(rows, total, paging, query.Path)
	ethics := DefaultEthics
	page.Ethics = &ethics

	s.logger.WithFields(logrus.Fields{
		"page":          paging.Page,
		"per_page":      paging.PerPage,
		"total":         total,
		"rows":          len(rows),
		"from_registry": fromRegistry,
		"location":      query.Location,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Scored donor page")

	s.storePage(ctx, key, page)
	return page, nil
}

// Evaluate scores one loosely typed donor and patient pair.
func (s *MatchingService) Evaluate(ctx context.Context, donorRaw, patientRaw map[string]any) domain.EvaluationResult {
	result := s.scorer.Evaluate(profile.ParseDonorProfile(donorRaw), profile.ParsePatientProfile(patientRaw))
	s.metrics.IncrementOutcome(result.Status.String(), result.RiskLevel.String())

	s.logger.WithContext(ctx).WithFields(logrus.Fields(result.LogFields())).Debug("Evaluated donor-patient pair")
	return result
}

// EvaluateProfiles scores already parsed profiles.
func (s *MatchingService) EvaluateProfiles(donor domain.DonorProfile, patient domain.PatientProfile) domain.EvaluationResult {
	result := s.scorer.Evaluate(donor, patient)
	s.metrics.IncrementOutcome(result.Status.String(), result.RiskLevel.String())
	return result
}

// ListBloodDonors returns a page of the public blood bank listing.
func (s *MatchingService) ListBloodDonors(ctx context.Context, location string, page, perPage int, path string) (*BloodDonorPage, error) {
	paging := NormalizePaging(page, perPage, s.config.DefaultPerPage, s.config.MaxPerPage)

	fetchCtx := ctx
	if s.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.config.QueryTimeout)
		defer cancel()
	}

	donors, total, err := s.donors.ListBloodDonors(fetchCtx, domain.DonorFilter{
		DonorType: domain.DonorTypeBlood,
		Location:  location,
		Limit:     paging.PerPage,
		Offset:    paging.Offset(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load blood donors: %w", err)
	}

	return NewPage(donors, total, paging, path).WithLinks(), nil
}

// resolvePatient returns the registry profile of the caller when one exists, else the
// query overrides. The boolean reports which was used.
func (s *MatchingService) resolvePatient(ctx context.Context, query MatchQuery) (domain.PatientProfile, bool, error) {
	if query.UserID == "" || s.patients == nil {
		return query.Overrides, false, nil
	}

	patient, err := s.patients.GetByUserID(ctx, query.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return query.Overrides, false, nil
	}
	if err != nil {
		return domain.PatientProfile{}, false, fmt.Errorf("failed to load patient for user %s: %w", query.UserID, err)
	}
	return patient.Profile, true, nil
}

// scoreDonors evaluates donors concurrently. The result slice is index-aligned with donors.
func (s *MatchingService) scoreDonors(ctx context.Context, donors []domain.Donor, patient domain.PatientProfile) ([]MatchRow, error) {
	rows := make([]MatchRow, len(donors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for i := range donors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result := s.scorer.Evaluate(donors[i].Profile, patient)
			s.metrics.IncrementOutcome(result.Status.String(), result.RiskLevel.String())
			rows[i] = newMatchRow(donors[i], result)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring interrupted: %w", err)
	}
	return rows, nil
}

// MatchScore converts a 0..1 final score to a percentage rounded to two decimals.
func MatchScore(final float64) float64 {
	return math.Round(final*100*100) / 100
}

func newMatchRow(d domain.Donor, result domain.EvaluationResult) MatchRow {
	p := d.Profile
	hla := p.HLATyping
	if hla == nil {
		hla = []string{}
	}
	return MatchRow{
		ID:               d.ID,
		DonorID:          d.ID,
		FullName:         d.FullName,
		DonorLocation:    d.DonorLocation,
		Location:         d.Location,
		Phone:            d.Phone,
		BloodGroup:       p.BloodGroup,
		RhFactor:         p.RhFactor,
		CrossmatchResult: p.Crossmatch.String(),
		HLATyping:        hla,
		GFR:              p.GFR,
		CreatinineLevel:  p.CreatinineLevel,
		Age:              p.Age,
		BMI:              p.BMI,
		MedicalHistory:   p.MedicalHistory,
		Diabetes:         p.Diabetes,
		Hypertension:     p.Hypertension,

		FinalMatchScore:            result.FinalScore,
		MatchScore:                 MatchScore(result.FinalScore),
		RiskLevel:                  result.RiskLevel,
		Action:                     result.Action,
		Status:                     result.Status,
		Reasons:                    result.Reasons,
		Warnings:                   result.Warnings,
		SubScores:                  result.SubScores,
		DoctorConfirmationRequired: true,
	}
}

func (s *MatchingService) cachedPage(ctx context.Context, key string) (*MatchPage, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, tier := s.cache.Get(ctx, key)
	if tier == "" {
		s.metrics.IncrementCacheLookup(cacheResultMiss)
		return nil, false
	}

	var page MatchPage
	if err := json.Unmarshal(data, &page); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Discarding unreadable cached match page")
		s.cache.Invalidate(ctx, key)
		s.metrics.IncrementCacheLookup(cacheResultMiss)
		return nil, false
	}

	s.metrics.IncrementCacheLookup(tier)
	return &page, true
}

func (s *MatchingService) storePage(ctx context.Context, key string, page *MatchPage) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to encode match page for cache")
		return
	}
	s.cache.Set(ctx, key, data)
}
