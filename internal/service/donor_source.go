package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/metrics"
)

// Listing names used for donor query metrics.
const (
	listingKidney = "kidney"
	listingBlood  = "blood"
	listingDonor  = "donor"
)

// ResilientDonorSource wraps a donor repository with a circuit breaker. While the breaker
// is open calls fail fast with domain.ErrUnavailable.
type ResilientDonorSource struct {
	donors  domain.DonorRepository
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewResilientDonorSource creates a breaker-guarded donor source. Zero config values
// fall back to defaults.
func NewResilientDonorSource(donors domain.DonorRepository, config domain.BreakerConfig, m *metrics.Metrics, logger *logrus.Logger) *ResilientDonorSource {
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "DonorSource",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// Cancellations and missing rows do not count as failures.
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, domain.ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			m.SetBreakerState(float64(to))
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	m.SetBreakerState(float64(gobreaker.StateClosed))

	return &ResilientDonorSource{
		donors:  donors,
		breaker: gobreaker.NewCircuitBreaker(settings),
		metrics: m,
		logger:  logger,
	}
}

type donorPage struct {
	donors []domain.Donor
	total  int
}

type bloodDonorPage struct {
	donors []domain.BloodDonor
	total  int
}

// ListAvailable lists available donors through the breaker.
func (s *ResilientDonorSource) ListAvailable(ctx context.Context, filter domain.DonorFilter) ([]domain.Donor, int, error) {
	start := time.Now()
	result, err := s.breaker.Execute(func() (interface{}, error) {
		donors, total, err := s.donors.ListAvailable(ctx, filter)
		if err != nil {
			return nil, err
		}
		return donorPage{donors: donors, total: total}, nil
	})
	s.metrics.ObserveDonorQuery(listingKidney, time.Since(start))
	if err != nil {
		return nil, 0, s.wrap("list available donors", err)
	}

	page := result.(donorPage)
	return page.donors, page.total, nil
}

// ListBloodDonors lists blood donors through the breaker.
func (s *ResilientDonorSource) ListBloodDonors(ctx context.Context, filter domain.DonorFilter) ([]domain.BloodDonor, int, error) {
	start := time.Now()
	result, err := s.breaker.Execute(func() (interface{}, error) {
		donors, total, err := s.donors.ListBloodDonors(ctx, filter)
		if err != nil {
			return nil, err
		}
		return bloodDonorPage{donors: donors, total: total}, nil
	})
	s.metrics.ObserveDonorQuery(listingBlood, time.Since(start))
	if err != nil {
		return nil, 0, s.wrap("list blood donors", err)
	}

	page := result.(bloodDonorPage)
	return page.donors, page.total, nil
}

// GetByID loads one donor through the breaker.
func (s *ResilientDonorSource) GetByID(ctx context.Context, id int64) (*domain.Donor, error) {
	start := time.Now()
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.donors.GetByID(ctx, id)
	})
	s.metrics.ObserveDonorQuery(listingDonor, time.Since(start))
	if err != nil {
		return nil, s.wrap(fmt.Sprintf("get donor %d", id), err)
	}
	return result.(*domain.Donor), nil
}

// State returns the current breaker state.
func (s *ResilientDonorSource) State() gobreaker.State {
	return s.breaker.State()
}

// Counts returns the breaker counters for the current interval.
func (s *ResilientDonorSource) Counts() gobreaker.Counts {
	return s.breaker.Counts()
}

func (s *ResilientDonorSource) wrap(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.WithField("operation", op).Warn("Donor source unavailable (circuit breaker open)")
		return fmt.Errorf("%s: %w: %v", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
