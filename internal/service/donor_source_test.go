package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/metrics"
)

func TestResilientDonorSource_PassThrough(t *testing.T) {
	repo := new(MockDonorRepository)
	repo.On("ListAvailable", mock.Anything, mock.Anything).Return([]domain.Donor{kidneyDonor(1, "O+")}, 1, nil)
	repo.On("ListBloodDonors", mock.Anything, mock.Anything).Return([]domain.BloodDonor{{ID: 2}}, 1, nil)
	repo.On("GetByID", mock.Anything, int64(1)).Return(&domain.Donor{ID: 1}, nil)

	source := NewResilientDonorSource(repo, domain.BreakerConfig{}, metrics.New(nil), testLogger())
	ctx := context.Background()

	donors, total, err := source.ListAvailable(ctx, domain.DonorFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, donors, 1)

	blood, _, err := source.ListBloodDonors(ctx, domain.DonorFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), blood[0].ID)

	donor, err := source.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), donor.ID)

	assert.Equal(t, gobreaker.StateClosed, source.State())
	repo.AssertExpectations(t)
}

func TestResilientDonorSource_OpensAfterFailures(t *testing.T) {
	repo := new(MockDonorRepository)
	repo.On("ListAvailable", mock.Anything, mock.Anything).Return(nil, 0, errors.New("connection refused"))

	m := metrics.New(nil)
	source := NewResilientDonorSource(repo, domain.BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}, m, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := source.ListAvailable(ctx, domain.DonorFilter{})
		require.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrUnavailable), "failures before tripping keep the original error")
	}

	assert.Equal(t, gobreaker.StateOpen, source.State())
	assert.Equal(t, float64(gobreaker.StateOpen), gaugeValue(t, m, "kidney_match_donor_source_breaker_state"))

	_, _, err := source.ListAvailable(ctx, domain.DonorFilter{})
	assert.True(t, errors.Is(err, domain.ErrUnavailable))
	repo.AssertNumberOfCalls(t, "ListAvailable", 2)
}

func TestResilientDonorSource_NotFoundDoesNotTrip(t *testing.T) {
	repo := new(MockDonorRepository)
	repo.On("GetByID", mock.Anything, int64(404)).Return(nil, domain.ErrNotFound)

	source := NewResilientDonorSource(repo, domain.BreakerConfig{FailureThreshold: 1}, nil, testLogger())

	for i := 0; i < 3; i++ {
		_, err := source.GetByID(context.Background(), 404)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	}
	assert.Equal(t, gobreaker.StateClosed, source.State())
	assert.Equal(t, uint32(0), source.Counts().TotalFailures)
}

func gaugeValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}
