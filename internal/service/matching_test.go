package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kidney-match-server/internal/cache"
	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/metrics"
)

// MockDonorRepository is a mock implementation of domain.DonorRepository
type MockDonorRepository struct {
	mock.Mock
}

func (m *MockDonorRepository) ListAvailable(ctx context.Context, filter domain.DonorFilter) ([]domain.Donor, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Donor), args.Int(1), args.Error(2)
}

func (m *MockDonorRepository) ListBloodDonors(ctx context.Context, filter domain.DonorFilter) ([]domain.BloodDonor, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.BloodDonor), args.Int(1), args.Error(2)
}

func (m *MockDonorRepository) GetByID(ctx context.Context, id int64) (*domain.Donor, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Donor), args.Error(1)
}

// MockPatientRepository is a mock implementation of domain.PatientRepository
type MockPatientRepository struct {
	mock.Mock
}

func (m *MockPatientRepository) GetByUserID(ctx context.Context, userID string) (*domain.Patient, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Patient), args.Error(1)
}

func (m *MockPatientRepository) GetByID(ctx context.Context, id int64) (*domain.Patient, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Patient), args.Error(1)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func kidneyDonor(id int64, bloodGroup string, hla ...string) domain.Donor {
	return domain.Donor{
		ID:            id,
		FullName:      "Donor",
		DonorType:     domain.DonorTypeKidney,
		Availability:  true,
		DonorLocation: "Colombo",
		Location:      "Colombo",
		Profile: domain.DonorProfile{
			BloodGroup: bloodGroup,
			Crossmatch: domain.CrossmatchNegative,
			HLATyping:  hla,
			GFR:        f64(95),
			Age:        f64(40),
			BMI:        f64(24),
		},
	}
}

func newTestMatchingService(donors domain.DonorRepository, patients domain.PatientRepository, pageCache *cache.Tiered) *MatchingService {
	return NewMatchingService(donors, patients, NewCompatibilityScorer(), pageCache, metrics.New(nil),
		domain.MatchingConfig{Concurrency: 2}, testLogger())
}

func TestMatchingService_MatchDonors(t *testing.T) {
	ctx := context.Background()

	t.Run("Scores_In_Source_Order", func(t *testing.T) {
		donors := new(MockDonorRepository)
		donors.On("ListAvailable", mock.Anything, domain.DonorFilter{
			DonorType: domain.DonorTypeKidney, Location: "colombo", Limit: 10, Offset: 0,
		}).Return([]domain.Donor{
			kidneyDonor(9, "A+", "A1"),
			kidneyDonor(8, "B+"),
			kidneyDonor(7, "O-", "A1", "B8", "DR3", "A2"),
		}, 3, nil)

		svc := newTestMatchingService(donors, nil, nil)
		page, err := svc.MatchDonors(ctx, MatchQuery{
			Location:  "colombo",
			Overrides: domain.PatientProfile{BloodGroup: "A+", HLATyping: []string{"A1", "B8", "DR3", "A2"}, Age: f64(40), BMI: f64(24)},
			Path:      "http://localhost/api/v1/public/matching/donors",
		})
		require.NoError(t, err)

		require.Len(t, page.Data, 3)
		assert.Equal(t, []int64{9, 8, 7}, []int64{page.Data[0].DonorID, page.Data[1].DonorID, page.Data[2].DonorID})
		assert.Equal(t, domain.StatusEvaluated, page.Data[0].Status)
		assert.Equal(t, domain.StatusRejected, page.Data[1].Status, "B donor is ABO incompatible with an A patient")
		assert.Equal(t, domain.StatusEvaluated, page.Data[2].Status)

		for _, row := range page.Data {
			assert.True(t, row.DoctorConfirmationRequired)
			assert.InDelta(t, row.FinalMatchScore*100, row.MatchScore, 0.005)
			assert.Equal(t, row.ID, row.DonorID)
		}

		require.NotNil(t, page.Ethics)
		assert.False(t, page.Ethics.AutoApprove)
		assert.Equal(t, "LifeLink assists, doctors decide.", page.Ethics.Message)
		assert.Equal(t, 1, page.CurrentPage)
		assert.Equal(t, 3, page.Total)
		require.NotNil(t, page.From)
		assert.Equal(t, 1, *page.From)
		assert.Equal(t, 3, *page.To)
		assert.Nil(t, page.NextPageURL)
		donors.AssertExpectations(t)
	})

	t.Run("Sort_By_Score_Is_Stable", func(t *testing.T) {
		donors := new(MockDonorRepository)
		donors.On("ListAvailable", mock.Anything, mock.Anything).Return([]domain.Donor{
			kidneyDonor(5, "B+"),
			kidneyDonor(4, "O+", "A1"),
			kidneyDonor(3, "AB+"),
			kidneyDonor(2, "O+", "A1", "B8", "DR3"),
		}, 4, nil)

		svc := newTestMatchingService(donors, nil, nil)
		page, err := svc.MatchDonors(ctx, MatchQuery{
			Overrides:   domain.PatientProfile{BloodGroup: "A+", HLATyping: []string{"A1", "B8", "DR3"}},
			SortByScore: true,
		})
		require.NoError(t, err)

		require.Len(t, page.Data, 4)
		assert.Equal(t, int64(2), page.Data[0].DonorID)
		assert.Equal(t, int64(4), page.Data[1].DonorID)
		assert.Equal(t, int64(5), page.Data[2].DonorID, "equal rejected scores keep source order")
		assert.Equal(t, int64(3), page.Data[3].DonorID)
	})

	t.Run("Registry_Patient_Replaces_Overrides", func(t *testing.T) {
		donors := new(MockDonorRepository)
		donors.On("ListAvailable", mock.Anything, mock.Anything).Return([]domain.Donor{kidneyDonor(1, "A+")}, 1, nil)

		patients := new(MockPatientRepository)
		patients.On("GetByUserID", mock.Anything, "user-42").Return(&domain.Patient{
			ID:      42,
			Profile: domain.PatientProfile{BloodGroup: "O+"},
		}, nil)

		svc := newTestMatchingService(donors, patients, nil)
		page, err := svc.MatchDonors(ctx, MatchQuery{
			UserID:    "user-42",
			Overrides: domain.PatientProfile{BloodGroup: "A+"},
		})
		require.NoError(t, err)

		require.Len(t, page.Data, 1)
		assert.Equal(t, domain.StatusRejected, page.Data[0].Status)
		assert.Contains(t, page.Data[0].Reasons[0], "Blood group incompatibility (A+ → O+)")
		patients.AssertExpectations(t)
	})

	t.Run("Unknown_User_Falls_Back_To_Overrides", func(t *testing.T) {
		donors := new(MockDonorRepository)
		donors.On("ListAvailable", mock.Anything, mock.Anything).Return([]domain.Donor{kidneyDonor(1, "A+")}, 1, nil)

		patients := new(MockPatientRepository)
		patients.On("GetByUserID", mock.Anything, "user-7").Return(nil, domain.ErrNotFound)

		svc := newTestMatchingService(donors, patients, nil)
		page, err := svc.MatchDonors(ctx, MatchQuery{UserID: "user-7", Overrides: domain.PatientProfile{BloodGroup: "A+"}})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusEvaluated, page.Data[0].Status)
	})

	t.Run("Patient_Lookup_Error", func(t *testing.T) {
		patients := new(MockPatientRepository)
		patients.On("GetByUserID", mock.Anything, "user-7").Return(nil, errors.New("connection reset"))

		svc := newTestMatchingService(new(MockDonorRepository), patients, nil)
		_, err := svc.MatchDonors(ctx, MatchQuery{UserID: "user-7"})
		assert.ErrorContains(t, err, "failed to load patient")
	})

	t.Run("Paging_Is_Normalized", func(t *testing.T) {
		donors := new(MockDonorRepository)
		donors.On("ListAvailable", mock.Anything, domain.DonorFilter{
			DonorType: domain.DonorTypeKidney, Limit: 50, Offset: 0,
		}).Return([]domain.Donor{}, 0, nil)

		svc := newTestMatchingService(donors, nil, nil)
		page, err := svc.MatchDonors(ctx, MatchQuery{Page: -2, PerPage: 500, Path: "/donors"})
		require.NoError(t, err)

		assert.Equal(t, 1, page.CurrentPage)
		assert.Equal(t, 50, page.PerPage)
		assert.Empty(t, page.Data)
		assert.NotNil(t, page.Data)
		assert.Nil(t, page.From)
		assert.Nil(t, page.To)
		assert.Equal(t, 1, page.LastPage)
		donors.AssertExpectations(t)
	})

	t.Run("Donor_Source_Error", func(t *testing.T) {
		donors := new(MockDonorRepository)
		donors.On("ListAvailable", mock.Anything, mock.Anything).Return(nil, 0, domain.ErrUnavailable)

		svc := newTestMatchingService(donors, nil, nil)
		_, err := svc.MatchDonors(ctx, MatchQuery{})
		assert.True(t, errors.Is(err, domain.ErrUnavailable))
	})

	t.Run("Cancelled_Context", func(t *testing.T) {
		donors := new(MockDonorRepository)
		donors.On("ListAvailable", mock.Anything, mock.Anything).Return([]domain.Donor{kidneyDonor(1, "A+")}, 1, nil)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		svc := newTestMatchingService(donors, nil, nil)
		_, err := svc.MatchDonors(cancelled, MatchQuery{})
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestMatchingService_PageCache(t *testing.T) {
	ctx := context.Background()

	donors := new(MockDonorRepository)
	donors.On("ListAvailable", mock.Anything, mock.Anything).
		Return([]domain.Donor{kidneyDonor(3, "O+", "A1")}, 1, nil).Once()

	pageCache := cache.NewTiered(cache.NewMemoryCache(10, time.Minute), nil, time.Minute, testLogger())
	svc := newTestMatchingService(donors, nil, pageCache)

	query := MatchQuery{Overrides: domain.PatientProfile{BloodGroup: "A+", HLATyping: []string{"a1"}}, Path: "/donors"}

	first, err := svc.MatchDonors(ctx, query)
	require.NoError(t, err)

	second, err := svc.MatchDonors(ctx, query)
	require.NoError(t, err)

	assert.Equal(t, first.Data[0].FinalMatchScore, second.Data[0].FinalMatchScore)
	assert.Equal(t, first.Data[0].Reasons, second.Data[0].Reasons)
	assert.Equal(t, int64(1), pageCache.Stats().MemoryHits)
	donors.AssertNumberOfCalls(t, "ListAvailable", 1)

	donors.On("ListAvailable", mock.Anything, mock.Anything).Return([]domain.Donor{}, 0, nil).Once()
	query.Location = "kandy"
	other, err := svc.MatchDonors(ctx, query)
	require.NoError(t, err)
	assert.Empty(t, other.Data, "a different filter is a different cache entry")
}

func TestMatchingService_Evaluate(t *testing.T) {
	svc := newTestMatchingService(new(MockDonorRepository), nil, nil)

	result := svc.Evaluate(context.Background(),
		map[string]any{"blood_group": "O-", "hla_typing": "A1,B8", "gfr": "90", "diabetes": "no"},
		map[string]any{"blood_group": "AB+", "hla_typing": []any{"a1", "b8"}, "pra_score": 10},
	)

	assert.Equal(t, domain.StatusEvaluated, result.Status)
	assert.Contains(t, result.Reasons, "HLA match: 2/6")
	assert.Contains(t, result.Reasons, "PRA: 10%")

	rejected := svc.Evaluate(context.Background(),
		map[string]any{"blood_group": "A+", "hypertension": true},
		map[string]any{"blood_group": "A+"},
	)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
}

func TestMatchingService_ListBloodDonors(t *testing.T) {
	donors := new(MockDonorRepository)
	donors.On("ListBloodDonors", mock.Anything, domain.DonorFilter{
		DonorType: domain.DonorTypeBlood, Location: "kandy", Limit: 2, Offset: 2,
	}).Return([]domain.BloodDonor{{ID: 3, FullName: "Anoma Dias", BloodGroup: "O-"}}, 5, nil)

	svc := newTestMatchingService(donors, nil, nil)
	page, err := svc.ListBloodDonors(context.Background(), "kandy", 2, 2, "/api/v1/public/donors")
	require.NoError(t, err)

	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, 3, page.LastPage)
	assert.Equal(t, 3, *page.From)
	assert.Equal(t, 3, *page.To)
	assert.Equal(t, "/api/v1/public/donors?page=3", *page.NextPageURL)
	assert.Equal(t, "/api/v1/public/donors?page=1", *page.PrevPageURL)
	assert.Nil(t, page.Ethics)
	require.Len(t, page.Links, 5)
	assert.True(t, page.Links[2].Active)
	donors.AssertExpectations(t)
}
