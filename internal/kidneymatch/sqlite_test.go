package kidneymatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidney-match-server/internal/domain"
)

func intPtr(v int) *int { return &v }

func statusPtr(s domain.MatchStatus) *domain.MatchStatus { return &s }

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "kidneymatch-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "matches.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_Create(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	match := &domain.KidneyMatch{DonorID: 7, PatientID: 3, CompatibilityScore: intPtr(82)}

	err := store.Create(ctx, match)

	require.NoError(t, err)
	assert.NotZero(t, match.ID, "ID should be assigned")
	assert.Equal(t, domain.MatchPending, match.Status, "Status should default to PENDING")
	assert.False(t, match.CreatedAt.IsZero(), "CreatedAt should be set")

	stored, err := store.Get(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.DonorID)
	assert.Equal(t, int64(3), stored.PatientID)
	require.NotNil(t, stored.CompatibilityScore)
	assert.Equal(t, 82, *stored.CompatibilityScore)
	assert.Nil(t, stored.MatchedAt)
	assert.WithinDuration(t, match.CreatedAt, stored.CreatedAt, time.Second)
}

func TestSQLiteStore_Create_Validation(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		match domain.KidneyMatch
	}{
		{"Missing donor", domain.KidneyMatch{PatientID: 1}},
		{"Score out of range", domain.KidneyMatch{DonorID: 1, PatientID: 1, CompatibilityScore: intPtr(120)}},
		{"Unknown status", domain.KidneyMatch{DonorID: 1, PatientID: 1, Status: "ON_HOLD"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.match
			err := store.Create(ctx, &m)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput), "expected validation error, got %v", err)
		})
	}

	count, err := store.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSQLiteStore_Create_Duplicate(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &domain.KidneyMatch{DonorID: 1, PatientID: 2}))

	err := store.Create(ctx, &domain.KidneyMatch{DonorID: 1, PatientID: 2, Status: domain.MatchApproved})
	assert.True(t, errors.Is(err, domain.ErrDuplicate))
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)

	m, err := store.Get(context.Background(), 404)

	assert.Nil(t, m)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSQLiteStore_List(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	seedMatches(t, store)

	t.Run("All", func(t *testing.T) {
		all, err := store.List(ctx, Filter{}, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 4)
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1].ID, all[i].ID, "records should be in ID order")
		}
	})

	t.Run("By_Patient", func(t *testing.T) {
		got, err := store.List(ctx, Filter{PatientID: 10}, 25, 0)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("By_Patient_And_Status", func(t *testing.T) {
		got, err := store.List(ctx, Filter{PatientID: 10, Status: domain.MatchApproved}, 25, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(2), got[0].DonorID)
	})

	t.Run("By_Donor", func(t *testing.T) {
		got, err := store.List(ctx, Filter{DonorID: 1}, 25, 0)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("Pagination", func(t *testing.T) {
		page1, err := store.List(ctx, Filter{}, 3, 0)
		require.NoError(t, err)
		page2, err := store.List(ctx, Filter{}, 3, 3)
		require.NoError(t, err)

		assert.Len(t, page1, 3)
		assert.Len(t, page2, 1)
		assert.NotEqual(t, page1[0].ID, page2[0].ID)
	})
}

func TestSQLiteStore_Count(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	seedMatches(t, store)

	total, err := store.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	pending, err := store.Count(ctx, Filter{Status: domain.MatchPending})
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestSQLiteStore_Update(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	match := &domain.KidneyMatch{DonorID: 4, PatientID: 9, CompatibilityScore: intPtr(60)}
	require.NoError(t, store.Create(ctx, match))

	matchedAt := time.Date(2025, 11, 20, 9, 30, 0, 0, time.UTC)
	updated, err := store.Update(ctx, match.ID, Update{
		Status:    statusPtr(domain.MatchApproved),
		MatchedAt: &matchedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MatchApproved, updated.Status)
	require.NotNil(t, updated.CompatibilityScore)
	assert.Equal(t, 60, *updated.CompatibilityScore, "unset fields keep their value")

	stored, err := store.Get(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchApproved, stored.Status)
	require.NotNil(t, stored.MatchedAt)
	assert.True(t, matchedAt.Equal(*stored.MatchedAt))

	_, err = store.Update(ctx, match.ID, Update{CompatibilityScore: intPtr(-5)})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = store.Update(ctx, 999, Update{Status: statusPtr(domain.MatchRejected)})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	same, err := store.Update(ctx, match.ID, Update{})
	require.NoError(t, err)
	assert.Equal(t, domain.MatchApproved, same.Status)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	match := &domain.KidneyMatch{DonorID: 1, PatientID: 1}
	require.NoError(t, store.Create(ctx, match))

	require.NoError(t, store.Delete(ctx, match.ID))

	_, err := store.Get(ctx, match.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = store.Delete(ctx, match.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSQLiteStore_ExportImportJSON(t *testing.T) {
	source := createTestStore(t)
	ctx := context.Background()
	seedMatches(t, source)

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))

	var export Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 4, export.Count)
	assert.Len(t, export.Matches, 4)

	target := createTestStore(t)
	require.NoError(t, target.Create(ctx, &domain.KidneyMatch{DonorID: 1, PatientID: 10}))

	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, imported)
	assert.Equal(t, 1, skipped)

	total, err := target.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	_, _, err = target.ImportJSON(ctx, bytes.NewReader([]byte("not json")))
	assert.Error(t, err)
}

func seedMatches(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	matches := []*domain.KidneyMatch{
		{DonorID: 1, PatientID: 10, CompatibilityScore: intPtr(91)},
		{DonorID: 2, PatientID: 10, CompatibilityScore: intPtr(75), Status: domain.MatchApproved},
		{DonorID: 3, PatientID: 10, Status: domain.MatchRejected},
		{DonorID: 1, PatientID: 11},
	}
	for _, m := range matches {
		require.NoError(t, store.Create(ctx, m))
	}
}

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "kidneymatch-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	return store
}

func TestOpen(t *testing.T) {
	dir, err := os.MkdirTemp("", "kidneymatch-open-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store, err := Open(domain.MatchStoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "m.db")}, "")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(domain.MatchStoreConfig{Driver: "bolt"}, "")
	assert.Error(t, err)
}
