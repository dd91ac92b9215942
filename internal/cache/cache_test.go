package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStore is a mock implementation of the Store interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestKey(t *testing.T) {
	k1, err := Key("match", "user-1", 2, 10)
	require.NoError(t, err)
	k2, err := Key("match", "user-1", 2, 10)
	require.NoError(t, err)
	k3, err := Key("match", "user-1", 3, 10)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Contains(t, k1, "match:")
	assert.Len(t, k1, len("match:")+32)

	_, err = Key("match", make(chan int))
	assert.Error(t, err)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("Set_Get_Delete", func(t *testing.T) {
		c := NewMemoryCache(10, time.Minute)

		_, ok, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.Set(ctx, "a", []byte(`{"x":1}`), 0))
		v, ok, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"x":1}`, string(v))

		require.NoError(t, c.Delete(ctx, "a"))
		_, ok, _ = c.Get(ctx, "a")
		assert.False(t, ok)
	})

	t.Run("Evicts_Least_Recently_Used", func(t *testing.T) {
		c := NewMemoryCache(2, time.Minute)
		_ = c.Set(ctx, "a", []byte("1"), 0)
		_ = c.Set(ctx, "b", []byte("2"), 0)
		_ = c.Set(ctx, "c", []byte("3"), 0)

		assert.Equal(t, 2, c.Len())
		_, ok, _ := c.Get(ctx, "a")
		assert.False(t, ok)
	})

	t.Run("Expires", func(t *testing.T) {
		c := NewMemoryCache(10, 20*time.Millisecond)
		_ = c.Set(ctx, "a", []byte("1"), 0)
		time.Sleep(60 * time.Millisecond)

		_, ok, _ := c.Get(ctx, "a")
		assert.False(t, ok)
	})

	t.Run("Purge", func(t *testing.T) {
		c := NewMemoryCache(0, 0)
		_ = c.Set(ctx, "a", []byte("1"), 0)
		c.Purge()
		assert.Equal(t, 0, c.Len())
	})
}

func TestTiered(t *testing.T) {
	ctx := context.Background()
	logger := quietLogger()

	t.Run("Memory_Hit_Skips_Shared", func(t *testing.T) {
		shared := new(MockStore)
		tc := NewTiered(NewMemoryCache(10, time.Minute), shared, time.Minute, logger)

		shared.On("Set", ctx, "k", []byte(`1`), time.Minute).Return(nil)
		tc.Set(ctx, "k", []byte(`1`))

		v, tier := tc.Get(ctx, "k")
		assert.Equal(t, TierMemory, tier)
		assert.Equal(t, `1`, string(v))
		shared.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)

		stats := tc.Stats()
		assert.Equal(t, int64(1), stats.MemoryHits)
		assert.Equal(t, int64(1), stats.TotalRequests)
	})

	t.Run("Shared_Hit_Backfills_Memory", func(t *testing.T) {
		shared := new(MockStore)
		memory := NewMemoryCache(10, time.Minute)
		tc := NewTiered(memory, shared, time.Minute, logger)

		shared.On("Get", ctx, "k").Return([]byte(`"page"`), true, nil).Once()

		v, tier := tc.Get(ctx, "k")
		assert.Equal(t, TierRedis, tier)
		assert.Equal(t, `"page"`, string(v))

		v, tier = tc.Get(ctx, "k")
		assert.Equal(t, TierMemory, tier)
		assert.Equal(t, `"page"`, string(v))

		shared.AssertExpectations(t)
		stats := tc.Stats()
		assert.Equal(t, int64(1), stats.RedisHits)
		assert.Equal(t, int64(1), stats.MemoryHits)
	})

	t.Run("Shared_Error_Is_A_Miss", func(t *testing.T) {
		shared := new(MockStore)
		tc := NewTiered(NewMemoryCache(10, time.Minute), shared, time.Minute, logger)

		shared.On("Get", ctx, "k").Return(nil, false, assert.AnError)

		v, tier := tc.Get(ctx, "k")
		assert.Nil(t, v)
		assert.Equal(t, "", tier)

		stats := tc.Stats()
		assert.Equal(t, int64(1), stats.Errors)
		assert.Equal(t, int64(1), stats.Misses)
	})

	t.Run("Shared_Write_Error_Is_Logged", func(t *testing.T) {
		shared := new(MockStore)
		tc := NewTiered(NewMemoryCache(10, time.Minute), shared, time.Minute, logger)

		shared.On("Set", ctx, "k", []byte(`1`), time.Minute).Return(assert.AnError)
		tc.Set(ctx, "k", []byte(`1`))

		_, tier := tc.Get(ctx, "k")
		assert.Equal(t, TierMemory, tier)
		assert.Equal(t, int64(1), tc.Stats().Errors)
	})

	t.Run("Memory_Only", func(t *testing.T) {
		tc := NewTiered(NewMemoryCache(10, time.Minute), nil, time.Minute, logger)

		_, tier := tc.Get(ctx, "k")
		assert.Equal(t, "", tier)

		tc.Set(ctx, "k", []byte(`1`))
		tc.Invalidate(ctx, "k")
		_, tier = tc.Get(ctx, "k")
		assert.Equal(t, "", tier)

		tc.ResetStats()
		assert.Equal(t, int64(0), tc.Stats().TotalRequests)
	})
}

func TestRedisCache(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis tests")
	}

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	c := NewRedisCacheFromClient(client, time.Minute)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	key := "kidney-match-test:page"
	require.NoError(t, c.Set(ctx, key, []byte(`{"total":3}`), 0))

	v, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"total":3}`, string(v))

	require.NoError(t, c.InvalidatePattern(ctx, "kidney-match-test:*"))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Set(ctx, key, "not json", time.Minute).Err())
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
