package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Tier names reported on hits.
const (
	TierMemory = "memory"
	TierRedis  = "redis"
)

// Stats represents cache performance counters.
type Stats struct {
	MemoryHits    int64     `json:"memory_hits"`
	RedisHits     int64     `json:"redis_hits"`
	Misses        int64     `json:"misses"`
	Errors        int64     `json:"errors"`
	TotalRequests int64     `json:"total_requests"`
	LastReset     time.Time `json:"last_reset"`
}

// Tiered reads through the memory tier, then the shared tier, and back-fills the memory
// tier on shared hits. Errors from the shared tier are logged and treated as misses.
type Tiered struct {
	memory *MemoryCache
	shared Store
	ttl    time.Duration
	logger *logrus.Logger

	mu    sync.Mutex
	stats Stats
}

// NewTiered creates a tiered cache. shared may be nil for memory-only operation.
func NewTiered(memory *MemoryCache, shared Store, ttl time.Duration, logger *logrus.Logger) *Tiered {
	return &Tiered{
		memory: memory,
		shared: shared,
		ttl:    ttl,
		logger: logger,
		stats:  Stats{LastReset: time.Now()},
	}
}

// Get returns the cached value and the tier that served it ("" on a miss).
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, string) {
	t.count(func(s *Stats) { s.TotalRequests++ })

	if v, ok, _ := t.memory.Get(ctx, key); ok {
		t.count(func(s *Stats) { s.MemoryHits++ })
		return v, TierMemory
	}

	if t.shared != nil {
		v, ok, err := t.shared.Get(ctx, key)
		if err != nil {
			t.count(func(s *Stats) { s.Errors++ })
			t.logger.WithError(err).WithField("key", key).Warn("Shared cache read failed")
		} else if ok {
			t.count(func(s *Stats) { s.RedisHits++ })
			_ = t.memory.Set(ctx, key, v, t.ttl)
			return v, TierRedis
		}
	}

	t.count(func(s *Stats) { s.Misses++ })
	return nil, ""
}

// Set writes value to both tiers.
func (t *Tiered) Set(ctx context.Context, key string, value []byte) {
	_ = t.memory.Set(ctx, key, value, t.ttl)

	if t.shared == nil {
		return
	}
	if err := t.shared.Set(ctx, key, value, t.ttl); err != nil {
		t.count(func(s *Stats) { s.Errors++ })
		t.logger.WithError(err).WithField("key", key).Warn("Shared cache write failed")
	}
}

// Invalidate removes keys from both tiers.
func (t *Tiered) Invalidate(ctx context.Context, keys ...string) {
	_ = t.memory.Delete(ctx, keys...)
	if t.shared == nil {
		return
	}
	if err := t.shared.Delete(ctx, keys...); err != nil {
		t.logger.WithError(err).Warn("Shared cache delete failed")
	}
}

// Stats returns a snapshot of the counters.
func (t *Tiered) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// ResetStats zeroes the counters.
func (t *Tiered) ResetStats() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = Stats{LastReset: time.Now()}
}

func (t *Tiered) count(fn func(*Stats)) {
	t.mu.Lock()
	fn(&t.stats)
	t.mu.Unlock()
}
