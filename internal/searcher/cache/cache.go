// Package cache memoises ranked results for the search service. Lookups go
// to an in-process LRU first and then to a shared Redis tier guarded by a
// circuit breaker. Concurrent misses for the same key are collapsed with
// singleflight. Keys carry the index digest so results computed against an
// older index are never served.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docrank/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/resilience"
)

const keyPrefix = "search:"

// Tier names where a lookup was answered.
const (
	TierLocal = "local"
	TierRedis = "redis"
	TierNone  = ""
)

// Remote is the shared tier. *pkgredis.Client satisfies it.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPrefix(ctx context.Context, prefix string) (int64, error)
}

// Config sizes the cache. Namespace is usually the index digest.
type Config struct {
	Namespace string
	LocalSize int
	TTL       time.Duration
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	LocalHits  int64  `json:"local_hits"`
	RemoteHits int64  `json:"remote_hits"`
	Misses     int64  `json:"misses"`
	LocalSize  int    `json:"local_size"`
	Breaker    string `json:"breaker,omitempty"`
}

// QueryCache is safe for concurrent use. Slices it returns are shared and
// must not be modified.
type QueryCache struct {
	local   *lru.Cache[string, []ranking.ScoredDoc]
	remote  Remote
	breaker *resilience.CircuitBreaker
	cfg     Config
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger

	localHits  atomic.Int64
	remoteHits atomic.Int64
	misses     atomic.Int64
}

// New builds a cache. remote and m may be nil.
func New(cfg Config, remote Remote, m *metrics.Metrics) (*QueryCache, error) {
	if cfg.LocalSize <= 0 {
		cfg.LocalSize = 1024
	}
	local, err := lru.New[string, []ranking.ScoredDoc](cfg.LocalSize)
	if err != nil {
		return nil, fmt.Errorf("creating local cache: %w", err)
	}
	c := &QueryCache{
		local:   local,
		remote:  remote,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	if remote != nil {
		c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     10 * time.Second,
			OnStateChange: func(name string, to resilience.State) {
				m.SetBreakerState(name, int(to))
			},
		})
		m.SetBreakerState("redis-cache", int(resilience.StateClosed))
	}
	return c, nil
}

// Key is the cache key for one request. params is the ranker's Params, so
// rankers configured differently never share entries.
func (c *QueryCache) Key(params string, tokens []string, limit int) string {
	h := blake3.New()
	h.Write([]byte(params))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(limit)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(tokens, "\x1f")))
	sum := h.Sum(nil)
	return keyPrefix + c.cfg.Namespace + ":" + hex.EncodeToString(sum[:16])
}

// GetOrCompute returns the cached ranking for key or runs compute and caches
// its result. The tier that answered is TierNone when compute ran.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() ([]ranking.ScoredDoc, error),
) ([]ranking.ScoredDoc, string, error) {
	if docs, tier, ok := c.get(ctx, key); ok {
		return docs, tier, nil
	}
	type shared struct {
		docs []ranking.ScoredDoc
		tier string
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if docs, tier, ok := c.get(ctx, key); ok {
			return shared{docs, tier}, nil
		}
		c.misses.Add(1)
		c.metrics.ObserveCacheMiss()
		docs, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, docs)
		return shared{docs, TierNone}, nil
	})
	if err != nil {
		return nil, TierNone, err
	}
	s := val.(shared)
	return s.docs, s.tier, nil
}

func (c *QueryCache) get(ctx context.Context, key string) ([]ranking.ScoredDoc, string, bool) {
	if docs, ok := c.local.Get(key); ok {
		c.localHits.Add(1)
		c.metrics.ObserveCacheHit(TierLocal)
		return docs, TierLocal, true
	}
	if c.remote == nil {
		return nil, TierNone, false
	}
	data, err := resilience.Do(c.breaker, func() ([]byte, error) {
		data, err := c.remote.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		c.logger.Debug("remote cache get failed", "key", key, "error", err)
		return nil, TierNone, false
	}
	if data == nil {
		return nil, TierNone, false
	}
	var docs []ranking.ScoredDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, TierNone, false
	}
	c.local.Add(key, docs)
	c.remoteHits.Add(1)
	c.metrics.ObserveCacheHit(TierRedis)
	return docs, TierRedis, true
}

func (c *QueryCache) set(ctx context.Context, key string, docs []ranking.ScoredDoc) {
	c.local.Add(key, docs)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(docs)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error {
		return c.remote.Set(ctx, key, data, c.cfg.TTL)
	}); err != nil {
		c.logger.Debug("remote cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every entry in this cache's namespace.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	purged := int64(c.local.Len())
	c.local.Purge()
	if c.remote == nil {
		return purged, nil
	}
	deleted, err := c.remote.FlushByPrefix(ctx, keyPrefix+c.cfg.Namespace+":")
	if err != nil {
		return purged, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "local_purged", purged, "remote_deleted", deleted)
	return purged + deleted, nil
}

// Stats returns the hit and miss counters.
func (c *QueryCache) Stats() Stats {
	s := Stats{
		LocalHits:  c.localHits.Load(),
		RemoteHits: c.remoteHits.Load(),
		Misses:     c.misses.Load(),
		LocalSize:  c.local.Len(),
	}
	if c.breaker != nil {
		s.Breaker = c.breaker.State().String()
	}
	return s
}
