package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
)

type memRemote struct {
	mu   sync.Mutex
	data map[string][]byte
	down bool
	gets int
}

func newMemRemote() *memRemote {
	return &memRemote{data: make(map[string][]byte)}
}

func (m *memRemote) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.down {
		return nil, errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errors.New("connection refused")
	}
	m.data[key] = value
	return nil
}

func (m *memRemote) FlushByPrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

var docs = []ranking.ScoredDoc{{DocID: "D3", Score: 0.9}, {DocID: "D1", Score: 0.5}}

func TestKeyIsNamespacedAndOrderSensitive(t *testing.T) {
	a, err := New(Config{Namespace: "abc"}, nil, nil)
	require.NoError(t, err)
	b, err := New(Config{Namespace: "def"}, nil, nil)
	require.NoError(t, err)

	k := a.Key("bm25", []string{"cat", "dog"}, 10)
	require.True(t, strings.HasPrefix(k, "search:abc:"))
	require.Equal(t, k, a.Key("bm25", []string{"cat", "dog"}, 10))
	require.NotEqual(t, k, b.Key("bm25", []string{"cat", "dog"}, 10))
	require.NotEqual(t, k, a.Key("vsm", []string{"cat", "dog"}, 10))
	require.NotEqual(t, k, a.Key("bm25", []string{"cat", "dog"}, 11))
	require.NotEqual(t, k, a.Key("bm25", []string{"dog", "cat"}, 10))
}

func TestGetOrComputeTiers(t *testing.T) {
	ctx := context.Background()
	remote := newMemRemote()
	c, err := New(Config{Namespace: "n1", LocalSize: 8}, remote, nil)
	require.NoError(t, err)
	key := c.Key("vsm", []string{"cat"}, 2)

	calls := 0
	compute := func() ([]ranking.ScoredDoc, error) {
		calls++
		return docs, nil
	}

	got, tier, err := c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	require.Equal(t, TierNone, tier)
	require.Equal(t, docs, got)

	got, tier, err = c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	require.Equal(t, TierLocal, tier)
	require.Equal(t, docs, got)

	// A second process sharing Redis sees the entry in the remote tier.
	other, err := New(Config{Namespace: "n1"}, remote, nil)
	require.NoError(t, err)
	got, tier, err = other.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	require.Equal(t, TierRedis, tier)
	require.Equal(t, docs, got)

	require.Equal(t, 1, calls)
	s := c.Stats()
	require.Equal(t, int64(1), s.LocalHits)
	require.Equal(t, int64(1), s.Misses)
	require.Equal(t, "closed", s.Breaker)
}

func TestComputeErrorIsNotCached(t *testing.T) {
	c, err := New(Config{}, nil, nil)
	require.NoError(t, err)
	boom := errors.New("boom")
	_, _, err = c.GetOrCompute(context.Background(), "k", func() ([]ranking.ScoredDoc, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, c.Stats().LocalSize)
}

func TestRemoteOutageFallsBackToCompute(t *testing.T) {
	ctx := context.Background()
	remote := newMemRemote()
	remote.down = true
	c, err := New(Config{Namespace: "n"}, remote, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		key := c.Key("bm25", []string{"q"}, i+1)
		got, tier, err := c.GetOrCompute(ctx, key, func() ([]ranking.ScoredDoc, error) { return docs, nil })
		require.NoError(t, err)
		require.Equal(t, TierNone, tier)
		require.Equal(t, docs, got)
	}
	require.Equal(t, "open", c.Stats().Breaker)

	remote.mu.Lock()
	before := remote.gets
	remote.mu.Unlock()
	_, _, err = c.GetOrCompute(ctx, c.Key("bm25", []string{"new"}, 1), func() ([]ranking.ScoredDoc, error) { return docs, nil })
	require.NoError(t, err)
	remote.mu.Lock()
	require.Equal(t, before, remote.gets, "open breaker short-circuits remote reads")
	remote.mu.Unlock()
}

func TestConcurrentMissesComputeOnce(t *testing.T) {
	c, err := New(Config{}, nil, nil)
	require.NoError(t, err)
	var calls atomic.Int64
	release := make(chan struct{})
	compute := func() ([]ranking.ScoredDoc, error) {
		calls.Add(1)
		<-release
		return docs, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := c.GetOrCompute(context.Background(), "same", compute)
			assert.NoError(t, err)
			assert.Equal(t, docs, got)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	require.Equal(t, int64(1), calls.Load())
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	remote := newMemRemote()
	c, err := New(Config{Namespace: "n"}, remote, nil)
	require.NoError(t, err)
	remote.data["search:other:x"] = []byte("[]")

	key := c.Key("vsm", []string{"a"}, 1)
	_, _, err = c.GetOrCompute(ctx, key, func() ([]ranking.ScoredDoc, error) { return docs, nil })
	require.NoError(t, err)

	n, err := c.Invalidate(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.Zero(t, c.Stats().LocalSize)
	require.Contains(t, remote.data, "search:other:x")
}

func TestSharedRemoteKeepsRankerConfigsApart(t *testing.T) {
	ctx := context.Background()
	store := index.Build([]index.Document{
		{ID: "D1", Tokens: strings.Fields("cat dog")},
		{ID: "D2", Tokens: strings.Fields("dog bird")},
		{ID: "D3", Tokens: strings.Fields("cat cat dog")},
	})
	plusOne, err := ranking.NewBM25(store)
	require.NoError(t, err)
	classic, err := ranking.NewBM25(store, ranking.WithK1(0.1), ranking.WithIDF(ranking.IDFClassic))
	require.NoError(t, err)

	// Two searcher processes over the same index file share one Redis.
	remote := newMemRemote()
	first, err := New(Config{Namespace: "digest"}, remote, nil)
	require.NoError(t, err)
	second, err := New(Config{Namespace: "digest"}, remote, nil)
	require.NoError(t, err)

	tokens := []string{"cat"}
	lookup := func(c *QueryCache, r ranking.Ranker) ([]ranking.ScoredDoc, string) {
		got, tier, err := c.GetOrCompute(ctx, c.Key(r.Params(), tokens, 10), func() ([]ranking.ScoredDoc, error) {
			return r.Rank(tokens, 10), nil
		})
		require.NoError(t, err)
		return got, tier
	}

	_, tier := lookup(first, plusOne)
	require.Equal(t, TierNone, tier)

	got, tier := lookup(second, classic)
	require.Equal(t, TierNone, tier)
	require.Equal(t, classic.Rank(tokens, 10), got)
	require.Equal(t, "D1", got[0].DocID)

	got, tier = lookup(second, plusOne)
	require.Equal(t, TierRedis, tier)
	require.Equal(t, plusOne.Rank(tokens, 10), got)
}
