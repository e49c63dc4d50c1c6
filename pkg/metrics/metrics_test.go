package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRank("bm25", 0.01, 3)
	m.ObserveIndex("loaded", 10, 20)
	m.ObserveBuild(1)
	m.ObserveSink("file", nil)
	m.ObserveCacheHit("local")
	m.ObserveCacheMiss()
	m.SetBreakerState("redis", 1)
}

func TestCacheAndBreakerHelpers(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveCacheHit("local")
	m.ObserveCacheHit("local")
	m.ObserveCacheHit("redis")
	m.ObserveCacheMiss()
	m.SetBreakerState("redis-cache", 2)

	require.Equal(t, 2.0, value(t, m.CacheHitsTotal.WithLabelValues("local")))
	require.Equal(t, 1.0, value(t, m.CacheHitsTotal.WithLabelValues("redis")))
	require.Equal(t, 1.0, value(t, m.CacheMissesTotal))
	require.Equal(t, 2.0, value(t, m.CircuitBreakerState.WithLabelValues("redis-cache")))
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRank("vsm", 0.002, 0)
	m.ObserveRank("vsm", 0.001, 7)
	m.ObserveIndex("built", 3, 5)
	m.ObserveSink("kafka", errors.New("broker down"))

	require.Equal(t, 1.0, value(t, m.QueriesTotal.WithLabelValues("vsm", "zero_result")))
	require.Equal(t, 1.0, value(t, m.QueriesTotal.WithLabelValues("vsm", "ok")))
	require.Equal(t, 1.0, value(t, m.IndexLoadsTotal.WithLabelValues("built")))
	require.Equal(t, 3.0, value(t, m.IndexDocuments))
	require.Equal(t, 5.0, value(t, m.IndexTerms))
	require.Equal(t, 1.0, value(t, m.SinkWritesTotal.WithLabelValues("kafka", "error")))

	// A second registry accepts a second set of collectors.
	require.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}
