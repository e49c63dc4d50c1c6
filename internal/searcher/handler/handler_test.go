package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
)

func newHandler(t *testing.T, withCache bool) *http.ServeMux {
	store := index.Build([]index.Document{
		{ID: "D1", Tokens: strings.Fields("cat dog")},
		{ID: "D2", Tokens: strings.Fields("dog bird")},
		{ID: "D3", Tokens: strings.Fields("cat cat dog")},
	})
	rankers, err := ranking.NewAll(config.Default().Ranking, store)
	require.NoError(t, err)

	var qc *cache.QueryCache
	if withCache {
		qc, err = cache.New(cache.Config{Namespace: "test"}, nil, nil)
		require.NoError(t, err)
	}
	h := New(rankers, analysis.Default(), qc, nil, Options{DefaultModel: "vsm", DefaultLimit: 2, MaxResults: 3})
	mux := http.NewServeMux()
	h.Routes(mux)
	return mux
}

func get(t *testing.T, mux *http.ServeMux, url string) (*httptest.ResponseRecorder, SearchResponse) {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	var resp SearchResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestSearch(t *testing.T) {
	mux := newHandler(t, false)
	rec, resp := get(t, mux, "/api/v1/search?q=the+Cats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "vsm", resp.Model)
	require.Equal(t, []string{"cat"}, resp.Tokens)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "D3", resp.Results[0].DocID)

	_, resp = get(t, mux, "/api/v1/search?q=cats&model=bm25&limit=50")
	require.Equal(t, "bm25", resp.Model)
	require.Len(t, resp.Results, 2, "bm25 returns only matching documents")
}

func TestSearchLimitIsCapped(t *testing.T) {
	_, resp := get(t, newHandler(t, false), "/api/v1/search?q=cat&limit=50")
	require.Len(t, resp.Results, 3)
}

func TestSearchStopwordOnlyQuery(t *testing.T) {
	rec, resp := get(t, newHandler(t, false), "/api/v1/search?q=the+and")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, resp.Tokens)
	require.NotNil(t, resp.Results)
	require.Empty(t, resp.Results)
}

func TestSearchBadRequests(t *testing.T) {
	mux := newHandler(t, false)
	for _, url := range []string{
		"/api/v1/search",
		"/api/v1/search?q=cat&model=lsi",
		"/api/v1/search?q=cat&limit=0",
		"/api/v1/search?q=cat&limit=many",
		"/api/v1/search?q=cat&normalize=maybe",
	} {
		rec, _ := get(t, mux, url)
		require.Equal(t, http.StatusBadRequest, rec.Code, url)
	}
}

func TestSearchUsesCache(t *testing.T) {
	mux := newHandler(t, true)
	_, first := get(t, mux, "/api/v1/search?q=dog")
	require.Empty(t, first.CacheTier)
	_, second := get(t, mux, "/api/v1/search?q=dogs")
	require.Equal(t, cache.TierLocal, second.CacheTier)
	require.Equal(t, first.Results, second.Results)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"hit_rate":"50.0%"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	_, third := get(t, mux, "/api/v1/search?q=dog")
	require.Empty(t, third.CacheTier)
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	mux := newHandler(t, false)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchNormalizeLeavesCacheRaw(t *testing.T) {
	mux := newHandler(t, true)
	rec, norm := get(t, mux, "/api/v1/search?q=cat&model=bm25&normalize=true")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, norm.Normalized)
	require.Equal(t, []ranking.ScoredDoc{{DocID: "D3", Score: 1}, {DocID: "D1", Score: 0}}, norm.Results)

	_, raw := get(t, mux, "/api/v1/search?q=cat&model=bm25")
	require.Equal(t, cache.TierLocal, raw.CacheTier)
	require.False(t, raw.Normalized)
	require.Len(t, raw.Results, 2)
	require.Equal(t, "D3", raw.Results[0].DocID)
	require.Greater(t, raw.Results[0].Score, raw.Results[1].Score)
	require.NotEqual(t, 1.0, raw.Results[0].Score)
}
