// Package handler serves ad-hoc ranked retrieval over HTTP against an
// already opened posting store.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
)

// SearchResponse is the body of GET /api/v1/search.
type SearchResponse struct {
	Query      string              `json:"query"`
	Model      string              `json:"model"`
	Tokens     []string            `json:"tokens"`
	Results    []ranking.ScoredDoc `json:"results"`
	Normalized bool                `json:"normalized,omitempty"`
	CacheTier  string              `json:"cache,omitempty"`
	LatencyMs  int64               `json:"latency_ms"`
}

// Options configures a Handler.
type Options struct {
	DefaultModel string
	DefaultLimit int
	MaxResults   int
}

// Handler holds one ranker per model name.
type Handler struct {
	rankers  map[string]ranking.Ranker
	analyzer *analysis.Analyzer
	cache    *cache.QueryCache
	metrics  *metrics.Metrics
	opts     Options
	logger   *slog.Logger
}

// New returns a handler. queryCache and m may be nil.
func New(rankers map[string]ranking.Ranker, analyzer *analysis.Analyzer, queryCache *cache.QueryCache, m *metrics.Metrics, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 1000
	}
	return &Handler{
		rankers:  rankers,
		analyzer: analyzer,
		cache:    queryCache,
		metrics:  m,
		opts:     opts,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Routes registers the search and cache endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search handles GET /api/v1/search?q=&model=&limit=&normalize=. With
// normalize=true scores are min-max rescaled into [0, 1] after ranking, so
// cached entries always hold raw scores.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, fmt.Errorf("%w: query parameter 'q' is required", apperrors.ErrInvalidInput))
		return
	}

	model := r.URL.Query().Get("model")
	if model == "" {
		model = h.opts.DefaultModel
	}
	ranker, ok := h.rankers[model]
	if !ok {
		h.writeError(w, fmt.Errorf("%w: %q", apperrors.ErrUnknownModel, model))
		return
	}

	limit := h.opts.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, fmt.Errorf("%w: limit must be a positive integer", apperrors.ErrInvalidInput))
			return
		}
		limit = min(parsed, h.opts.MaxResults)
	}

	var normalize bool
	if v := r.URL.Query().Get("normalize"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, fmt.Errorf("%w: normalize must be a boolean", apperrors.ErrInvalidInput))
			return
		}
		normalize = parsed
	}

	tokens := h.analyzer.Tokenize(query)
	resp := SearchResponse{
		Query:      query,
		Model:      model,
		Tokens:     tokens,
		Results:    []ranking.ScoredDoc{},
		Normalized: normalize,
	}
	if len(tokens) > 0 {
		rank := func() ([]ranking.ScoredDoc, error) {
			rankStart := time.Now()
			docs := ranker.Rank(tokens, limit)
			h.metrics.ObserveRank(model, time.Since(rankStart).Seconds(), len(docs))
			return docs, nil
		}
		var docs []ranking.ScoredDoc
		var err error
		if h.cache != nil {
			docs, resp.CacheTier, err = h.cache.GetOrCompute(ctx, h.cache.Key(ranker.Params(), tokens, limit), rank)
		} else {
			docs, err = rank()
		}
		if err != nil {
			log.Error("search failed", "query", query, "model", model, "error", err)
			h.writeError(w, err)
			return
		}
		if normalize {
			docs = ranking.Normalize(docs)
		}
		if docs != nil {
			resp.Results = docs
		}
	}
	resp.LatencyMs = time.Since(start).Milliseconds()

	log.Info("search completed",
		"query", query,
		"model", model,
		"tokens", len(tokens),
		"returned", len(resp.Results),
		"cache", resp.CacheTier,
		"latency_ms", resp.LatencyMs,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.LocalHits + stats.RemoteHits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.LocalHits+stats.RemoteHits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"stats":    stats,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": err.Error()})
}
