// Package runner ranks a batch of queries with a bounded worker pool and
// returns the results in input order.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
)

// Runner ranks queries against one model.
type Runner struct {
	ranker  ranking.Ranker
	topK    int
	workers int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a runner. workers <= 0 uses GOMAXPROCS. m may be nil.
func New(r ranking.Ranker, topK, workers int, m *metrics.Metrics) (*Runner, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil ranker", apperrors.ErrInvalidInput)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{
		ranker:  r,
		topK:    topK,
		workers: workers,
		metrics: m,
		logger:  slog.Default().With("component", "runner", "model", r.Name()),
	}, nil
}

// Run ranks every query. results[i] belongs to queries[i]. A cancelled
// context stops the batch and returns the context error.
func (r *Runner) Run(ctx context.Context, queries []index.Query) ([]ranking.QueryResult, error) {
	start := time.Now()
	results := make([]ranking.QueryResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, q := range queries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			qStart := time.Now()
			docs := r.ranker.Rank(q.Tokens, r.topK)
			r.metrics.ObserveRank(r.ranker.Name(), time.Since(qStart).Seconds(), len(docs))
			results[i] = ranking.QueryResult{QueryID: q.ID, Docs: docs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ranking batch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ranking batch: %w", err)
	}

	r.logger.Info("batch ranked",
		"queries", len(queries),
		"top_k", r.topK,
		"workers", r.workers,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}
