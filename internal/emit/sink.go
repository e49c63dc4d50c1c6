// Package emit writes ranked query results. The TREC run file is the
// primary output; Kafka and SQL sinks publish the same records to external
// systems.
package emit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/resilience"
)

// Run is one batch of ranked queries under a single run tag.
type Run struct {
	ID        string
	Tag       string
	CreatedAt time.Time
	Results   []ranking.QueryResult
}

// NewRun stamps results with a fresh run id.
func NewRun(tag string, results []ranking.QueryResult) Run {
	return Run{
		ID:        uuid.NewString(),
		Tag:       tag,
		CreatedAt: time.Now().UTC(),
		Results:   results,
	}
}

// Sink receives completed runs.
type Sink interface {
	Name() string
	Emit(ctx context.Context, run Run) error
	Close() error
}

// MultiSink fans a run out to every sink in order. Every sink is attempted
// even after a failure; the returned error joins all failures. When timeout
// is positive each sink gets at most that long.
type MultiSink struct {
	sinks   []Sink
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewMultiSink(m *metrics.Metrics, sinks ...Sink) *MultiSink {
	return &MultiSink{
		sinks:   sinks,
		metrics: m,
		logger:  slog.Default().With("component", "emit"),
	}
}

func (ms *MultiSink) Name() string { return "multi" }

func (ms *MultiSink) Emit(ctx context.Context, run Run) error {
	var errs []error
	for _, s := range ms.sinks {
		start := time.Now()
		err := resilience.WithTimeout(ctx, ms.timeout, s.Name(), func(ctx context.Context) error {
			return s.Emit(ctx, run)
		})
		ms.metrics.ObserveSink(s.Name(), err)
		if err != nil {
			ms.logger.Error("sink failed", "sink", s.Name(), "run_id", run.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		ms.logger.Info("run emitted",
			"sink", s.Name(),
			"run_id", run.ID,
			"run_tag", run.Tag,
			"queries", len(run.Results),
			"duration", time.Since(start),
		)
	}
	return errors.Join(errs...)
}

func (ms *MultiSink) Close() error {
	var errs []error
	for _, s := range ms.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
