package emit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/resilience"
)

// RunEvent is the Kafka message published for one ranked query.
type RunEvent struct {
	RunID     string      `json:"run_id"`
	RunTag    string      `json:"run_tag"`
	QueryID   string      `json:"query_id"`
	Docs      []RankedDoc `json:"docs"`
	CreatedAt time.Time   `json:"created_at"`
}

type RankedDoc struct {
	DocID string  `json:"doc_id"`
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

const kafkaBatchSize = 100

// KafkaSink publishes one RunEvent per query, keyed by query id.
type KafkaSink struct {
	producer *kafka.Producer
	retry    resilience.RetryConfig
}

func NewKafkaSink(p *kafka.Producer) *KafkaSink {
	return &KafkaSink{
		producer: p,
		retry:    resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Emit(ctx context.Context, run Run) error {
	events := make([]kafka.Event, 0, kafkaBatchSize)
	flush := func() error {
		if len(events) == 0 {
			return nil
		}
		err := resilience.Retry(ctx, "kafka-sink", k.retry, func() error {
			return k.producer.PublishBatch(ctx, events)
		})
		events = events[:0]
		return err
	}
	for _, qr := range run.Results {
		docs := make([]RankedDoc, len(qr.Docs))
		for i, d := range qr.Docs {
			docs[i] = RankedDoc{DocID: d.DocID, Rank: i + 1, Score: d.Score}
		}
		events = append(events, kafka.Event{
			Key: qr.QueryID,
			Value: RunEvent{
				RunID:     run.ID,
				RunTag:    run.Tag,
				QueryID:   qr.QueryID,
				Docs:      docs,
				CreatedAt: run.CreatedAt,
			},
			Headers: map[string]string{"run_id": run.ID, "run_tag": run.Tag},
		})
		if len(events) == kafkaBatchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("publishing run %s: %w", run.ID, err)
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("publishing run %s: %w", run.ID, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.producer.Close()
}

// RunCollector rebuilds runs from consumed RunEvents. Its Handle method is a
// kafka.MessageHandler. A later event for the same run and query replaces
// the earlier one.
type RunCollector struct {
	mu     sync.Mutex
	runTag string
	runs   map[string]map[string]RunEvent
	tags   map[string]string
}

// NewRunCollector keeps only events whose run tag equals runTag, or every
// event when runTag is empty.
func NewRunCollector(runTag string) *RunCollector {
	return &RunCollector{
		runTag: runTag,
		runs:   make(map[string]map[string]RunEvent),
		tags:   make(map[string]string),
	}
}

func (c *RunCollector) Handle(_ context.Context, _ []byte, value []byte) error {
	ev, err := kafka.DecodeJSON[RunEvent](value)
	if err != nil {
		return err
	}
	if c.runTag != "" && ev.RunTag != c.runTag {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runs[ev.RunID] == nil {
		c.runs[ev.RunID] = make(map[string]RunEvent)
	}
	c.runs[ev.RunID][ev.QueryID] = ev
	c.tags[ev.RunID] = ev.RunTag
	return nil
}

// Runs returns every collected run with queries in ascending id order.
func (c *RunCollector) Runs() []Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Run, 0, len(c.runs))
	for runID, queries := range c.runs {
		run := Run{ID: runID, Tag: c.tags[runID]}
		for _, ev := range queries {
			if run.CreatedAt.IsZero() || ev.CreatedAt.Before(run.CreatedAt) {
				run.CreatedAt = ev.CreatedAt
			}
			qr := ranking.QueryResult{QueryID: ev.QueryID, Docs: make([]ranking.ScoredDoc, 0, len(ev.Docs))}
			for _, d := range ev.Docs {
				qr.Docs = append(qr.Docs, ranking.ScoredDoc{DocID: d.DocID, Score: d.Score})
			}
			run.Results = append(run.Results, qr)
		}
		sortResults(run.Results)
		out = append(out, run)
	}
	sortRuns(out)
	return out
}
