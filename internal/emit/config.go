package emit

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/postgres"
)

// FromConfig assembles the sinks enabled in cfg. The TREC file sink is
// always first. Sinks opened before a failure are closed again.
func FromConfig(ctx context.Context, cfg config.OutputConfig, m *metrics.Metrics) (*MultiSink, error) {
	sinks := []Sink{NewFileSink(cfg.ResultsPath)}
	fail := func(err error) (*MultiSink, error) {
		NewMultiSink(nil, sinks...).Close()
		return nil, err
	}

	if cfg.Kafka.Enabled {
		sinks = append(sinks, NewKafkaSink(kafka.NewProducer(cfg.Kafka)))
	}
	if cfg.Postgres.Enabled {
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fail(fmt.Errorf("postgres sink: %w", err))
		}
		sink, err := NewSQLSink(ctx, client, Postgres)
		if err != nil {
			client.Close()
			return fail(err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.SQLite.Enabled {
		sink, err := OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("sqlite sink: %w", err))
		}
		sinks = append(sinks, sink)
	}
	ms := NewMultiSink(m, sinks...)
	ms.timeout = cfg.SinkTimeout
	return ms, nil
}

// Names lists the sinks in emission order.
func (ms *MultiSink) Names() []string {
	names := make([]string, len(ms.sinks))
	for i, s := range ms.sinks {
		names[i] = s.Name()
	}
	return names
}
