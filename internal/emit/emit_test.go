package emit

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/kafka"
)

func sampleResults() []ranking.QueryResult {
	return []ranking.QueryResult{
		{QueryID: "1", Docs: []ranking.ScoredDoc{{DocID: "D3", Score: 0.908952}, {DocID: "D1", Score: 0.7898}, {DocID: "D2", Score: 0}}},
		{QueryID: "3", Docs: []ranking.ScoredDoc{}},
		{QueryID: "5", Docs: []ranking.ScoredDoc{{DocID: "D9", Score: 12.3456789}}},
	}
}

const sampleTREC = `1 Q0 D3 1 0.908952 vsm_tfidf
1 Q0 D1 2 0.789800 vsm_tfidf
1 Q0 D2 3 0.000000 vsm_tfidf
5 Q0 D9 1 12.345679 vsm_tfidf
`

func TestWriteTREC(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTREC(&buf, "vsm_tfidf", sampleResults()))
	require.Equal(t, sampleTREC, buf.String())
}

func TestFileSinkWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "Results")
	sink := NewFileSink(path)
	require.NoError(t, sink.Emit(context.Background(), NewRun("vsm_tfidf", sampleResults())))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, sampleTREC, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

type failingSink struct {
	name    string
	err     error
	emitted int
}

func (f *failingSink) Name() string { return f.name }
func (f *failingSink) Emit(context.Context, Run) error {
	f.emitted++
	return f.err
}
func (f *failingSink) Close() error { return nil }

func TestMultiSinkAttemptsEverySink(t *testing.T) {
	errA := errors.New("a down")
	a := &failingSink{name: "a", err: errA}
	b := &failingSink{name: "b"}
	var buf bytes.Buffer
	ms := NewMultiSink(nil, a, b, NewWriterSink(&buf))

	err := ms.Emit(context.Background(), NewRun("bm25", sampleResults()))
	require.ErrorIs(t, err, errA)
	require.Equal(t, 1, a.emitted)
	require.Equal(t, 1, b.emitted)
	require.Contains(t, buf.String(), "5 Q0 D9 1 12.345679 bm25\n")
	require.NoError(t, ms.Close())
}

type stalledSink struct{ emitted int }

func (s *stalledSink) Name() string { return "stalled" }
func (s *stalledSink) Emit(ctx context.Context, _ Run) error {
	s.emitted++
	<-ctx.Done()
	return ctx.Err()
}
func (s *stalledSink) Close() error { return nil }

func TestMultiSinkBoundsEachSink(t *testing.T) {
	stalled := &stalledSink{}
	after := &failingSink{name: "after"}
	ms := NewMultiSink(nil, stalled, after)
	ms.timeout = 20 * time.Millisecond

	start := time.Now()
	err := ms.Emit(context.Background(), NewRun("bm25", sampleResults()))
	require.ErrorIs(t, err, apperrors.ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 1, stalled.emitted)
	require.Equal(t, 1, after.emitted)
}

type memWriter struct {
	msgs []kafkago.Message
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func TestKafkaSinkRoundTrip(t *testing.T) {
	w := &memWriter{}
	sink := NewKafkaSink(kafka.NewProducerWithWriter(w, "ranking-runs"))
	run := NewRun("bm25", sampleResults())
	require.NoError(t, sink.Emit(context.Background(), run))
	require.Len(t, w.msgs, 3)
	require.Equal(t, "1", string(w.msgs[0].Key))

	collector := NewRunCollector("bm25")
	other := NewRunCollector("vsm_tfidf")
	for i := len(w.msgs) - 1; i >= 0; i-- {
		require.NoError(t, collector.Handle(context.Background(), w.msgs[i].Key, w.msgs[i].Value))
		require.NoError(t, other.Handle(context.Background(), w.msgs[i].Key, w.msgs[i].Value))
	}
	require.Empty(t, other.Runs())

	runs := collector.Runs()
	require.Len(t, runs, 1)
	require.Equal(t, run.ID, runs[0].ID)
	require.Equal(t, "bm25", runs[0].Tag)
	require.Equal(t, run.Results, runs[0].Results)

	require.Error(t, collector.Handle(context.Background(), nil, []byte("not json")))
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	sink, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer sink.Close()

	run := NewRun("vsm_tfidf", sampleResults())
	require.NoError(t, sink.Emit(ctx, run))

	db := sink.client.DB
	var tag string
	var queries int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT run_tag, queries FROM runs WHERE run_id = ?", run.ID).Scan(&tag, &queries))
	require.Equal(t, "vsm_tfidf", tag)
	require.Equal(t, 3, queries)

	rows, err := db.QueryContext(ctx, "SELECT query_id, rank, doc_id, score FROM run_results WHERE run_id = ? ORDER BY query_id, rank", run.ID)
	require.NoError(t, err)
	defer rows.Close()
	type row struct {
		query string
		rank  int
		doc   string
		score float64
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.query, &r.rank, &r.doc, &r.score))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []row{
		{"1", 1, "D3", 0.908952},
		{"1", 2, "D1", 0.7898},
		{"1", 3, "D2", 0},
		{"5", 1, "D9", 12.3456789},
	}, got)

	// Re-emitting the same run violates the primary key and is reported.
	sink.retry.InitialDelay = time.Millisecond
	require.Error(t, sink.Emit(ctx, run))
	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_results").Scan(&count))
	require.Equal(t, 4, count)
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default().Output
	cfg.ResultsPath = filepath.Join(dir, "Results")
	cfg.SQLite.Enabled = true
	cfg.SQLite.Path = filepath.Join(dir, "runs.db")

	ms, err := FromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"file", "sqlite"}, ms.Names())
	require.Equal(t, 30*time.Second, ms.timeout)
	require.NoError(t, ms.Emit(context.Background(), NewRun("bm25", sampleResults())))
	require.NoError(t, ms.Close())
	require.FileExists(t, cfg.ResultsPath)
}
