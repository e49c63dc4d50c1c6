package emit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/resilience"
)

// Dialect captures what differs between the SQL archives.
type Dialect struct {
	Name        string
	placeholder func(n int) string
}

var (
	Postgres = Dialect{Name: "postgres", placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
	SQLite   = Dialect{Name: "sqlite", placeholder: func(int) string { return "?" }}
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id     TEXT PRIMARY KEY,
		run_tag    TEXT NOT NULL,
		queries    INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS run_results (
		run_id   TEXT NOT NULL REFERENCES runs(run_id),
		query_id TEXT NOT NULL,
		rank     INTEGER NOT NULL,
		doc_id   TEXT NOT NULL,
		score    DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, query_id, rank)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_run_results_query ON run_results (run_id, query_id)`,
}

// SQLSink archives runs in the runs and run_results tables. Each run is
// written in one transaction, retried as a whole on failure.
type SQLSink struct {
	client  *postgres.Client
	dialect Dialect
	retry   resilience.RetryConfig
}

// NewSQLSink creates the archive tables if needed.
func NewSQLSink(ctx context.Context, client *postgres.Client, dialect Dialect) (*SQLSink, error) {
	if err := client.Migrate(ctx, schema...); err != nil {
		return nil, fmt.Errorf("preparing %s run archive: %w", dialect.Name, err)
	}
	return &SQLSink{
		client:  client,
		dialect: dialect,
		retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 250 * time.Millisecond},
	}, nil
}

func (s *SQLSink) Name() string { return s.dialect.Name }

func (s *SQLSink) Emit(ctx context.Context, run Run) error {
	p := s.dialect.placeholder
	insertRun := fmt.Sprintf(
		"INSERT INTO runs (run_id, run_tag, queries, created_at) VALUES (%s, %s, %s, %s)",
		p(1), p(2), p(3), p(4),
	)
	insertResult := fmt.Sprintf(
		"INSERT INTO run_results (run_id, query_id, rank, doc_id, score) VALUES (%s, %s, %s, %s, %s)",
		p(1), p(2), p(3), p(4), p(5),
	)
	return resilience.Retry(ctx, s.dialect.Name+"-sink", s.retry, func() error {
		return s.client.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, insertRun, run.ID, run.Tag, len(run.Results), run.CreatedAt); err != nil {
				return fmt.Errorf("inserting run %s: %w", run.ID, err)
			}
			stmt, err := tx.PrepareContext(ctx, insertResult)
			if err != nil {
				return fmt.Errorf("preparing result insert: %w", err)
			}
			defer stmt.Close()
			for _, qr := range run.Results {
				for i, doc := range qr.Docs {
					if _, err := stmt.ExecContext(ctx, run.ID, qr.QueryID, i+1, doc.DocID, doc.Score); err != nil {
						return fmt.Errorf("inserting result %s/%s: %w", qr.QueryID, doc.DocID, err)
					}
				}
			}
			return nil
		})
	})
}

func (s *SQLSink) Close() error {
	return s.client.Close()
}
