// ranker builds or loads the posting store, ranks every query with the
// configured model and writes a TREC run file plus any enabled sinks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/emit"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/runner"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("ranker", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to YAML config file")
	model := flags.StringP("model", "m", "", "ranking model: vsm or bm25")
	topK := flags.IntP("top-k", "k", 0, "documents per query (0 keeps the configured value)")
	runTag := flags.String("run-tag", "", "run tag written in the sixth column")
	results := flags.StringP("output", "o", "", "TREC run file path")
	documents := flags.String("documents", "", "preprocessed documents file")
	queries := flags.String("queries", "", "preprocessed queries file")
	filter := flags.String("filter", "", "query filter: all, odd or even (default from config: odd)")
	indexPath := flags.String("index", "", "persisted index path")
	rebuild := flags.Bool("rebuild", false, "ignore any persisted index and rebuild it")
	workers := flags.Int("workers", 0, "concurrent ranking workers")
	analyze := flags.Bool("analyze", false, "tokenize records that carry raw title/text instead of tokens")
	stopWords := flags.String("stopwords", "", "stop-word list for --analyze (one word per line)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if flags.Changed("model") {
		cfg.Ranking.Model = *model
	}
	if flags.Changed("top-k") {
		cfg.Ranking.TopK = *topK
	}
	if flags.Changed("run-tag") {
		cfg.Ranking.RunTag = *runTag
	}
	if flags.Changed("output") {
		cfg.Output.ResultsPath = *results
	}
	if flags.Changed("documents") {
		cfg.Corpus.DocumentsPath = *documents
	}
	if flags.Changed("queries") {
		cfg.Corpus.QueriesPath = *queries
	}
	if flags.Changed("filter") {
		cfg.Corpus.QueryFilter = *filter
	}
	if flags.Changed("index") {
		cfg.Index.Path = *indexPath
	}
	if flags.Changed("workers") {
		cfg.Ranking.Workers = *workers
	}
	cfg.Index.Rebuild = cfg.Index.Rebuild || *rebuild
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("ranker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	var loadOpts []corpus.Option
	if *analyze {
		var words []string
		if *stopWords != "" {
			if words, err = analysis.LoadStopWords(*stopWords); err != nil {
				return err
			}
		}
		loadOpts = append(loadOpts, corpus.WithAnalyzer(analysis.New(words, true)))
	}

	tag := cfg.Ranking.RunTagOrDefault()
	run := emit.NewRun(tag, nil)
	ctx, root := tracing.StartSpan(ctx, "run", run.ID)
	defer func() {
		root.Finish(nil)
		root.Log(log)
	}()

	var store *index.Store
	err = tracing.Stage(ctx, "open_index", func(ctx context.Context) error {
		source := func() ([]index.Document, error) {
			return corpus.LoadDocuments(cfg.Corpus.DocumentsPath, loadOpts...)
		}
		opened, err := indexer.Open(ctx, cfg.Index, source, m)
		if err != nil {
			return err
		}
		store = opened.Store
		tracing.SpanFromContext(ctx).SetAttr("outcome", opened.Outcome)
		if store.N() == 0 {
			return fmt.Errorf("%w: no documents in %s", apperrors.ErrEmptyCorpus, cfg.Corpus.DocumentsPath)
		}
		log.Info("index ready", "outcome", opened.Outcome, "documents", store.N(), "terms", len(store.Terms()))
		return nil
	})
	if err != nil {
		return err
	}

	ranker, err := ranking.New(cfg.Ranking, store)
	if err != nil {
		return err
	}

	var qs []index.Query
	err = tracing.Stage(ctx, "load_queries", func(ctx context.Context) error {
		queryFilter, err := corpus.ParseFilter(cfg.Corpus.QueryFilter)
		if err != nil {
			return err
		}
		qs, err = corpus.LoadQueries(cfg.Corpus.QueriesPath, queryFilter, loadOpts...)
		if err != nil {
			return err
		}
		corpus.SortQueries(qs)
		tracing.SpanFromContext(ctx).SetAttr("queries", len(qs))
		return nil
	})
	if err != nil {
		return err
	}

	err = tracing.Stage(ctx, "rank", func(ctx context.Context) error {
		r, err := runner.New(ranker, cfg.Ranking.TopK, cfg.Ranking.Workers, m)
		if err != nil {
			return err
		}
		run.Results, err = r.Run(ctx, qs)
		return err
	})
	if err != nil {
		return err
	}

	sinks, err := emit.FromConfig(ctx, cfg.Output, m)
	if err != nil {
		return err
	}
	defer sinks.Close()
	err = tracing.Stage(ctx, "emit", func(ctx context.Context) error {
		tracing.SpanFromContext(ctx).SetAttr("sinks", sinks.Names())
		return sinks.Emit(ctx, run)
	})
	if err != nil {
		return err
	}

	slog.Info("run complete",
		"run_id", run.ID,
		"model", ranker.Name(),
		"run_tag", tag,
		"queries", len(run.Results),
		"results", cfg.Output.ResultsPath,
	)
	return nil
}
