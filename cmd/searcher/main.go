// searcher serves ad-hoc ranked retrieval over HTTP from the persisted index.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docrank/pkg/redis"
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
	flags := pflag.NewFlagSet("searcher", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to YAML config file")
	port := flags.IntP("port", "p", 0, "HTTP port (0 keeps the configured value)")
	stopWords := flags.String("stopwords", "", "stop-word list applied to queries (one word per line)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if flags.Changed("port") {
		cfg.Server.Port = *port
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index", cfg.Index.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdown(context.Background())
	}

	opened, err := indexer.Open(ctx, cfg.Index, func() ([]index.Document, error) {
		return corpus.LoadDocuments(cfg.Corpus.DocumentsPath)
	}, m)
	if err != nil {
		return err
	}
	store, outcome := opened.Store, opened.Outcome
	if store.N() == 0 {
		return fmt.Errorf("%w: index at %s has no documents", apperrors.ErrEmptyCorpus, cfg.Index.Path)
	}
	rankers, err := ranking.NewAll(cfg.Ranking, store)
	if err != nil {
		return err
	}

	var words []string
	if *stopWords != "" {
		if words, err = analysis.LoadStopWords(*stopWords); err != nil {
			return err
		}
	}
	analyzer := analysis.New(words, true)

	namespace := opened.Digest
	if namespace == "" {
		namespace = uuid.NewString()
		slog.Warn("index file does not hold the served store, cache namespace is per-process", "outcome", outcome)
	}
	namespace = namespace[:16]

	var redisClient *pkgredis.Client
	var remote cache.Remote
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using local cache only", "error", err)
		} else {
			defer redisClient.Close()
			remote = redisClient
		}
	}
	queryCache, err := cache.New(cache.Config{
		Namespace: namespace,
		LocalSize: cfg.Search.LocalCacheSize,
		TTL:       cfg.Redis.CacheTTL,
	}, remote, m)
	if err != nil {
		return err
	}

	checker := health.NewChecker(0)
	checker.Register("index", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%s: %d documents, %d terms", outcome, store.N(), len(store.Terms())),
		}
	})
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
	}

	h := handler.New(rankers, analyzer, queryCache, m, handler.Options{
		DefaultModel: cfg.Ranking.Model,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})
	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "cache_namespace", namespace)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("search service stopped")
	return nil
}
