// Package indexer opens the posting store for a run: it loads the persisted
// index when one is usable and otherwise builds it from the corpus and saves
// it for the next run.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/persist"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
)

// DocumentSource produces the corpus. It is only called when a build is
// needed.
type DocumentSource func() ([]index.Document, error)

// Outcome says how Open obtained the store.
type Outcome string

const (
	OutcomeLoaded       Outcome = "loaded"
	OutcomeBuiltMissing Outcome = "built_missing"
	OutcomeBuiltCorrupt Outcome = "built_corrupt"
	OutcomeBuiltForced  Outcome = "built_forced"
)

// Built reports whether the store came from the corpus rather than disk.
func (o Outcome) Built() bool {
	return o != OutcomeLoaded
}

// Index is an opened posting store. Digest is the BLAKE3 digest of the
// file at the configured path and is empty when that file does not hold
// Store, for example because saving a fresh build failed.
type Index struct {
	Store   *index.Store
	Outcome Outcome
	Digest  string
}

// Open returns the store described by cfg. m may be nil.
func Open(ctx context.Context, cfg config.IndexConfig, source DocumentSource, m *metrics.Metrics) (*Index, error) {
	logger := slog.Default().With("component", "indexer", "path", cfg.Path)
	opts, err := persist.ParseOptions(cfg.Codec, cfg.Compression)
	if err != nil {
		return nil, err
	}

	outcome := OutcomeBuiltForced
	if !cfg.Rebuild {
		res := persist.Load(cfg.Path, opts)
		switch res.Status {
		case persist.StatusFound:
			d := digest(cfg.Path)
			logger.Info("index loaded",
				"documents", res.Store.N(),
				"terms", len(res.Store.Terms()),
				"digest", d,
			)
			m.ObserveIndex(string(OutcomeLoaded), res.Store.N(), len(res.Store.Terms()))
			return &Index{Store: res.Store, Outcome: OutcomeLoaded, Digest: d}, nil
		case persist.StatusNotFound:
			logger.Info("no persisted index, building", "reason", res.Err)
			outcome = OutcomeBuiltMissing
		case persist.StatusCorrupt:
			logger.Warn("persisted index is corrupt, rebuilding", "error", res.Err)
			outcome = OutcomeBuiltCorrupt
		}
	}

	store, err := build(ctx, cfg, source, m)
	if err != nil {
		return nil, err
	}
	opened := &Index{Store: store, Outcome: outcome}
	if err := persist.Save(store, cfg.Path, opts); err != nil {
		logger.Error("saving index failed, continuing with in-memory store", "error", err)
	} else {
		opened.Digest = digest(cfg.Path)
		logger.Info("index saved",
			"codec", opts.Codec,
			"compression", opts.Compression,
			"digest", opened.Digest,
		)
	}
	m.ObserveIndex(string(outcome), store.N(), len(store.Terms()))
	return opened, nil
}

func build(ctx context.Context, cfg config.IndexConfig, source DocumentSource, m *metrics.Metrics) (*index.Store, error) {
	if source == nil {
		return nil, fmt.Errorf("building index: no document source")
	}
	docs, err := source()
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}

	start := time.Now()
	store, err := index.BuildSharded(ctx, docs, cfg.Shards)
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	elapsed := time.Since(start)
	m.ObserveBuild(elapsed.Seconds())
	slog.Default().With("component", "indexer").Info("index built",
		"documents", store.N(),
		"terms", len(store.Terms()),
		"tokens", store.TotalTokens(),
		"shards", cfg.Shards,
		"duration_ms", elapsed.Milliseconds(),
	)
	return store, nil
}

func digest(path string) string {
	d, err := persist.Digest(path)
	if err != nil {
		return ""
	}
	return d
}
