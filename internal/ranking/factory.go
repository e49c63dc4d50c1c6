package ranking

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// New builds the ranker named by cfg.Model over store.
func New(cfg config.RankingConfig, store *index.Store) (Ranker, error) {
	switch cfg.Model {
	case config.ModelVSM:
		return NewVSM(store)
	case config.ModelBM25:
		variant, err := ParseIDFVariant(cfg.BM25.IDF)
		if err != nil {
			return nil, err
		}
		opts := []Option{
			WithK1(cfg.BM25.K1),
			WithB(cfg.BM25.B),
			WithIDF(variant),
		}
		if cfg.BM25.AvgDocLength > 0 {
			opts = append(opts, WithAverageDocumentLength(cfg.BM25.AvgDocLength))
		}
		return NewBM25(store, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownModel, cfg.Model)
	}
}

// NewAll builds one ranker per supported model, keyed by name.
func NewAll(cfg config.RankingConfig, store *index.Store) (map[string]Ranker, error) {
	out := make(map[string]Ranker, 2)
	for _, model := range []string{config.ModelVSM, config.ModelBM25} {
		c := cfg
		c.Model = model
		r, err := New(c, store)
		if err != nil {
			return nil, err
		}
		out[model] = r
	}
	return out, nil
}
