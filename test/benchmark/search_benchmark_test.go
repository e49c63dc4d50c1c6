package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/runner"
)

func rankers(b *testing.B, store *index.Store) map[string]ranking.Ranker {
	vsm, err := ranking.NewVSM(store)
	if err != nil {
		b.Fatal(err)
	}
	bm25, err := ranking.NewBM25(store)
	if err != nil {
		b.Fatal(err)
	}
	return map[string]ranking.Ranker{"vsm": vsm, "bm25": bm25}
}

func BenchmarkRank(b *testing.B) {
	store := index.Build(syntheticCorpus(10000, 100, 5000))
	queries := map[string][]string{
		"common": {"t1", "t2", "t3"},
		"rare":   {"t4000", "t4100"},
		"long":   {"t1", "t5", "t17", "t80", "t300", "t900", "t2000", "t4500"},
	}
	for model, r := range rankers(b, store) {
		for name, tokens := range queries {
			for _, k := range []int{10, 100} {
				b.Run(fmt.Sprintf("%s/%s/top_%d", model, name, k), func(b *testing.B) {
					b.ReportAllocs()
					for i := 0; i < b.N; i++ {
						_ = r.Rank(tokens, k)
					}
				})
			}
		}
	}
}

func BenchmarkRankParallel(b *testing.B) {
	store := index.Build(syntheticCorpus(10000, 100, 5000))
	r := rankers(b, store)["bm25"]
	tokens := []string{"t1", "t5", "t17", "t80"}
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = r.Rank(tokens, 100)
		}
	})
}

func BenchmarkRunnerWorkers(b *testing.B) {
	store := index.Build(syntheticCorpus(5000, 100, 5000))
	qs := make([]index.Query, 300)
	for i := range qs {
		qs[i] = index.Query{ID: fmt.Sprint(i + 1), Tokens: []string{fmt.Sprintf("t%d", i%50), fmt.Sprintf("t%d", i*7%3000)}}
	}
	r := rankers(b, store)["vsm"]
	for _, workers := range []int{1, 4, 8} {
		run, err := runner.New(r, 100, workers, nil)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := run.Run(context.Background(), qs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
