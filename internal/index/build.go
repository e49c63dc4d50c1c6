package index

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// Build indexes docs in a single pass. A zero-token document gets length 0
// and no postings. When an id repeats, the last document with that id wins.
func Build(docs []Document) *Store {
	latest := make(map[string]int, len(docs))
	for i, doc := range docs {
		latest[doc.ID] = i
	}

	postings := make(map[string]PostingList)
	docLengths := make(map[string]int, len(latest))
	for i, doc := range docs {
		if latest[doc.ID] != i {
			continue
		}
		termCounts := make(map[string]int)
		order := make([]string, 0, len(doc.Tokens))
		for _, token := range doc.Tokens {
			if _, seen := termCounts[token]; !seen {
				order = append(order, token)
			}
			termCounts[token]++
		}
		for _, term := range order {
			postings[term] = append(postings[term], Posting{
				DocID:     doc.ID,
				Frequency: termCounts[term],
			})
		}
		docLengths[doc.ID] = len(doc.Tokens)
	}
	return newStore(postings, docLengths)
}

// BuildSharded partitions docs by id hash, builds one partial store per
// shard concurrently and merges the partials. The result equals Build(docs).
func BuildSharded(ctx context.Context, docs []Document, shards int) (*Store, error) {
	if shards <= 1 {
		return Build(docs), nil
	}
	router, err := shard.NewRouter(shards)
	if err != nil {
		return nil, err
	}
	parts := shard.Split(router, docs, func(d Document) string { return d.ID })

	partials := make([]*Store, len(parts))
	g, ctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			partials[i] = Build(part)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building shards: %w", err)
	}
	return Merge(partials...)
}

// Merge unions disjoint partial stores. A document present in more than one
// partial is rejected.
func Merge(parts ...*Store) (*Store, error) {
	postings := make(map[string]PostingList)
	docLengths := make(map[string]int)
	for _, part := range parts {
		if part == nil {
			continue
		}
		for docID, length := range part.docLengths {
			if _, dup := docLengths[docID]; dup {
				return nil, fmt.Errorf("%w: document %q appears in more than one shard",
					apperrors.ErrInvalidInput, docID)
			}
			docLengths[docID] = length
		}
		for term, pl := range part.postings {
			postings[term] = append(postings[term], pl...)
		}
	}
	return newStore(postings, docLengths), nil
}
