package ranking

import (
	pq "github.com/emirpasic/gods/v2/queues/priorityqueue"
)

// selectTopK returns the k best entries of scores in output order. For
// k <= 0, or when every entry fits, it sorts everything. Otherwise it keeps
// a bounded queue whose head is the worst retained entry.
func selectTopK(scores map[string]float64, k int) []ScoredDoc {
	if k <= 0 || len(scores) <= k {
		docs := make([]ScoredDoc, 0, len(scores))
		for docID, score := range scores {
			docs = append(docs, ScoredDoc{DocID: docID, Score: score})
		}
		sortDocs(docs)
		return docs
	}

	worstFirst := func(a, b ScoredDoc) int {
		switch {
		case ranksBefore(b, a):
			return -1
		case ranksBefore(a, b):
			return 1
		default:
			return 0
		}
	}
	q := pq.NewWith(worstFirst)
	for docID, score := range scores {
		doc := ScoredDoc{DocID: docID, Score: score}
		if q.Size() < k {
			q.Enqueue(doc)
			continue
		}
		worst, _ := q.Peek()
		if ranksBefore(doc, worst) {
			q.Dequeue()
			q.Enqueue(doc)
		}
	}

	docs := make([]ScoredDoc, q.Size())
	for i := len(docs) - 1; i >= 0; i-- {
		docs[i], _ = q.Dequeue()
	}
	return docs
}
