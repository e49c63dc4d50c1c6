package ranking

// Normalize rescales scores into [0, 1] with min-max normalisation and
// returns a new slice in the same order. When every score is equal each
// document gets 1.0.
func Normalize(docs []ScoredDoc) []ScoredDoc {
	out := make([]ScoredDoc, len(docs))
	if len(docs) == 0 {
		return out
	}
	lo, hi := docs[0].Score, docs[0].Score
	for _, d := range docs[1:] {
		lo = min(lo, d.Score)
		hi = max(hi, d.Score)
	}
	for i, d := range docs {
		out[i] = ScoredDoc{DocID: d.DocID, Score: 1.0}
		if hi > lo {
			out[i].Score = (d.Score - lo) / (hi - lo)
		}
	}
	return out
}
