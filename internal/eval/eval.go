// Package eval scores a TREC run against relevance judgements with the
// trec_eval definitions of MAP, precision, reciprocal rank, nDCG and recall.
package eval

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// Qrels maps query id → document id → relevance grade.
type Qrels map[string]map[string]int

// Run maps query id → document id → score.
type Run map[string]map[string]float64

// DefaultMeasures is the measure set reported by cmd/evaluate.
var DefaultMeasures = []string{"map", "P_10", "P_20", "recip_rank", "ndcg", "ndcg_cut_10", "recall_100"}

// LoadQrels reads a qrels file.
func LoadQrels(path string) (Qrels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening qrels: %w", err)
	}
	defer f.Close()
	return ReadQrels(f)
}

// ReadQrels parses "<qid> <iter> <doc> <rel>" lines. Blank lines are skipped.
func ReadQrels(r io.Reader) (Qrels, error) {
	qrels := make(Qrels)
	err := scanFields(r, 4, func(line int, f []string) error {
		rel, err := strconv.Atoi(f[3])
		if err != nil {
			return fmt.Errorf("%w: qrels line %d: relevance %q", apperrors.ErrInvalidInput, line, f[3])
		}
		docs, ok := qrels[f[0]]
		if !ok {
			docs = make(map[string]int)
			qrels[f[0]] = docs
		}
		docs[f[2]] = rel
		return nil
	})
	if err != nil {
		return nil, err
	}
	return qrels, nil
}

// LoadRun reads a six-column TREC run file.
func LoadRun(path string) (Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening run: %w", err)
	}
	defer f.Close()
	return ReadRun(f)
}

// ReadRun parses "<qid> Q0 <doc> <rank> <score> <tag>" lines. The rank
// column is ignored; documents are ordered by score when evaluated.
func ReadRun(r io.Reader) (Run, error) {
	run := make(Run)
	err := scanFields(r, 6, func(line int, f []string) error {
		score, err := strconv.ParseFloat(f[4], 64)
		if err != nil {
			return fmt.Errorf("%w: run line %d: score %q", apperrors.ErrInvalidInput, line, f[4])
		}
		docs, ok := run[f[0]]
		if !ok {
			docs = make(map[string]float64)
			run[f[0]] = docs
		}
		docs[f[2]] = score
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RunFromResults converts ranked results into a Run.
func RunFromResults(results []ranking.QueryResult) Run {
	run := make(Run, len(results))
	for _, qr := range results {
		if len(qr.Docs) == 0 {
			continue
		}
		docs := make(map[string]float64, len(qr.Docs))
		for _, d := range qr.Docs {
			docs[d.DocID] = d.Score
		}
		run[qr.QueryID] = docs
	}
	return run
}

func scanFields(r io.Reader, want int, fn func(line int, fields []string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != want {
			return fmt.Errorf("%w: line %d: want %d columns, got %d", apperrors.ErrInvalidInput, line, want, len(fields))
		}
		if err := fn(line, fields); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading line %d: %w", line+1, err)
	}
	return nil
}

type measureFunc func(ranked []string, judged map[string]int) float64

// parseMeasure understands map, recip_rank, ndcg and the cutoff families
// P_<k>, recall_<k> and ndcg_cut_<k>.
func parseMeasure(name string) (measureFunc, error) {
	switch name {
	case "map":
		return averagePrecision, nil
	case "recip_rank":
		return reciprocalRank, nil
	case "ndcg":
		return func(r []string, j map[string]int) float64 { return ndcg(r, j, 0) }, nil
	}
	if k, ok := cutoff(name, "P_"); ok {
		return func(r []string, j map[string]int) float64 { return precisionAt(r, j, k) }, nil
	}
	if k, ok := cutoff(name, "recall_"); ok {
		return func(r []string, j map[string]int) float64 { return recallAt(r, j, k) }, nil
	}
	if k, ok := cutoff(name, "ndcg_cut_"); ok {
		return func(r []string, j map[string]int) float64 { return ndcg(r, j, k) }, nil
	}
	return nil, fmt.Errorf("%w: unknown measure %q", apperrors.ErrInvalidInput, name)
}

func cutoff(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	k, err := strconv.Atoi(rest)
	if err != nil || k <= 0 {
		return 0, false
	}
	return k, true
}

// Evaluate scores every query present in both qrels and run. The result maps
// query id → measure → value.
func Evaluate(qrels Qrels, run Run, measures []string) (map[string]map[string]float64, error) {
	funcs := make(map[string]measureFunc, len(measures))
	for _, name := range measures {
		fn, err := parseMeasure(name)
		if err != nil {
			return nil, err
		}
		funcs[name] = fn
	}

	out := make(map[string]map[string]float64)
	for qid, scores := range run {
		judged, ok := qrels[qid]
		if !ok {
			continue
		}
		ranked := rankedDocs(scores)
		values := make(map[string]float64, len(funcs))
		for name, fn := range funcs {
			values[name] = fn(ranked, judged)
		}
		out[qid] = values
	}
	return out, nil
}

// Mean averages each measure over the evaluated queries.
func Mean(perQuery map[string]map[string]float64) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	qids := make([]string, 0, len(perQuery))
	for qid := range perQuery {
		qids = append(qids, qid)
	}
	sort.Strings(qids)
	for _, qid := range qids {
		for name, v := range perQuery[qid] {
			sums[name] += v
			counts[name]++
		}
	}
	means := make(map[string]float64, len(sums))
	for name, sum := range sums {
		means[name] = sum / float64(counts[name])
	}
	return means
}

// WriteSummary prints one "<measure padded to 20>: <value>" line per
// measure, sorted by name.
func WriteSummary(w io.Writer, means map[string]float64) error {
	names := make([]string, 0, len(means))
	for name := range means {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%-20s: %.4f\n", name, means[name]); err != nil {
			return err
		}
	}
	return nil
}

// rankedDocs orders by score descending, ties by document id descending.
func rankedDocs(scores map[string]float64) []string {
	docs := make([]string, 0, len(scores))
	for doc := range scores {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		si, sj := scores[docs[i]], scores[docs[j]]
		if si != sj {
			return si > sj
		}
		return docs[i] > docs[j]
	})
	return docs
}

func numRelevant(judged map[string]int) int {
	n := 0
	for _, rel := range judged {
		if rel > 0 {
			n++
		}
	}
	return n
}

func averagePrecision(ranked []string, judged map[string]int) float64 {
	total := numRelevant(judged)
	if total == 0 {
		return 0
	}
	var hits int
	var sum float64
	for i, doc := range ranked {
		if judged[doc] > 0 {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	return sum / float64(total)
}

func precisionAt(ranked []string, judged map[string]int, k int) float64 {
	hits := 0
	for i := 0; i < k && i < len(ranked); i++ {
		if judged[ranked[i]] > 0 {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

func recallAt(ranked []string, judged map[string]int, k int) float64 {
	total := numRelevant(judged)
	if total == 0 {
		return 0
	}
	hits := 0
	for i := 0; i < k && i < len(ranked); i++ {
		if judged[ranked[i]] > 0 {
			hits++
		}
	}
	return float64(hits) / float64(total)
}

func reciprocalRank(ranked []string, judged map[string]int) float64 {
	for i, doc := range ranked {
		if judged[doc] > 0 {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// ndcg uses the relevance grade as gain and log2(rank+1) as discount. k <= 0
// means the whole ranking.
func ndcg(ranked []string, judged map[string]int, k int) float64 {
	gains := make([]int, 0, len(judged))
	for _, rel := range judged {
		if rel > 0 {
			gains = append(gains, rel)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(gains)))

	limit := len(ranked)
	if k > 0 && k < limit {
		limit = k
	}
	var dcg float64
	for i := 0; i < limit; i++ {
		if rel := judged[ranked[i]]; rel > 0 {
			dcg += float64(rel) / math.Log2(float64(i+2))
		}
	}

	idealLimit := len(gains)
	if k > 0 && k < idealLimit {
		idealLimit = k
	}
	var idcg float64
	for i := 0; i < idealLimit; i++ {
		idcg += float64(gains[i]) / math.Log2(float64(i+2))
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}
