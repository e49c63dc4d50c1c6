package emit

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
)

func sortResults(results []ranking.QueryResult) {
	sort.Slice(results, func(i, j int) bool {
		return index.LessQueryID(results[i].QueryID, results[j].QueryID)
	})
}

// sortRuns orders runs oldest first, then by id.
func sortRuns(runs []Run) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
