package review

import (
	"sort"

	"github.com/reviewloop/reviewloop/internal/models"
)

// Reconciliation classifies the issue keys of one iteration against the
// previous one. Identity is exact (file, line, category) match; a one-line
// shift in a later critique reads as one resolved key plus one new key.
type Reconciliation struct {
	Resolved   []models.IssueKey
	Persisting []models.IssueKey
	New        []models.IssueKey
}

// Reconcile computes resolved = previous - current, persisting = previous
// intersect current, and new = current - previous. On the first iteration
// previous is empty, so nothing can be resolved. Results are sorted for
// stable logging and thread-update order.
func Reconcile(previous, current map[models.IssueKey]models.Issue) Reconciliation {
	var r Reconciliation
	for key := range previous {
		if _, ok := current[key]; ok {
			r.Persisting = append(r.Persisting, key)
		} else {
			r.Resolved = append(r.Resolved, key)
		}
	}
	for key := range current {
		if _, ok := previous[key]; !ok {
			r.New = append(r.New, key)
		}
	}
	sortKeys(r.Resolved)
	sortKeys(r.Persisting)
	sortKeys(r.New)
	return r
}

func sortKeys(keys []models.IssueKey) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Category < b.Category
	})
}
