package feed

import (
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/campus-board-api/internal/models"
)

// SortOrder selects a user-level re-sort of the filtered list.
type SortOrder string

const (
	// SortNone keeps the base (pinned-first, newest-first) ordering.
	SortNone   SortOrder = ""
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// FilterAll is the sentinel matching every category or department.
const FilterAll = "all"

// NewWindow is how long a notice counts as "new" for display purposes.
const NewWindow = 24 * time.Hour

// UserFilters is the set of user-supplied filters layered on top of the
// visibility-filtered feed. All predicates AND together.
type UserFilters struct {
	Query      string
	Category   string
	Department string
	From       *time.Time
	Until      *time.Time
	Sort       SortOrder
}

// Apply filters notices by query, category, department and creation-date
// range, drops expired notices relative to now, and finally applies the
// user sort when one is requested.
//
// A requested sort orders purely by creation time and deliberately overrides
// the pinned-first base ordering: "oldest first" interleaves pinned and
// unpinned notices by date. Without a sort the input order is preserved.
func (f UserFilters) Apply(notices []models.Notice, now time.Time) []models.Notice {
	query := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]models.Notice, 0, len(notices))
	for _, n := range notices {
		if n.Expired(now) {
			continue
		}
		if !matchesQuery(n, query) {
			continue
		}
		if !matchesChoice(string(n.Category), f.Category) {
			continue
		}
		if !matchesDepartment(n, f.Department) {
			continue
		}
		if f.From != nil && n.CreatedAt.Before(*f.From) {
			continue
		}
		if f.Until != nil && n.CreatedAt.After(*f.Until) {
			continue
		}
		out = append(out, n)
	}

	switch f.Sort {
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	}

	return out
}

// IsNew reports whether the notice was created within the last 24 hours.
// Display annotation only; never a filter.
func IsNew(n models.Notice, now time.Time) bool {
	return now.Sub(n.CreatedAt) < NewWindow
}

func matchesQuery(n models.Notice, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(n.Title), query) ||
		strings.Contains(strings.ToLower(n.Description), query)
}

func matchesChoice(value, selected string) bool {
	return selected == "" || selected == FilterAll || value == selected
}

func matchesDepartment(n models.Notice, selected string) bool {
	if selected == "" || selected == FilterAll {
		return true
	}
	return n.Department != nil && *n.Department == selected
}
