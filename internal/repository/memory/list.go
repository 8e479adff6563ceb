package memory

import (
	"cmp"
	"slices"
	"time"

	"carpool/internal/repository"
)

// page sorts items newest first, ties broken by ID, and cuts the window f
// asks for. It returns the window and the number of items before cutting.
func page[T any](items []T, f repository.ListFilter, created func(*T) time.Time, id func(*T) string) ([]*T, int) {
	slices.SortFunc(items, func(a, b T) int {
		if c := created(&b).Compare(created(&a)); c != 0 {
			return c
		}
		return cmp.Compare(id(&a), id(&b))
	})

	total := len(items)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}

	out := make([]*T, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, &items[i])
	}
	return out, total
}

// matches applies the TripID and Status parts of a filter.
func matches(f repository.ListFilter, tripID, status string) bool {
	return (f.TripID == "" || f.TripID == tripID) && (f.Status == "" || f.Status == status)
}
