// Package aggregate collapses exact-duplicate event rows into counted rows.
package aggregate

import "github.com/eventload/eventload/pkg/types"

// groupKey is the tuple of every non-count field. Two rows fall in the same
// group only if all eight fields are equal, timestamp included.
type groupKey struct {
	id, timestamp, email, country, ip, uri, action, tags string
}

func keyOf(r types.EventRow) groupKey {
	return groupKey{r.ID, r.Timestamp, r.Email, r.Country, r.IP, r.URI, r.Action, r.Tags}
}

// Aggregate returns one row per distinct tuple with Count set to the number
// of raw rows in the group. A row that already carries a count contributes
// that count. Groups come out in order of first appearance, but callers
// should treat the order as unspecified. The input is not modified.
func Aggregate(rows []types.EventRow) []types.EventRow {
	if len(rows) == 0 {
		return nil
	}

	groups := make(map[groupKey]int, len(rows))
	out := make([]types.EventRow, 0, len(rows))

	for _, r := range rows {
		k := keyOf(r)
		if i, ok := groups[k]; ok {
			out[i].Count += r.Weight()
			continue
		}
		r.Count = r.Weight()
		groups[k] = len(out)
		out = append(out, r)
	}
	return out
}

// Total returns how many raw rows the given rows stand for.
func Total(rows []types.EventRow) int64 {
	var n int64
	for _, r := range rows {
		n += r.Weight()
	}
	return n
}
