package scheduler

import "sort"

// roundRobin picks up to n ids starting after cursor, wrapping around.
// ids need not be sorted. It returns the selection in service order and
// the new cursor (the last id served, or the old cursor if nothing was
// selected).
func roundRobin(ids []string, cursor string, n int) ([]string, string) {
	if len(ids) == 0 || n <= 0 {
		return nil, cursor
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	start := sort.SearchStrings(sorted, cursor)
	if start < len(sorted) && sorted[start] == cursor {
		start++
	}
	if n > len(sorted) {
		n = len(sorted)
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, sorted[(start+i)%len(sorted)])
	}
	return out, out[len(out)-1]
}
