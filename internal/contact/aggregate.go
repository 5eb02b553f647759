package contact

import (
	"sort"
)

// StatusCount is the number of records carrying one status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// CallBucket counts records with a given call total and status.
type CallBucket struct {
	TotalCalls int    `json:"total_calls"`
	Status     string `json:"status"`
	Count      int    `json:"count"`
}

// StatusCounts returns per-status counts, most frequent first.
// Ties are broken by status name so the output is stable.
func StatusCounts(records []Record) []StatusCount {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Status]++
	}

	out := make([]StatusCount, 0, len(counts))
	for s, n := range counts {
		out = append(out, StatusCount{Status: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Status < out[j].Status
	})
	return out
}

// CallHistogram groups records by (total_calls, status), ordered by call
// total then status.
func CallHistogram(records []Record) []CallBucket {
	type key struct {
		calls  int
		status string
	}
	counts := make(map[key]int)
	for _, r := range records {
		counts[key{r.TotalCalls, r.Status}]++
	}

	out := make([]CallBucket, 0, len(counts))
	for k, n := range counts {
		out = append(out, CallBucket{TotalCalls: k.calls, Status: k.status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalCalls != out[j].TotalCalls {
			return out[i].TotalCalls < out[j].TotalCalls
		}
		return out[i].Status < out[j].Status
	})
	return out
}
