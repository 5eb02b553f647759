package contact

import (
	"sort"
)

// Record is one row of the merged contact table.
type Record struct {
	Status      string `json:"status"`
	TotalCalls  int    `json:"total_calls"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	SourceFile  string `json:"source_file"`
}

// PhoneSet is a read-only view of exported phone numbers.
type PhoneSet interface {
	Contains(phone string) bool
}

// Filter returns the records whose status is one of statuses.
// An empty statuses slice means no filter: every record matches.
func Filter(records []Record, statuses []string) []Record {
	if len(statuses) == 0 {
		out := make([]Record, len(records))
		copy(out, records)
		return out
	}

	want := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		want[s] = struct{}{}
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if _, ok := want[r.Status]; ok {
			out = append(out, r)
		}
	}
	return out
}

// ExcludeDownloaded drops every record whose phone number is in exported.
// Rows sharing a phone number are dropped together.
func ExcludeDownloaded(records []Record, exported PhoneSet) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if exported != nil && exported.Contains(r.PhoneNumber) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Available applies the status filter then the exclusion filter.
func Available(records []Record, statuses []string, exported PhoneSet) []Record {
	return ExcludeDownloaded(Filter(records, statuses), exported)
}

// Statuses returns the distinct statuses in records, sorted.
func Statuses(records []Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[r.Status] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
