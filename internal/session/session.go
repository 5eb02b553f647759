// Package session tracks which contacts an operator has already exported.
//
// A State owns one exclusion set and one export history. It changes only
// when an Export is committed or the State is reset; computing availability
// or building an export page never mutates it.
package session

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/rosa/internal/contact"
)

// ResetPolicy decides what Reset clears.
type ResetPolicy string

const (
	// ResetClear empties both the exclusion set and the history.
	ResetClear ResetPolicy = "clear"
	// ResetKeepHistory empties the exclusion set and keeps the history.
	ResetKeepHistory ResetPolicy = "keep"
)

// ParseResetPolicy maps a config value to a policy, defaulting to ResetClear.
func ParseResetPolicy(v string) ResetPolicy {
	if ResetPolicy(v) == ResetKeepHistory {
		return ResetKeepHistory
	}
	return ResetClear
}

var (
	ErrAlreadyCommitted = errors.New("export already committed")
	ErrEmptyExport      = errors.New("export page is empty")
)

// HistoryEntry records one committed export.
type HistoryEntry struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Statuses  []string  `json:"statuses"`
	Count     int       `json:"count"`
}

// State is the per-session exclusion set and export history.
type State struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu       sync.Mutex
	exported *Set
	history  []HistoryEntry
	policy   ResetPolicy
	now      func() time.Time
}

// New returns an empty session state.
func New(policy ResetPolicy, now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{
		ID:        uuid.New(),
		CreatedAt: now().UTC(),
		exported:  NewSet(),
		policy:    policy,
		now:       now,
	}
}

// Contains reports whether phone has already been exported.
func (s *State) Contains(phone string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exported.Contains(phone)
}

// Downloaded returns the number of distinct exported phone numbers.
func (s *State) Downloaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exported.Len()
}

// ExportedPhones returns the exclusion set members, sorted.
func (s *State) ExportedPhones() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exported.Phones()
}

// History returns a copy of the export history, oldest first.
func (s *State) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Available returns records matching statuses that have not been exported.
func (s *State) Available(records []contact.Record, statuses []string) []contact.Record {
	return contact.Available(records, statuses, s)
}

// Export builds the page of the first limit available records. Nothing is
// recorded until the returned Export is committed. Callers clamp limit with
// ClampLimit and must not call Export when available is empty.
func (s *State) Export(available []contact.Record, statuses []string, limit int) *Export {
	if limit > len(available) {
		limit = len(available)
	}
	if limit < 0 {
		limit = 0
	}
	page := make([]contact.Record, limit)
	copy(page, available[:limit])

	var sel []string
	if len(statuses) > 0 {
		sel = append([]string(nil), statuses...)
	}
	return &Export{Page: page, Statuses: sel, state: s}
}

// Reset clears the exclusion set, and the history too under ResetClear.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exported.clear()
	if s.policy != ResetKeepHistory {
		s.history = nil
	}
}

// Export is a computed page awaiting confirmation.
type Export struct {
	Page     []contact.Record
	Statuses []string

	state     *State
	committed bool
}

// Commit marks every phone number in the page as exported and appends one
// history entry. Both updates happen under the state lock.
func (e *Export) Commit() (HistoryEntry, error) {
	if len(e.Page) == 0 {
		return HistoryEntry{}, ErrEmptyExport
	}

	s := e.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.committed {
		return HistoryEntry{}, ErrAlreadyCommitted
	}

	for _, r := range e.Page {
		s.exported.Add(r.PhoneNumber)
	}
	entry := HistoryEntry{
		ID:        uuid.New(),
		Timestamp: s.now().UTC(),
		Statuses:  e.Statuses,
		Count:     len(e.Page),
	}
	s.history = append(s.history, entry)
	e.committed = true
	return entry, nil
}

// Phones returns the page's phone numbers in page order.
func (e *Export) Phones() []string {
	out := make([]string, len(e.Page))
	for i, r := range e.Page {
		out[i] = r.PhoneNumber
	}
	return out
}

// ClampLimit bounds limit to [1, available]. It returns 0 when nothing is
// available.
func ClampLimit(limit, available int) int {
	if available <= 0 {
		return 0
	}
	if limit < 1 {
		return 1
	}
	if limit > available {
		return available
	}
	return limit
}

// Summary holds the dashboard counters.
type Summary struct {
	Total            int     `json:"total_records"`
	Available        int     `json:"available_records"`
	Downloaded       int     `json:"downloaded_contacts"`
	PercentAvailable float64 `json:"percent_available"`
}

// Summarize computes the counters, rounding the percentage to one decimal.
func Summarize(total, available, downloaded int) Summary {
	sum := Summary{Total: total, Available: available, Downloaded: downloaded}
	if total > 0 {
		sum.PercentAvailable = math.Round(float64(available)/float64(total)*1000) / 10
	}
	return sum
}
