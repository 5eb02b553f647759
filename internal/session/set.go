package session

import "sort"

// Set holds the phone numbers already exported in a session.
type Set struct {
	phones map[string]struct{}
}

func NewSet() *Set {
	return &Set{phones: make(map[string]struct{})}
}

func (s *Set) Contains(phone string) bool {
	_, ok := s.phones[phone]
	return ok
}

func (s *Set) Add(phones ...string) {
	for _, p := range phones {
		s.phones[p] = struct{}{}
	}
}

func (s *Set) Len() int {
	return len(s.phones)
}

// Phones returns the members sorted.
func (s *Set) Phones() []string {
	out := make([]string, 0, len(s.phones))
	for p := range s.phones {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Set) clear() {
	s.phones = make(map[string]struct{})
}
