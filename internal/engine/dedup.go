package engine

import "sync"

// dialedSet records which (entry id, number) pairs have already been
// dialed in the current run. It exists to absorb event-ordering races: a
// re-fired disconnect or a not-yet-advanced index must never place a
// second call to the same number for the same entry.
type dialedSet struct {
	mu      sync.Mutex
	numbers map[string]map[string]struct{}
}

func newDialedSet() *dialedSet {
	return &dialedSet{numbers: make(map[string]map[string]struct{})}
}

func (s *dialedSet) Add(entryID, number string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.numbers[entryID]
	if !ok {
		set = make(map[string]struct{})
		s.numbers[entryID] = set
	}
	set[number] = struct{}{}
}

func (s *dialedSet) Has(entryID, number string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.numbers[entryID]
	if !ok {
		return false
	}
	_, ok = set[number]
	return ok
}

func (s *dialedSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numbers = make(map[string]map[string]struct{})
}
