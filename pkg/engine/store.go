package engine

import "sync"

// Store holds the latest completed analysis. The snapshot is replaced
// wholesale on each successful run, so concurrent readers always see either
// the previous complete result or the new one.
type Store struct {
	mu      sync.RWMutex
	current *Analysis
}

func NewStore() *Store {
	return &Store{}
}

// Set swaps in a new completed analysis.
func (s *Store) Set(a *Analysis) {
	s.mu.Lock()
	s.current = a
	s.mu.Unlock()
}

// Latest returns the most recent completed analysis, or false if none has
// run yet.
func (s *Store) Latest() (*Analysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	return s.current, true
}
