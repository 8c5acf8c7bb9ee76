package backup

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned when a hash is not consumable, including
	// hashes that were consumed earlier.
	ErrNotFound = errors.New("backup code not found")
	// ErrAlreadyUsed refines ErrNotFound for a hash that was consumed
	// earlier.
	ErrAlreadyUsed = fmt.Errorf("%w: already used", ErrNotFound)
)

// Set is a concurrency-safe set of backup code hashes. It remembers consumed
// hashes so reuse is distinguishable from an unknown code.
type Set struct {
	mu       sync.Mutex
	active   map[[32]byte]struct{}
	consumed map[[32]byte]struct{}
}

// NewSet builds a set of unconsumed hashes.
func NewSet(hashes [][32]byte) *Set {
	s := &Set{
		active:   make(map[[32]byte]struct{}, len(hashes)),
		consumed: make(map[[32]byte]struct{}),
	}
	for _, h := range hashes {
		s.active[h] = struct{}{}
	}
	return s
}

// Consume moves h from active to consumed. Exactly one of any number of
// concurrent Consume calls for the same hash succeeds.
func (s *Set) Consume(h [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[h]; ok {
		delete(s.active, h)
		s.consumed[h] = struct{}{}
		return nil
	}
	if _, ok := s.consumed[h]; ok {
		return ErrAlreadyUsed
	}
	return ErrNotFound
}

// Contains reports whether h is still unconsumed.
func (s *Set) Contains(h [32]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[h]
	return ok
}

// Len returns the number of unconsumed hashes.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
