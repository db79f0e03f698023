package builder

import (
	"strings"

	"authrator/internal/model"
)

// headerSet is an insertion-ordered header list with case-insensitive keys.
type headerSet struct {
	entries []model.KeyValue
	index   map[string]int
}

func newHeaderSet(capacity int) *headerSet {
	return &headerSet{
		entries: make([]model.KeyValue, 0, capacity),
		index:   make(map[string]int, capacity),
	}
}

func (s *headerSet) has(name string) bool {
	_, ok := s.index[strings.ToLower(name)]
	return ok
}

// set adds key or, when a header with the same name exists, overwrites that
// entry in place with the new spelling and value.
func (s *headerSet) set(key, value string) {
	lower := strings.ToLower(key)
	if i, ok := s.index[lower]; ok {
		s.entries[i] = model.KeyValue{Key: key, Value: value}
		return
	}
	s.index[lower] = len(s.entries)
	s.entries = append(s.entries, model.KeyValue{Key: key, Value: value})
}

// setDefault adds key only if no header with that name is present.
func (s *headerSet) setDefault(key, value string) {
	if s.has(key) {
		return
	}
	s.set(key, value)
}

func (s *headerSet) list() []model.KeyValue {
	out := make([]model.KeyValue, len(s.entries))
	copy(out, s.entries)
	return out
}
