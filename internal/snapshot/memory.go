package snapshot

import (
	"context"
	"sort"
	"sync"

	"github.com/fabriqa/takt/pkg/schema"
)

// MemorySource holds snapshot documents in memory, keyed by capture date.
// Safe for concurrent use; Put replaces any existing document for the date.
type MemorySource struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

// NewMemorySource creates an empty in-memory snapshot source.
func NewMemorySource() *MemorySource {
	return &MemorySource{docs: make(map[string]map[string]any)}
}

// Put stores a document under a capture date.
func (s *MemorySource) Put(date string, doc map[string]any) error {
	if date == "" {
		return schema.NewError(schema.ErrCodeValidation, "snapshot date must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[date] = doc
	return nil
}

// Snapshot returns the document for a date, or the most recent one when date
// is empty.
func (s *MemorySource) Snapshot(_ context.Context, date string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if date == "" {
		latest := ""
		for d := range s.docs {
			if d > latest {
				latest = d
			}
		}
		if latest == "" {
			return nil, schema.NewError(schema.ErrCodeNotFound, "no snapshots available")
		}
		return s.docs[latest], nil
	}

	doc, ok := s.docs[date]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no snapshot captured on %q", date)
	}
	return doc, nil
}

// Dates lists capture dates ascending.
func (s *MemorySource) Dates(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.docs))
	for d := range s.docs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}
