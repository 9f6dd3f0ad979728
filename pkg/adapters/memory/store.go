package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/pipetree/pkg/domain"
)

// Store implements ports.RecordStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Record
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Record),
	}
}

// Save persists the record in memory.
func (s *Store) Save(ctx context.Context, rec *domain.Record) error {
	// Deep copy to ensure isolation, similar to serialization
	copied := rec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.ID] = copied
	return nil
}

// Load retrieves the record from memory.
func (s *Store) Load(ctx context.Context, id string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	// Copy on read so caller can't mutate store state directly by pointer
	return rec.Clone(), nil
}

// Children returns the records linked to parentID, ordered by position.
func (s *Store) Children(ctx context.Context, parentID string) ([]*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []*domain.Record
	for _, rec := range s.data {
		if rec.ParentID == parentID && parentID != "" {
			children = append(children, rec.Clone())
		}
	}
	sort.Slice(children, func(i, j int) bool {
		a, b := children[i], children[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	return children, nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns the ids of stored pipelines (wrapper records).
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for id, rec := range s.data {
		if rec.Kind == domain.RecordWrapper {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
