// Package memory provides in-memory audit stores for tests and single-node
// deployments. Both stores are safe for concurrent use.
package memory

import (
	"context"
	"sync"
	"time"

	"registra/internal/audit"
	"registra/pkg/platform/sentinel"
)

type Store struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *Store) ListByResource(_ context.Context, resourceType, resourceID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var removed int64
	for _, e := range s.events {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

// All returns a copy of every stored event, oldest first. Test helper.
func (s *Store) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...)
}

type mappingEntry struct {
	raw       string
	createdAt time.Time
}

type MappingStore struct {
	mu       sync.RWMutex
	mappings map[string]mappingEntry
	clock    func() time.Time
}

func NewMappingStore() *MappingStore {
	return &MappingStore{mappings: make(map[string]mappingEntry), clock: time.Now}
}

func (s *MappingStore) Save(_ context.Context, digest, rawValue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.mappings[digest]; exists {
		return nil
	}
	s.mappings[digest] = mappingEntry{raw: rawValue, createdAt: s.clock()}
	return nil
}

func (s *MappingStore) Find(_ context.Context, digest string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.mappings[digest]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return entry.raw, nil
}

func (s *MappingStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for digest, entry := range s.mappings {
		if entry.createdAt.Before(cutoff) {
			delete(s.mappings, digest)
			removed++
		}
	}
	return removed, nil
}
