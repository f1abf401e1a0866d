package zone

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"vigil/pkg/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	zones map[uuid.UUID]*Zone // keyed by UserID, one zone per user
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{zones: make(map[uuid.UUID]*Zone)}
}

func (s *InMemoryStore) Put(_ context.Context, zone *Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *zone
	s.zones[zone.UserID] = &cp
	return nil
}

func (s *InMemoryStore) FindByUser(_ context.Context, userID uuid.UUID) (*Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zones[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *z
	return &cp, nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[userID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.zones, userID)
	return nil
}

func (s *InMemoryStore) All(_ context.Context) ([]Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Zone, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, *z)
	}
	return out, nil
}
