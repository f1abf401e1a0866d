package alert

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"vigil/pkg/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	alerts map[uuid.UUID]*Alert
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{alerts: make(map[uuid.UUID]*Alert)}
}

func (s *InMemoryStore) Create(_ context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}
