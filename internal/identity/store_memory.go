package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"vigil/pkg/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*User
	byEmail map[string]*User
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[uuid.UUID]*User),
		byEmail: make(map[string]*User),
	}
}

func (s *InMemoryStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[user.ID]; ok {
		return sentinel.ErrConflict
	}
	email := strings.ToLower(user.Email)
	if _, ok := s.byEmail[email]; ok {
		return sentinel.ErrConflict
	}
	cp := *user
	s.byID[user.ID] = &cp
	s.byEmail[email] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *user
	return &cp, nil
}
