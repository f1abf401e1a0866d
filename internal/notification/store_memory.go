package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vigil/pkg/sentinel"
)

type InMemoryStore struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*Notification
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{notifications: make(map[uuid.UUID]*Notification)}
}

func (s *InMemoryStore) Create(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[n.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, n *Notification, prior Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.notifications[n.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	// Re-check under the write lock; a concurrent transition may have moved
	// the record since the caller loaded it.
	if cur.Status != prior {
		return sentinel.ErrInvalidState
	}
	cur.Status = n.Status
	cur.SentAt = n.SentAt
	cur.DeliveredAt = n.DeliveredAt
	return nil
}

func (s *InMemoryStore) UpdateMarks(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.notifications[n.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	cur.ReadAt = n.ReadAt
	cur.DeletedAt = n.DeletedAt
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID uuid.UUID, page, size int) ([]Notification, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Notification
	for _, n := range s.notifications {
		if n.UserID == userID && n.DeletedAt == nil {
			matched = append(matched, *n)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (page - 1) * size
	if start >= total {
		return []Notification{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *InMemoryStore) ListQueued(_ context.Context, channel Channel) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.notifications {
		if n.Status != StatusQueued || n.DeletedAt != nil {
			continue
		}
		if channel != "" && n.Channel != channel {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) CountUndelivered(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && n.DeletedAt == nil &&
			(n.Status == StatusQueued || n.Status == StatusSent) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && n.DeletedAt == nil && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) MarkAllRead(_ context.Context, userID uuid.UUID, readAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && n.DeletedAt == nil && n.ReadAt == nil {
			at := readAt
			n.ReadAt = &at
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, n := range s.notifications {
		if n.CreatedAt.Before(cutoff) {
			delete(s.notifications, id)
			count++
		}
	}
	return count, nil
}
