// Package registry tracks which identities currently have live transport
// sessions. It is pure presence: nothing here is persisted, and nothing here
// knows about notifications or zones.
package registry

import (
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"vigil/internal/platform/metrics"
)

const shardCount = 16

// Sender is one live transport session's outbound side. Implementations must
// not block: a full buffer or dead connection returns an error immediately.
type Sender interface {
	Send(payload []byte) error
}

// Registry is a sharded identity -> sessions map. Sharding keeps unrelated
// identities off the same mutex; per-identity operations are linearizable
// because one identity always lands on the same shard.
type Registry struct {
	shards  [shardCount]shard
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type shard struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[string]Sender
}

type Option func(r *Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New constructs an empty Registry. One instance is created at server startup
// and injected wherever presence is needed.
func New(opts ...Option) *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].sessions = make(map[uuid.UUID]map[string]Sender)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) shardFor(identity uuid.UUID) *shard {
	h := fnv.New32a()
	h.Write(identity[:])
	return &r.shards[h.Sum32()%shardCount]
}

// Register binds a session to an identity. Idempotent: re-registering the
// same session replaces its sender and nothing else changes.
func (r *Registry) Register(identity uuid.UUID, sessionID string, sender Sender) {
	s := r.shardFor(identity)
	s.mu.Lock()
	set, ok := s.sessions[identity]
	if !ok {
		set = make(map[string]Sender)
		s.sessions[identity] = set
	}
	set[sessionID] = sender
	s.mu.Unlock()

	r.updateGauges()
	if r.logger != nil {
		r.logger.Info("session registered", "user_id", identity, "session_id", sessionID)
	}
}

// Unregister removes a session. When the identity's last session goes away
// the identity is dropped from the online set entirely. No-op for unknown
// identity or session.
func (r *Registry) Unregister(identity uuid.UUID, sessionID string) {
	s := r.shardFor(identity)
	s.mu.Lock()
	removed := false
	if set, ok := s.sessions[identity]; ok {
		if _, ok := set[sessionID]; ok {
			delete(set, sessionID)
			removed = true
		}
		if len(set) == 0 {
			delete(s.sessions, identity)
		}
	}
	s.mu.Unlock()

	if removed {
		r.updateGauges()
		if r.logger != nil {
			r.logger.Info("session unregistered", "user_id", identity, "session_id", sessionID)
		}
	}
}

// IsOnline reports whether the identity has at least one live session.
func (r *Registry) IsOnline(identity uuid.UUID) bool {
	s := r.shardFor(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[identity]) > 0
}

// OnlineIdentities returns a weakly-consistent snapshot of identities with at
// least one session. A session may disconnect the moment this returns;
// callers must tolerate sends to identities from this set failing.
func (r *Registry) OnlineIdentities() []uuid.UUID {
	var out []uuid.UUID
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for identity := range s.sessions {
			out = append(out, identity)
		}
		s.mu.RUnlock()
	}
	return out
}

// Send pushes a payload to every live session of the identity, best effort.
// A session whose transport write fails is purged. Returns true when at least
// one session accepted the payload. Never returns an error: live delivery is
// an optimization, not the system of record.
func (r *Registry) Send(identity uuid.UUID, payload []byte) bool {
	s := r.shardFor(identity)

	// Snapshot under the read lock, write outside it. Senders are
	// non-blocking so this loop cannot stall on a slow client either way,
	// but holding a shard lock across transport writes would serialize
	// unrelated registrations.
	s.mu.RLock()
	type target struct {
		sessionID string
		sender    Sender
	}
	targets := make([]target, 0, len(s.sessions[identity]))
	for sessionID, sender := range s.sessions[identity] {
		targets = append(targets, target{sessionID, sender})
	}
	s.mu.RUnlock()

	delivered := false
	for _, t := range targets {
		if err := t.sender.Send(payload); err != nil {
			if r.logger != nil {
				r.logger.Warn("purging stale session after failed send",
					"user_id", identity,
					"session_id", t.sessionID,
					"error", err,
				)
			}
			r.Unregister(identity, t.sessionID)
			continue
		}
		delivered = true
	}
	return delivered
}

// Counts returns the number of online identities and live sessions.
func (r *Registry) Counts() (identities, sessions int) {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		identities += len(s.sessions)
		for _, set := range s.sessions {
			sessions += len(set)
		}
		s.mu.RUnlock()
	}
	return identities, sessions
}

func (r *Registry) updateGauges() {
	if r.metrics == nil {
		return
	}
	identities, sessions := r.Counts()
	r.metrics.WSIdentities.Set(float64(identities))
	r.metrics.WSSessions.Set(float64(sessions))
}
