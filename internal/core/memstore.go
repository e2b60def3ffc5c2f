package core

import (
	"context"
	"sync"

	"github.com/mentorgrid/live/internal/domain"
)

// MemorySessionStore is an in-process SessionStore for the standalone
// binary and for tests. Production deployments swap in the marketplace's
// persistence layer.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]SessionRecord)}
}

func (s *MemorySessionStore) Seed(rec SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.SessionID] = rec
}

func (s *MemorySessionStore) GetSchedule(_ context.Context, sessionID string) (SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return SessionRecord{}, ErrUnknownSession
	}
	return rec, nil
}

func (s *MemorySessionStore) ApplySchedule(_ context.Context, sessionID string, p domain.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	rec.Schedule = p
	s.sessions[sessionID] = rec
	return nil
}

// MemoryNotificationStore queues offline notifications per user.
type MemoryNotificationStore struct {
	mu     sync.Mutex
	queued map[domain.UserID][]Event
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{queued: make(map[domain.UserID][]Event)}
}

func (s *MemoryNotificationStore) Store(_ context.Context, userID domain.UserID, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[userID] = append(s.queued[userID], ev)
	return nil
}

// Drain returns and clears the queued events for a user.
func (s *MemoryNotificationStore) Drain(userID domain.UserID) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queued[userID]
	delete(s.queued, userID)
	return out
}

// TokenIdentity treats the connection token itself as the user id. Useful
// for local runs; real deployments resolve tokens against the identity
// service.
type TokenIdentity struct{}

func (TokenIdentity) Resolve(_ context.Context, token string) (domain.UserID, error) {
	return domain.UserID(token), nil
}
