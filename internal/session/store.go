package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a participant has no session.
var ErrNotFound = errors.New("session not found")

// Store persists sessions between messages.
type Store interface {
	Get(ctx context.Context, participantID int64) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, participantID int64) error
}

// MemoryStore keeps sessions in process memory. Values are copied in and out so
// callers never share a live Session.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	now      func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*Session), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, participantID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[participantID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.Clone()
	c.UpdatedAt = m.now().UTC()
	m.sessions[s.ParticipantID] = c
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, participantID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, participantID)
	return nil
}

// Len reports how many sessions are held.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
