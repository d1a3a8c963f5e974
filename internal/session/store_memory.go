package session

import (
	"context"
	"sync"

	"stream-service/internal/models"
)

// MemoryStore keeps session records in process memory. It is the store for
// single-instance deployments and for tests; records do not survive restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.StreamingSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.StreamingSession)}
}

func (s *MemoryStore) Put(ctx context.Context, session *models.StreamingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = *session
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*models.StreamingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := session
	return &copied, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*models.StreamingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*models.StreamingSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := session
		sessions = append(sessions, &copied)
	}
	return sessions, nil
}

func (s *MemoryStore) CountByUser(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, session := range s.sessions {
		if session.UserID == userID {
			count++
		}
	}
	return count, nil
}
