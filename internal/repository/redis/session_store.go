package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stream-service/internal/client"
	"stream-service/internal/models"
	"stream-service/internal/session"
	"stream-service/internal/util"
)

const (
	sessionKeyPrefix   = "stream:session:"
	userSessionPrefix  = "stream:user_sessions:"
	sessionLeasePrefix = "stream:session_lease:"

	// leaseTTL bounds how long a crashed holder can block a session.
	leaseTTL        = 10 * time.Second
	leaseRetryDelay = 25 * time.Millisecond
)

// SessionStore is the Redis-backed session.Store, for deployments that run
// more than one instance behind a balancer. Record TTL is twice the idle
// timeout so Redis cleans up anything the reaper misses. It also implements
// session.Locker: a SETNX lease per session id serializes heartbeat, end
// and reap across instances the way the registry's lock table does within
// one.
type SessionStore struct {
	client      *client.RedisClient
	idleTimeout time.Duration
}

func NewSessionStore(redisClient *client.RedisClient, idleTimeout time.Duration) *SessionStore {
	return &SessionStore{client: redisClient, idleTimeout: idleTimeout}
}

func (s *SessionStore) sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (s *SessionStore) userKey(userID string) string {
	return userSessionPrefix + userID
}

func (s *SessionStore) leaseKey(sessionID string) string {
	return sessionLeasePrefix + sessionID
}

// LockSession implements session.Locker with a SETNX lease. The lease
// carries a random token so release never deletes a lease that expired
// and was re-acquired by another instance.
func (s *SessionStore) LockSession(ctx context.Context, sessionID string) (func(), error) {
	key := s.leaseKey(sessionID)
	token := uuid.New().String()

	for {
		acquired, err := s.client.SetNX(ctx, key, token, leaseTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire session lease: %w", err)
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(leaseRetryDelay):
		}
	}

	return func() {
		// Release survives the caller's context being cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		held, err := s.client.Get(ctx, key)
		if err != nil || held != token {
			return
		}
		if err := s.client.Del(ctx, key); err != nil {
			util.Warn("Failed to release session lease",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}, nil
}

func (s *SessionStore) Put(ctx context.Context, record *models.StreamingSession) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := 2 * s.idleTimeout
	if err := s.client.Set(ctx, s.sessionKey(record.SessionID), data, ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if err := s.client.SAdd(ctx, s.userKey(record.UserID), record.SessionID); err != nil {
		return fmt.Errorf("failed to index session by user: %w", err)
	}
	if err := s.client.Expire(ctx, s.userKey(record.UserID), ttl); err != nil {
		util.Warn("Failed to refresh user session index TTL",
			zap.String("user_id", record.UserID), zap.Error(err))
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.StreamingSession, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID))
	if err != nil {
		if err == client.ErrKeyNotFound {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var record models.StreamingSession
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &record, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	record, err := s.Get(ctx, sessionID)
	if err != nil {
		if err == session.ErrSessionNotFound {
			return nil
		}
		return err
	}

	if err := s.client.Del(ctx, s.sessionKey(sessionID)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := s.client.SRem(ctx, s.userKey(record.UserID), sessionID); err != nil {
		util.Warn("Failed to remove session from user index",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil
}

func (s *SessionStore) List(ctx context.Context) ([]*models.StreamingSession, error) {
	keys, err := s.client.Scan(ctx, sessionKeyPrefix+"*", 500)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	sessions := make([]*models.StreamingSession, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key)
		if err != nil {
			if err == client.ErrKeyNotFound {
				continue
			}
			return nil, fmt.Errorf("failed to read session %s: %w", key, err)
		}
		var record models.StreamingSession
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			util.Warn("Skipping corrupt session record", zap.String("key", key), zap.Error(err))
			continue
		}
		sessions = append(sessions, &record)
	}
	return sessions, nil
}

func (s *SessionStore) CountByUser(ctx context.Context, userID string) (int, error) {
	members, err := s.client.SMembers(ctx, s.userKey(userID))
	if err != nil {
		return 0, fmt.Errorf("failed to count user sessions: %w", err)
	}

	// Prune ids whose records already expired out of Redis.
	count := 0
	for _, sessionID := range members {
		exists, err := s.client.Exists(ctx, s.sessionKey(sessionID))
		if err != nil {
			return 0, err
		}
		if exists {
			count++
		} else if err := s.client.SRem(ctx, s.userKey(userID), sessionID); err != nil {
			util.Warn("Failed to prune stale session from user index",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return count, nil
}
