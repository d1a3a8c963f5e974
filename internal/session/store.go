package session

import (
	"context"
	"errors"

	"stream-service/internal/models"
)

// ErrSessionNotFound is returned when a session id has no live record,
// either because it never existed or because it was ended or reaped.
var ErrSessionNotFound = errors.New("streaming session not found")

// Store holds the live session records. The registry is the only writer;
// implementations do not need their own concurrency control beyond being
// safe for concurrent calls.
type Store interface {
	// Put inserts or replaces the record and refreshes its idle deadline.
	Put(ctx context.Context, session *models.StreamingSession) error
	// Get returns the record or ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*models.StreamingSession, error)
	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, sessionID string) error
	// List returns a snapshot of every live record, for the reaper sweep.
	List(ctx context.Context) ([]*models.StreamingSession, error)
	// CountByUser returns the number of live sessions owned by the user.
	CountByUser(ctx context.Context, userID string) (int, error)
}

// Locker is implemented by stores shared between service instances. The
// registry's in-process lock table only serializes one process; a store
// lease extends per-session mutual exclusion across all of them. The
// returned release gives the lease back.
type Locker interface {
	LockSession(ctx context.Context, sessionID string) (func(), error)
}
