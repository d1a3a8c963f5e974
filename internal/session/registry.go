package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"stream-service/internal/bucketing"
	"stream-service/internal/models"
	"stream-service/internal/util"
)

// ErrNotSessionOwner is returned when a requester touches a session that
// belongs to a different user.
var ErrNotSessionOwner = errors.New("session owned by another user")

// CommitFunc runs inside the session's critical section, after the registry
// state change and before the lock is released. Durable side effects of a
// mutation (progress write-through, final reconciliation) go here so they
// stay strictly ordered with the mutation itself.
type CommitFunc func(ctx context.Context, record *models.StreamingSession) error

// Registry is the authoritative owner of live streaming sessions. Mutations
// are serialized per session id through a sharded lock table, so heartbeats,
// end calls and the reaper for the same session are strictly ordered while
// unrelated sessions proceed in parallel. When the store also implements
// Locker, a store-level lease extends that ordering across processes.
type Registry struct {
	store             Store
	bucketingMgr      *bucketing.Manager
	locks             []sync.Mutex
	idleTimeout       time.Duration
	heartbeatInterval time.Duration
}

func NewRegistry(store Store, bucketingMgr *bucketing.Manager, idleTimeout, heartbeatInterval time.Duration) *Registry {
	return &Registry{
		store:             store,
		bucketingMgr:      bucketingMgr,
		locks:             make([]sync.Mutex, bucketingMgr.EventBucketCount()),
		idleTimeout:       idleTimeout,
		heartbeatInterval: heartbeatInterval,
	}
}

func (r *Registry) lockFor(sessionID string) *sync.Mutex {
	return &r.locks[r.bucketingMgr.EventBucket(sessionID)]
}

// acquire enters the session's critical section: the local shard mutex
// first, then the store lease when the store is shared between instances.
// The returned release undoes both in reverse order.
func (r *Registry) acquire(ctx context.Context, sessionID string) (func(), error) {
	lock := r.lockFor(sessionID)
	lock.Lock()

	locker, ok := r.store.(Locker)
	if !ok {
		return lock.Unlock, nil
	}
	releaseLease, err := locker.LockSession(ctx, sessionID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	return func() {
		releaseLease()
		lock.Unlock()
	}, nil
}

// Create registers a fresh session. Creation never blocks on another
// session's lock.
func (r *Registry) Create(ctx context.Context, record *models.StreamingSession) error {
	release, err := r.acquire(ctx, record.SessionID)
	if err != nil {
		return err
	}
	defer release()

	if err := r.store.Put(ctx, record); err != nil {
		return err
	}

	util.Info("Streaming session created",
		zap.String("session_id", record.SessionID),
		zap.String("user_id", record.UserID),
		zap.String("video_id", record.VideoID))
	return nil
}

// Get returns a consistent snapshot of the session after verifying the
// requester owns it.
func (r *Registry) Get(ctx context.Context, sessionID, requesterID string) (*models.StreamingSession, error) {
	record, err := r.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record.UserID != requesterID {
		return nil, ErrNotSessionOwner
	}
	return record, nil
}

// Update applies a partial heartbeat update under the session's lock and
// refreshes the idle deadline. Absent fields keep their previous values.
// A non-nil commit runs before the lock is released, so a later heartbeat
// cannot observe the store without this update's side effects applied.
func (r *Registry) Update(ctx context.Context, sessionID, requesterID string, update *models.SessionUpdate, now time.Time, commit CommitFunc) (*models.StreamingSession, error) {
	release, err := r.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := r.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record.UserID != requesterID {
		return nil, ErrNotSessionOwner
	}

	record.WatchTimeAccum += r.heartbeatCredit(record.LastUpdateAt, now)

	if update.CurrentPosition != nil {
		record.CurrentPosition = *update.CurrentPosition
	}
	if update.Quality != nil {
		record.Quality = *update.Quality
	}
	if update.PlaybackSpeed != nil {
		record.PlaybackSpeed = *update.PlaybackSpeed
	}
	if update.Volume != nil {
		record.Volume = *update.Volume
	}
	if update.IsFullscreen != nil {
		record.IsFullscreen = *update.IsFullscreen
	}
	record.LastUpdateAt = now

	if err := r.store.Put(ctx, record); err != nil {
		return nil, err
	}
	if commit != nil {
		if err := commit(ctx, record); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// End removes the session and returns its final snapshot with the watch-time
// tail credited. Ending an absent session returns ErrSessionNotFound so
// duplicate end calls are observable. A non-nil commit runs after the delete
// but still inside the critical section, so no straggler heartbeat can write
// between the removal and the final reconciliation.
func (r *Registry) End(ctx context.Context, sessionID, requesterID string, now time.Time, commit CommitFunc) (*models.StreamingSession, error) {
	release, err := r.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := r.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record.UserID != requesterID {
		return nil, ErrNotSessionOwner
	}

	record.WatchTimeAccum += r.heartbeatCredit(record.LastUpdateAt, now)
	record.LastUpdateAt = now

	if err := r.store.Delete(ctx, sessionID); err != nil {
		return nil, err
	}
	if commit != nil {
		if err := commit(ctx, record); err != nil {
			return nil, err
		}
	}

	util.Info("Streaming session ended",
		zap.String("session_id", sessionID),
		zap.String("user_id", requesterID),
		zap.Float64("watch_time", record.WatchTimeAccum))
	return record, nil
}

// ReapIdle removes every session whose last update is older than the idle
// timeout and returns their final snapshots. Each candidate is re-read under
// its own lock so a heartbeat that lands mid-sweep wins. A non-nil commit
// runs per reaped session inside its critical section; a commit failure is
// logged and the sweep moves on.
func (r *Registry) ReapIdle(ctx context.Context, now time.Time, commit CommitFunc) ([]*models.StreamingSession, error) {
	candidates, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var reaped []*models.StreamingSession
	for _, candidate := range candidates {
		if now.Sub(candidate.LastUpdateAt) < r.idleTimeout {
			continue
		}

		release, err := r.acquire(ctx, candidate.SessionID)
		if err != nil {
			return reaped, err
		}
		record, err := r.store.Get(ctx, candidate.SessionID)
		if err != nil {
			release()
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			return reaped, err
		}
		if now.Sub(record.LastUpdateAt) < r.idleTimeout {
			release()
			continue
		}
		if err := r.store.Delete(ctx, record.SessionID); err != nil {
			release()
			return reaped, err
		}
		if commit != nil {
			if err := commit(ctx, record); err != nil {
				util.Error("Failed to reconcile reaped session",
					zap.String("session_id", record.SessionID), zap.Error(err))
			}
		}
		release()

		util.Info("Reaped idle streaming session",
			zap.String("session_id", record.SessionID),
			zap.String("user_id", record.UserID),
			zap.Duration("idle_for", now.Sub(record.LastUpdateAt)))
		reaped = append(reaped, record)
	}
	return reaped, nil
}

// CountByUser reports how many live sessions the user currently holds.
func (r *Registry) CountByUser(ctx context.Context, userID string) (int, error) {
	return r.store.CountByUser(ctx, userID)
}

// heartbeatCredit converts the gap since the previous update into watch
// time. The credit is capped at twice the heartbeat cadence so a stalled
// client cannot bank an idle gap as viewing time.
func (r *Registry) heartbeatCredit(lastUpdate, now time.Time) float64 {
	elapsed := now.Sub(lastUpdate).Seconds()
	if elapsed < 0 {
		return 0
	}
	limit := 2 * r.heartbeatInterval.Seconds()
	if elapsed > limit {
		return limit
	}
	return elapsed
}
