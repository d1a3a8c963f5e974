package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"stream-service/internal/config"
)

// Manager computes stable murmur3 buckets. User buckets spread the
// video_progress table across Scylla partitions; event buckets shard
// registry locks and security-event partitions.
type Manager struct {
	userBuckets  int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		userBuckets:  cfg.Bucketing.UserBuckets,
		eventBuckets: cfg.Bucketing.EventBuckets,
	}
	if m.userBuckets <= 0 {
		m.userBuckets = 256
	}
	if m.eventBuckets <= 0 {
		m.eventBuckets = 64
	}

	// Pool hashers to avoid per-call allocation on the heartbeat path.
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// UserBucket returns the consistent bucket for a user (0..userBuckets-1).
func (m *Manager) UserBucket(userID string) int {
	return m.bucket(userID, m.userBuckets)
}

// EventBucket returns the bucket for an arbitrary identifier, used for
// lock sharding and event partitioning (0..eventBuckets-1).
func (m *Manager) EventBucket(identifier string) int {
	return m.bucket(identifier, m.eventBuckets)
}

// EventBucketCount returns the number of event buckets, for sizing
// structures indexed by EventBucket.
func (m *Manager) EventBucketCount() int {
	return m.eventBuckets
}

// DateBucket returns the UTC date partition for analytics rows.
func (m *Manager) DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (m *Manager) bucket(id string, buckets int) int {
	h := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(h)

	h.Reset()
	_, _ = h.Write([]byte(id))

	return int(h.Sum64() % uint64(buckets))
}
