package bucketing

import (
	"hash"
	"sync"
	"time"

	"wallet-engine/internal/config"

	"github.com/spaolacci/murmur3"
)

// Manager assigns consistent buckets for ledger time-range indexing and
// mirror event partitioning.
type Manager struct {
	userBuckets  int
	eventBuckets int
	windowSecs   int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		userBuckets:  cfg.Bucketing.UserBuckets,
		eventBuckets: cfg.Bucketing.EventBuckets,
		windowSecs:   cfg.Ledger.TimeBucketSeconds,
	}

	// Pool of hashers to avoid per-call allocation on the write path.
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// TimeBucket truncates a timestamp to the configured ledger window. All
// transactions within the same window share a by-time-bucket index key.
func (m *Manager) TimeBucket(ts time.Time) int64 {
	w := int64(m.windowSecs)
	return ts.Unix() / w * w
}

// IdentityBucket returns the consistent bucket for an identity key
// (0 to userBuckets-1). Analytics rows carry it so downstream queries
// can partition or sample by owner without seeing the identity space.
func (m *Manager) IdentityBucket(key string) int {
	return int(m.sum(key) % uint64(m.userBuckets))
}

// EventBucket buckets event identifiers (0 to eventBuckets-1). The
// ledger event stream uses it as the partition key, so one owner's
// events stay ordered while the key space stays bounded.
func (m *Manager) EventBucket(key string) int {
	return int(m.sum(key) % uint64(m.eventBuckets))
}

func (m *Manager) sum(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
