package bucketing

import (
	"testing"
	"time"

	"wallet-engine/internal/config"

	"github.com/stretchr/testify/assert"
)

func testManager() *Manager {
	return NewManager(&config.Config{
		Ledger:    config.LedgerConfig{TimeBucketSeconds: 3600},
		Bucketing: config.BucketingConfig{UserBuckets: 64, EventBuckets: 16},
	})
}

func TestTimeBucketTruncation(t *testing.T) {
	m := testManager()
	base := time.Unix(1_700_000_000, 0).UTC().Truncate(time.Hour)

	assert.Equal(t, base.Unix(), m.TimeBucket(base))
	assert.Equal(t, base.Unix(), m.TimeBucket(base.Add(30*time.Minute)))
	assert.Equal(t, base.Unix(), m.TimeBucket(base.Add(59*time.Minute+59*time.Second)))
	assert.Equal(t, base.Add(time.Hour).Unix(), m.TimeBucket(base.Add(time.Hour)))
}

func TestIdentityBucketIsStableAndBounded(t *testing.T) {
	m := testManager()

	first := m.IdentityBucket("00ff00ff00ff00ff00ff00ff00ff00ff")
	second := m.IdentityBucket("00ff00ff00ff00ff00ff00ff00ff00ff")
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 64)
}

func TestEventBucketBounded(t *testing.T) {
	m := testManager()

	for _, key := range []string{"1", "42", "abc", ""} {
		b := m.EventBucket(key)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 16)
	}
}

