package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wallet-engine/internal/config"
	"wallet-engine/internal/store"
	"wallet-engine/internal/util"
)

const summaryTTL = 24 * time.Hour

// SummaryCache mirrors per-account activity counters into Redis for
// cheap dashboard reads. It is write-through and advisory: the engine
// remains the source of truth, and a cold or flushed cache is never an
// error.
type SummaryCache struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewSummaryCache(cfg *config.Config) (*SummaryCache, error) {
	redisConfig := cfg.Redis

	opts, err := redis.ParseURL(redisConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if opts.Password == "" && redisConfig.Password != "" {
		opts.Password = redisConfig.Password
	}
	opts.DB = redisConfig.DB
	opts.PoolSize = redisConfig.PoolSize
	opts.MinIdleConns = redisConfig.PoolSize / 2
	if opts.MinIdleConns < 10 {
		opts.MinIdleConns = 10
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	util.Info("redis summary cache initialized",
		zap.String("url", redisConfig.URL),
		zap.Int("db", redisConfig.DB),
		zap.Int("pool_size", redisConfig.PoolSize))

	return &SummaryCache{
		client: client,
		config: &redisConfig,
	}, nil
}

func summaryKey(owner string) string {
	return "wallet:summary:" + owner
}

// Apply folds a transaction into the owner's summary hash.
func (c *SummaryCache) Apply(ctx context.Context, ev *LedgerEvent) error {
	key := summaryKey(ev.Owner)

	delta := ev.Amount
	switch ev.Kind {
	case store.KindWithdrawal.String(), store.KindTransferOut.String():
		delta = -ev.Amount
	}

	pipe := c.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "balance:"+ev.Asset, delta)
	pipe.HIncrBy(ctx, key, "transaction_count", 1)
	pipe.HSet(ctx, key, "last_sequence_id", ev.SequenceKey())
	pipe.Expire(ctx, key, summaryTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update summary cache: %w", err)
	}
	return nil
}

// Summary returns the cached hash for an identity. A missing key comes
// back as an empty map.
func (c *SummaryCache) Summary(ctx context.Context, owner string) (map[string]string, error) {
	return c.client.HGetAll(ctx, summaryKey(owner)).Result()
}

// Invalidate drops the cached summary for an identity.
func (c *SummaryCache) Invalidate(ctx context.Context, owner string) error {
	return c.client.Del(ctx, summaryKey(owner)).Err()
}

func (c *SummaryCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *SummaryCache) Close() error {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			util.Error("failed to close redis summary cache", zap.Error(err))
			return err
		}
		util.Info("redis summary cache closed")
	}
	return nil
}
