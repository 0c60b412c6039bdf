package mirror

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"wallet-engine/internal/bucketing"
	"wallet-engine/internal/config"
	"wallet-engine/internal/util"
)

const (
	sinkBatchSize     = 500
	sinkFlushInterval = 5 * time.Second
)

const insertTransactionsQuery = `
    INSERT INTO wallet_transactions
    (sequence_id, transfer_id, kind, asset, amount, status, ts, owner, owner_bucket, from_identity, to_identity)`

// AnalyticsSink buffers ledger events and batch-inserts them into
// ClickHouse. Rows carry the owner's identity bucket so reporting
// queries can partition by owner without touching identities.
// Inserts are best-effort: a failed flush is logged and dropped, never
// surfaced to the transaction path.
type AnalyticsSink struct {
	conn    driver.Conn
	buckets *bucketing.Manager
	config  *config.ClickhouseConfig
	logger  *zap.Logger

	mu     sync.Mutex
	buffer []*LedgerEvent

	done chan struct{}
	wg   sync.WaitGroup
}

func NewAnalyticsSink(cfg *config.Config, buckets *bucketing.Manager, logger *zap.Logger) (*AnalyticsSink, error) {
	chConfig := cfg.Clickhouse

	opts := &ch.Options{
		Addr: []string{extractHostPort(chConfig.URL)},
		Auth: ch.Auth{
			Username: chConfig.Username,
			Password: chConfig.Password,
			Database: chConfig.Database,
		},
		DialTimeout:      30 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: ch.ConnOpenInOrder,
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	s := &AnalyticsSink{
		conn:    conn,
		buckets: buckets,
		config:  &chConfig,
		logger:  logger,
		buffer:  make([]*LedgerEvent, 0, sinkBatchSize),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.flushLoop()

	util.Info("clickhouse analytics sink initialized",
		zap.String("url", chConfig.URL),
		zap.String("database", chConfig.Database),
	)

	return s, nil
}

// Enqueue adds an event to the buffer, flushing when the batch is full.
func (s *AnalyticsSink) Enqueue(ctx context.Context, ev *LedgerEvent) error {
	s.mu.Lock()
	s.buffer = append(s.buffer, ev)
	full := len(s.buffer) >= sinkBatchSize
	s.mu.Unlock()

	if full {
		return s.Flush(ctx)
	}
	return nil
}

// Flush drains the buffer into one batch insert.
func (s *AnalyticsSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return nil
	}
	pending := s.buffer
	s.buffer = make([]*LedgerEvent, 0, sinkBatchSize)
	s.mu.Unlock()

	batch, err := s.conn.PrepareBatch(ctx, insertTransactionsQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, ev := range pending {
		err := batch.Append(
			ev.SequenceID,
			ev.TransferID,
			ev.Kind,
			ev.Asset,
			ev.Amount,
			ev.Status,
			ev.Timestamp,
			ev.Owner,
			uint8(s.buckets.IdentityBucket(ev.Owner)),
			ev.From,
			ev.To,
		)
		if err != nil {
			return fmt.Errorf("failed to append row to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.logger.Debug("flushed analytics batch", zap.Int("rows", len(pending)))
	return nil
}

func (s *AnalyticsSink) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(sinkFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Flush(ctx); err != nil {
				s.logger.Error("periodic analytics flush failed", zap.Error(err))
			}
			cancel()
		case <-s.done:
			return
		}
	}
}

func (s *AnalyticsSink) HealthCheck(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close stops the flush loop, drains the buffer and closes the
// connection.
func (s *AnalyticsSink) Close() error {
	close(s.done)
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		s.logger.Error("final analytics flush failed", zap.Error(err))
	}

	if err := s.conn.Close(); err != nil {
		util.Error("failed to close clickhouse connection", zap.Error(err))
		return err
	}
	util.Info("clickhouse analytics sink closed")
	return nil
}

func extractHostPort(url string) string {
	cleanURL := strings.TrimPrefix(url, "http://")
	cleanURL = strings.TrimPrefix(cleanURL, "https://")
	if !strings.Contains(cleanURL, ":") {
		if strings.HasPrefix(url, "https://") {
			return cleanURL + ":8443"
		}
		return cleanURL + ":9000"
	}
	return cleanURL
}
