package mirror

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wallet-engine/internal/store"
)

const recordTimeout = 10 * time.Second

// Mirror fans completed transactions out to the configured sinks:
// Redis summaries, the Kafka event stream and the ClickHouse analytics
// table. Every sink is optional, and sink failures are logged, never
// propagated; the ledger has already committed by the time a
// transaction reaches the mirror.
type Mirror struct {
	cache     *SummaryCache
	publisher *EventPublisher
	analytics *AnalyticsSink
	logger    *zap.Logger
}

func New(cache *SummaryCache, publisher *EventPublisher, analytics *AnalyticsSink, logger *zap.Logger) *Mirror {
	return &Mirror{
		cache:     cache,
		publisher: publisher,
		analytics: analytics,
		logger:    logger,
	}
}

// Enabled reports whether any sink is attached.
func (m *Mirror) Enabled() bool {
	return m.cache != nil || m.publisher != nil || m.analytics != nil
}

// RecordTransaction mirrors one committed transaction to all sinks in
// parallel.
func (m *Mirror) RecordTransaction(ctx context.Context, tx *store.Transaction) {
	if !m.Enabled() {
		return
	}

	ev := eventFromTransaction(tx)

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(recordCtx)

	if m.cache != nil {
		g.Go(func() error {
			return m.cache.Apply(gctx, ev)
		})
	}
	if m.publisher != nil {
		g.Go(func() error {
			return m.publisher.Publish(gctx, ev)
		})
	}
	if m.analytics != nil {
		g.Go(func() error {
			return m.analytics.Enqueue(gctx, ev)
		})
	}

	if err := g.Wait(); err != nil {
		m.logger.Error("failed to mirror transaction",
			zap.Uint64("sequence_id", tx.SequenceID),
			zap.Error(err),
		)
	}
}

// HealthCheck pings every attached sink.
func (m *Mirror) HealthCheck(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if m.cache != nil {
		g.Go(func() error { return m.cache.HealthCheck(gctx) })
	}
	if m.publisher != nil {
		g.Go(func() error { return m.publisher.HealthCheck(gctx) })
	}
	if m.analytics != nil {
		g.Go(func() error { return m.analytics.HealthCheck(gctx) })
	}

	return g.Wait()
}

// Close shuts down all attached sinks.
func (m *Mirror) Close() error {
	var firstErr error
	if m.analytics != nil {
		if err := m.analytics.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.publisher != nil {
		if err := m.publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.cache != nil {
		if err := m.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
