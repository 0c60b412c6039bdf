package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"wallet-engine/internal/bucketing"
	"wallet-engine/internal/config"
	"wallet-engine/internal/util"
)

// EventPublisher streams ledger events to Kafka. Events are keyed by
// the owner's event bucket: one account's history stays ordered within
// its partition, and the key space stays bounded regardless of how
// many identities exist.
type EventPublisher struct {
	writer  *kafka.Writer
	buckets *bucketing.Manager
	config  *config.KafkaConfig
	logger  *zap.Logger
}

func NewEventPublisher(cfg *config.Config, buckets *bucketing.Manager, logger *zap.Logger) (*EventPublisher, error) {
	kafkaConfig := cfg.Kafka

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaConfig.Brokers...),
		Topic:        kafkaConfig.Topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchBytes:   1048576, // 1MB
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write kafka messages",
					zap.Error(err),
					zap.Int("message_count", len(messages)),
				)
			}
		},
	}

	util.Info("kafka event publisher initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", kafkaConfig.Topic),
	)

	return &EventPublisher{
		writer:  writer,
		buckets: buckets,
		config:  &kafkaConfig,
		logger:  logger,
	}, nil
}

// partitionKey maps an event onto its owner's event bucket.
func partitionKey(buckets *bucketing.Manager, ev *LedgerEvent) []byte {
	return []byte(strconv.Itoa(buckets.EventBucket(ev.Owner)))
}

// Publish writes one ledger event.
func (p *EventPublisher) Publish(ctx context.Context, ev *LedgerEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger event: %w", err)
	}

	msg := kafka.Message{
		Key:   partitionKey(p.buckets, ev),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
			{Key: "sequence_id", Value: []byte(ev.SequenceKey())},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	p.logger.Debug("published ledger event",
		zap.Uint64("sequence_id", ev.SequenceID),
		zap.String("kind", ev.Kind),
	)
	return nil
}

func (p *EventPublisher) HealthCheck(ctx context.Context) error {
	dialer := &kafka.Dialer{
		Timeout:   5 * time.Second,
		DualStack: true,
	}

	conn, err := dialer.DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read kafka partitions: %w", err)
	}
	return nil
}

func (p *EventPublisher) Close() error {
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			util.Error("failed to close kafka event publisher", zap.Error(err))
			return err
		}
		util.Info("kafka event publisher closed")
	}
	return nil
}
