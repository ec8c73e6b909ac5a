package stream

import (
	"context"
	"fmt"

	"github.com/edgeflare/threatflow/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultKey is attached to every published message. A single constant key keeps
// all records of one logical stream in one partition and in order.
const DefaultKey = "default-key"

// HeaderFetchID identifies the publish call a message originated from.
const HeaderFetchID = "fetch-id"

// Producer publishes payloads through an optional Connector. A Producer built
// without a connector runs in degraded mode: every Publish is a logged no-op
// returning ErrNoConnection.
type Producer struct {
	conn      Connector
	logger    *zap.Logger
	key       []byte
	partition int32
}

// NewProducer returns a Producer. conn may be nil.
func NewProducer(conn Connector, key string, partition int32, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == "" {
		key = DefaultKey
	}
	return &Producer{
		conn:      conn,
		logger:    logger,
		key:       []byte(key),
		partition: partition,
	}
}

// Connected reports whether the producer holds a live connector.
func (p *Producer) Connected() bool {
	return p.conn != nil
}

// Publish sends payload to topic. Failures are logged and returned; they never panic.
func (p *Producer) Publish(ctx context.Context, topic string, payload []byte) error {
	if p.conn == nil {
		p.logger.Warn("no broker connection established, skipping message", zap.String("topic", topic))
		metrics.PublishErrors.WithLabelValues(topic).Inc()
		return ErrNoConnection
	}
	if len(payload) == 0 {
		p.logger.Warn("no valid message to send", zap.String("topic", topic))
		return nil
	}

	fetchID := uuid.NewString()
	msg := Message{
		Topic:     topic,
		Partition: p.partition,
		Key:       p.key,
		Value:     payload,
		Headers:   map[string]string{HeaderFetchID: fetchID},
	}
	if err := p.conn.Publish(ctx, msg); err != nil {
		p.logger.Error("failed to send to topic",
			zap.String("topic", topic),
			zap.String("fetchID", fetchID),
			zap.Error(err))
		metrics.PublishErrors.WithLabelValues(topic).Inc()
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	metrics.Records.WithLabelValues("produce", "published").Inc()
	p.logger.Info("sent data to topic",
		zap.String("topic", topic),
		zap.ByteString("key", p.key),
		zap.String("fetchID", fetchID))
	return nil
}
