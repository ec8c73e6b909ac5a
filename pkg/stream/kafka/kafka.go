package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/edgeflare/threatflow/pkg/stream"
	"go.uber.org/zap"
)

var errNotConnected = errors.New("kafka client not initialized")

// PeerKafka implements stream.Connector on top of sarama
type PeerKafka struct {
	producer sarama.SyncProducer
	consumer sarama.Consumer
	config   *Config
	logger   *zap.Logger
}

// newPeer wraps already constructed sarama clients.
func newPeer(producer sarama.SyncProducer, consumer sarama.Consumer, logger *zap.Logger) *PeerKafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeerKafka{producer: producer, consumer: consumer, config: &Config{}, logger: logger}
}

func (p *PeerKafka) Connect(config json.RawMessage) error {
	var cfg Config
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return fmt.Errorf("failed to unmarshal Kafka config: %w", err)
		}
	}
	cfg.setDefaults()

	if p.logger == nil {
		p.logger = zap.L().Named("kafka")
	}

	saramaConfig, err := cfg.ToSaramaConfig()
	if err != nil {
		return fmt.Errorf("failed to create sarama config: %w", err)
	}

	if cfg.EnsureTopics && len(cfg.Topics) > 0 {
		admin, err := sarama.NewClusterAdmin(cfg.Brokers, saramaConfig)
		if err != nil {
			return fmt.Errorf("failed to create cluster admin: %w", err)
		}
		err = ensureTopics(admin, &cfg, p.logger)
		admin.Close()
		if err != nil {
			return err
		}
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	consumer, err := sarama.NewConsumer(cfg.Brokers, saramaConfig)
	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	p.producer = producer
	p.consumer = consumer
	p.config = &cfg

	p.logger.Info("connected to kafka", zap.Strings("brokers", cfg.Brokers))
	return nil
}

func (p *PeerKafka) Publish(ctx context.Context, m stream.Message) error {
	if p.producer == nil {
		return errNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     m.Topic,
		Partition: m.Partition,
		Value:     sarama.ByteEncoder(m.Value),
	}
	if m.Key != nil {
		msg.Key = sarama.ByteEncoder(m.Key)
	}
	for k, v := range m.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("published message",
		zap.String("topic", m.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (p *PeerKafka) Subscribe(_ context.Context, topic string, partition int32, offset stream.Offset) (stream.Subscription, error) {
	if p.consumer == nil {
		return nil, errNotConnected
	}

	pc, err := p.consumer.ConsumePartition(topic, partition, saramaOffset(offset))
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s/%d: %w", topic, partition, err)
	}

	p.logger.Info("subscribed",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Stringer("offset", offset))
	return &subscription{pc: pc, logger: p.logger, closed: make(chan struct{})}, nil
}

func (p *PeerKafka) Disconnect() error {
	var errs []error
	if p.consumer != nil {
		errs = append(errs, p.consumer.Close())
	}
	if p.producer != nil {
		errs = append(errs, p.producer.Close())
	}
	return errors.Join(errs...)
}

func saramaOffset(o stream.Offset) int64 {
	switch o {
	case stream.OffsetBeginning:
		return sarama.OffsetOldest
	case stream.OffsetEnd:
		return sarama.OffsetNewest
	default:
		return int64(o)
	}
}

type subscription struct {
	pc     sarama.PartitionConsumer
	logger *zap.Logger
	closed chan struct{}
	once   sync.Once
}

func (s *subscription) Next(ctx context.Context) (stream.Message, error) {
	for {
		select {
		case <-ctx.Done():
			return stream.Message{}, ctx.Err()
		case <-s.closed:
			return stream.Message{}, stream.ErrSubscriptionClosed
		case msg, ok := <-s.pc.Messages():
			if !ok {
				return stream.Message{}, stream.ErrSubscriptionClosed
			}
			return toMessage(msg), nil
		case err, ok := <-s.pc.Errors():
			if !ok {
				return stream.Message{}, stream.ErrSubscriptionClosed
			}
			// sarama keeps fetching after reporting; errors here are informational
			s.logger.Warn("partition consumer error", zap.Error(err))
		}
	}
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.pc.Close()
	})
	return err
}

func toMessage(msg *sarama.ConsumerMessage) stream.Message {
	m := stream.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
	}
	if len(msg.Headers) > 0 {
		m.Headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			if h != nil {
				m.Headers[string(h.Key)] = string(h.Value)
			}
		}
	}
	return m
}

func ensureTopics(admin sarama.ClusterAdmin, cfg *Config, logger *zap.Logger) error {
	topics, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}

	for _, topic := range cfg.Topics {
		if _, exists := topics[topic]; exists {
			continue
		}

		topicDetail := &sarama.TopicDetail{
			NumPartitions:     cfg.Partitions,
			ReplicationFactor: cfg.Replicas,
			ConfigEntries: map[string]*string{
				"retention.ms": stringPtr(fmt.Sprintf("%d", cfg.RetentionMS)),
			},
		}
		if err := admin.CreateTopic(topic, topicDetail, false); err != nil {
			return fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		logger.Info("created topic", zap.String("topic", topic))
	}
	return nil
}

func stringPtr(s string) *string {
	return &s
}

func init() {
	stream.RegisterConnector(stream.ConnectorKafka, func() stream.Connector { return &PeerKafka{} })
}
