// Package nats registers the "nats" stream connector, backed by NATS JetStream.
//
// Topics map 1:1 onto JetStream subjects (e.g. `otx-blue`, `enriched-records`),
// all captured by a single stream. JetStream subjects have no partitions, so only
// partition 0 is accepted. Offsets map onto stream sequences, which start at 1:
// offset n is stream sequence n+1.
package nats

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/edgeflare/threatflow/pkg/stream"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// HeaderKey carries stream.Message.Key, as JetStream messages have no key.
const HeaderKey = "Threatflow-Key"

var (
	errConnNotInitialized = errors.New("NATS connection not initialized")
	errPartition          = errors.New("NATS subjects have a single partition (0)")
)

// Config represents NATS configuration
type Config struct {
	Stream   string   `json:"stream"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	Servers  []string `json:"servers"`
	Subjects []string `json:"subjects"`
	TLS      struct {
		CertFile string `json:"certFile,omitempty"`
		KeyFile  string `json:"keyFile,omitempty"`
		CAFile   string `json:"caFile,omitempty"`
		Enabled  bool   `json:"enabled"`
	} `json:"tls,omitempty"`
}

func (c *Config) setDefaults() {
	if len(c.Servers) == 0 {
		c.Servers = []string{nats.DefaultURL}
	}
	if len(c.Subjects) == 0 {
		c.Subjects = []string{"otx-blue", "enriched-records"}
	}
	c.Stream = cmp.Or(c.Stream, "threatflow")
}

// PeerNATS implements stream.Connector for NATS JetStream
type PeerNATS struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
	Config Config
}

// Connect establishes a connection to the NATS server
func (p *PeerNATS) Connect(config json.RawMessage) error {
	if len(config) > 0 {
		if err := json.Unmarshal(config, &p.Config); err != nil {
			return fmt.Errorf("unmarshal NATS config: %w", err)
		}
	}
	p.Config.setDefaults()

	if p.logger == nil {
		p.logger = zap.L().Named("nats")
	}

	opts := defaultOptions(p.Config)

	// Connect to first available server
	var err error
	for _, server := range p.Config.Servers {
		p.nc, err = nats.Connect(server, opts...)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("connect to NATS server: %w", err)
	}

	if p.js, err = p.nc.JetStream(); err != nil {
		p.nc.Close()
		return fmt.Errorf("create JetStream context: %w", err)
	}

	if err := p.ensureStream(); err != nil {
		p.nc.Close()
		return fmt.Errorf("ensure stream: %w", err)
	}

	p.logger.Info("connected to nats",
		zap.Strings("servers", p.Config.Servers),
		zap.String("stream", p.Config.Stream))
	return nil
}

// Publish appends a message to the JetStream subject named by msg.Topic
func (p *PeerNATS) Publish(ctx context.Context, msg stream.Message) error {
	if p.js == nil {
		return errConnNotInitialized
	}
	if msg.Partition != 0 {
		return errPartition
	}

	m := nats.NewMsg(msg.Topic)
	m.Data = msg.Value
	if msg.Key != nil {
		m.Header.Set(HeaderKey, string(msg.Key))
	}
	for k, v := range msg.Headers {
		m.Header.Set(k, v)
	}

	ack, err := p.js.PublishMsg(m, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.logger.Debug("published message",
		zap.String("subject", msg.Topic),
		zap.Uint64("sequence", ack.Sequence))
	return nil
}

// Subscribe opens an ordered consumer on topic starting at offset
func (p *PeerNATS) Subscribe(_ context.Context, topic string, partition int32, offset stream.Offset) (stream.Subscription, error) {
	if p.js == nil {
		return nil, errConnNotInitialized
	}
	if partition != 0 {
		return nil, errPartition
	}

	sub, err := p.js.SubscribeSync(topic, subOpts(offset)...)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	p.logger.Info("subscribed",
		zap.String("subject", topic),
		zap.Stringer("offset", offset))
	return &subscription{sub: sub, topic: topic}, nil
}

// Disconnect drains and closes the NATS connection
func (p *PeerNATS) Disconnect() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}

// deliveryFor maps an offset onto a JetStream deliver policy and, for
// DeliverByStartSequencePolicy, the 1-based start sequence.
func deliveryFor(offset stream.Offset) (nats.DeliverPolicy, uint64) {
	switch offset {
	case stream.OffsetBeginning:
		return nats.DeliverAllPolicy, 0
	case stream.OffsetEnd:
		return nats.DeliverNewPolicy, 0
	default:
		return nats.DeliverByStartSequencePolicy, uint64(offset) + 1
	}
}

func subOpts(offset stream.Offset) []nats.SubOpt {
	opts := []nats.SubOpt{nats.OrderedConsumer()}
	switch policy, seq := deliveryFor(offset); policy {
	case nats.DeliverAllPolicy:
		opts = append(opts, nats.DeliverAll())
	case nats.DeliverNewPolicy:
		opts = append(opts, nats.DeliverNew())
	default:
		opts = append(opts, nats.StartSequence(seq))
	}
	return opts
}

type subscription struct {
	sub   *nats.Subscription
	topic string
	once  sync.Once
}

func (s *subscription) Next(ctx context.Context) (stream.Message, error) {
	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stream.Message{}, ctxErr
		}
		if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
			return stream.Message{}, stream.ErrSubscriptionClosed
		}
		return stream.Message{}, err
	}
	return toMessage(s.topic, msg), nil
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
	})
	return err
}

func toMessage(topic string, msg *nats.Msg) stream.Message {
	m := stream.Message{Topic: topic, Value: msg.Data}
	if meta, err := msg.Metadata(); err == nil {
		m.Offset = int64(meta.Sequence.Stream) - 1
	}
	if key := msg.Header.Get(HeaderKey); key != "" {
		m.Key = []byte(key)
	}
	for k := range msg.Header {
		if k == HeaderKey {
			continue
		}
		if m.Headers == nil {
			m.Headers = make(map[string]string, len(msg.Header))
		}
		m.Headers[k] = msg.Header.Get(k)
	}
	return m
}

// ensureStream creates or updates the stream
func (p *PeerNATS) ensureStream() error {
	config := &nats.StreamConfig{
		Name:     p.Config.Stream,
		Subjects: p.Config.Subjects,
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	info, err := p.js.StreamInfo(p.Config.Stream)
	if err == nil {
		if !streamConfigEqual(info.Config, *config) {
			if _, err = p.js.UpdateStream(config); err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			p.logger.Info("updated stream", zap.String("stream", p.Config.Stream))
		}
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := p.js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	p.logger.Info("created stream", zap.String("stream", p.Config.Stream))
	return nil
}

// streamConfigEqual checks if two nats.StreamConfig are equivalent
func streamConfigEqual(a, b nats.StreamConfig) bool {
	return a.Name == b.Name &&
		a.Storage == b.Storage &&
		a.Replicas == b.Replicas &&
		slices.Equal(a.Subjects, b.Subjects)
}

func defaultOptions(c Config) []nats.Option {
	opts := []nats.Option{
		nats.Name("threatflow"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.MaxReconnects(-1),
	}

	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}

	if c.TLS.Enabled {
		if c.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(c.TLS.CAFile))
		}
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
		}
	}

	return opts
}

func init() {
	stream.RegisterConnector(stream.ConnectorNATS, func() stream.Connector { return &PeerNATS{} })
}
