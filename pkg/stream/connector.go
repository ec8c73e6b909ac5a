package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNoConnection       = errors.New("no broker connection")
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrUnknownConnector   = errors.New("unknown connector")
)

// A Connector is a message broker client able to append to and read from topics.
type Connector interface {
	// Connect initializes the connector with the provided configuration.
	// The config parameter is a raw JSON message containing connector-specific settings.
	Connect(config json.RawMessage) error

	// Publish appends msg to msg.Topic / msg.Partition.
	Publish(ctx context.Context, msg Message) error

	// Subscribe opens an in-order subscription on topic/partition starting at offset.
	Subscribe(ctx context.Context, topic string, partition int32, offset Offset) (Subscription, error)

	Disconnect() error
}

// Subscription is a pull-based, unbounded sequence of messages.
type Subscription interface {
	// Next blocks until the next message is available. It returns ctx.Err() when
	// ctx is done and ErrSubscriptionClosed after Close.
	Next(ctx context.Context) (Message, error)
	Close() error
}

// Predefined connectors
const (
	ConnectorKafka = "kafka"
	ConnectorNATS  = "nats"
)

var (
	factories = make(map[string]func() Connector)
	mu        sync.RWMutex
)

// RegisterConnector adds a connector factory to the registry.
// The name parameter is used as a key to identify the connector type.
func RegisterConnector(name string, factory func() Connector) {
	mu.Lock()
	factories[name] = factory
	mu.Unlock()
}

// NewConnector returns a fresh, unconnected instance of the named connector.
func NewConnector(name string) (Connector, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, name)
	}
	return factory(), nil
}

// Connect creates the named connector and connects it with the given config map.
func Connect(name string, config map[string]any) (Connector, error) {
	c, err := NewConnector(name)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s config: %w", name, err)
	}
	if err := c.Connect(raw); err != nil {
		return nil, err
	}
	return c, nil
}
