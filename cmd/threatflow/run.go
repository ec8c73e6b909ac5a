package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edgeflare/threatflow/pkg/config"
	"github.com/edgeflare/threatflow/pkg/metrics"
	"github.com/edgeflare/threatflow/pkg/stream"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// run executes loop until it returns or SIGINT/SIGTERM is received. The metrics
// server, when enabled, lives for the same duration.
func run(loop func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		waitTimeout(&wg, shutdownTimeout)
	}()

	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.Addr,
			Logger: logger.Named("metrics"),
		})
	}

	err := loop(ctx)
	if ctx.Err() != nil {
		logger.Info("received termination signal, shutting down")
		return nil
	}
	return err
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(timeout):
		logger.Warn("shutdown timed out", zap.Duration("timeout", timeout))
	}
}

// brokerConfig returns the connector config with the broker list override applied.
func brokerConfig(bc config.BrokerConfig) map[string]any {
	out := maps.Clone(bc.Config)
	if out == nil {
		out = map[string]any{}
	}
	if len(bc.Brokers) == 0 {
		return out
	}

	switch bc.Connector {
	case stream.ConnectorNATS:
		out["servers"] = bc.Brokers
	default:
		out["brokers"] = bc.Brokers
	}
	return out
}

// connectBroker connects the configured connector, retrying with exponential
// backoff until the broker connect timeout elapses.
func connectBroker(ctx context.Context) (stream.Connector, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.Broker.ConnectTimeout

	var conn stream.Connector
	connect := func() error {
		c, err := stream.Connect(cfg.Broker.Connector, brokerConfig(cfg.Broker))
		if errors.Is(err, stream.ErrUnknownConnector) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("broker not reachable, retrying",
			zap.String("connector", cfg.Broker.Connector),
			zap.Duration("retry_in", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(connect, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("connect %s broker: %w", cfg.Broker.Connector, err)
	}
	logger.Info("connected to broker", zap.String("connector", cfg.Broker.Connector))
	return conn, nil
}

func disconnect(conn stream.Connector) {
	if err := conn.Disconnect(); err != nil {
		logger.Warn("broker disconnect failed", zap.Error(err))
	}
}

func subscribe(ctx context.Context, conn stream.Connector, topic string, partition int32, offset string) (stream.Subscription, error) {
	off, err := stream.ParseOffset(offset)
	if err != nil {
		return nil, err
	}

	sub, err := conn.Subscribe(ctx, topic, partition, off)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s/%d at %s: %w", topic, partition, off, err)
	}
	logger.Info("subscribed",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Stringer("offset", off))
	return sub, nil
}
