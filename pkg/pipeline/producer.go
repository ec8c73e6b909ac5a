package pipeline

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	DefaultInterval = 60 * time.Second
	previewLen      = 200
)

// Fetcher returns one snapshot of the upstream feed. It never fails; errors are
// reported in-band as a JSON error document.
type Fetcher interface {
	Fetch(ctx context.Context) []byte
}

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// RunProducer fetches and publishes one snapshot per interval until ctx is done.
// A zero interval uses DefaultInterval. Publish errors and panics inside a cycle
// are logged and the next cycle runs as scheduled.
func RunProducer(ctx context.Context, f Fetcher, p Publisher, topic string, interval time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		produceOnce(ctx, f, p, topic, logger)
		timer.Reset(interval)
	}
}

func produceOnce(ctx context.Context, f Fetcher, p Publisher, topic string, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("producer cycle panicked", zap.String("topic", topic), zap.Error(fmt.Errorf("%v", r)))
		}
	}()

	payload := f.Fetch(ctx)
	logger.Info("fetched feed snapshot",
		zap.Int("bytes", len(payload)),
		zap.String("preview", preview(payload, previewLen)))

	if err := p.Publish(ctx, topic, payload); err != nil {
		logger.Error("publish failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	logger.Info("published feed snapshot", zap.String("topic", topic))
}

// preview returns at most n characters of b, never splitting a UTF-8 sequence.
func preview(b []byte, n int) string {
	if utf8.RuneCount(b) <= n {
		return string(b)
	}
	i := 0
	for range n {
		_, size := utf8.DecodeRune(b[i:])
		i += size
	}
	return string(b[:i]) + "..."
}
