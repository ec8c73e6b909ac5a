package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/threatflow/pkg/metrics"
	"github.com/edgeflare/threatflow/pkg/pipeline/transform"
	"github.com/edgeflare/threatflow/pkg/stream"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const stageConsume = "consume"

// Outcomes recorded in metrics.Records.
const (
	OutcomePersisted    = "persisted"
	OutcomeRejected     = "rejected"
	OutcomeDecodeError  = "decode_error"
	OutcomePersistError = "persist_error"
	OutcomePublished    = "published"
	OutcomeEnriched     = "enriched"
)

// Persister stores one normalized record.
type Persister interface {
	Persist(ctx context.Context, r transform.Record) error
}

// Consumer reads enriched records from a subscription and persists them in delivery order.
type Consumer struct {
	Sub    stream.Subscription
	Sink   Persister
	Logger *zap.Logger
}

// Run processes messages until the subscription fails or ctx is done, and returns that error.
// A message that cannot be decoded, normalized or persisted is logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for {
		msg, err := c.Sub.Next(ctx)
		if err != nil {
			return err
		}

		outcome, err := c.handle(ctx, msg)
		metrics.Records.WithLabelValues(stageConsume, outcome).Inc()
		if err != nil {
			logger.Error("skipping message",
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.String("outcome", outcome),
				zap.Error(err))
			continue
		}
		logger.Debug("record persisted",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset))
	}
}

func (c *Consumer) handle(ctx context.Context, msg stream.Message) (string, error) {
	timer := prometheus.NewTimer(metrics.RecordProcessingDuration.WithLabelValues(stageConsume))
	defer timer.ObserveDuration()

	doc, err := transform.DecodeDocument(msg.Value)
	if err != nil {
		return OutcomeDecodeError, err
	}

	record, err := transform.Normalize(doc)
	switch {
	case errors.Is(err, transform.ErrInvalidDate):
		return OutcomeRejected, err
	case err != nil:
		return OutcomeDecodeError, err
	}

	if err := c.Sink.Persist(ctx, record); err != nil {
		return OutcomePersistError, fmt.Errorf("offset %d: %w", msg.Offset, err)
	}
	return OutcomePersisted, nil
}
