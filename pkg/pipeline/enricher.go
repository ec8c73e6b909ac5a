package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edgeflare/threatflow/pkg/metrics"
	"github.com/edgeflare/threatflow/pkg/pipeline/transform"
	"github.com/edgeflare/threatflow/pkg/stream"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const stageEnrich = "enrich"

// Enricher reads raw pulse pages and publishes one EnrichedThreat per pulse to SinkTopic.
type Enricher struct {
	Sub       stream.Subscription
	Publisher Publisher
	Logger    *zap.Logger
	SinkTopic string
}

// Run processes messages until the subscription fails or ctx is done, and returns that error.
func (e *Enricher) Run(ctx context.Context) error {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for {
		msg, err := e.Sub.Next(ctx)
		if err != nil {
			return err
		}

		n, err := e.handle(ctx, msg)
		if err != nil {
			fields := []zap.Field{
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			}
			if errors.Is(err, transform.ErrNotPulse) {
				// feed error documents travel on the same topic
				logger.Warn("skipping non-pulse message", fields...)
			} else {
				logger.Error("skipping message", fields...)
			}
			continue
		}
		logger.Info("enriched pulses",
			zap.Int64("offset", msg.Offset),
			zap.Int("records", n))
	}
}

func (e *Enricher) handle(ctx context.Context, msg stream.Message) (int, error) {
	timer := prometheus.NewTimer(metrics.RecordProcessingDuration.WithLabelValues(stageEnrich))
	defer timer.ObserveDuration()

	threats, err := transform.Enrich(msg.Value)
	if err != nil {
		metrics.Records.WithLabelValues(stageEnrich, OutcomeDecodeError).Inc()
		return 0, err
	}

	var errs []error
	for i, threat := range threats {
		value, err := json.Marshal(threat)
		if err != nil {
			errs = append(errs, fmt.Errorf("pulse %d: %w", i, err))
			continue
		}
		if err := e.Publisher.Publish(ctx, e.SinkTopic, value); err != nil {
			errs = append(errs, fmt.Errorf("pulse %d: %w", i, err))
			continue
		}
		metrics.Records.WithLabelValues(stageEnrich, OutcomeEnriched).Inc()
	}
	return len(threats) - len(errs), errors.Join(errs...)
}
