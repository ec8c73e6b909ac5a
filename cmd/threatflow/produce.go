package main

import (
	"context"

	"github.com/edgeflare/threatflow/pkg/feed"
	"github.com/edgeflare/threatflow/pkg/pipeline"
	"github.com/edgeflare/threatflow/pkg/stream"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var produceCmd = &cobra.Command{
	Use:     "produce",
	Aliases: []string{"p"},
	Short:   "Poll the OTX feed and publish each snapshot",
	Long: `Poll the OTX subscribed-pulses API at a fixed interval and publish every
response (or an error document) to the producer topic. If the broker cannot be
reached at startup the producer keeps polling in degraded mode and logs each
skipped message.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		poller, err := feed.NewPoller(cfg.Feed.APIKey, feed.Options{
			URL:          cfg.Feed.URL,
			APIKeyHeader: cfg.Feed.APIKeyHeader,
			Timeout:      cfg.Feed.Timeout,
			Logger:       logger.Named("feed"),
		})
		if err != nil {
			return err
		}

		return run(func(ctx context.Context) error {
			conn, err := connectBroker(ctx)
			if err != nil {
				logger.Warn("running without broker connection", zap.Error(err))
			} else {
				defer disconnect(conn)
			}

			producer := stream.NewProducer(conn, cfg.Producer.Key, cfg.Producer.Partition, logger.Named("producer"))
			logger.Info("starting producer",
				zap.String("topic", cfg.Producer.Topic),
				zap.Duration("interval", cfg.Feed.Interval),
				zap.Bool("connected", producer.Connected()))

			return pipeline.RunProducer(ctx, poller, producer, cfg.Producer.Topic, cfg.Feed.Interval, logger.Named("producer"))
		})
	},
}
