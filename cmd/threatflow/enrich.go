package main

import (
	"context"

	"github.com/edgeflare/threatflow/pkg/pipeline"
	"github.com/edgeflare/threatflow/pkg/stream"
	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:     "enrich",
	Aliases: []string{"e"},
	Short:   "Classify raw OTX pulses into enriched threat records",
	Long: `Read raw pulse pages from the enricher source topic, classify every pulse by
attack type, vector, target and urgency, and publish one enriched record per pulse
to the sink topic. Both topics use the enricher partition.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context) error {
			conn, err := connectBroker(ctx)
			if err != nil {
				return err
			}
			defer disconnect(conn)

			sub, err := subscribe(ctx, conn, cfg.Enricher.SourceTopic, cfg.Enricher.Partition, cfg.Enricher.Offset)
			if err != nil {
				return err
			}
			defer sub.Close()

			e := &pipeline.Enricher{
				Sub:       sub,
				Publisher: stream.NewProducer(conn, cfg.Producer.Key, cfg.Enricher.Partition, logger.Named("producer")),
				SinkTopic: cfg.Enricher.SinkTopic,
				Logger:    logger.Named("enricher"),
			}
			return e.Run(ctx)
		})
	},
}
