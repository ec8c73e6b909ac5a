package main

import (
	"context"

	"github.com/edgeflare/threatflow/pkg/pipeline"
	pg "github.com/edgeflare/threatflow/pkg/pgx"
	"github.com/edgeflare/threatflow/pkg/store"
	"github.com/spf13/cobra"
)

var consumeCmd = &cobra.Command{
	Use:     "consume",
	Aliases: []string{"c"},
	Short:   "Persist enriched threat records into PostgreSQL",
	Long: `Read enriched records from the consumer topic starting at the configured
offset, normalize each one and insert it into the store table. A record that
fails to parse, normalize or insert is logged and skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context) error {
			pool, err := pg.NewPool(ctx, cfg.Store.ConnString, pg.PoolOptions{
				MaxConns:       cfg.Store.MaxConns,
				ConnectTimeout: cfg.Store.ConnectTimeout,
				Logger:         logger.Named("pgx"),
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			sink := store.NewSink(pool, cfg.Store.Table, cfg.Store.Schema, logger.Named("store"))
			if cfg.Store.EnsureTable {
				if err := sink.EnsureTable(ctx); err != nil {
					return err
				}
			}

			conn, err := connectBroker(ctx)
			if err != nil {
				return err
			}
			defer disconnect(conn)

			sub, err := subscribe(ctx, conn, cfg.Consumer.Topic, cfg.Consumer.Partition, cfg.Consumer.Offset)
			if err != nil {
				return err
			}
			defer sub.Close()

			c := &pipeline.Consumer{
				Sub:    sub,
				Sink:   sink,
				Logger: logger.Named("consumer"),
			}
			return c.Run(ctx)
		})
	},
}
