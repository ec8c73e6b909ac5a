// Package stream abstracts the durable, ordered topic/partition logs that connect
// the feed producer, the enricher and the store consumer.
//
// Broker clients implement `Connector` and register themselves by name, so a
// process picks its broker from configuration:
//
//	import _ "github.com/edgeflare/threatflow/pkg/stream/kafka"
//
//	conn, err := stream.Connect(stream.ConnectorKafka, cfg.Broker.Config)
//
// Consumption is pull based. `Subscribe` returns a `Subscription` whose `Next`
// blocks for the next message in partition order; re-subscribing at an `Offset`
// restarts the sequence from that position.
package stream
