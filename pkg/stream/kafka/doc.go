// Package kafka registers the "kafka" stream connector, backed by IBM/sarama.
//
// Topics used by threatflow:
//   - otx-blue: raw OTX pulse pages as returned by the feed (or a poller error payload)
//   - enriched-records: one classified threat record per message
//
// Message format:
//   - Key: constant per producer (default "default-key"), so a stream stays in one partition
//   - Value: UTF-8 JSON
//   - Headers: fetch-id (UUID of the publish call)
//
// Partitions are chosen explicitly by the producer (manual partitioner);
// consumers read a single partition from a configured offset.
//
// Configuration example:
//
//	broker:
//	  connector: kafka
//	  config:
//	    brokers: ["localhost:9092"]
//	    version: "3.6.0"
//	    ensureTopics: true
//	    topics: ["otx-blue", "enriched-records"]
//	    sasl: {enable: true, algorithm: sha512, username: u, password: p}
package kafka
