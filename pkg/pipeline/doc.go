// Package pipeline runs the long-lived loops of threatflow:
//
//   - RunProducer polls the feed and publishes each snapshot to a topic.
//   - Enricher turns raw pulse pages into enriched threat records.
//   - Consumer normalizes enriched records and persists them.
//
// Each loop owns its subscription or publisher and processes one message at a
// time. A failure is confined to the message that caused it.
package pipeline
