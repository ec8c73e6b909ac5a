// Package transform holds the pure record transformations of the pipeline.
//
// Two stages are provided:
//
//   - Enrich classifies raw OTX pulse pages into EnrichedThreat records
//     (attack types, attack vectors, urgency, targets, locations, expiration).
//   - DecodeDocument + Normalize turn an enriched record message into a typed
//     Record with every field defaulted, ready for the store.
//
// Neither stage performs I/O.
package transform
