// Package eventstore owns the durable state of one instance and the
// ingestion pipeline that feeds it.
//
// Each pushed event runs dedup, timestamp bucketing, anonymization,
// interning, append and aggregation, and everything it writes lands in a
// single Pebble batch. In-memory state only moves after that batch commits,
// so a storage error affects that event alone.
//
// Three streams live side by side:
//
//	v1        legacy events with full strings, written while migration runs
//	v2        current events with interned strings
//	deferred  accepted events waiting for the anonymization salt
//
// A Store is not safe for concurrent use. The runtime package serializes
// every call through its executor.
package eventstore
