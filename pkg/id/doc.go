// Package id provides producer idempotency tokens and sortable ids.
//
// Token is a random 128-bit value (UUIDv4 bytes) generated once per event by
// the producer and kept across retries; it is what the store deduplicates on.
// It encodes as 32 hex characters in JSON.
//
// ID is 16 bytes big-endian [ms timestamp][sequence]; byte order matches
// creation order within a process. Generator never goes backwards even when
// the wall clock does.
package id
