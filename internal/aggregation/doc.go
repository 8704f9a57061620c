// Package aggregation maintains per-user event counts by UTC day and hour.
//
// Events are folded in strictly by index: an event whose index is not the
// next expected one is ignored, so replays and gaps never double count.
// Daily buckets are kept forever. Hourly buckets are capped and the oldest
// hour is evicted first. Counters live in memory and are written through to
// Pebble; Open rebuilds them on startup.
package aggregation
