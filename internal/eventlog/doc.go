// Package eventlog implements the append-only event log on Pebble.
//
// A Log is one named stream. Keys sort byte-wise:
//   - log/{stream}/m              meta (next index, earliest stored index)
//   - log/{stream}/e/{index_be8}  entries
//   - log/{stream}/c/{name}       named cursors
//
// Records are framed as uvarint headerLen | header | payload | crc32c.
//
// Indices are gapless, start at 0 and are absolute: TrimThrough removes a
// prefix of the stream without renumbering, and Get clamps a start below the
// earliest stored index. Stage/Applied let callers commit an append in the
// same Pebble batch as other state; the in-memory view only moves after the
// batch commits.
package eventlog
