package eventlog

import (
	"encoding/binary"

	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
)

// Keyspace (byte-wise sortable):
//   - log/{stream}/m              meta: next index (be8) | earliest stored index (be8)
//   - log/{stream}/e/{index_be8}  entries
//   - log/{stream}/c/{name}       named cursors (be8)

var (
	logPrefix  = []byte("log/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
	cursorSeg  = []byte("/c/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func streamKey(stream string, suffix []byte, extra int) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+len(suffix)+extra)
	k = append(k, logPrefix...)
	k = append(k, stream...)
	return append(k, suffix...)
}

// KeyLogMeta builds the stream metadata key.
func KeyLogMeta(stream string) []byte {
	return streamKey(stream, metaSuffix, 0)
}

// KeyLogEntry builds the entry key; big-endian index keeps entries ordered.
func KeyLogEntry(stream string, index uint64) []byte {
	return appendBE8(streamKey(stream, entrySeg, 8), index)
}

// KeyCursor builds the key of a named cursor.
func KeyCursor(stream, name string) []byte {
	return append(streamKey(stream, cursorSeg, len(name)), name...)
}

// entryBounds returns [low, high) covering every entry of stream.
func entryBounds(stream string) (low, high []byte) {
	return KeyLogEntry(stream, 0), pebblestore.PrefixEnd(streamKey(stream, entrySeg, 0))
}

func indexFromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
