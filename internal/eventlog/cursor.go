package eventlog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
)

// StageCursor writes a named cursor into b.
func (l *Log) StageCursor(b *pebble.Batch, name string, value uint64) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], value)
	return b.Set(KeyCursor(l.stream, name), v[:], nil)
}

// CommitCursor stores value for name unless the stored value is already
// greater or equal; cursors never regress.
func (l *Log) CommitCursor(name string, value uint64) error {
	if cur, ok := l.GetCursor(name); ok && value <= cur {
		return nil
	}
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], value)
	return l.db.Set(KeyCursor(l.stream, name), v[:])
}

// GetCursor loads a named cursor.
func (l *Log) GetCursor(name string) (uint64, bool) {
	cur, err := l.db.Get(KeyCursor(l.stream, name))
	if err != nil || len(cur) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(cur[:8]), true
}
