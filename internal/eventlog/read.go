package eventlog

import (
	"github.com/cockroachdb/pebble"
)

// Item is a stored record. Corrupt is set when framing or checksum
// verification failed; Header and Payload are nil in that case.
type Item struct {
	Index   uint64
	Header  []byte
	Payload []byte
	Corrupt bool
}

// Get returns up to length contiguous items starting at start. A start
// below the earliest stored index is clamped to it; a start past the end
// yields an empty slice. Get never fails: iterator errors end the window early.
func (l *Log) Get(start, length uint64) []Item {
	st := l.Stats()
	if st.Earliest == nil || length == 0 {
		return nil
	}
	if start < *st.Earliest {
		start = *st.Earliest
	}
	if start >= st.Next {
		return nil
	}
	end := st.Next
	if length < end-start {
		end = start + length
	}

	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: KeyLogEntry(l.stream, start),
		UpperBound: KeyLogEntry(l.stream, end),
	})
	if err != nil {
		return nil
	}
	defer iter.Close()

	items := make([]Item, 0, end-start)
	for ok := iter.First(); ok; ok = iter.Next() {
		idx := indexFromKey(iter.Key())
		dec, valid := DecodeRecord(iter.Value())
		if !valid {
			items = append(items, Item{Index: idx, Corrupt: true})
			continue
		}
		items = append(items, Item{Index: idx, Header: dec.Header, Payload: dec.Payload})
	}
	return items
}
