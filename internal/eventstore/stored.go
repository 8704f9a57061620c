package eventstore

import (
	"github.com/rzbill/evstore/internal/eventlog"
	"github.com/rzbill/evstore/pkg/events"
	"github.com/vmihailenco/msgpack/v5"
)

// storedEvent is the v2 record header; strings are interner ids and the
// payload travels as the record payload.
type storedEvent struct {
	Index     uint64  `msgpack:"i"`
	Name      uint32  `msgpack:"n"`
	Timestamp uint64  `msgpack:"t"`
	User      *uint32 `msgpack:"u,omitempty"`
	Source    *uint32 `msgpack:"s,omitempty"`
}

func (s *Store) hydrate(it eventlog.Item) events.IndexedEvent {
	ev := events.IndexedEvent{Index: it.Index, Name: events.UnknownName}
	if it.Corrupt {
		return ev
	}
	var se storedEvent
	if err := msgpack.Unmarshal(it.Header, &se); err != nil {
		return ev
	}
	ev.Timestamp = se.Timestamp
	ev.Payload = it.Payload
	if name, ok := s.interner.ToString(se.Name); ok {
		ev.Name = name
	}
	ev.User = s.lookup(se.User)
	ev.Source = s.lookup(se.Source)
	return ev
}

func (s *Store) lookup(id *uint32) *string {
	if id == nil {
		return nil
	}
	str, ok := s.interner.ToString(*id)
	if !ok {
		return nil
	}
	return &str
}
