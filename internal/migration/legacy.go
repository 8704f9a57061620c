package migration

import (
	"github.com/rzbill/evstore/internal/eventlog"
	"github.com/rzbill/evstore/pkg/events"
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeLegacy frames ev in the legacy layout.
func EncodeLegacy(ev *events.IndexedEvent) (eventlog.Record, error) {
	b, err := msgpack.Marshal(ev)
	if err != nil {
		return eventlog.Record{}, err
	}
	return eventlog.Record{Header: b}, nil
}

// DecodeLegacy turns a legacy item into an event. Undecodable items become
// an event named UnknownName at the same index.
func DecodeLegacy(it eventlog.Item) events.IndexedEvent {
	unknown := events.IndexedEvent{Index: it.Index, Name: events.UnknownName}
	if it.Corrupt {
		return unknown
	}
	var ev events.IndexedEvent
	if err := msgpack.Unmarshal(it.Header, &ev); err != nil {
		return unknown
	}
	ev.Index = it.Index
	return ev
}
