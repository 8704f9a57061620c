// Package events defines the event types shared by the store, its gRPC
// surface, the producer queue and the consumer client.
package events

import (
	"github.com/rzbill/evstore/pkg/id"
)

// Visibility says how an Anonymizable value is persisted.
type Visibility uint8

const (
	// Public values are stored verbatim.
	Public Visibility = iota
	// Anonymize values are replaced with a salted hash at ingestion.
	Anonymize
)

func (v Visibility) String() string {
	if v == Anonymize {
		return "anonymize"
	}
	return "public"
}

// Anonymizable is a string tagged with how it must be stored.
type Anonymizable struct {
	Value      string     `json:"value" msgpack:"v"`
	Visibility Visibility `json:"visibility" msgpack:"a,omitempty"`
}

// PublicValue tags s to be stored verbatim.
func PublicValue(s string) *Anonymizable { return &Anonymizable{Value: s, Visibility: Public} }

// AnonymizedValue tags s to be hashed before storage.
func AnonymizedValue(s string) *Anonymizable { return &Anonymizable{Value: s, Visibility: Anonymize} }

// Event is what a producer hands to the queue.
type Event struct {
	Name      string        `json:"name"`
	Timestamp uint64        `json:"timestamp"`
	User      *Anonymizable `json:"user,omitempty"`
	Source    *Anonymizable `json:"source,omitempty"`
	Payload   []byte        `json:"payload,omitempty"`
}

// IdempotentEvent is an Event carrying the token used for deduplication.
type IdempotentEvent struct {
	Token     id.Token      `json:"token" msgpack:"k"`
	Name      string        `json:"name" msgpack:"n"`
	Timestamp uint64        `json:"timestamp" msgpack:"t"`
	User      *Anonymizable `json:"user,omitempty" msgpack:"u,omitempty"`
	Source    *Anonymizable `json:"source,omitempty" msgpack:"s,omitempty"`
	Payload   []byte        `json:"payload,omitempty" msgpack:"p,omitempty"`
}

// WithToken attaches tok to e.
func (e Event) WithToken(tok id.Token) IdempotentEvent {
	return IdempotentEvent{
		Token:     tok,
		Name:      e.Name,
		Timestamp: e.Timestamp,
		User:      e.User,
		Source:    e.Source,
		Payload:   e.Payload,
	}
}

// UnknownName replaces an event name whose stored reference cannot be
// resolved.
const UnknownName = "unknown"

// IndexedEvent is a stored event as returned by range reads.
type IndexedEvent struct {
	Index     uint64  `json:"index" msgpack:"i"`
	Name      string  `json:"name" msgpack:"n"`
	Timestamp uint64  `json:"timestamp" msgpack:"t"`
	User      *string `json:"user,omitempty" msgpack:"u,omitempty"`
	Source    *string `json:"source,omitempty" msgpack:"s,omitempty"`
	Payload   []byte  `json:"payload,omitempty" msgpack:"p,omitempty"`
}

// PushEventsArgs is the ingest request.
type PushEventsArgs struct {
	Events []IdempotentEvent `json:"events"`
}

// PushEventsResponse is empty; success is the absence of an error.
type PushEventsResponse struct{}

// EventsArgs is the range read request. WaitMs > 0 long-polls for the next
// append when the requested window is empty. Filter is an optional CEL
// expression evaluated per returned event.
type EventsArgs struct {
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
	WaitMs int64  `json:"waitMs,omitempty"`
	Filter string `json:"filter,omitempty"`
}

// EventsResponse carries the window plus the log's bounds.
type EventsResponse struct {
	Events             []IndexedEvent `json:"events"`
	LatestEventIndex   *uint64        `json:"latestEventIndex,omitempty"`
	EarliestEventIndex *uint64        `json:"earliestEventIndex,omitempty"`
}

// RemoveEventsArgs removes every stored event with index <= UpToInclusive.
type RemoveEventsArgs struct {
	UpToInclusive uint64 `json:"upToInclusive"`
}

type RemoveEventsResponse struct {
	Removed uint64 `json:"removed"`
}

type AllowlistsArgs struct{}

// Allowlists reports the deployment's caller allow-lists.
type Allowlists struct {
	Push   []string `json:"push"`
	Read   []string `json:"read"`
	Remove []string `json:"remove"`
}

type HealthArgs struct{}

type HealthResponse struct {
	Status string `json:"status"`
}
