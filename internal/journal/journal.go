// internal/journal/journal.go
package journal

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// EventType names a committed catalog or circulation change.
type EventType string

const (
	BookAdded        EventType = "BookAdded"
	BookUpdated      EventType = "BookUpdated"
	BookRemoved      EventType = "BookRemoved"
	ReaderRegistered EventType = "ReaderRegistered"
	ReaderUpdated    EventType = "ReaderUpdated"
	ReaderRemoved    EventType = "ReaderRemoved"
	LoanOpened       EventType = "LoanOpened"
	LoanReturned     EventType = "LoanReturned"
)

// Event is one entry of the append-only circulation journal.
type Event struct {
	Seq        int64               `json:"seq"`
	Type       EventType           `json:"type"`
	SubjectID  string              `json:"subject_id"`
	Data       jsoniter.RawMessage `json:"data"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Journal records events as they are appended. The store assigns Seq, which
// only increases; an append that rolls back may leave a gap.
type Journal interface {
	AppendEvent(ctx context.Context, event Event) (Event, error)
	Events(ctx context.Context, afterSeq int64, limit int) ([]Event, error)
}

// NewEvent marshals the payload of an event about the given subject.
func NewEvent(eventType EventType, subjectID string, payload interface{}, occurredAt time.Time) (Event, error) {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s event data: %w", eventType, err)
	}

	return Event{
		Type:       eventType,
		SubjectID:  subjectID,
		Data:       data,
		OccurredAt: occurredAt.UTC(),
	}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v interface{}) error {
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s event data: %w", e.Type, err)
	}
	return nil
}

// RoutingKey maps an event type to a dotted topic such as "loan.opened".
func (e Event) RoutingKey() string {
	switch e.Type {
	case BookAdded:
		return "book.added"
	case BookUpdated:
		return "book.updated"
	case BookRemoved:
		return "book.removed"
	case ReaderRegistered:
		return "reader.registered"
	case ReaderUpdated:
		return "reader.updated"
	case ReaderRemoved:
		return "reader.removed"
	case LoanOpened:
		return "loan.opened"
	case LoanReturned:
		return "loan.returned"
	default:
		return "journal.unknown"
	}
}
