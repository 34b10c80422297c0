package eventstore

import (
	"time"
)

// EventRows is an alias type for a slice of EventRow.
type EventRows = []EventRow

// EventRow is a DTO (data transfer object) carrying one matched row of the event-record store
// from an engine to the Row-to-Event mapping.
//
// It is built on scalars to be completely agnostic of the storage product and of the domain events in the client code.
// EventData and EventMetadata hold the raw JSON exactly as stored.
type EventRow struct {
	StreamID       string
	StreamPosition GlobalPositionInt
	GlobalPosition GlobalPositionInt
	TransactionID  TransactionIDUint
	EventType      string
	EventData      []byte
	EventMetadata  []byte
	SchemaVersion  string
	EventID        string
	Created        time.Time
}

// BuildEventRow is a factory method for EventRow.
//
// It populates the EventRow with the given scalar input. Metadata may be empty, which maps to no metadata fields.
func BuildEventRow(
	eventID string,
	eventType string,
	streamID string,
	streamPosition GlobalPositionInt,
	globalPosition GlobalPositionInt,
	transactionID TransactionIDUint,
	eventData []byte,
	eventMetadata []byte,
	schemaVersion string,
	created time.Time,
) EventRow {

	return EventRow{
		StreamID:       streamID,
		StreamPosition: streamPosition,
		GlobalPosition: globalPosition,
		TransactionID:  transactionID,
		EventType:      eventType,
		EventData:      eventData,
		EventMetadata:  eventMetadata,
		SchemaVersion:  schemaVersion,
		EventID:        eventID,
		Created:        created,
	}
}
