package eventstore

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const (
	// MetadataKeyEventID is the merged metadata key for the event id.
	MetadataKeyEventID = "eventId"
	// MetadataKeyStreamName is the merged metadata key for the owning stream.
	MetadataKeyStreamName = "streamName"
	// MetadataKeyStreamPosition is the merged metadata key for the per-stream position.
	MetadataKeyStreamPosition = "streamPosition"
	// MetadataKeyGlobalPosition is the merged metadata key for the global position.
	MetadataKeyGlobalPosition = "globalPosition"
)

var (
	errEmptyEventData        = errors.New("event data is empty")
	errInvalidEventData      = errors.New("event data is not valid json")
	errUnregisteredEventType = errors.New("event type is not registered")
)

// ReadEvents is an alias type for a slice of ReadEvent.
type ReadEvents = []ReadEvent

// ReadEvent is a typed event as delivered to consumers: the declared type, the decoded payload,
// and the combined read metadata.
type ReadEvent struct {
	Type     string
	Data     any
	Metadata ReadEventMetadata
}

// ReadEventMetadata combines the row's own metadata fields with the read positions of the event.
type ReadEventMetadata struct {
	EventID        string
	StreamName     string
	StreamPosition GlobalPositionInt
	GlobalPosition GlobalPositionInt
	SchemaVersion  string
	Created        time.Time
	Fields         map[string]any
}

// Merged returns the row metadata fields merged with eventId, streamName, streamPosition, and globalPosition.
// The read positions win over stored fields with the same key.
func (m ReadEventMetadata) Merged() map[string]any {
	merged := make(map[string]any, len(m.Fields)+4)
	for key, val := range m.Fields {
		merged[key] = val
	}

	merged[MetadataKeyEventID] = m.EventID
	merged[MetadataKeyStreamName] = m.StreamName
	merged[MetadataKeyStreamPosition] = m.StreamPosition
	merged[MetadataKeyGlobalPosition] = m.GlobalPosition

	return merged
}

// EventMapper converts one matched EventRow into a ReadEvent.
// It must be pure, and it must report undecodable rows as *DeserializationError instead of skipping them.
type EventMapper interface {
	MapEvent(row EventRow) (ReadEvent, error)
}

type payloadDecoder func(data []byte) (any, error)

// JSONEventMapper maps JSON payloads onto Go types registered per event type.
//
// Event types without a registration are delivered as json.RawMessage (after a validity check),
// unless the mapper was built WithStrictEventTypes.
type JSONEventMapper struct {
	mu       sync.RWMutex
	decoders map[string]payloadDecoder
	strict   bool
	json     jsoniter.API
}

// JSONEventMapperOption configures a JSONEventMapper.
type JSONEventMapperOption func(*JSONEventMapper)

// WithStrictEventTypes makes rows with unregistered event types fail with a DeserializationError.
func WithStrictEventTypes() JSONEventMapperOption {
	return func(m *JSONEventMapper) {
		m.strict = true
	}
}

// WithDisallowUnknownFields makes payloads with fields unknown to the registered type fail.
func WithDisallowUnknownFields() JSONEventMapperOption {
	return func(m *JSONEventMapper) {
		m.json = jsoniter.Config{
			EscapeHTML:             true,
			SortMapKeys:            true,
			ValidateJsonRawMessage: true,
			DisallowUnknownFields:  true,
		}.Froze()
	}
}

// NewJSONEventMapper creates a JSONEventMapper without registrations.
func NewJSONEventMapper(options ...JSONEventMapperOption) *JSONEventMapper {
	m := &JSONEventMapper{
		decoders: make(map[string]payloadDecoder),
		json:     jsoniter.ConfigCompatibleWithStandardLibrary,
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// RegisterEventType registers T as the payload type of eventType; MapEvent then delivers Data as a T value.
func RegisterEventType[T any](m *JSONEventMapper, eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decoders[eventType] = func(data []byte) (any, error) {
		var payload T
		if err := m.json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}

		return payload, nil
	}
}

// MapEvent implements EventMapper.
func (m *JSONEventMapper) MapEvent(row EventRow) (ReadEvent, error) {
	fields, metadataErr := m.decodeMetadata(row.EventMetadata)
	if metadataErr != nil {
		return ReadEvent{}, m.deserializationError(row, metadataErr)
	}

	data, dataErr := m.decodeData(row.EventType, row.EventData)
	if dataErr != nil {
		return ReadEvent{}, m.deserializationError(row, dataErr)
	}

	return ReadEvent{
		Type: row.EventType,
		Data: data,
		Metadata: ReadEventMetadata{
			EventID:        row.EventID,
			StreamName:     row.StreamID,
			StreamPosition: row.StreamPosition,
			GlobalPosition: row.GlobalPosition,
			SchemaVersion:  row.SchemaVersion,
			Created:        row.Created,
			Fields:         fields,
		},
	}, nil
}

func (m *JSONEventMapper) decodeMetadata(raw []byte) (map[string]any, error) {
	fields := make(map[string]any)

	if len(raw) == 0 {
		return fields, nil
	}

	if err := m.json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	// a stored JSON null leaves the map nil
	if fields == nil {
		fields = make(map[string]any)
	}

	return fields, nil
}

func (m *JSONEventMapper) decodeData(eventType string, raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, errEmptyEventData
	}

	m.mu.RLock()
	decode, registered := m.decoders[eventType]
	m.mu.RUnlock()

	if registered {
		return decode(raw)
	}

	if m.strict {
		return nil, errUnregisteredEventType
	}

	if !m.json.Valid(raw) {
		return nil, errInvalidEventData
	}

	data := make(json.RawMessage, len(raw))
	copy(data, raw)

	return data, nil
}

func (m *JSONEventMapper) deserializationError(row EventRow, err error) error {
	return &DeserializationError{
		EventID:   row.EventID,
		EventType: row.EventType,
		Err:       err,
	}
}

// MapEventRows maps all rows in order. The first undecodable row aborts the mapping.
func MapEventRows(mapper EventMapper, rows EventRows) (ReadEvents, error) {
	events := make(ReadEvents, 0, len(rows))

	for _, row := range rows {
		event, err := mapper.MapEvent(row)
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, nil
}
