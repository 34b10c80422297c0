package eventstore_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

type itemAdded struct {
	CartID   string `json:"cartId"`
	Quantity int    `json:"quantity"`
}

func newRow(globalPosition eventstore.GlobalPositionInt, eventType string, data string, metadata string) eventstore.EventRow {
	return eventstore.BuildEventRow(
		"evt-"+eventType,
		eventType,
		"cart-1",
		globalPosition,
		globalPosition,
		10,
		[]byte(data),
		[]byte(metadata),
		"1",
		time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
	)
}

func Test_JSONEventMapper_When_Type_Is_Registered_Should_Decode_Typed_Payload(t *testing.T) {
	// setup
	mapper := eventstore.NewJSONEventMapper()
	eventstore.RegisterEventType[itemAdded](mapper, "ItemAdded")

	// arrange
	row := newRow(3, "ItemAdded", `{"cartId":"c1","quantity":2}`, `{"correlationId":"corr-1"}`)

	// act
	event, err := mapper.MapEvent(row)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "ItemAdded", event.Type)
	assert.Equal(t, itemAdded{CartID: "c1", Quantity: 2}, event.Data)
	assert.Equal(t, "evt-ItemAdded", event.Metadata.EventID)
	assert.Equal(t, "cart-1", event.Metadata.StreamName)
	assert.Equal(t, eventstore.GlobalPositionInt(3), event.Metadata.GlobalPosition)
	assert.Equal(t, eventstore.GlobalPositionInt(3), event.Metadata.StreamPosition)
	assert.Equal(t, "1", event.Metadata.SchemaVersion)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), event.Metadata.Created)
	assert.Equal(t, map[string]any{"correlationId": "corr-1"}, event.Metadata.Fields)
}

func Test_JSONEventMapper_When_Type_Is_Unregistered_Should_Deliver_RawMessage(t *testing.T) {
	// arrange
	mapper := eventstore.NewJSONEventMapper()
	row := newRow(1, "Unknown", `{"a":1}`, "")

	// act
	event, err := mapper.MapEvent(row)

	// assert
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`{"a":1}`), event.Data)
	assert.Empty(t, event.Metadata.Fields)
	assert.NotNil(t, event.Metadata.Fields)
}

func Test_JSONEventMapper_Failures_Should_Be_DeserializationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mapper func() *eventstore.JSONEventMapper
		row    eventstore.EventRow
	}{
		{
			name: "registered_type_with_wrong_field_type",
			mapper: func() *eventstore.JSONEventMapper {
				m := eventstore.NewJSONEventMapper()
				eventstore.RegisterEventType[itemAdded](m, "ItemAdded")
				return m
			},
			row: newRow(1, "ItemAdded", `{"cartId":"c1","quantity":"two"}`, ""),
		},
		{
			name:   "unregistered_type_with_invalid_json",
			mapper: func() *eventstore.JSONEventMapper { return eventstore.NewJSONEventMapper() },
			row:    newRow(1, "Unknown", `{not json`, ""),
		},
		{
			name:   "empty_payload",
			mapper: func() *eventstore.JSONEventMapper { return eventstore.NewJSONEventMapper() },
			row:    newRow(1, "Unknown", ``, ""),
		},
		{
			name:   "metadata_is_not_an_object",
			mapper: func() *eventstore.JSONEventMapper { return eventstore.NewJSONEventMapper() },
			row:    newRow(1, "Unknown", `{}`, `[1,2]`),
		},
		{
			name: "strict_mapper_with_unregistered_type",
			mapper: func() *eventstore.JSONEventMapper {
				return eventstore.NewJSONEventMapper(eventstore.WithStrictEventTypes())
			},
			row: newRow(1, "Unknown", `{}`, ""),
		},
		{
			name: "unknown_field_when_disallowed",
			mapper: func() *eventstore.JSONEventMapper {
				m := eventstore.NewJSONEventMapper(eventstore.WithDisallowUnknownFields())
				eventstore.RegisterEventType[itemAdded](m, "ItemAdded")
				return m
			},
			row: newRow(1, "ItemAdded", `{"cartId":"c1","quantity":1,"color":"red"}`, ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// act
			_, err := tt.mapper().MapEvent(tt.row)

			// assert
			require.Error(t, err)
			assert.ErrorIs(t, err, eventstore.ErrDeserializingEventFailed)

			var deserializationErr *eventstore.DeserializationError
			require.True(t, errors.As(err, &deserializationErr))
			assert.Equal(t, tt.row.EventID, deserializationErr.EventID)
			assert.Equal(t, tt.row.EventType, deserializationErr.EventType)
			assert.Contains(t, err.Error(), "event_id="+tt.row.EventID)
		})
	}
}

func Test_JSONEventMapper_When_Metadata_Is_JSON_Null_Should_Return_Empty_Fields(t *testing.T) {
	// act
	event, err := eventstore.NewJSONEventMapper().MapEvent(newRow(1, "Unknown", `{}`, `null`))

	// assert
	require.NoError(t, err)
	assert.NotNil(t, event.Metadata.Fields)
	assert.Empty(t, event.Metadata.Fields)
}

func Test_ReadEventMetadata_Merged_Should_Let_Read_Positions_Win(t *testing.T) {
	// arrange
	metadata := eventstore.ReadEventMetadata{
		EventID:        "evt-1",
		StreamName:     "cart-1",
		StreamPosition: 2,
		GlobalPosition: 9,
		Fields: map[string]any{
			"correlationId":  "corr-1",
			"globalPosition": "tampered",
		},
	}

	// act
	merged := metadata.Merged()

	// assert
	assert.Equal(t, map[string]any{
		"correlationId":                      "corr-1",
		eventstore.MetadataKeyEventID:        "evt-1",
		eventstore.MetadataKeyStreamName:     "cart-1",
		eventstore.MetadataKeyStreamPosition: eventstore.GlobalPositionInt(2),
		eventstore.MetadataKeyGlobalPosition: eventstore.GlobalPositionInt(9),
	}, merged)
	assert.Equal(t, "tampered", metadata.Fields["globalPosition"], "Merged must not modify the stored fields")
}

func Test_MapEventRows_Should_Keep_Order_And_Abort_On_First_Failure(t *testing.T) {
	// setup
	mapper := eventstore.NewJSONEventMapper()

	// arrange
	valid := eventstore.EventRows{
		newRow(2, "A", `{}`, ""),
		newRow(1, "B", `{}`, ""),
	}
	broken := append(eventstore.EventRows{}, valid[0], newRow(3, "C", `{`, ""), valid[1])

	// act
	events, err := eventstore.MapEventRows(mapper, valid)
	_, brokenErr := eventstore.MapEventRows(mapper, broken)

	// assert
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventstore.GlobalPositionInt(2), events[0].Metadata.GlobalPosition)
	assert.Equal(t, eventstore.GlobalPositionInt(1), events[1].Metadata.GlobalPosition)

	var deserializationErr *eventstore.DeserializationError
	require.ErrorAs(t, brokenErr, &deserializationErr)
	assert.Equal(t, "C", deserializationErr.EventType)
}
