package eventstore

import (
	"errors"
)

var (
	// ErrInvalidRange is returned when a PositionWindow violates its preconditions:
	// a negative position, a non-positive batch size, or an upper bound below the lower bound.
	ErrInvalidRange = errors.New("invalid position window")

	// ErrStorageExecutionFailed is joined with the underlying driver error whenever a storage read fails.
	ErrStorageExecutionFailed = errors.New("storage execution failed")

	// ErrResolvingCommitHorizonFailed is returned when the commit horizon could not be determined.
	ErrResolvingCommitHorizonFailed = errors.New("resolving commit horizon failed")

	// ErrQueryingEventsFailed is returned when the batch query could not be executed.
	ErrQueryingEventsFailed = errors.New("querying events failed")

	// ErrScanningDBRowFailed is returned when a matched row could not be scanned.
	ErrScanningDBRowFailed = errors.New("scanning db row failed")

	// ErrBuildingQueryFailed is returned when a SQL statement could not be built.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrDeserializingEventFailed is the sentinel every DeserializationError matches.
	ErrDeserializingEventFailed = errors.New("deserializing event failed")

	// ErrNilDatabaseConnection is returned when an engine is constructed without a connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyEventsTableName is returned when an empty events table name is configured.
	ErrEmptyEventsTableName = errors.New("events table name must not be empty")

	// ErrEmptyCheckpointTableName is returned when an empty checkpoint table name is configured.
	ErrEmptyCheckpointTableName = errors.New("checkpoint table name must not be empty")

	// ErrNilEventMapper is returned when a nil EventMapper is configured.
	ErrNilEventMapper = errors.New("event mapper must not be nil")
)

// DeserializationError reports a matched row whose payload or metadata could not be mapped
// onto its declared event type. The row is never skipped, so a consumer never sees a silent gap.
type DeserializationError struct {
	EventID   string
	EventType string
	Err       error
}

func (e *DeserializationError) Error() string {
	return ErrDeserializingEventFailed.Error() +
		": event_id=" + e.EventID +
		" event_type=" + e.EventType +
		": " + e.Err.Error()
}

// Unwrap exposes both ErrDeserializingEventFailed and the decoder error to errors.Is / errors.As.
func (e *DeserializationError) Unwrap() []error {
	return []error{ErrDeserializingEventFailed, e.Err}
}
