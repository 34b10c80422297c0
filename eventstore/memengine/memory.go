package memengine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

const (
	defaultFirstTransactionID = 1
	logMsgBatchRead           = "eventstore operation: batch read"
	logAttrPartition          = "partition"
	logAttrEventCount         = "event_count"
	logAttrCurrentPosition    = "current_global_position"
	logAttrAreEventsLeft      = "are_events_left"
	logAttrError              = "error"
	logMsgReadBatchFailed     = "batch read failed"
)

var (
	// ErrTransactionClosed is returned when a committed or rolled back transaction is used again.
	ErrTransactionClosed = errors.New("transaction is already closed")

	// ErrEventNotFound is returned by Archive when no committed event has the given position.
	ErrEventNotFound = errors.New("event not found")

	// ErrEmptyStreamID is returned when an event without a stream id is appended.
	ErrEmptyStreamID = errors.New("stream id must not be empty")

	// ErrEmptyEventType is returned when an event without an event type is appended.
	ErrEmptyEventType = errors.New("event type must not be empty")
)

// NewEvent is an event to be appended. An empty EventID is replaced by a random UUID.
type NewEvent struct {
	EventID       string
	StreamID      string
	EventType     string
	EventData     []byte
	EventMetadata []byte
	SchemaVersion string
}

// BuildJSONEvent marshals data and metadata to JSON and returns a NewEvent.
func BuildJSONEvent(streamID string, eventType string, data any, metadata map[string]any) (NewEvent, error) {
	eventData, dataErr := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(data)
	if dataErr != nil {
		return NewEvent{}, dataErr
	}

	var eventMetadata []byte
	if metadata != nil {
		var metadataErr error
		if eventMetadata, metadataErr = jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(metadata); metadataErr != nil {
			return NewEvent{}, metadataErr
		}
	}

	return NewEvent{
		StreamID:      streamID,
		EventType:     eventType,
		EventData:     eventData,
		EventMetadata: eventMetadata,
	}, nil
}

type storedRow struct {
	row        eventstore.EventRow
	partition  string
	isArchived bool
}

type streamKey struct {
	partition string
	streamID  string
}

// EventStore keeps the event log in memory.
//
// It has no snapshot primitive, so it emulates the commit horizon with a ticket sequencer:
// Begin claims the next transaction id, Append allocates positions immediately, and Commit makes the rows
// visible to the horizon check. The horizon is the lowest open ticket, or the next ticket when none is open.
// Rolled back transactions leave permanent gaps in the global position sequence.
type EventStore struct {
	mu                  sync.Mutex
	nextTransactionID   eventstore.TransactionIDUint
	nextGlobalPosition  eventstore.GlobalPositionInt
	nextStreamPositions map[streamKey]eventstore.GlobalPositionInt
	openTransactions    map[eventstore.TransactionIDUint]*Transaction
	committedRows       []storedRow
	mapper              eventstore.EventMapper
	logger              eventstore.Logger
	now                 func() time.Time
}

// Option defines a functional option for configuring EventStore.
type Option func(*EventStore)

// WithEventMapper replaces the default JSONEventMapper.
func WithEventMapper(mapper eventstore.EventMapper) Option {
	return func(s *EventStore) {
		if mapper != nil {
			s.mapper = mapper
		}
	}
}

// WithLogger sets the logger for the EventStore.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *EventStore) {
		s.logger = logger
	}
}

// WithFirstTransactionID sets the id the first Begin claims.
func WithFirstTransactionID(transactionID eventstore.TransactionIDUint) Option {
	return func(s *EventStore) {
		s.nextTransactionID = transactionID
	}
}

// NewEventStore creates an empty EventStore.
func NewEventStore(options ...Option) *EventStore {
	s := &EventStore{
		nextTransactionID:   defaultFirstTransactionID,
		nextGlobalPosition:  1,
		nextStreamPositions: make(map[streamKey]eventstore.GlobalPositionInt),
		openTransactions:    make(map[eventstore.TransactionIDUint]*Transaction),
		mapper:              eventstore.NewJSONEventMapper(),
		now:                 time.Now,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// Begin claims the next transaction id. The transaction holds back the commit horizon until it is closed.
func (s *EventStore) Begin() *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{
		store: s,
		id:    s.nextTransactionID,
	}
	s.nextTransactionID++
	s.openTransactions[tx.id] = tx

	return tx
}

// AppendCommitted appends the events in their own transaction and commits it.
// Claiming the transaction id, allocating the positions, and committing happen under one lock,
// so a transaction appended this way never holds back the commit horizon.
func (s *EventStore) AppendCommitted(partition string, events ...NewEvent) ([]eventstore.GlobalPositionInt, error) {
	if partition == "" {
		partition = eventstore.DefaultPartition
	}

	if err := validateEvents(events); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{store: s, id: s.nextTransactionID}
	s.nextTransactionID++

	positions := make([]eventstore.GlobalPositionInt, 0, len(events))
	for _, event := range events {
		stored := s.allocate(tx, partition, event)
		s.committedRows = append(s.committedRows, stored)
		positions = append(positions, stored.row.GlobalPosition)
	}

	tx.closed = true

	return positions, nil
}

// Archive hides a committed event from all future reads.
func (s *EventStore) Archive(partition string, globalPosition eventstore.GlobalPositionInt) error {
	if partition == "" {
		partition = eventstore.DefaultPartition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.committedRows {
		if s.committedRows[i].partition == partition && s.committedRows[i].row.GlobalPosition == globalPosition {
			s.committedRows[i].isArchived = true
			return nil
		}
	}

	return ErrEventNotFound
}

// ResolveCommitHorizon implements eventstore.CommitHorizonResolver.
func (s *EventStore) ResolveCommitHorizon(ctx context.Context) (eventstore.CommitHorizon, error) {
	if err := ctx.Err(); err != nil {
		return eventstore.CommitHorizon{}, errors.Join(eventstore.ErrResolvingCommitHorizonFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lowest := s.nextTransactionID
	for id := range s.openTransactions {
		if id < lowest {
			lowest = id
		}
	}

	return eventstore.NewCommitHorizon(lowest), nil
}

// ExecuteBatchPlan implements eventstore.BatchExecutor.
func (s *EventStore) ExecuteBatchPlan(ctx context.Context, plan eventstore.BatchPlan) (eventstore.EventRows, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrStorageExecutionFailed, eventstore.ErrQueryingEventsFailed, err)
	}

	s.mu.Lock()
	matched := make(eventstore.EventRows, 0)
	for _, stored := range s.committedRows {
		if plan.Matches(stored.partition, stored.isArchived, stored.row.TransactionID, stored.row.GlobalPosition) {
			matched = append(matched, stored.row)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(matched, func(a, b eventstore.EventRow) int {
		return eventstore.CompareRows(a.TransactionID, a.GlobalPosition, b.TransactionID, b.GlobalPosition)
	})

	if plan.Range.HasLimit && len(matched) > plan.Range.Limit {
		matched = matched[:plan.Range.Limit]
	}

	return matched, nil
}

// ReadMessagesBatch reads one ordered batch of committed events of a single partition.
func (s *EventStore) ReadMessagesBatch(ctx context.Context, options eventstore.ReadBatchOptions) (eventstore.BatchResult, error) {
	batch, err := eventstore.ReadMessagesBatch(ctx, s, s.mapper, options)
	if err != nil {
		if s.logger != nil {
			s.logger.Error(logMsgReadBatchFailed, logAttrError, err.Error(), logAttrPartition, options.PartitionOrDefault())
		}

		return eventstore.BatchResult{}, err
	}

	if s.logger != nil {
		s.logger.Info(
			logMsgBatchRead,
			logAttrPartition, options.PartitionOrDefault(),
			logAttrEventCount, len(batch.Messages),
			logAttrCurrentPosition, batch.CurrentGlobalPosition,
			logAttrAreEventsLeft, batch.AreEventsLeft,
		)
	}

	return batch, nil
}

// OpenTransactions returns how many transactions currently hold back the commit horizon.
func (s *EventStore) OpenTransactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.openTransactions)
}

func validateEvents(events []NewEvent) error {
	for _, event := range events {
		if event.StreamID == "" {
			return ErrEmptyStreamID
		}

		if event.EventType == "" {
			return ErrEmptyEventType
		}
	}

	return nil
}

// allocate must be called with s.mu held.
func (s *EventStore) allocate(tx *Transaction, partition string, event NewEvent) storedRow {
	key := streamKey{partition: partition, streamID: event.StreamID}
	streamPosition := s.nextStreamPositions[key] + 1
	s.nextStreamPositions[key] = streamPosition

	globalPosition := s.nextGlobalPosition
	s.nextGlobalPosition++

	eventID := event.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	row := eventstore.BuildEventRow(
		eventID,
		event.EventType,
		event.StreamID,
		streamPosition,
		globalPosition,
		tx.id,
		slices.Clone(event.EventData),
		slices.Clone(event.EventMetadata),
		event.SchemaVersion,
		s.now(),
	)

	return storedRow{row: row, partition: partition}
}
