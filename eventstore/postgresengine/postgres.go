package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore/postgresengine/internal/adapters"
)

const (
	defaultEventTableName          = "events"
	defaultCheckpointTableName     = "processor_checkpoints"
	logMsgBuildSelectQueryFailed   = "failed to build batch select query"
	logMsgBuildHorizonQueryFailed  = "failed to build commit horizon query"
	logMsgDBQueryFailed            = "database query execution failed"
	logMsgCloseRowsFailed          = "failed to close database rows"
	logMsgScanRowFailed            = "failed to scan database row"
	logMsgIterateRowsFailed        = "failed to iterate database rows"
	logMsgResolveHorizonFailed     = "failed to resolve commit horizon"
	logMsgParseHorizonFailed       = "failed to parse commit horizon"
	logMsgReadBatchFailed          = "batch read failed"
	logMsgDeserializeFailed        = "failed to deserialize event from database row"
	logMsgBuildCheckpointFailed    = "failed to build checkpoint statement"
	logMsgDBExecFailed             = "database execution failed"
	logMsgBatchRead                = "batch read"
	logMsgCheckpointSaved          = "checkpoint saved"
	logMsgSchemaCreated            = "schema created"
	logMsgSQLExecuted              = "executed sql for: "
	logMsgOperation                = "eventstore operation: "
	logAttrError                   = "error"
	logAttrQuery                   = "query"
	logAttrEventID                 = "event_id"
	logAttrEventType               = "event_type"
	logAttrEventCount              = "event_count"
	logAttrDurationMS              = "duration_ms"
	logAttrPartition               = "partition"
	logAttrCommitHorizon           = "commit_horizon"
	logAttrCurrentGlobalPosition   = "current_global_position"
	logAttrAreEventsLeft           = "are_events_left"
	logAttrProcessorID             = "processor_id"
	logAttrPosition                = "position"
	logActionReadBatch             = "read_batch"
	logActionCommitHorizon         = "commit_horizon"
	logActionSaveCheckpoint        = "save_checkpoint"
	logActionLoadCheckpoint        = "load_checkpoint"
	logActionCreateSchema          = "create_schema"
	colStreamID                    = "stream_id"
	colStreamPosition              = "stream_position"
	colGlobalPosition              = "global_position"
	colTransactionID               = "transaction_id"
	colEventType                   = "event_type"
	colEventData                   = "event_data"
	colEventMetadata               = "event_metadata"
	colEventSchemaVersion          = "event_schema_version"
	colEventID                     = "event_id"
	colCreated                     = "created"
	colPartition                   = "partition"
	colIsArchived                  = "is_archived"
	colProcessorID                 = "processor_id"
	colPosition                    = "position"
	colUpdatedAt                   = "updated_at"
	dialectPostgres                = "postgres"
	aliasHorizon                   = "commit_horizon"
	aliasTransactionIDText         = "transaction_id_text"
	exprSnapshotXmin               = "pg_snapshot_xmin(pg_current_snapshot())::text"
	exprTransactionIDText          = "transaction_id::text"
	castXid8                       = "?::xid8"
	excludedPrefix                 = "excluded."
	errorTypeInvalidRange          = "invalid_range"
	errorTypeCommitHorizon         = "commit_horizon"
	errorTypeStorageExecution      = "storage_execution"
	errorTypeDeserialization       = "deserialization"
	errorTypeBuildQuery            = "build_query"
	errorTypeContextCanceled       = "context_canceled"
	errorTypeContextDeadline       = "context_deadline"
	errorTypeUnknown               = "unknown"
	defaultReadBatchRowsCapacity   = 64
	checkpointLoadExpectedRowLimit = 1
)

type (
	sqlQueryString = string
	queryDuration  = time.Duration
)

// EventStore reads ordered batches of committed events from a PostgreSQL events table.
// It leverages a database adapter and supports customizable logging, metrics, tracing, and table names.
type EventStore struct {
	db                  adapters.DBAdapter
	eventTableName      string
	checkpointTableName string
	mapper              eventstore.EventMapper
	logger              eventstore.Logger
	contextualLogger    eventstore.ContextualLogger
	metricsCollector    eventstore.MetricsCollector
	tracingCollector    eventstore.TracingCollector
}

// NewEventStoreFromPGXPool creates a new EventStore using a pgx Pool with optional configuration.
func NewEventStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapter(db), options...)
}

// NewEventStoreFromPGXPoolAndReplica creates a new EventStore using a primary and a replica pgx Pool.
// Reads from contexts marked with eventstore.WithEventualConsistency go to the replica.
func NewEventStoreFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil || replica == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapterWithReplica(db, replica), options...)
}

// NewEventStoreFromSQLDB creates a new EventStore using a sql.DB with optional configuration.
func NewEventStoreFromSQLDB(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLAdapter(db), options...)
}

// NewEventStoreFromSQLDBAndReplica creates a new EventStore using a primary and a replica sql.DB.
func NewEventStoreFromSQLDBAndReplica(db *sql.DB, replica *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil || replica == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLAdapterWithReplica(db, replica), options...)
}

// NewEventStoreFromSQLX creates a new EventStore using a sqlx.DB with optional configuration.
func NewEventStoreFromSQLX(db *sqlx.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLXAdapter(db), options...)
}

// NewEventStoreFromSQLXAndReplica creates a new EventStore using a primary and a replica sqlx.DB.
func NewEventStoreFromSQLXAndReplica(db *sqlx.DB, replica *sqlx.DB, options ...Option) (*EventStore, error) {
	if db == nil || replica == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLXAdapterWithReplica(db, replica), options...)
}

func newEventStore(db adapters.DBAdapter, options ...Option) (*EventStore, error) {
	es := &EventStore{
		db:                  db,
		eventTableName:      defaultEventTableName,
		checkpointTableName: defaultCheckpointTableName,
		mapper:              eventstore.NewJSONEventMapper(),
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// ReadMessagesBatch reads one ordered batch of committed events of a single partition.
//
// The commit horizon is resolved anew for every call; rows of transactions at or above it are left out
// until they cleared it. A consumer advancing AfterPosition{After: CurrentGlobalPosition} sees every event
// as long as writers allocate global positions in transaction id order. A younger transaction that
// allocated a lower position than an older one is delivered once, or never if the older one's rows moved
// the cursor past it first.
func (es *EventStore) ReadMessagesBatch(ctx context.Context, options eventstore.ReadBatchOptions) (eventstore.BatchResult, error) {
	partition := options.PartitionOrDefault()

	tracing, ctx := es.startReadBatchTracing(ctx, partition)
	metrics := es.startReadBatchMetrics(ctx, partition)
	start := time.Now()

	batch, err := eventstore.ReadMessagesBatch(ctx, es, es.mapper, options)
	duration := time.Since(start)

	if err != nil {
		errorType := classifyReadBatchError(err)
		es.logReadBatchError(ctx, err, errorType, partition)
		tracing.finishError(errorType, duration)
		metrics.recordError(errorType, duration)

		return eventstore.BatchResult{}, err
	}

	tracing.finishSuccess(batch, duration)
	metrics.recordSuccess(batch, duration)

	logArgs := []any{
		logAttrPartition, partition,
		logAttrEventCount, len(batch.Messages),
		logAttrCurrentGlobalPosition, batch.CurrentGlobalPosition,
		logAttrAreEventsLeft, batch.AreEventsLeft,
		logAttrDurationMS, es.toMilliseconds(duration),
	}
	es.logOperation(logMsgBatchRead, logArgs...)
	es.logOperationContext(ctx, logMsgBatchRead, logArgs...)

	return batch, nil
}

// ResolveCommitHorizon returns the lowest transaction id still in flight on the node serving the context,
// or the next id to be assigned when no transaction is in flight.
func (es *EventStore) ResolveCommitHorizon(ctx context.Context) (eventstore.CommitHorizon, error) {
	sqlQuery, buildQueryErr := es.buildCommitHorizonQuery()
	if buildQueryErr != nil {
		es.logError(logMsgBuildHorizonQueryFailed, buildQueryErr)
		es.logErrorContext(ctx, logMsgBuildHorizonQueryFailed, buildQueryErr)

		return eventstore.CommitHorizon{}, buildQueryErr
	}

	rows, _, queryErr := es.executeQuery(ctx, sqlQuery, logActionCommitHorizon)
	if queryErr != nil {
		return eventstore.CommitHorizon{}, errors.Join(eventstore.ErrResolvingCommitHorizonFailed, queryErr)
	}
	defer es.closeRows(ctx, rows)

	var rawHorizon string

	if !rows.Next() {
		iterateErr := rows.Err()
		if iterateErr == nil {
			iterateErr = sql.ErrNoRows
		}

		es.logError(logMsgResolveHorizonFailed, iterateErr)
		es.logErrorContext(ctx, logMsgResolveHorizonFailed, iterateErr)

		return eventstore.CommitHorizon{}, errors.Join(
			eventstore.ErrStorageExecutionFailed,
			eventstore.ErrResolvingCommitHorizonFailed,
			iterateErr,
		)
	}

	if scanErr := rows.Scan(&rawHorizon); scanErr != nil {
		es.logError(logMsgScanRowFailed, scanErr)
		es.logErrorContext(ctx, logMsgScanRowFailed, scanErr)

		return eventstore.CommitHorizon{}, errors.Join(
			eventstore.ErrStorageExecutionFailed,
			eventstore.ErrResolvingCommitHorizonFailed,
			scanErr,
		)
	}

	horizon, parseErr := eventstore.ParseCommitHorizon(rawHorizon)
	if parseErr != nil {
		es.logError(logMsgParseHorizonFailed, parseErr, logAttrCommitHorizon, rawHorizon)
		es.logErrorContext(ctx, logMsgParseHorizonFailed, parseErr, logAttrCommitHorizon, rawHorizon)

		return eventstore.CommitHorizon{}, errors.Join(eventstore.ErrResolvingCommitHorizonFailed, parseErr)
	}

	es.recordCommitHorizonContext(ctx, horizon)

	return horizon, nil
}

// ExecuteBatchPlan runs the plan as one SELECT and returns the matched rows in plan order.
func (es *EventStore) ExecuteBatchPlan(ctx context.Context, plan eventstore.BatchPlan) (eventstore.EventRows, error) {
	sqlQuery, buildQueryErr := es.buildBatchSelectQuery(plan)
	if buildQueryErr != nil {
		es.logError(logMsgBuildSelectQueryFailed, buildQueryErr)
		es.logErrorContext(ctx, logMsgBuildSelectQueryFailed, buildQueryErr)

		return nil, buildQueryErr
	}

	rows, _, queryErr := es.executeQuery(ctx, sqlQuery, logActionReadBatch)
	if queryErr != nil {
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, queryErr)
	}
	defer es.closeRows(ctx, rows)

	return es.processBatchRows(ctx, rows)
}

// executeQuery executes the SQL query and returns rows with timing information.
func (es *EventStore) executeQuery(ctx context.Context, sqlQuery string, action string) (
	adapters.DBRows,
	queryDuration,
	error,
) {

	start := time.Now()
	rows, queryErr := es.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(sqlQuery, action, duration)
	es.logQueryWithDurationContext(ctx, sqlQuery, action, duration)

	if queryErr != nil {
		es.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		es.logErrorContext(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)

		return nil, duration, errors.Join(eventstore.ErrStorageExecutionFailed, queryErr)
	}

	return rows, duration, nil
}

// closeRows safely closes database rows and logs any errors.
func (es *EventStore) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		es.logWarn(logMsgCloseRowsFailed, closeErr)
		es.logWarnContext(ctx, logMsgCloseRowsFailed, closeErr)
	}
}

// processBatchRows scans all matched rows into EventRows.
func (es *EventStore) processBatchRows(ctx context.Context, rows adapters.DBRows) (eventstore.EventRows, error) {
	eventRows := make(eventstore.EventRows, 0, defaultReadBatchRowsCapacity)

	for rows.Next() {
		var row eventstore.EventRow
		var rawTransactionID string

		rowScanErr := rows.Scan(
			&row.StreamID,
			&row.StreamPosition,
			&row.GlobalPosition,
			&rawTransactionID,
			&row.EventType,
			&row.EventData,
			&row.EventMetadata,
			&row.SchemaVersion,
			&row.EventID,
			&row.Created,
		)
		if rowScanErr != nil {
			es.logError(logMsgScanRowFailed, rowScanErr)
			es.logErrorContext(ctx, logMsgScanRowFailed, rowScanErr)

			return nil, errors.Join(eventstore.ErrStorageExecutionFailed, eventstore.ErrScanningDBRowFailed, rowScanErr)
		}

		transactionID, parseErr := eventstore.ParseTransactionID(rawTransactionID)
		if parseErr != nil {
			es.logError(logMsgScanRowFailed, parseErr, logAttrEventID, row.EventID)
			es.logErrorContext(ctx, logMsgScanRowFailed, parseErr, logAttrEventID, row.EventID)

			return nil, errors.Join(eventstore.ErrScanningDBRowFailed, parseErr)
		}

		row.TransactionID = transactionID
		eventRows = append(eventRows, row)
	}

	if iterateErr := rows.Err(); iterateErr != nil {
		es.logError(logMsgIterateRowsFailed, iterateErr)
		es.logErrorContext(ctx, logMsgIterateRowsFailed, iterateErr)

		return nil, errors.Join(eventstore.ErrStorageExecutionFailed, eventstore.ErrQueryingEventsFailed, iterateErr)
	}

	return eventRows, nil
}

// logReadBatchError logs failures that were not already logged at the storage layer.
func (es *EventStore) logReadBatchError(ctx context.Context, err error, errorType string, partition string) {
	switch errorType {
	case errorTypeInvalidRange:
		es.logError(logMsgReadBatchFailed, err, logAttrPartition, partition)
		es.logErrorContext(ctx, logMsgReadBatchFailed, err, logAttrPartition, partition)

	case errorTypeDeserialization:
		var deserializationErr *eventstore.DeserializationError
		if errors.As(err, &deserializationErr) {
			es.logError(logMsgDeserializeFailed, err,
				logAttrEventID, deserializationErr.EventID,
				logAttrEventType, deserializationErr.EventType,
			)
			es.logErrorContext(ctx, logMsgDeserializeFailed, err,
				logAttrEventID, deserializationErr.EventID,
				logAttrEventType, deserializationErr.EventType,
			)
		}
	}
}

// classifyReadBatchError maps an error onto a low-cardinality label for metrics and spans.
func classifyReadBatchError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return errorTypeContextCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return errorTypeContextDeadline
	case errors.Is(err, eventstore.ErrInvalidRange):
		return errorTypeInvalidRange
	case errors.Is(err, eventstore.ErrDeserializingEventFailed):
		return errorTypeDeserialization
	case errors.Is(err, eventstore.ErrResolvingCommitHorizonFailed):
		return errorTypeCommitHorizon
	case errors.Is(err, eventstore.ErrBuildingQueryFailed):
		return errorTypeBuildQuery
	case errors.Is(err, eventstore.ErrStorageExecutionFailed):
		return errorTypeStorageExecution
	default:
		return errorTypeUnknown
	}
}
