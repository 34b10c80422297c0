package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

// SaveCheckpoint stores the cursor of a consumer. A stored position never moves backwards:
// saving a lower position than the stored one is a no-op.
func (es *EventStore) SaveCheckpoint(ctx context.Context, checkpoint eventstore.Checkpoint) error {
	if err := checkpoint.Validate(); err != nil {
		return errors.Join(eventstore.ErrSavingCheckpointFailed, err)
	}

	if checkpoint.UpdatedAt.IsZero() {
		checkpoint.UpdatedAt = time.Now()
	}

	sqlQuery, buildQueryErr := es.buildSaveCheckpointQuery(checkpoint)
	if buildQueryErr != nil {
		es.logError(logMsgBuildCheckpointFailed, buildQueryErr)
		es.logErrorContext(ctx, logMsgBuildCheckpointFailed, buildQueryErr)

		return errors.Join(eventstore.ErrSavingCheckpointFailed, buildQueryErr)
	}

	start := time.Now()
	_, execErr := es.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(sqlQuery, logActionSaveCheckpoint, duration)
	es.logQueryWithDurationContext(ctx, sqlQuery, logActionSaveCheckpoint, duration)

	if execErr != nil {
		es.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		es.logErrorContext(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)

		return errors.Join(eventstore.ErrSavingCheckpointFailed, eventstore.ErrStorageExecutionFailed, execErr)
	}

	logArgs := []any{
		logAttrProcessorID, checkpoint.ProcessorID,
		logAttrPartition, checkpoint.Partition,
		logAttrPosition, checkpoint.Position,
	}
	es.logOperation(logMsgCheckpointSaved, logArgs...)
	es.logOperationContext(ctx, logMsgCheckpointSaved, logArgs...)

	return nil
}

// LoadCheckpoint returns the stored cursor of a consumer; found is false when nothing was stored yet.
func (es *EventStore) LoadCheckpoint(ctx context.Context, processorID string, partition string) (eventstore.Checkpoint, bool, error) {
	if processorID == "" {
		return eventstore.Checkpoint{}, false, errors.Join(eventstore.ErrLoadingCheckpointFailed, eventstore.ErrEmptyProcessorID)
	}

	if partition == "" {
		partition = eventstore.DefaultPartition
	}

	sqlQuery, buildQueryErr := es.buildLoadCheckpointQuery(processorID, partition)
	if buildQueryErr != nil {
		es.logError(logMsgBuildCheckpointFailed, buildQueryErr)
		es.logErrorContext(ctx, logMsgBuildCheckpointFailed, buildQueryErr)

		return eventstore.Checkpoint{}, false, errors.Join(eventstore.ErrLoadingCheckpointFailed, buildQueryErr)
	}

	rows, _, queryErr := es.executeQuery(ctx, sqlQuery, logActionLoadCheckpoint)
	if queryErr != nil {
		return eventstore.Checkpoint{}, false, errors.Join(eventstore.ErrLoadingCheckpointFailed, queryErr)
	}
	defer es.closeRows(ctx, rows)

	if !rows.Next() {
		if iterateErr := rows.Err(); iterateErr != nil {
			return eventstore.Checkpoint{}, false, errors.Join(eventstore.ErrLoadingCheckpointFailed, iterateErr)
		}

		return eventstore.Checkpoint{}, false, nil
	}

	checkpoint := eventstore.Checkpoint{
		ProcessorID: processorID,
		Partition:   partition,
	}

	if scanErr := rows.Scan(&checkpoint.Position, &checkpoint.UpdatedAt); scanErr != nil {
		es.logError(logMsgScanRowFailed, scanErr, logAttrProcessorID, processorID)
		es.logErrorContext(ctx, logMsgScanRowFailed, scanErr, logAttrProcessorID, processorID)

		return eventstore.Checkpoint{}, false, errors.Join(eventstore.ErrLoadingCheckpointFailed, eventstore.ErrScanningDBRowFailed, scanErr)
	}

	return checkpoint, true, nil
}
