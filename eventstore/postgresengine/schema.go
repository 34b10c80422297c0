package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

// transaction_id must be assigned by the writing transaction itself (pg_current_xact_id),
// otherwise the commit horizon comparison is meaningless.
const createEventsTableTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	global_position BIGINT GENERATED BY DEFAULT AS IDENTITY,
	stream_id TEXT NOT NULL,
	stream_position BIGINT NOT NULL,
	transaction_id XID8 NOT NULL DEFAULT pg_current_xact_id(),
	event_type TEXT NOT NULL,
	event_data JSONB NOT NULL,
	event_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	event_schema_version TEXT NOT NULL DEFAULT '1',
	event_id TEXT NOT NULL,
	created TIMESTAMPTZ NOT NULL DEFAULT now(),
	partition TEXT NOT NULL DEFAULT '` + eventstore.DefaultPartition + `',
	is_archived BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (partition, global_position),
	UNIQUE (stream_id, stream_position, partition)
);
CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (partition, transaction_id, global_position);
CREATE TABLE IF NOT EXISTS %[3]s (
	processor_id TEXT NOT NULL,
	partition TEXT NOT NULL,
	position BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (processor_id, partition)
);`

// CreateSchemaSQL returns the DDL for the events table, its batch read index, and the checkpoint table.
// Table names are used verbatim; they must be valid SQL identifiers.
func CreateSchemaSQL(eventTableName string, checkpointTableName string) string {
	return fmt.Sprintf(
		createEventsTableTemplate,
		eventTableName,
		eventTableName+"_batch_read_idx",
		checkpointTableName,
	)
}

// CreateSchema creates the tables of this EventStore if they do not exist yet.
func (es *EventStore) CreateSchema(ctx context.Context) error {
	ddl := CreateSchemaSQL(es.eventTableName, es.checkpointTableName)

	start := time.Now()
	_, execErr := es.db.Exec(ctx, ddl)
	duration := time.Since(start)
	es.logQueryWithDuration(ddl, logActionCreateSchema, duration)
	es.logQueryWithDurationContext(ctx, ddl, logActionCreateSchema, duration)

	if execErr != nil {
		es.logError(logMsgDBExecFailed, execErr)
		es.logErrorContext(ctx, logMsgDBExecFailed, execErr)

		return errors.Join(eventstore.ErrStorageExecutionFailed, execErr)
	}

	es.logOperation(logMsgSchemaCreated)
	es.logOperationContext(ctx, logMsgSchemaCreated)

	return nil
}
