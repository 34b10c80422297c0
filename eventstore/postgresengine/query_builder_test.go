package postgresengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

func newQueryBuilderStore() *EventStore {
	return &EventStore{
		eventTableName:      "cart_events",
		checkpointTableName: "cart_checkpoints",
	}
}

func Test_BuildCommitHorizonQuery(t *testing.T) {
	// act
	sqlQuery, err := newQueryBuilderStore().buildCommitHorizonQuery()

	// assert
	require.NoError(t, err)
	assert.Equal(t, `SELECT pg_snapshot_xmin(pg_current_snapshot())::text AS "commit_horizon"`, sqlQuery)
}

func Test_BuildBatchSelectQuery_With_Limit(t *testing.T) {
	// arrange
	rng, err := eventstore.SelectRange(eventstore.AfterPosition{After: 2, BatchSize: 10})
	require.NoError(t, err)
	plan := eventstore.PlanBatch("tenant-a", rng, eventstore.NewCommitHorizon(11))

	// act
	sqlQuery, err := newQueryBuilderStore().buildBatchSelectQuery(plan)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `transaction_id::text AS "transaction_id_text"`)
	assert.Contains(t, sqlQuery, `FROM "cart_events"`)
	assert.Contains(t, sqlQuery, `("partition" = 'tenant-a')`)
	assert.Contains(t, sqlQuery, `("is_archived" IS FALSE)`)
	assert.Contains(t, sqlQuery, `("transaction_id" < '11'::xid8)`)
	assert.Contains(t, sqlQuery, `("global_position" >= 3)`)
	assert.NotContains(t, sqlQuery, `"global_position" <=`)
	assert.Contains(t, sqlQuery, `ORDER BY "transaction_id" ASC, "global_position" ASC LIMIT 10`)
}

func Test_BuildBatchSelectQuery_For_A_Range_Has_No_Limit(t *testing.T) {
	// arrange
	rng, err := eventstore.SelectRange(eventstore.PositionRange{From: 5, To: 9})
	require.NoError(t, err)
	plan := eventstore.PlanBatch("", rng, eventstore.NewCommitHorizon(42))

	// act
	sqlQuery, err := newQueryBuilderStore().buildBatchSelectQuery(plan)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `("partition" = 'default')`)
	assert.Contains(t, sqlQuery, `("global_position" >= 5)`)
	assert.Contains(t, sqlQuery, `("global_position" <= 9)`)
	assert.Contains(t, sqlQuery, `("transaction_id" < '42'::xid8)`)
	assert.NotContains(t, sqlQuery, "LIMIT")
}

func Test_BuildBatchSelectQuery_Should_Escape_Partition(t *testing.T) {
	// arrange
	rng, err := eventstore.SelectRange(eventstore.FromPosition{From: 0, BatchSize: 1})
	require.NoError(t, err)
	plan := eventstore.PlanBatch("o'brien", rng, eventstore.NewCommitHorizon(1))

	// act
	sqlQuery, err := newQueryBuilderStore().buildBatchSelectQuery(plan)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `("partition" = 'o''brien')`)
}

func Test_BuildSaveCheckpointQuery_Should_Never_Move_Backwards(t *testing.T) {
	// arrange
	checkpoint := eventstore.Checkpoint{
		ProcessorID: "cart-summary",
		Partition:   "default",
		Position:    17,
		UpdatedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	// act
	sqlQuery, err := newQueryBuilderStore().buildSaveCheckpointQuery(checkpoint)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `INSERT INTO "cart_checkpoints"`)
	assert.Contains(t, sqlQuery, `'cart-summary'`)
	assert.Contains(t, sqlQuery, `17`)
	assert.Contains(t, sqlQuery, `ON CONFLICT (processor_id, partition) DO UPDATE SET`)
	assert.Contains(t, sqlQuery, `"position"="excluded"."position"`)
	assert.Contains(t, sqlQuery, `WHERE ("cart_checkpoints"."position" <= "excluded"."position")`)
}

func Test_BuildLoadCheckpointQuery(t *testing.T) {
	// act
	sqlQuery, err := newQueryBuilderStore().buildLoadCheckpointQuery("cart-summary", "tenant-a")

	// assert
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "position", "updated_at" FROM "cart_checkpoints" `+
			`WHERE (("processor_id" = 'cart-summary') AND ("partition" = 'tenant-a')) LIMIT 1`,
		sqlQuery,
	)
}

func Test_CreateSchemaSQL_Should_Use_Table_Names(t *testing.T) {
	// act
	ddl := CreateSchemaSQL("cart_events", "cart_checkpoints")

	// assert
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS cart_events (")
	assert.Contains(t, ddl, "transaction_id XID8 NOT NULL DEFAULT pg_current_xact_id()")
	assert.Contains(t, ddl, "CREATE INDEX IF NOT EXISTS cart_events_batch_read_idx ON cart_events (partition, transaction_id, global_position)")
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS cart_checkpoints (")
	assert.Contains(t, ddl, "PRIMARY KEY (processor_id, partition)")
}
