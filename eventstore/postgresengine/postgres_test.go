package postgresengine_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
	. "github.com/AntonStoeckl/eventlog-batch-reader/eventstore/postgresengine"
	"github.com/AntonStoeckl/eventlog-batch-reader/testutil/fixtures"
	"github.com/AntonStoeckl/eventlog-batch-reader/testutil/observability/testdoubles"
	. "github.com/AntonStoeckl/eventlog-batch-reader/testutil/postgresengine/postgreswrapper"
)

func createWrapper(t *testing.T, options ...Option) *Wrapper {
	t.Helper()

	options = append([]Option{WithEventMapper(fixtures.NewCartEventMapper())}, options...)

	return CreateWrapperWithTestConfig(t, options...)
}

func readAfter(t *testing.T, es *EventStore, after GlobalPositionInt, batchSize int) BatchResult {
	t.Helper()

	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := es.ReadMessagesBatch(ctxWithTimeout, ReadBatchOptions{
		Window: AfterPosition{After: after, BatchSize: batchSize},
	})
	require.NoError(t, err)

	return batch
}

func Test_ReadMessagesBatch_When_A_Transaction_Is_InFlight_Should_Hold_Back_Younger_Commits(t *testing.T) {
	// setup
	wrapper := createWrapper(t)
	es := wrapper.GetEventStore()

	// arrange
	txA := wrapper.BeginInFlight(t)
	txA.Append(t, "", fixtures.NewProductItemAdded(t, "c1", "p1", 1), fixtures.NewProductItemAdded(t, "c1", "p2", 1))
	txB := wrapper.BeginInFlight(t)
	txC := wrapper.BeginInFlight(t)
	txC.Append(t, "", fixtures.NewProductItemAdded(t, "c2", "p1", 1))
	txC.Commit(t)
	txA.Commit(t)
	positionsB := txB.Append(t, "", fixtures.NewShoppingCartConfirmed(t, "c1", "cmd-1"))
	require.Equal(t, []GlobalPositionInt{4}, positionsB)

	// act
	inFlightBatch := readAfter(t, es, 0, 10)

	// assert
	assert.Equal(t, []GlobalPositionInt{1, 2}, fixtures.GlobalPositions(inFlightBatch.Messages))
	assert.Equal(t, GlobalPositionInt(2), inFlightBatch.CurrentGlobalPosition)
	assert.False(t, inFlightBatch.AreEventsLeft)

	// act
	txB.Commit(t)
	followUpBatch := readAfter(t, es, inFlightBatch.CurrentGlobalPosition, 10)

	// assert
	assert.Equal(t, []GlobalPositionInt{4, 3}, fixtures.GlobalPositions(followUpBatch.Messages), "commit order, not position order")
	assert.Equal(t, GlobalPositionInt(3), followUpBatch.CurrentGlobalPosition)
	assert.False(t, followUpBatch.AreEventsLeft)
}

func Test_ReadMessagesBatch_When_Nothing_Matches_Should_Return_The_Window_Start_As_Cursor(t *testing.T) {
	// setup
	wrapper := createWrapper(t)
	es := wrapper.GetEventStore()
	ctx := context.Background()

	tests := []struct {
		name           string
		window         PositionWindow
		expectedCursor GlobalPositionInt
	}{
		{"after_position", AfterPosition{After: 7, BatchSize: 10}, 7},
		{"from_position", FromPosition{From: 7, BatchSize: 10}, 7},
		{"up_to_position", UpToPosition{To: 7, BatchSize: 10}, 0},
		{"position_range", PositionRange{From: 3, To: 7}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// act
			batch, err := es.ReadMessagesBatch(ctx, ReadBatchOptions{Window: tt.window})

			// assert
			require.NoError(t, err)
			assert.Empty(t, batch.Messages)
			assert.Equal(t, tt.expectedCursor, batch.CurrentGlobalPosition)
			assert.False(t, batch.AreEventsLeft)
		})
	}
}

func Test_ReadMessagesBatch_Should_Continue_With_Follow_Up_Batches(t *testing.T) {
	// setup
	wrapper := createWrapper(t)
	es := wrapper.GetEventStore()

	// arrange
	wrapper.AppendCommitted(t, "", fixtures.CartEvents(t, 5, "c1", "c2")...)

	// act
	first := readAfter(t, es, 0, 2)
	second := readAfter(t, es, first.CurrentGlobalPosition, 2)
	third := readAfter(t, es, second.CurrentGlobalPosition, 2)
	fourth := readAfter(t, es, third.CurrentGlobalPosition, 2)

	// assert
	assert.Equal(t, []GlobalPositionInt{1, 2}, fixtures.GlobalPositions(first.Messages))
	assert.True(t, first.AreEventsLeft)
	assert.Equal(t, []GlobalPositionInt{3, 4}, fixtures.GlobalPositions(second.Messages))
	assert.True(t, second.AreEventsLeft)
	assert.Equal(t, []GlobalPositionInt{5}, fixtures.GlobalPositions(third.Messages))
	assert.False(t, third.AreEventsLeft)
	assert.Empty(t, fourth.Messages)
	assert.Equal(t, GlobalPositionInt(5), fourth.CurrentGlobalPosition)
}

func Test_ReadMessagesBatch_Should_Decode_Registered_Event_Types(t *testing.T) {
	// setup
	wrapper := createWrapper(t)
	es := wrapper.GetEventStore()

	// arrange
	wrapper.AppendCommitted(t, "",
		fixtures.NewProductItemAdded(t, "c1", "p1", 3),
		fixtures.NewShoppingCartConfirmed(t, "c1", "cmd-7"),
	)

	// act
	batch := readAfter(t, es, 0, 10)

	// assert
	require.Len(t, batch.Messages, 2)

	itemAdded, ok := batch.Messages[0].Data.(fixtures.ProductItemAdded)
	require.True(t, ok, "expected fixtures.ProductItemAdded, got %T", batch.Messages[0].Data)
	assert.Equal(t, 3, itemAdded.Quantity)
	assert.Equal(t, fixtures.CartStreamID("c1"), batch.Messages[0].Metadata.StreamName)
	assert.Equal(t, GlobalPositionInt(1), batch.Messages[0].Metadata.StreamPosition)

	assert.Equal(t, fixtures.ShoppingCartConfirmedEventType, batch.Messages[1].Type)
	assert.Equal(t, "cmd-7", batch.Messages[1].Metadata.Fields[fixtures.MetadataCausationID])
	assert.Equal(t, GlobalPositionInt(2), batch.Messages[1].Metadata.StreamPosition)
}

func Test_ReadMessagesBatch_Should_Only_Return_Live_Events_Of_The_Partition(t *testing.T) {
	// setup
	wrapper := createWrapper(t)
	es := wrapper.GetEventStore()

	// arrange
	wrapper.AppendCommitted(t, "tenant-a", fixtures.CartEvents(t, 3, "c1")...)
	wrapper.AppendCommitted(t, "tenant-b", fixtures.CartEvents(t, 2, "c2")...)
	wrapper.Archive(t, "tenant-a", 2)

	// act
	batch, err := es.ReadMessagesBatch(context.Background(), ReadBatchOptions{
		Window:    UpToPosition{To: 10, BatchSize: 10},
		Partition: "tenant-a",
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, []GlobalPositionInt{1, 3}, fixtures.GlobalPositions(batch.Messages))
	assert.Equal(t, GlobalPositionInt(3), batch.CurrentGlobalPosition)
}

func Test_ReadMessagesBatch_When_A_Transaction_Rolled_Back_Should_Skip_The_Gap(t *testing.T) {
	// setup
	wrapper := createWrapper(t)
	es := wrapper.GetEventStore()

	// arrange
	rolledBack := wrapper.BeginInFlight(t)
	rolledBack.Append(t, "", fixtures.NewProductItemAdded(t, "c1", "p1", 1))
	rolledBack.Rollback(t)
	wrapper.AppendCommitted(t, "", fixtures.NewProductItemAdded(t, "c1", "p2", 1))

	// act
	batch := readAfter(t, es, 0, 10)

	// assert
	assert.Equal(t, []GlobalPositionInt{2}, fixtures.GlobalPositions(batch.Messages))
	assert.Equal(t, GlobalPositionInt(2), batch.CurrentGlobalPosition)
}

func Test_ReadMessagesBatch_When_Window_Is_Invalid_Should_Fail_Without_Reading(t *testing.T) {
	// setup
	logHandler := testdoubles.NewLogHandlerSpy(false)
	wrapper := createWrapper(t, WithLogger(slog.New(logHandler)))
	es := wrapper.GetEventStore()

	// act
	_, err := es.ReadMessagesBatch(context.Background(), ReadBatchOptions{
		Window: PositionRange{From: 5, To: 4},
	})

	// assert
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.False(t, logHandler.HasDebugLogWithMessage("executed sql for: commit_horizon").Assert())
	assert.True(t, logHandler.HasErrorLogWithMessage("batch read failed").WithAttribute("partition", DefaultPartition).Assert())
}

func Test_ReadMessagesBatch_When_Context_Is_Canceled_Should_Fail(t *testing.T) {
	// setup
	wrapper := createWrapper(t)
	es := wrapper.GetEventStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	_, err := es.ReadMessagesBatch(ctx, ReadBatchOptions{Window: AfterPosition{After: 0, BatchSize: 1}})

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrStorageExecutionFailed)
}

func Test_ReadMessagesBatch_With_EventualConsistency_Should_Read_From_The_Configured_Node(t *testing.T) {
	// setup
	wrapper := createWrapper(t)
	es := wrapper.GetEventStore()

	// arrange
	wrapper.AppendCommitted(t, "", fixtures.CartEvents(t, 2, "c1")...)
	ctx := WithEventualConsistency(context.Background())

	// act
	require.Eventually(t, func() bool {
		batch, err := es.ReadMessagesBatch(ctx, ReadBatchOptions{Window: AfterPosition{After: 0, BatchSize: 10}})
		return err == nil && len(batch.Messages) == 2
	}, 5*time.Second, 50*time.Millisecond, "replica did not catch up")
}

func Test_ResolveCommitHorizon_Should_Be_Held_Back_By_An_InFlight_Transaction(t *testing.T) {
	// setup
	wrapper := createWrapper(t)
	es := wrapper.GetEventStore()
	ctx := context.Background()

	// arrange
	inFlight := wrapper.BeginInFlight(t)
	inFlightID := inFlight.TransactionID(t)

	// act
	heldBack, err := es.ResolveCommitHorizon(ctx)
	require.NoError(t, err)
	inFlight.Commit(t)
	released, err := es.ResolveCommitHorizon(ctx)
	require.NoError(t, err)

	// assert
	assert.LessOrEqual(t, heldBack.TransactionID(), inFlightID)
	assert.Greater(t, released.TransactionID(), inFlightID)
}

func Test_Checkpoints_Should_Round_Trip_And_Never_Move_Backwards(t *testing.T) {
	// setup
	logHandler := testdoubles.NewLogHandlerSpy(false)
	wrapper := createWrapper(t, WithLogger(slog.New(logHandler)))
	es := wrapper.GetEventStore()
	ctx := context.Background()

	// act
	_, foundBefore, err := es.LoadCheckpoint(ctx, "cart-summary", "tenant-a")
	require.NoError(t, err)

	forward, err := BuildCheckpoint("cart-summary", "tenant-a", 42)
	require.NoError(t, err)
	require.NoError(t, es.SaveCheckpoint(ctx, forward))

	backward, err := BuildCheckpoint("cart-summary", "tenant-a", 7)
	require.NoError(t, err)
	require.NoError(t, es.SaveCheckpoint(ctx, backward))

	stored, found, err := es.LoadCheckpoint(ctx, "cart-summary", "tenant-a")
	require.NoError(t, err)

	_, foundOtherPartition, err := es.LoadCheckpoint(ctx, "cart-summary", "tenant-b")
	require.NoError(t, err)

	// assert
	assert.False(t, foundBefore)
	assert.True(t, found)
	assert.Equal(t, GlobalPositionInt(42), stored.Position)
	assert.Equal(t, "tenant-a", stored.Partition)
	assert.False(t, foundOtherPartition)
	assert.True(t, logHandler.HasInfoLogWithMessage("eventstore operation: checkpoint saved").WithAttribute("processor_id", "cart-summary").Assert())
}

func Test_SaveCheckpoint_When_Invalid_Should_Fail(t *testing.T) {
	// setup
	wrapper := createWrapper(t)
	es := wrapper.GetEventStore()

	// act
	err := es.SaveCheckpoint(context.Background(), Checkpoint{ProcessorID: "", Partition: DefaultPartition, Position: 1})

	// assert
	assert.ErrorIs(t, err, ErrSavingCheckpointFailed)
	assert.ErrorIs(t, err, ErrEmptyProcessorID)
}

func Test_ReadMessagesBatch_Should_Report_To_Tracing_And_Metrics(t *testing.T) {
	// setup
	tracing := testdoubles.NewTracingCollectorSpy(true)
	metrics := testdoubles.NewMetricsCollectorSpy(true)
	wrapper := createWrapper(t, WithTracing(tracing), WithMetrics(metrics))
	es := wrapper.GetEventStore()

	// arrange
	wrapper.AppendCommitted(t, "", fixtures.CartEvents(t, 3, "c1")...)

	// act
	batch := readAfter(t, es, 0, 2)

	// assert
	require.Len(t, batch.Messages, 2)
	assert.True(t,
		tracing.HasSpanRecordForName("eventstore.read_batch").
			Finished().
			WithStatus("success").
			WithSpanAttribute("event_count", "2").
			WithSpanAttribute("are_events_left", "true").
			Assert(),
	)
	assert.True(t, metrics.HasDurationRecordForMetric("eventstore_read_batch_duration_seconds").WithStatus("success").Assert())
	assert.True(t, metrics.HasValueRecordForMetric("eventstore_read_batch_events").WithValue(2).Assert())
	assert.True(t, metrics.HasValueRecordForMetric("eventstore_commit_horizon").WithOperation("commit_horizon").Assert())
}
