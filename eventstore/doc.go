// Package eventstore provides the storage-agnostic read path of an append-only event log:
// strictly ordered batches of committed events for projections, subscribers, and replay tools.
//
// Writers commit concurrently and may finish out of position-allocation order. A batch therefore only
// contains rows whose writing transaction lies below the commit horizon (the lowest transaction
// that may still be in flight), ordered by transaction id first and global position second.
// A consumer that keeps reading AfterPosition{After: CurrentGlobalPosition} sees every committed event
// provided global positions are allocated in transaction id order. Otherwise an event of a younger
// transaction with a lower position can end up below the cursor before it becomes visible.
//
// Key types:
//   - PositionWindow: AfterPosition, FromPosition, UpToPosition, or PositionRange
//   - CommitHorizon: the transaction boundary below which everything is committed
//   - BatchPlan: the filter and ordering handed to an engine
//   - EventRow / ReadEvent: a raw storage row and its typed, consumer-facing form
//   - BatchResult: messages, cursor, and the "more data" signal
//
// Common usage pattern:
//
//	mapper := eventstore.NewJSONEventMapper()
//	eventstore.RegisterEventType[ProductItemAdded](mapper, "ProductItemAdded")
//
//	store, _ := postgresengine.NewEventStoreFromPGXPool(pool, postgresengine.WithEventMapper(mapper))
//
//	batch, err := store.ReadMessagesBatch(ctx, eventstore.ReadBatchOptions{
//		Window: eventstore.AfterPosition{After: cursor, BatchSize: 100},
//	})
//	if err != nil {
//		// handle error
//	}
//
//	cursor = batch.CurrentGlobalPosition
package eventstore
