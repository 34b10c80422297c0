// Package postgresengine provides the PostgreSQL implementation of ordered batch reads.
//
// Rows become visible to readers strictly in commit order: every read resolves the commit horizon
// with pg_snapshot_xmin(pg_current_snapshot()) and only returns rows whose transaction_id is below it,
// ordered by (transaction_id, global_position). A consumer that keeps reading
// AfterPosition{After: CurrentGlobalPosition} does not lose events to older transactions still in flight,
// provided positions are allocated in transaction id order (see ReadMessagesBatch).
//
// Key features:
//   - Multiple database adapter support (PGX, SQL, SQLX), optionally with a read replica
//   - Commit-order batch reads with the four position window shapes
//   - Configurable table names, pluggable event mapper
//   - Logging, metrics, and tracing through dependency-free interfaces
//   - Consumer checkpoints that never move backwards
//
// Usage examples:
//
//	db, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := postgresengine.NewEventStoreFromPGXPool(
//		db,
//		postgresengine.WithTableName("cart_events"),
//		postgresengine.WithLogger(slog.Default()),
//	)
//
//	batch, err := store.ReadMessagesBatch(ctx, eventstore.ReadBatchOptions{
//		Window: eventstore.AfterPosition{After: cursor, BatchSize: 100},
//	})
//	cursor = batch.CurrentGlobalPosition
package postgresengine
