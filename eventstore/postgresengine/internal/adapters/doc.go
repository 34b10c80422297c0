// Package adapters provides database adapter implementations for the PostgreSQL event store.
//
// pgx.Pool, sql.DB, and sqlx.DB are wrapped behind one DBAdapter interface. Each adapter may carry
// a replica connection that serves reads from contexts marked with eventstore.WithEventualConsistency.
package adapters
