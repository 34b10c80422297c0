// Package postgreswrapper connects integration tests to PostgreSQL with the adapter selected by
// EVENTLOG_ADAPTER_TYPE (pgx.pool, sql.db, sqlx.db) and appends fixture events through a separate pgx pool,
// either committed or inside transactions the test keeps open.
//
// Tests are skipped when the database configured by EVENTLOG_POSTGRES_DSN is not reachable.
package postgreswrapper
