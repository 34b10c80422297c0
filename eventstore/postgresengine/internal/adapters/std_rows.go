package adapters

import (
	"context"
	"database/sql"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

// stdRows wraps standard library sql.Rows to implement the DBRows interface.
type stdRows struct {
	rows *sql.Rows
}

// Next advances to the next row.
func (s *stdRows) Next() bool {
	return s.rows.Next()
}

// Scan copies row values into provided destinations.
func (s *stdRows) Scan(dest ...any) error {
	return s.rows.Scan(dest...)
}

// Err returns the error that ended the iteration, if any.
func (s *stdRows) Err() error {
	return s.rows.Err()
}

// Close closes the rows iterator.
func (s *stdRows) Close() error {
	return s.rows.Close()
}

// stdResult wraps standard library sql.Result to implement the DBResult interface.
type stdResult struct {
	result sql.Result
}

// RowsAffected returns the number of rows affected by the command.
func (s *stdResult) RowsAffected() (int64, error) {
	return s.result.RowsAffected()
}

// readsFromReplica decides the node of a read: the replica only for eventual consistency and only if one exists.
func readsFromReplica(ctx context.Context, hasReplica bool) bool {
	return hasReplica && eventstore.GetConsistencyLevel(ctx) == eventstore.EventualConsistency
}
