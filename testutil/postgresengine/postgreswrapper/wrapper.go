package postgreswrapper

import (
	"context"
	"testing"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // register the postgres dialect
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventlog-batch-reader/config"
	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore/memengine"
	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore/postgresengine"
)

const (
	defaultMetadata      = "{}"
	defaultSchemaVersion = "1"
)

// Wrapper holds the EventStore under test and the pgx pool used to write fixtures.
type Wrapper struct {
	cfg        config.Config
	es         *postgresengine.EventStore
	closeStore func()
	pool       *pgxpool.Pool
}

// CreateWrapperWithTestConfig connects with the environment configuration, creates the schema, and empties it.
// Extra options are applied to the EventStore after the table names.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) *Wrapper {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err, "error loading test configuration")

	ctx := context.Background()

	pool, err := config.NewPGXPool(ctx, cfg, cfg.PostgresDSN)
	if err != nil {
		t.Skipf("postgres is not reachable: %v", err)
	}

	es, closeStore, err := config.NewEventStore(ctx, cfg, options...)
	if err != nil {
		pool.Close()
		t.Skipf("postgres is not reachable with adapter %s: %v", cfg.NormalizedAdapterType(), err)
	}

	wrapper := &Wrapper{cfg: cfg, es: es, closeStore: closeStore, pool: pool}
	t.Cleanup(wrapper.Close)

	_, err = pool.Exec(ctx, postgresengine.CreateSchemaSQL(cfg.EventsTable, cfg.CheckpointsTable))
	require.NoError(t, err, "error creating the schema")

	CleanUp(t, wrapper)

	return wrapper
}

// GetEventStore returns the EventStore under test.
func (w *Wrapper) GetEventStore() *postgresengine.EventStore {
	return w.es
}

// Pool returns the pgx pool fixtures are written with.
func (w *Wrapper) Pool() *pgxpool.Pool {
	return w.pool
}

// Config returns the configuration the wrapper was built from.
func (w *Wrapper) Config() config.Config {
	return w.cfg
}

// Close releases all connections. It is registered with t.Cleanup and safe to call twice.
func (w *Wrapper) Close() {
	if w.closeStore != nil {
		w.closeStore()
		w.closeStore = nil
	}

	if w.pool != nil {
		w.pool.Close()
		w.pool = nil
	}
}

// CleanUp empties the events and checkpoint tables and restarts the global position sequence.
func CleanUp(t testing.TB, wrapper *Wrapper) {
	t.Helper()

	_, err := wrapper.pool.Exec(
		context.Background(),
		"TRUNCATE TABLE "+wrapper.cfg.EventsTable+", "+wrapper.cfg.CheckpointsTable+" RESTART IDENTITY",
	)
	require.NoError(t, err, "error cleaning up the tables")
}

// AppendCommitted appends the events in one transaction, commits it, and returns their global positions.
func (w *Wrapper) AppendCommitted(t testing.TB, partition string, events ...memengine.NewEvent) []eventstore.GlobalPositionInt {
	t.Helper()

	tx := w.BeginInFlight(t)
	positions := tx.Append(t, partition, events...)
	tx.Commit(t)

	return positions
}

// Archive marks the event at the global position as archived.
func (w *Wrapper) Archive(t testing.TB, partition string, globalPosition eventstore.GlobalPositionInt) {
	t.Helper()

	query, _, err := goqu.Dialect("postgres").
		Update(w.cfg.EventsTable).
		Set(goqu.Record{"is_archived": true}).
		Where(goqu.C("partition").Eq(partition), goqu.C("global_position").Eq(globalPosition)).
		ToSQL()
	require.NoError(t, err)

	tag, err := w.pool.Exec(context.Background(), query)
	require.NoError(t, err)
	require.Equal(t, int64(1), tag.RowsAffected(), "expected to archive exactly one event")
}

// InFlightTx is a writing transaction the test controls. Until Commit or Rollback, it holds back the commit horizon.
type InFlightTx struct {
	wrapper *Wrapper
	tx      pgx.Tx
	closed  bool
}

// BeginInFlight starts a transaction and assigns its transaction id right away,
// so that it holds back the commit horizon before it appends anything.
func (w *Wrapper) BeginInFlight(t testing.TB) *InFlightTx {
	t.Helper()

	ctx := context.Background()

	tx, err := w.pool.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.Exec(ctx, "SELECT pg_current_xact_id()")
	require.NoError(t, err)

	inFlight := &InFlightTx{wrapper: w, tx: tx}
	t.Cleanup(func() {
		if !inFlight.closed {
			_ = tx.Rollback(context.Background())
		}
	})

	return inFlight
}

// TransactionID returns the id of the transaction.
func (tx *InFlightTx) TransactionID(t testing.TB) eventstore.TransactionIDUint {
	t.Helper()

	var raw string
	err := tx.tx.QueryRow(context.Background(), "SELECT pg_current_xact_id()::text").Scan(&raw)
	require.NoError(t, err)

	id, err := eventstore.ParseTransactionID(raw)
	require.NoError(t, err)

	return id
}

// Append inserts the events inside the transaction and returns their global positions.
// The positions are allocated immediately, even though the rows stay invisible until Commit.
func (tx *InFlightTx) Append(t testing.TB, partition string, events ...memengine.NewEvent) []eventstore.GlobalPositionInt {
	t.Helper()
	require.False(t, tx.closed, "transaction is already closed")

	if partition == "" {
		partition = eventstore.DefaultPartition
	}

	positions := make([]eventstore.GlobalPositionInt, 0, len(events))
	for _, event := range events {
		query := tx.wrapper.buildInsertQuery(t, partition, event)

		var position eventstore.GlobalPositionInt
		err := tx.tx.QueryRow(context.Background(), query).Scan(&position)
		require.NoError(t, err)

		positions = append(positions, position)
	}

	return positions
}

// Commit commits the transaction.
func (tx *InFlightTx) Commit(t testing.TB) {
	t.Helper()

	require.NoError(t, tx.tx.Commit(context.Background()))
	tx.closed = true
}

// Rollback rolls the transaction back; the positions it allocated stay unused.
func (tx *InFlightTx) Rollback(t testing.TB) {
	t.Helper()

	require.NoError(t, tx.tx.Rollback(context.Background()))
	tx.closed = true
}

func (w *Wrapper) buildInsertQuery(t testing.TB, partition string, event memengine.NewEvent) string {
	t.Helper()

	dialect := goqu.Dialect("postgres")

	nextStreamPosition := dialect.
		From(w.cfg.EventsTable).
		Select(goqu.L("COALESCE(MAX(stream_position), 0) + 1")).
		Where(goqu.C("stream_id").Eq(event.StreamID), goqu.C("partition").Eq(partition))

	eventID := event.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := defaultMetadata
	if len(event.EventMetadata) > 0 {
		metadata = string(event.EventMetadata)
	}

	schemaVersion := event.SchemaVersion
	if schemaVersion == "" {
		schemaVersion = defaultSchemaVersion
	}

	query, _, err := dialect.
		Insert(w.cfg.EventsTable).
		Rows(goqu.Record{
			"stream_id":            event.StreamID,
			"stream_position":      nextStreamPosition,
			"event_type":           event.EventType,
			"event_data":           string(event.EventData),
			"event_metadata":       metadata,
			"event_schema_version": schemaVersion,
			"event_id":             eventID,
			"partition":            partition,
		}).
		Returning("global_position").
		ToSQL()
	require.NoError(t, err)

	return query
}
