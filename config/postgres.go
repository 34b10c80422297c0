package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore/postgresengine"
)

const (
	driverPostgres     = "postgres"
	minIdleConnections = 2
)

// NewPGXPool creates and pings a pgxpool.Pool for the given DSN.
func NewPGXPool(ctx context.Context, cfg Config, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MinConns = min(int32(minIdleConnections), cfg.MaxConnections)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgx pool: %w", pingErr)
	}

	return pool, nil
}

// NewSQLDB opens and pings a *sql.DB on the lib/pq driver for the given DSN.
func NewSQLDB(ctx context.Context, cfg Config, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql.DB: %w", err)
	}

	configureSQLDB(db, cfg)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sql.DB: %w", pingErr)
	}

	return db, nil
}

// NewSQLXDB opens and pings a *sqlx.DB on the lib/pq driver for the given DSN.
func NewSQLXDB(ctx context.Context, cfg Config, dsn string) (*sqlx.DB, error) {
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(pingCtx, driverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlx.DB: %w", err)
	}

	configureSQLDB(db.DB, cfg)

	return db, nil
}

func configureSQLDB(db *sql.DB, cfg Config) {
	db.SetMaxOpenConns(int(cfg.MaxConnections))
	db.SetMaxIdleConns(min(minIdleConnections, int(cfg.MaxConnections)))
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// NewEventStore connects with the configured adapter type (and replica, if any) and creates a postgresengine.EventStore.
// The returned close function releases all connections.
func NewEventStore(ctx context.Context, cfg Config, options ...postgresengine.Option) (*postgresengine.EventStore, func(), error) {
	options = append([]postgresengine.Option{
		postgresengine.WithTableName(cfg.EventsTable),
		postgresengine.WithCheckpointTableName(cfg.CheckpointsTable),
	}, options...)

	switch cfg.NormalizedAdapterType() {
	case AdapterPGXPool:
		return newPGXEventStore(ctx, cfg, options)
	case AdapterSQLDB:
		return newSQLDBEventStore(ctx, cfg, options)
	case AdapterSQLXDB:
		return newSQLXEventStore(ctx, cfg, options)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedAdapterType, cfg.AdapterType)
	}
}

func newPGXEventStore(ctx context.Context, cfg Config, options []postgresengine.Option) (*postgresengine.EventStore, func(), error) {
	primary, err := NewPGXPool(ctx, cfg, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}

	if !cfg.HasReplica() {
		es, esErr := postgresengine.NewEventStoreFromPGXPool(primary, options...)
		if esErr != nil {
			primary.Close()
			return nil, nil, esErr
		}

		return es, primary.Close, nil
	}

	replica, err := NewPGXPool(ctx, cfg, cfg.PostgresReplicaDSN)
	if err != nil {
		primary.Close()
		return nil, nil, err
	}

	closeAll := func() {
		replica.Close()
		primary.Close()
	}

	es, esErr := postgresengine.NewEventStoreFromPGXPoolAndReplica(primary, replica, options...)
	if esErr != nil {
		closeAll()
		return nil, nil, esErr
	}

	return es, closeAll, nil
}

func newSQLDBEventStore(ctx context.Context, cfg Config, options []postgresengine.Option) (*postgresengine.EventStore, func(), error) {
	primary, err := NewSQLDB(ctx, cfg, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}

	if !cfg.HasReplica() {
		es, esErr := postgresengine.NewEventStoreFromSQLDB(primary, options...)
		if esErr != nil {
			_ = primary.Close()
			return nil, nil, esErr
		}

		return es, func() { _ = primary.Close() }, nil
	}

	replica, err := NewSQLDB(ctx, cfg, cfg.PostgresReplicaDSN)
	if err != nil {
		_ = primary.Close()
		return nil, nil, err
	}

	closeAll := func() {
		_ = errors.Join(replica.Close(), primary.Close())
	}

	es, esErr := postgresengine.NewEventStoreFromSQLDBAndReplica(primary, replica, options...)
	if esErr != nil {
		closeAll()
		return nil, nil, esErr
	}

	return es, closeAll, nil
}

func newSQLXEventStore(ctx context.Context, cfg Config, options []postgresengine.Option) (*postgresengine.EventStore, func(), error) {
	primary, err := NewSQLXDB(ctx, cfg, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}

	if !cfg.HasReplica() {
		es, esErr := postgresengine.NewEventStoreFromSQLX(primary, options...)
		if esErr != nil {
			_ = primary.Close()
			return nil, nil, esErr
		}

		return es, func() { _ = primary.Close() }, nil
	}

	replica, err := NewSQLXDB(ctx, cfg, cfg.PostgresReplicaDSN)
	if err != nil {
		_ = primary.Close()
		return nil, nil, err
	}

	closeAll := func() {
		_ = errors.Join(replica.Close(), primary.Close())
	}

	es, esErr := postgresengine.NewEventStoreFromSQLXAndReplica(primary, replica, options...)
	if esErr != nil {
		closeAll()
		return nil, nil, esErr
	}

	return es, closeAll, nil
}
