// Package oteladapters provides OpenTelemetry implementations of the eventstore observability interfaces.
//
//	store, _ := postgresengine.NewEventStoreFromPGXPool(
//		db,
//		postgresengine.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("eventlog"))),
//		postgresengine.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("eventlog"))),
//		postgresengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("eventlog")),
//	)
package oteladapters
