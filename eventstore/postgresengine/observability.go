package postgresengine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

const (
	metricReadBatchDuration = "eventstore_read_batch_duration_seconds"
	metricReadBatchEvents   = "eventstore_read_batch_events"
	metricCommitHorizon     = "eventstore_commit_horizon"
	metricDatabaseErrors    = "eventstore_database_errors_total"

	spanNameReadBatch = "eventstore.read_batch"

	spanAttrOperation       = "operation"
	spanAttrPartition       = "partition"
	spanAttrEventCount      = "event_count"
	spanAttrCurrentPosition = "current_global_position"
	spanAttrAreEventsLeft   = "are_events_left"
	spanAttrDurationMS      = "duration_ms"
	spanAttrErrorType       = "error_type"

	labelStatus = "status"

	statusSuccess = "success"
	statusError   = "error"
)

// logQueryWithDuration logs SQL statements with execution time at debug level if the logger is configured.
func (es *EventStore) logQueryWithDuration(
	sqlQuery string,
	action string,
	duration time.Duration,
) {
	if es.logger != nil {
		es.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, es.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (es *EventStore) logOperation(action string, args ...any) {
	if es.logger != nil {
		es.logger.Info(logMsgOperation+action, args...)
	}
}

// logWarn logs non-critical problems at warn level if the logger is configured.
func (es *EventStore) logWarn(message string, err error) {
	if es.logger != nil {
		es.logger.Warn(message, logAttrError, err.Error())
	}
}

// logError logs error information at the error level if the logger is configured.
func (es *EventStore) logError(
	message string,
	err error,
	args ...any,
) {
	if es.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		es.logger.Error(message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (es *EventStore) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func (es *EventStore) metricLabels(partition string, status string) map[string]string {
	return map[string]string{
		spanAttrOperation: logActionReadBatch,
		spanAttrPartition: partition,
		labelStatus:       status,
	}
}

// recordDurationMetricsContext records duration metrics, with context if the collector supports it.
func (es *EventStore) recordDurationMetricsContext(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	labels map[string]string,
) {
	if es.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
		return
	}

	es.metricsCollector.RecordDuration(metricName, duration, labels)
}

// recordValueMetricsContext records value metrics, with context if the collector supports it.
func (es *EventStore) recordValueMetricsContext(
	ctx context.Context,
	metricName string,
	value float64,
	labels map[string]string,
) {
	if es.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metricName, value, labels)
		return
	}

	es.metricsCollector.RecordValue(metricName, value, labels)
}

// incrementCounterContext increments a counter, with context if the collector supports it.
func (es *EventStore) incrementCounterContext(ctx context.Context, metricName string, labels map[string]string) {
	if es.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricName, labels)
		return
	}

	es.metricsCollector.IncrementCounter(metricName, labels)
}

// recordCommitHorizonContext exposes the latest resolved horizon as a gauge-like value.
// A horizon that stays flat while writes continue points at a long-running transaction.
func (es *EventStore) recordCommitHorizonContext(ctx context.Context, horizon eventstore.CommitHorizon) {
	labels := map[string]string{spanAttrOperation: logActionCommitHorizon}
	es.recordValueMetricsContext(ctx, metricCommitHorizon, float64(horizon.TransactionID()), labels)
}

// === Tracing Observer Pattern ===

// readBatchTracingObserver encapsulates the span lifecycle of one batch read.
type readBatchTracingObserver struct {
	es   *EventStore
	span eventstore.SpanContext
}

// startReadBatchTracing starts the read span if the tracing collector is configured.
func (es *EventStore) startReadBatchTracing(ctx context.Context, partition string) (*readBatchTracingObserver, context.Context) {
	observer := &readBatchTracingObserver{es: es}

	if es.tracingCollector == nil {
		return observer, ctx
	}

	newCtx, span := es.tracingCollector.StartSpan(ctx, spanNameReadBatch, map[string]string{
		spanAttrOperation: logActionReadBatch,
		spanAttrPartition: partition,
	})
	observer.span = span

	return observer, newCtx
}

// finishSuccess completes the read span with the batch summary.
func (o *readBatchTracingObserver) finishSuccess(batch eventstore.BatchResult, duration time.Duration) {
	if o.span == nil {
		return
	}

	attrs := map[string]string{
		spanAttrEventCount:      strconv.Itoa(len(batch.Messages)),
		spanAttrCurrentPosition: strconv.FormatInt(batch.CurrentGlobalPosition, 10),
		spanAttrAreEventsLeft:   strconv.FormatBool(batch.AreEventsLeft),
		spanAttrDurationMS:      o.formatDuration(duration),
	}

	o.span.SetStatus(statusSuccess)
	for key, value := range attrs {
		o.span.AddAttribute(key, value)
	}

	o.es.tracingCollector.FinishSpan(o.span, statusSuccess, attrs)
}

// finishError completes the read span with the error label.
func (o *readBatchTracingObserver) finishError(errorType string, duration time.Duration) {
	if o.span == nil {
		return
	}

	attrs := map[string]string{spanAttrErrorType: errorType}
	if duration > 0 {
		attrs[spanAttrDurationMS] = o.formatDuration(duration)
	}

	o.span.SetStatus(statusError)
	for key, value := range attrs {
		o.span.AddAttribute(key, value)
	}

	o.es.tracingCollector.FinishSpan(o.span, statusError, attrs)
}

func (o *readBatchTracingObserver) formatDuration(duration time.Duration) string {
	return fmt.Sprintf("%.2f", o.es.toMilliseconds(duration))
}

// === Metrics Observer Pattern ===

// readBatchMetricsObserver encapsulates the metrics of one batch read.
type readBatchMetricsObserver struct {
	es        *EventStore
	ctx       context.Context
	partition string
}

// startReadBatchMetrics creates a new metrics observer for one batch read.
func (es *EventStore) startReadBatchMetrics(ctx context.Context, partition string) *readBatchMetricsObserver {
	return &readBatchMetricsObserver{
		es:        es,
		ctx:       ctx,
		partition: partition,
	}
}

// recordSuccess records the duration and the number of delivered events.
func (o *readBatchMetricsObserver) recordSuccess(batch eventstore.BatchResult, duration time.Duration) {
	labels := o.es.metricLabels(o.partition, statusSuccess)
	o.es.recordDurationMetricsContext(o.ctx, metricReadBatchDuration, duration, labels)
	o.es.recordValueMetricsContext(o.ctx, metricReadBatchEvents, float64(len(batch.Messages)), labels)
}

// recordError records the duration and increments the error counter.
func (o *readBatchMetricsObserver) recordError(errorType string, duration time.Duration) {
	o.es.recordDurationMetricsContext(o.ctx, metricReadBatchDuration, duration, o.es.metricLabels(o.partition, statusError))

	errorLabels := o.es.metricLabels(o.partition, statusError)
	errorLabels[spanAttrErrorType] = errorType
	o.es.incrementCounterContext(o.ctx, metricDatabaseErrors, errorLabels)
}

// === Contextual Logging Pattern ===

// logQueryWithDurationContext logs SQL statements with execution time and context correlation.
func (es *EventStore) logQueryWithDurationContext(
	ctx context.Context,
	sqlQuery string,
	action string,
	duration time.Duration,
) {
	if es.contextualLogger != nil {
		es.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, es.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperationContext logs operational information with context correlation.
func (es *EventStore) logOperationContext(ctx context.Context, action string, args ...any) {
	if es.contextualLogger != nil {
		es.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}
}

// logWarnContext logs non-critical problems with context correlation.
func (es *EventStore) logWarnContext(ctx context.Context, message string, err error) {
	if es.contextualLogger != nil {
		es.contextualLogger.WarnContext(ctx, message, logAttrError, err.Error())
	}
}

// logErrorContext logs error information with context correlation.
func (es *EventStore) logErrorContext(
	ctx context.Context,
	message string,
	err error,
	args ...any,
) {
	if es.contextualLogger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		es.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}
