package puller

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

const (
	defaultBatchSize    = 100
	defaultPullInterval = time.Second

	logMsgPullerStarted  = "batch puller started"
	logMsgPullerStopped  = "batch puller stopped"
	logMsgBatchHandled   = "batch handled"
	logMsgHandlerFailed  = "batch handler failed"
	logMsgReadFailed     = "batch read failed"
	logAttrProcessorID   = "processor_id"
	logAttrPartition     = "partition"
	logAttrCursor        = "cursor"
	logAttrEventCount    = "event_count"
	logAttrBatchSize     = "batch_size"
	logAttrError         = "error"
	logAttrStopReason    = "reason"
	stopReasonHandler    = "handler"
	stopReasonContext    = "context"
	defaultProcessorName = "batch-puller"
)

var (
	// ErrStopPulling is returned by a BatchHandler to stop the puller after the current batch.
	// The batch counts as handled: the cursor advances and the checkpoint is stored.
	ErrStopPulling = errors.New("stop pulling")

	// ErrNilBatchReader is returned when the puller is created without a reader.
	ErrNilBatchReader = errors.New("batch reader must not be nil")

	// ErrNilBatchHandler is returned when the puller is created without a handler.
	ErrNilBatchHandler = errors.New("batch handler must not be nil")

	// ErrInvalidBatchSize is returned for a batch size below one.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrInvalidPullInterval is returned for a negative pull interval.
	ErrInvalidPullInterval = errors.New("pull interval must not be negative")
)

// BatchReader reads one batch of committed events. Both engines implement it.
type BatchReader interface {
	ReadMessagesBatch(ctx context.Context, options eventstore.ReadBatchOptions) (eventstore.BatchResult, error)
}

// BatchHandler handles one non-empty batch. Returning an error other than ErrStopPulling stops the puller
// without advancing the cursor, so the batch is read again by the next run.
type BatchHandler func(ctx context.Context, batch eventstore.BatchResult) error

// BatchPuller is the consumer loop over ReadMessagesBatch: it keeps reading AfterPosition{After: cursor},
// advances the cursor to CurrentGlobalPosition, and waits for PullInterval once it caught up.
type BatchPuller struct {
	reader       BatchReader
	handler      BatchHandler
	partition    string
	batchSize    int
	pullInterval time.Duration
	processorID  string
	checkpoints  eventstore.CheckpointStore
	logger       eventstore.ContextualLogger
	cursor       atomic.Int64
}

// Option defines a functional option for configuring BatchPuller.
type Option func(*BatchPuller) error

// WithPartition sets the partition to pull from.
func WithPartition(partition string) Option {
	return func(p *BatchPuller) error {
		p.partition = partition
		return nil
	}
}

// WithBatchSize sets the maximum number of events per batch.
func WithBatchSize(batchSize int) Option {
	return func(p *BatchPuller) error {
		if batchSize <= 0 {
			return ErrInvalidBatchSize
		}

		p.batchSize = batchSize

		return nil
	}
}

// WithPullInterval sets how long the puller waits after a batch that was not cut by its limit.
func WithPullInterval(interval time.Duration) Option {
	return func(p *BatchPuller) error {
		if interval < 0 {
			return ErrInvalidPullInterval
		}

		p.pullInterval = interval

		return nil
	}
}

// WithStartPosition sets the cursor to start after. A stored checkpoint takes precedence.
func WithStartPosition(after eventstore.GlobalPositionInt) Option {
	return func(p *BatchPuller) error {
		p.cursor.Store(after)
		return nil
	}
}

// WithCheckpointStore makes the puller resume from and store its cursor under processorID.
func WithCheckpointStore(store eventstore.CheckpointStore, processorID string) Option {
	return func(p *BatchPuller) error {
		if processorID == "" {
			return eventstore.ErrEmptyProcessorID
		}

		p.checkpoints = store
		p.processorID = processorID

		return nil
	}
}

// WithLogger sets a context-aware logger, e.g. *slog.Logger.
func WithLogger(logger eventstore.ContextualLogger) Option {
	return func(p *BatchPuller) error {
		p.logger = logger
		return nil
	}
}

// NewBatchPuller creates a BatchPuller.
func NewBatchPuller(reader BatchReader, handler BatchHandler, options ...Option) (*BatchPuller, error) {
	if reader == nil {
		return nil, ErrNilBatchReader
	}

	if handler == nil {
		return nil, ErrNilBatchHandler
	}

	p := &BatchPuller{
		reader:       reader,
		handler:      handler,
		partition:    eventstore.DefaultPartition,
		batchSize:    defaultBatchSize,
		pullInterval: defaultPullInterval,
		processorID:  defaultProcessorName,
	}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	if p.partition == "" {
		p.partition = eventstore.DefaultPartition
	}

	return p, nil
}

// Cursor returns the position the puller continues after.
func (p *BatchPuller) Cursor() eventstore.GlobalPositionInt {
	return p.cursor.Load()
}

// Run pulls until the context is canceled (returning ctx.Err()), the handler returns ErrStopPulling (returning nil),
// or a read, handler, or checkpoint error occurs (returning it). Read errors are not retried.
func (p *BatchPuller) Run(ctx context.Context) error {
	if err := p.resumeFromCheckpoint(ctx); err != nil {
		return err
	}

	p.logInfo(ctx, logMsgPullerStarted, logAttrCursor, p.Cursor(), logAttrBatchSize, p.batchSize)

	for {
		if err := ctx.Err(); err != nil {
			p.logInfo(ctx, logMsgPullerStopped, logAttrStopReason, stopReasonContext, logAttrCursor, p.Cursor())
			return err
		}

		batch, readErr := p.reader.ReadMessagesBatch(ctx, eventstore.ReadBatchOptions{
			Window:    eventstore.AfterPosition{After: p.Cursor(), BatchSize: p.batchSize},
			Partition: p.partition,
		})
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			p.logError(ctx, logMsgReadFailed, readErr)

			return readErr
		}

		stop, handleErr := p.handle(ctx, batch)
		if handleErr != nil {
			return handleErr
		}

		if stop {
			p.logInfo(ctx, logMsgPullerStopped, logAttrStopReason, stopReasonHandler, logAttrCursor, p.Cursor())
			return nil
		}

		if batch.AreEventsLeft {
			continue
		}

		if err := p.wait(ctx); err != nil {
			p.logInfo(ctx, logMsgPullerStopped, logAttrStopReason, stopReasonContext, logAttrCursor, p.Cursor())
			return err
		}
	}
}

func (p *BatchPuller) handle(ctx context.Context, batch eventstore.BatchResult) (bool, error) {
	if len(batch.Messages) == 0 {
		p.cursor.Store(batch.CurrentGlobalPosition)
		return false, nil
	}

	handlerErr := p.handler(ctx, batch)
	stop := errors.Is(handlerErr, ErrStopPulling)

	if handlerErr != nil && !stop {
		p.logError(ctx, logMsgHandlerFailed, handlerErr)
		return false, handlerErr
	}

	p.cursor.Store(batch.CurrentGlobalPosition)

	if err := p.storeCheckpoint(ctx); err != nil {
		return false, err
	}

	p.logDebug(ctx, logMsgBatchHandled, logAttrEventCount, len(batch.Messages), logAttrCursor, p.Cursor())

	return stop, nil
}

func (p *BatchPuller) resumeFromCheckpoint(ctx context.Context) error {
	if p.checkpoints == nil {
		return nil
	}

	checkpoint, found, err := p.checkpoints.LoadCheckpoint(ctx, p.processorID, p.partition)
	if err != nil {
		return err
	}

	if found {
		p.cursor.Store(checkpoint.Position)
	}

	return nil
}

func (p *BatchPuller) storeCheckpoint(ctx context.Context) error {
	if p.checkpoints == nil {
		return nil
	}

	checkpoint, err := eventstore.BuildCheckpoint(p.processorID, p.partition, p.Cursor())
	if err != nil {
		return err
	}

	return p.checkpoints.SaveCheckpoint(ctx, checkpoint)
}

func (p *BatchPuller) wait(ctx context.Context) error {
	timer := time.NewTimer(p.pullInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *BatchPuller) logAttrs(args []any) []any {
	return append([]any{logAttrProcessorID, p.processorID, logAttrPartition, p.partition}, args...)
}

func (p *BatchPuller) logDebug(ctx context.Context, msg string, args ...any) {
	if p.logger != nil {
		p.logger.DebugContext(ctx, msg, p.logAttrs(args)...)
	}
}

func (p *BatchPuller) logInfo(ctx context.Context, msg string, args ...any) {
	if p.logger != nil {
		p.logger.InfoContext(ctx, msg, p.logAttrs(args)...)
	}
}

func (p *BatchPuller) logError(ctx context.Context, msg string, err error) {
	if p.logger != nil {
		p.logger.ErrorContext(ctx, msg, p.logAttrs([]any{logAttrError, err.Error()})...)
	}
}
