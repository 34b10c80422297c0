package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/eventlog-batch-reader/config"
	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore/postgresengine"
	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore/puller"
)

const (
	flagAfter        = "after"
	flagFrom         = "from"
	flagTo           = "to"
	flagBatchSize    = "batch-size"
	flagPartition    = "partition"
	flagFollow       = "follow"
	flagPullInterval = "pull-interval"
	flagProcessorID  = "processor-id"
)

var (
	// ErrConflictingWindowFlags is returned when --after is combined with --from or --to.
	ErrConflictingWindowFlags = errors.New("--after cannot be combined with --from or --to")

	// ErrFollowNeedsOpenWindow is returned when --follow is combined with --from or --to.
	ErrFollowNeedsOpenWindow = errors.New("--follow only supports --after")
)

// ReaderFactory opens the batch reader the command replays from. The returned function releases it.
type ReaderFactory func(ctx context.Context, cfg config.Config, logger *slog.Logger) (puller.BatchReader, func(), error)

// OpenPostgres is the ReaderFactory for the configured PostgreSQL event store.
func OpenPostgres(ctx context.Context, cfg config.Config, logger *slog.Logger) (puller.BatchReader, func(), error) {
	es, closeStore, err := config.NewEventStore(ctx, cfg, postgresengine.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	return es, closeStore, nil
}

// eventLine is the JSON line printed per event.
type eventLine struct {
	GlobalPosition eventstore.GlobalPositionInt `json:"globalPosition"`
	StreamName     string                       `json:"streamName"`
	StreamPosition eventstore.GlobalPositionInt `json:"streamPosition"`
	EventType      string                       `json:"eventType"`
	EventID        string                       `json:"eventId"`
	SchemaVersion  string                       `json:"schemaVersion,omitempty"`
	Created        time.Time                    `json:"created"`
	Data           any                          `json:"data"`
	Metadata       map[string]any               `json:"metadata,omitempty"`
}

// NewCommand constructs the eventlog-replay root command. Flags default to the values of cfg.
func NewCommand(cfg config.Config, open ReaderFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eventlog-replay",
		Short: "Print committed events of one partition as JSON lines",
		Long: "Reads the event log in batches, in commit order, and prints one JSON line per event to stdout.\n" +
			"The cursor to continue after is printed to stderr. With --follow, new commits are printed until interrupted.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, cfg, open)
		},
	}

	cmd.Flags().Int64(flagAfter, 0, "Read strictly after this global position")
	cmd.Flags().Int64(flagFrom, 0, "Read from this global position (inclusive)")
	cmd.Flags().Int64(flagTo, 0, "Read up to this global position (inclusive)")
	cmd.Flags().Int(flagBatchSize, cfg.BatchSize, "Maximum events per batch")
	cmd.Flags().String(flagPartition, cfg.Partition, "Partition to read")
	cmd.Flags().BoolP(flagFollow, "f", false, "Keep pulling new commits until interrupted")
	cmd.Flags().Duration(flagPullInterval, cfg.PullInterval, "Wait between pulls once caught up (with --follow)")
	cmd.Flags().String(flagProcessorID, "", "Resume from and store a checkpoint under this id (with --follow)")

	return cmd
}

func run(cmd *cobra.Command, cfg config.Config, open ReaderFactory) error {
	window, err := WindowFromFlags(cmd)
	if err != nil {
		return err
	}

	follow, _ := cmd.Flags().GetBool(flagFollow)
	partition, _ := cmd.Flags().GetString(flagPartition)

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	reader, closeReader, err := open(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer closeReader()

	out := newEventWriter(cmd.OutOrStdout())

	if follow {
		return followLog(cmd, reader, out, window, partition, logger)
	}

	cursor, err := drain(cmd.Context(), reader, out, window, partition)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "cursor: %d\n", cursor)

	return nil
}

// WindowFromFlags maps --after, --from, and --to onto a position window:
//
//	--from N --to M  -> PositionRange
//	--from N         -> FromPosition
//	--to M           -> UpToPosition
//	otherwise        -> AfterPosition (after 0 unless --after is given)
func WindowFromFlags(cmd *cobra.Command) (eventstore.PositionWindow, error) {
	flags := cmd.Flags()

	after, _ := flags.GetInt64(flagAfter)
	from, _ := flags.GetInt64(flagFrom)
	to, _ := flags.GetInt64(flagTo)
	batchSize, _ := flags.GetInt(flagBatchSize)

	hasFrom, hasTo := flags.Changed(flagFrom), flags.Changed(flagTo)
	if flags.Changed(flagAfter) && (hasFrom || hasTo) {
		return nil, ErrConflictingWindowFlags
	}

	var window eventstore.PositionWindow

	switch {
	case hasFrom && hasTo:
		window = eventstore.PositionRange{From: from, To: to}
	case hasFrom:
		window = eventstore.FromPosition{From: from, BatchSize: batchSize}
	case hasTo:
		window = eventstore.UpToPosition{To: to, BatchSize: batchSize}
	default:
		window = eventstore.AfterPosition{After: after, BatchSize: batchSize}
	}

	if _, err := eventstore.SelectRange(window); err != nil {
		return nil, err
	}

	return window, nil
}

// drain reads the window and its follow-up batches until a batch is not cut by its limit.
func drain(
	ctx context.Context,
	reader puller.BatchReader,
	out *eventWriter,
	window eventstore.PositionWindow,
	partition string,
) (eventstore.GlobalPositionInt, error) {

	for {
		batch, err := reader.ReadMessagesBatch(ctx, eventstore.ReadBatchOptions{Window: window, Partition: partition})
		if err != nil {
			return 0, err
		}

		if err := out.writeBatch(batch); err != nil {
			return 0, err
		}

		next, ok := nextWindow(window, batch)
		if !ok {
			return batch.CurrentGlobalPosition, nil
		}

		window = next
	}
}

// nextWindow returns the window of the follow-up batch, or false when the batch was the last one.
func nextWindow(window eventstore.PositionWindow, batch eventstore.BatchResult) (eventstore.PositionWindow, bool) {
	if !batch.AreEventsLeft {
		return nil, false
	}

	switch w := window.(type) {
	case eventstore.AfterPosition:
		return eventstore.AfterPosition{After: batch.CurrentGlobalPosition, BatchSize: w.BatchSize}, true
	case eventstore.FromPosition:
		return eventstore.AfterPosition{After: batch.CurrentGlobalPosition, BatchSize: w.BatchSize}, true
	case eventstore.UpToPosition:
		if batch.CurrentGlobalPosition >= w.To {
			return nil, false
		}

		return eventstore.PositionRange{From: batch.CurrentGlobalPosition + 1, To: w.To}, true
	default:
		return nil, false
	}
}

func followLog(
	cmd *cobra.Command,
	reader puller.BatchReader,
	out *eventWriter,
	window eventstore.PositionWindow,
	partition string,
	logger *slog.Logger,
) error {

	after, ok := window.(eventstore.AfterPosition)
	if !ok {
		return ErrFollowNeedsOpenWindow
	}

	pullInterval, _ := cmd.Flags().GetDuration(flagPullInterval)
	processorID, _ := cmd.Flags().GetString(flagProcessorID)

	options := []puller.Option{
		puller.WithPartition(partition),
		puller.WithBatchSize(after.BatchSize),
		puller.WithPullInterval(pullInterval),
		puller.WithStartPosition(after.After),
		puller.WithLogger(logger),
	}

	if processorID != "" {
		checkpoints, isCheckpointStore := reader.(eventstore.CheckpointStore)
		if !isCheckpointStore {
			return fmt.Errorf("--%s: the event log does not store checkpoints", flagProcessorID)
		}

		options = append(options, puller.WithCheckpointStore(checkpoints, processorID))
	}

	batchPuller, err := puller.NewBatchPuller(reader, func(_ context.Context, batch eventstore.BatchResult) error {
		return out.writeBatch(batch)
	}, options...)
	if err != nil {
		return err
	}

	runErr := batchPuller.Run(cmd.Context())
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "cursor: %d\n", batchPuller.Cursor())

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		return nil
	}

	return runErr
}

type eventWriter struct {
	encoder *jsoniter.Encoder
}

func newEventWriter(w io.Writer) *eventWriter {
	return &eventWriter{encoder: jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)}
}

func (w *eventWriter) writeBatch(batch eventstore.BatchResult) error {
	for _, event := range batch.Messages {
		line := eventLine{
			GlobalPosition: event.Metadata.GlobalPosition,
			StreamName:     event.Metadata.StreamName,
			StreamPosition: event.Metadata.StreamPosition,
			EventType:      event.Type,
			EventID:        event.Metadata.EventID,
			SchemaVersion:  event.Metadata.SchemaVersion,
			Created:        event.Metadata.Created,
			Data:           event.Data,
			Metadata:       event.Metadata.Fields,
		}

		if err := w.encoder.Encode(line); err != nil {
			return fmt.Errorf("write event %d: %w", event.Metadata.GlobalPosition, err)
		}
	}

	return nil
}
