package eventstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyProcessorID is returned when a checkpoint has no processor id.
	ErrEmptyProcessorID = errors.New("processor id must not be empty")

	// ErrNegativeCheckpointPosition is returned when a checkpoint position is below zero.
	ErrNegativeCheckpointPosition = errors.New("checkpoint position must not be negative")

	// ErrSavingCheckpointFailed is returned when the checkpoint save operation fails.
	ErrSavingCheckpointFailed = errors.New("saving checkpoint failed")

	// ErrLoadingCheckpointFailed is returned when the checkpoint load operation fails.
	ErrLoadingCheckpointFailed = errors.New("loading checkpoint failed")
)

// Checkpoint is the cursor a consumer stores after handling a batch, so it can resume with
// AfterPosition{After: Position} once restarted.
type Checkpoint struct {
	ProcessorID string            // Consumer identity, e.g. "cart-summary-projection"
	Partition   string            // Partition the cursor belongs to
	Position    GlobalPositionInt // CurrentGlobalPosition of the last handled batch
	UpdatedAt   time.Time         // When this checkpoint was stored
}

// Validate ensures the checkpoint has valid data for storage operations.
func (c Checkpoint) Validate() error {
	if c.ProcessorID == "" {
		return ErrEmptyProcessorID
	}

	if c.Position < 0 {
		return ErrNegativeCheckpointPosition
	}

	return nil
}

// BuildCheckpoint creates a new Checkpoint with validation. An empty partition becomes DefaultPartition.
func BuildCheckpoint(processorID string, partition string, position GlobalPositionInt) (Checkpoint, error) {
	if partition == "" {
		partition = DefaultPartition
	}

	checkpoint := Checkpoint{
		ProcessorID: processorID,
		Partition:   partition,
		Position:    position,
		UpdatedAt:   time.Now(),
	}

	if err := checkpoint.Validate(); err != nil {
		return Checkpoint{}, err
	}

	return checkpoint, nil
}

// CheckpointStore persists consumer cursors. LoadCheckpoint returns found == false for unknown processors.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, checkpoint Checkpoint) error
	LoadCheckpoint(ctx context.Context, processorID string, partition string) (checkpoint Checkpoint, found bool, err error)
}
