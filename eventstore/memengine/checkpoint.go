package memengine

import (
	"context"
	"errors"
	"sync"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

type checkpointKey struct {
	processorID string
	partition   string
}

// CheckpointStore keeps consumer checkpoints in memory. Like the Postgres store it never moves a position backwards.
type CheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[checkpointKey]eventstore.Checkpoint
}

// NewCheckpointStore creates an empty CheckpointStore.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		checkpoints: make(map[checkpointKey]eventstore.Checkpoint),
	}
}

// SaveCheckpoint implements eventstore.CheckpointStore.
func (cs *CheckpointStore) SaveCheckpoint(_ context.Context, checkpoint eventstore.Checkpoint) error {
	if err := checkpoint.Validate(); err != nil {
		return errors.Join(eventstore.ErrSavingCheckpointFailed, err)
	}

	if checkpoint.Partition == "" {
		checkpoint.Partition = eventstore.DefaultPartition
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	key := checkpointKey{processorID: checkpoint.ProcessorID, partition: checkpoint.Partition}
	if stored, ok := cs.checkpoints[key]; ok && stored.Position > checkpoint.Position {
		return nil
	}

	cs.checkpoints[key] = checkpoint

	return nil
}

// LoadCheckpoint implements eventstore.CheckpointStore.
func (cs *CheckpointStore) LoadCheckpoint(_ context.Context, processorID string, partition string) (eventstore.Checkpoint, bool, error) {
	if processorID == "" {
		return eventstore.Checkpoint{}, false, errors.Join(eventstore.ErrLoadingCheckpointFailed, eventstore.ErrEmptyProcessorID)
	}

	if partition == "" {
		partition = eventstore.DefaultPartition
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	checkpoint, ok := cs.checkpoints[checkpointKey{processorID: processorID, partition: partition}]

	return checkpoint, ok, nil
}
