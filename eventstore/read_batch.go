package eventstore

import (
	"context"
)

// BatchExecutor is the storage capability a batch read needs: the commit horizon of the current moment
// and the execution of one filtered, ordered, and optionally limited read.
type BatchExecutor interface {
	CommitHorizonResolver
	ExecuteBatchPlan(ctx context.Context, plan BatchPlan) (EventRows, error)
}

// ReadMessagesBatch reads one batch of committed events of a single partition:
//
//	SelectRange -> ResolveCommitHorizon -> PlanBatch -> ExecuteBatchPlan -> MapEventRows -> AssembleBatch
//
// Invalid windows fail before storage is touched. Storage and mapping errors are returned as they are, without retries.
func ReadMessagesBatch(
	ctx context.Context,
	executor BatchExecutor,
	mapper EventMapper,
	options ReadBatchOptions,
) (BatchResult, error) {

	rng, rangeErr := SelectRange(options.Window)
	if rangeErr != nil {
		return BatchResult{}, rangeErr
	}

	horizon, horizonErr := executor.ResolveCommitHorizon(ctx)
	if horizonErr != nil {
		return BatchResult{}, horizonErr
	}

	plan := PlanBatch(options.PartitionOrDefault(), rng, horizon)

	rows, executeErr := executor.ExecuteBatchPlan(ctx, plan)
	if executeErr != nil {
		return BatchResult{}, executeErr
	}

	messages, mapErr := MapEventRows(mapper, rows)
	if mapErr != nil {
		return BatchResult{}, mapErr
	}

	return AssembleBatch(rng, messages), nil
}
