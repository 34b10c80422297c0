package eventstore

// SortColumn names a column of the batch ordering.
type SortColumn string

const (
	// SortByTransactionID orders by the writing transaction (commit order).
	SortByTransactionID SortColumn = "transaction_id"

	// SortByGlobalPosition orders events committed in the same transaction.
	SortByGlobalPosition SortColumn = "global_position"
)

// BatchOrdering is the fixed ordering of every batch: transaction id first, global position second.
// Ordering by global position alone would let a slow, older transaction commit behind the cursor.
var BatchOrdering = []SortColumn{SortByTransactionID, SortByGlobalPosition}

// BatchPlan is the storage-agnostic filter and sort order of one batch read:
//
//	partition = Partition AND NOT is_archived
//	AND transaction_id < Horizon
//	AND global_position >= Range.From [AND global_position <= Range.To]
//	ORDER BY transaction_id ASC, global_position ASC
//	[LIMIT Range.Limit]
type BatchPlan struct {
	Partition string
	Range     NormalizedRange
	Horizon   CommitHorizon
}

// PlanBatch combines the partition, the normalized range, and the commit horizon into a BatchPlan.
func PlanBatch(partition string, rng NormalizedRange, horizon CommitHorizon) BatchPlan {
	if partition == "" {
		partition = DefaultPartition
	}

	return BatchPlan{
		Partition: partition,
		Range:     rng,
		Horizon:   horizon,
	}
}

// Ordering returns the sort columns, each ascending.
func (p BatchPlan) Ordering() []SortColumn {
	return BatchOrdering
}

// Matches reports whether a row satisfies the filter part of the plan.
// Engines that cannot push the plan down to a query language filter with it.
func (p BatchPlan) Matches(partition string, isArchived bool, transactionID TransactionIDUint, globalPosition GlobalPositionInt) bool {
	return partition == p.Partition &&
		!isArchived &&
		p.Horizon.Admits(transactionID) &&
		p.Range.Contains(globalPosition)
}

// CompareRows orders two rows the way the plan requires (negative when a sorts before b).
func CompareRows(aTransactionID TransactionIDUint, aGlobalPosition GlobalPositionInt, bTransactionID TransactionIDUint, bGlobalPosition GlobalPositionInt) int {
	switch {
	case aTransactionID < bTransactionID:
		return -1
	case aTransactionID > bTransactionID:
		return 1
	case aGlobalPosition < bGlobalPosition:
		return -1
	case aGlobalPosition > bGlobalPosition:
		return 1
	default:
		return 0
	}
}
