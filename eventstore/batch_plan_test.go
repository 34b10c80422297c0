package eventstore_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

func Test_PlanBatch_When_Partition_Is_Empty_Should_Use_DefaultPartition(t *testing.T) {
	// arrange
	rng, err := eventstore.SelectRange(eventstore.AfterPosition{After: 0, BatchSize: 10})
	require.NoError(t, err)

	// act
	plan := eventstore.PlanBatch("", rng, eventstore.NewCommitHorizon(15))

	// assert
	assert.Equal(t, eventstore.DefaultPartition, plan.Partition)
	assert.Equal(t, rng, plan.Range)
	assert.Equal(t, eventstore.TransactionIDUint(15), plan.Horizon.TransactionID())
	assert.Equal(t, []eventstore.SortColumn{eventstore.SortByTransactionID, eventstore.SortByGlobalPosition}, plan.Ordering())
}

func Test_BatchPlan_Matches(t *testing.T) {
	// setup
	rng := eventstore.NormalizedRange{From: 2, To: 10, HasTo: true}
	plan := eventstore.PlanBatch("p1", rng, eventstore.NewCommitHorizon(11))

	tests := []struct {
		name           string
		partition      string
		isArchived     bool
		transactionID  eventstore.TransactionIDUint
		globalPosition eventstore.GlobalPositionInt
		expected       bool
	}{
		{name: "committed_row_inside_range", partition: "p1", transactionID: 10, globalPosition: 2, expected: true},
		{name: "other_partition", partition: "p2", transactionID: 10, globalPosition: 2, expected: false},
		{name: "archived_row", partition: "p1", isArchived: true, transactionID: 10, globalPosition: 2, expected: false},
		{name: "transaction_at_horizon", partition: "p1", transactionID: 11, globalPosition: 2, expected: false},
		{name: "transaction_above_horizon", partition: "p1", transactionID: 12, globalPosition: 3, expected: false},
		{name: "position_below_range", partition: "p1", transactionID: 10, globalPosition: 1, expected: false},
		{name: "position_above_range", partition: "p1", transactionID: 10, globalPosition: 11, expected: false},
		{name: "position_at_upper_bound", partition: "p1", transactionID: 1, globalPosition: 10, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, plan.Matches(tt.partition, tt.isArchived, tt.transactionID, tt.globalPosition))
		})
	}
}

func Test_CompareRows_Should_Order_By_Transaction_Then_Position(t *testing.T) {
	// arrange
	type row struct {
		transactionID  eventstore.TransactionIDUint
		globalPosition eventstore.GlobalPositionInt
	}

	rows := []row{
		{transactionID: 12, globalPosition: 3},
		{transactionID: 10, globalPosition: 2},
		{transactionID: 11, globalPosition: 4},
		{transactionID: 10, globalPosition: 1},
	}

	// act
	slices.SortFunc(rows, func(a, b row) int {
		return eventstore.CompareRows(a.transactionID, a.globalPosition, b.transactionID, b.globalPosition)
	})

	// assert
	assert.Equal(t, []row{
		{transactionID: 10, globalPosition: 1},
		{transactionID: 10, globalPosition: 2},
		{transactionID: 11, globalPosition: 4},
		{transactionID: 12, globalPosition: 3},
	}, rows)
	assert.Equal(t, 0, eventstore.CompareRows(5, 5, 5, 5))
}

func Test_CommitHorizon_Admits_Only_Lower_Transactions(t *testing.T) {
	// arrange
	horizon := eventstore.NewCommitHorizon(11)

	// act & assert
	assert.True(t, horizon.Admits(10))
	assert.False(t, horizon.Admits(11))
	assert.False(t, horizon.Admits(12))
	assert.Equal(t, "11", horizon.String())
}

func Test_ParseCommitHorizon(t *testing.T) {
	// act
	horizon, err := eventstore.ParseCommitHorizon("18446744073709551615")
	_, invalidErr := eventstore.ParseCommitHorizon("11:15:")

	// assert
	require.NoError(t, err)
	assert.Equal(t, eventstore.TransactionIDUint(18446744073709551615), horizon.TransactionID())
	assert.Error(t, invalidErr)
}
