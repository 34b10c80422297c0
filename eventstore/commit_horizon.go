package eventstore

import (
	"context"
	"strconv"
)

// TransactionIDUint identifies a writing transaction. Lower ids began (and were assigned) earlier.
type TransactionIDUint = uint64

// CommitHorizon is the lowest transaction id that may still be in flight.
// Every transaction with an id strictly below it has finished, so its rows can never appear later.
type CommitHorizon struct {
	transactionID TransactionIDUint
}

// NewCommitHorizon wraps the lowest in-flight transaction id, or the next id to be assigned if none is in flight.
func NewCommitHorizon(lowestInFlight TransactionIDUint) CommitHorizon {
	return CommitHorizon{transactionID: lowestInFlight}
}

// ParseTransactionID parses the textual form engines such as Postgres return for xid8 values.
func ParseTransactionID(raw string) (TransactionIDUint, error) {
	return strconv.ParseUint(raw, 10, 64)
}

// ParseCommitHorizon parses a textual transaction id into a CommitHorizon.
func ParseCommitHorizon(raw string) (CommitHorizon, error) {
	transactionID, err := ParseTransactionID(raw)
	if err != nil {
		return CommitHorizon{}, err
	}

	return NewCommitHorizon(transactionID), nil
}

// TransactionID returns the horizon value.
func (h CommitHorizon) TransactionID() TransactionIDUint {
	return h.transactionID
}

// Admits reports whether rows written by the given transaction are safe to return.
func (h CommitHorizon) Admits(transactionID TransactionIDUint) bool {
	return transactionID < h.transactionID
}

func (h CommitHorizon) String() string {
	return strconv.FormatUint(h.transactionID, 10)
}

// CommitHorizonResolver determines the commit horizon at the current moment.
// Implementations must not cache the value across calls.
type CommitHorizonResolver interface {
	ResolveCommitHorizon(ctx context.Context) (CommitHorizon, error)
}
