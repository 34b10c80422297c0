package memengine

import (
	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

// Transaction is a claimed ticket of the sequencer. Its rows become readable after Commit,
// once every transaction with a lower id is closed as well.
type Transaction struct {
	store  *EventStore
	id     eventstore.TransactionIDUint
	rows   []storedRow
	closed bool
}

// ID returns the transaction id claimed by Begin.
func (tx *Transaction) ID() eventstore.TransactionIDUint {
	return tx.id
}

// Append allocates global and stream positions for the events right away, in allocation order.
func (tx *Transaction) Append(partition string, events ...NewEvent) ([]eventstore.GlobalPositionInt, error) {
	if partition == "" {
		partition = eventstore.DefaultPartition
	}

	if err := validateEvents(events); err != nil {
		return nil, err
	}

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.closed {
		return nil, ErrTransactionClosed
	}

	positions := make([]eventstore.GlobalPositionInt, 0, len(events))
	for _, event := range events {
		stored := s.allocate(tx, partition, event)
		tx.rows = append(tx.rows, stored)
		positions = append(positions, stored.row.GlobalPosition)
	}

	return positions, nil
}

// Commit makes the appended rows durable and releases the ticket.
func (tx *Transaction) Commit() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.closed {
		return ErrTransactionClosed
	}

	s.committedRows = append(s.committedRows, tx.rows...)
	tx.close()

	return nil
}

// Rollback discards the appended rows and releases the ticket. Their positions are never reused.
func (tx *Transaction) Rollback() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.closed {
		return ErrTransactionClosed
	}

	tx.close()

	return nil
}

// close must be called with the store's mutex held.
func (tx *Transaction) close() {
	tx.closed = true
	tx.rows = nil
	delete(tx.store.openTransactions, tx.id)
}
