package eventstore

import (
	"fmt"
	"math"
)

// DefaultPartition is used whenever ReadBatchOptions.Partition is empty.
const DefaultPartition = "default"

// GlobalPositionInt is the type of global and stream positions.
type GlobalPositionInt = int64

// PositionWindow is the caller-supplied slice of a partition to read.
//
// It is a closed set of exactly four shapes:
//   - AfterPosition: strictly after a position, limited to a batch size
//   - FromPosition: from a position (inclusive), limited to a batch size
//   - UpToPosition: from the partition start up to a position (inclusive), limited to a batch size
//   - PositionRange: a fixed inclusive range without a row limit
type PositionWindow interface {
	isPositionWindow()
}

// AfterPosition reads the positions strictly after After, at most BatchSize events.
type AfterPosition struct {
	After     GlobalPositionInt
	BatchSize int
}

// FromPosition reads the positions starting at From, at most BatchSize events.
type FromPosition struct {
	From      GlobalPositionInt
	BatchSize int
}

// UpToPosition reads from the partition start up to and including To, at most BatchSize events.
type UpToPosition struct {
	To        GlobalPositionInt
	BatchSize int
}

// PositionRange reads the inclusive range [From, To] without a row limit.
type PositionRange struct {
	From GlobalPositionInt
	To   GlobalPositionInt
}

func (AfterPosition) isPositionWindow() {}
func (FromPosition) isPositionWindow()  {}
func (UpToPosition) isPositionWindow()  {}
func (PositionRange) isPositionWindow() {}

// ReadBatchOptions selects the window and the partition of a batch read.
type ReadBatchOptions struct {
	Window    PositionWindow
	Partition string
}

// PartitionOrDefault returns the configured partition or DefaultPartition.
func (o ReadBatchOptions) PartitionOrDefault() string {
	if o.Partition == "" {
		return DefaultPartition
	}

	return o.Partition
}

// NormalizedRange is the concrete interval a PositionWindow translates to.
//
// To and Limit are only meaningful when HasTo / HasLimit are set.
// EmptyCursor is the CurrentGlobalPosition reported for a batch without events.
type NormalizedRange struct {
	From        GlobalPositionInt
	To          GlobalPositionInt
	HasTo       bool
	Limit       int
	HasLimit    bool
	EmptyCursor GlobalPositionInt
}

// SelectRange validates a PositionWindow and normalizes it into a NormalizedRange.
// It never corrects invalid input: every precondition violation is reported as ErrInvalidRange.
func SelectRange(window PositionWindow) (NormalizedRange, error) {
	switch w := window.(type) {
	case AfterPosition:
		if err := validatePosition("after", w.After); err != nil {
			return NormalizedRange{}, err
		}

		if w.After == math.MaxInt64 {
			return NormalizedRange{}, fmt.Errorf("%w: no position exists after %d", ErrInvalidRange, w.After)
		}

		if err := validateBatchSize(w.BatchSize); err != nil {
			return NormalizedRange{}, err
		}

		return NormalizedRange{
			From:        w.After + 1,
			Limit:       w.BatchSize,
			HasLimit:    true,
			EmptyCursor: w.After,
		}, nil

	case FromPosition:
		if err := validatePosition("from", w.From); err != nil {
			return NormalizedRange{}, err
		}

		if err := validateBatchSize(w.BatchSize); err != nil {
			return NormalizedRange{}, err
		}

		return NormalizedRange{
			From:        w.From,
			Limit:       w.BatchSize,
			HasLimit:    true,
			EmptyCursor: w.From,
		}, nil

	case UpToPosition:
		if err := validatePosition("to", w.To); err != nil {
			return NormalizedRange{}, err
		}

		if err := validateBatchSize(w.BatchSize); err != nil {
			return NormalizedRange{}, err
		}

		return NormalizedRange{
			From:        0,
			To:          w.To,
			HasTo:       true,
			Limit:       w.BatchSize,
			HasLimit:    true,
			EmptyCursor: 0,
		}, nil

	case PositionRange:
		if err := validatePosition("from", w.From); err != nil {
			return NormalizedRange{}, err
		}

		if err := validatePosition("to", w.To); err != nil {
			return NormalizedRange{}, err
		}

		if w.To < w.From {
			return NormalizedRange{}, fmt.Errorf("%w: to (%d) is lower than from (%d)", ErrInvalidRange, w.To, w.From)
		}

		return NormalizedRange{
			From:        w.From,
			To:          w.To,
			HasTo:       true,
			EmptyCursor: w.From,
		}, nil

	case nil:
		return NormalizedRange{}, fmt.Errorf("%w: no position window supplied", ErrInvalidRange)

	default:
		return NormalizedRange{}, fmt.Errorf("%w: unsupported position window %T", ErrInvalidRange, window)
	}
}

// Contains reports whether a global position lies inside the range bounds (the limit is not considered).
func (r NormalizedRange) Contains(globalPosition GlobalPositionInt) bool {
	if globalPosition < r.From {
		return false
	}

	if r.HasTo && globalPosition > r.To {
		return false
	}

	return true
}

func validatePosition(name string, position GlobalPositionInt) error {
	if position < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidRange, name, position)
	}

	return nil
}

func validateBatchSize(batchSize int) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidRange, batchSize)
	}

	return nil
}
