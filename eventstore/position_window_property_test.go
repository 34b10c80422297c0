package eventstore_test

import (
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

func drawWindow(t *rapid.T) eventstore.PositionWindow {
	position := rapid.Int64Range(0, 1_000).Draw(t, "position")
	batchSize := rapid.IntRange(1, 50).Draw(t, "batchSize")

	switch rapid.IntRange(0, 3).Draw(t, "shape") {
	case 0:
		return eventstore.AfterPosition{After: position, BatchSize: batchSize}
	case 1:
		return eventstore.FromPosition{From: position, BatchSize: batchSize}
	case 2:
		return eventstore.UpToPosition{To: position, BatchSize: batchSize}
	default:
		return eventstore.PositionRange{From: position, To: position + rapid.Int64Range(0, 100).Draw(t, "width")}
	}
}

func Test_AssembleBatch_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		window := drawWindow(t)

		rng, err := eventstore.SelectRange(window)
		if err != nil {
			t.Fatalf("valid window rejected: %v", err)
		}

		upper := rng.From + 200
		if rng.HasTo {
			upper = rng.To
		}

		count := rapid.IntRange(0, 60).Draw(t, "count")
		if rng.HasLimit && count > rng.Limit {
			count = rng.Limit
		}

		positions := make([]eventstore.GlobalPositionInt, 0, count)
		for i := range count {
			positions = append(positions, rapid.Int64Range(rng.From, max(rng.From, upper)).Draw(t, "p"+string(rune('a'+i%26))))
		}

		batch := eventstore.AssembleBatch(rng, eventsAt(positions...))

		if count == 0 && batch.CurrentGlobalPosition != rng.EmptyCursor {
			t.Fatalf("empty batch cursor %d, expected %d", batch.CurrentGlobalPosition, rng.EmptyCursor)
		}

		if count > 0 && batch.CurrentGlobalPosition != positions[count-1] {
			t.Fatalf("cursor %d is not the last delivered position %d", batch.CurrentGlobalPosition, positions[count-1])
		}

		if batch.AreEventsLeft != (rng.HasLimit && count == rng.Limit) {
			t.Fatalf("are_events_left %v for %d events and range %+v", batch.AreEventsLeft, count, rng)
		}

		for _, position := range positions {
			if !rng.Contains(position) {
				t.Fatalf("generated position %d outside %+v", position, rng)
			}
		}
	})
}

func Test_SelectRange_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rng, err := eventstore.SelectRange(drawWindow(t))
		if err != nil {
			t.Fatalf("valid window rejected: %v", err)
		}

		if rng.From < 0 {
			t.Fatalf("negative lower bound %d", rng.From)
		}

		if rng.HasTo && rng.To < rng.From {
			t.Fatalf("upper bound %d below lower bound %d", rng.To, rng.From)
		}

		if rng.HasLimit && rng.Limit <= 0 {
			t.Fatalf("non-positive limit %d", rng.Limit)
		}

		if rng.EmptyCursor < 0 {
			t.Fatalf("negative empty cursor %d", rng.EmptyCursor)
		}
	})

	rapid.Check(t, func(t *rapid.T) {
		negative := rapid.Int64Range(-1_000, -1).Draw(t, "negative")

		if _, err := eventstore.SelectRange(eventstore.AfterPosition{After: negative, BatchSize: 1}); err == nil {
			t.Fatalf("negative after %d accepted", negative)
		}

		if _, err := eventstore.SelectRange(eventstore.FromPosition{From: 0, BatchSize: int(negative)}); err == nil {
			t.Fatalf("negative batch size %d accepted", negative)
		}
	})

	rapid.Check(t, func(t *rapid.T) {
		after := rapid.Int64Range(math.MaxInt64-100, math.MaxInt64).Draw(t, "after")

		rng, err := eventstore.SelectRange(eventstore.AfterPosition{After: after, BatchSize: 1})
		if after == math.MaxInt64 {
			if err == nil {
				t.Fatalf("after %d accepted although no greater position exists", after)
			}

			return
		}

		if err != nil {
			t.Fatalf("after %d rejected: %v", after, err)
		}

		if rng.From <= after {
			t.Fatalf("lower bound %d is not strictly after %d", rng.From, after)
		}
	})
}
