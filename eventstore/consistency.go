package eventstore

import "context"

// ConsistencyLevel selects the database node a batch read runs on.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary. A consumer that has just appended sees its own events
	// as soon as their transactions cleared the commit horizon. This is the default.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows reading from a replica. The commit horizon and the rows are always
	// taken from the same node, so replica lag only delays events.
	EventualConsistency
)

// contextKey is a private type to prevent context key collisions.
type contextKey string

// ConsistencyLevelKey is the context key used to store consistency level preferences.
const ConsistencyLevelKey contextKey = "eventstore.consistency_level"

// WithStrongConsistency returns a context that routes batch reads to the primary database.
//
// Example usage:
//
//	ctx = eventstore.WithStrongConsistency(ctx)
//	batch, err := store.ReadMessagesBatch(ctx, options)
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that allows batch reads from a replica database.
//
// This suits catch-up projections and replay tools that tolerate some delay
// in exchange for less load on the primary.
//
// Example usage:
//
//	ctx = eventstore.WithEventualConsistency(ctx)
//	batch, err := store.ReadMessagesBatch(ctx, options)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level from the context.
// Without a stored level it returns StrongConsistency.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

// String provides a string representation of ConsistencyLevel for logging and debugging.
func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
