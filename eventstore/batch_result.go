package eventstore

// BatchResult is the outcome of one batch read.
//
// AreEventsLeft is a heuristic: it is true when the batch was cut by its limit.
// Only a follow-up read with AfterPosition{After: CurrentGlobalPosition} confirms whether more events exist.
type BatchResult struct {
	CurrentGlobalPosition GlobalPositionInt
	Messages              ReadEvents
	AreEventsLeft         bool
}

// AssembleBatch derives the cursor and the continuation flag from the mapped events, in the order they were produced.
func AssembleBatch(rng NormalizedRange, messages ReadEvents) BatchResult {
	if messages == nil {
		messages = ReadEvents{}
	}

	currentGlobalPosition := rng.EmptyCursor
	if len(messages) > 0 {
		currentGlobalPosition = messages[len(messages)-1].Metadata.GlobalPosition
	}

	return BatchResult{
		CurrentGlobalPosition: currentGlobalPosition,
		Messages:              messages,
		AreEventsLeft:         rng.HasLimit && len(messages) == rng.Limit,
	}
}
