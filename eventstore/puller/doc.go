// Package puller provides BatchPuller, a consumer loop that follows one partition of the event log
// in commit order and optionally stores its cursor in an eventstore.CheckpointStore.
package puller
