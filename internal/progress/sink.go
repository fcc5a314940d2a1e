package progress

import "context"

// Sink consumes batches of progress events. The hub calls each sink from a
// single flushing goroutine; sinks needing concurrency safety beyond that
// (e.g. serving snapshots) guard their own state.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}
