package llms

import "context"

// Stream is an incremental sequence of partial generation results.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

// StreamContentChunk carries a raw content delta. Deltas accumulate: the
// cumulative result is the concatenation of every delta received so far.
type StreamContentChunk interface {
	StreamChunk
	Content() string
}

// StreamSnapshotChunk carries a cumulative partial result. Each snapshot
// replaces the previous one rather than appending to it; backends that stream
// structured partials emit these.
type StreamSnapshotChunk interface {
	StreamChunk
	Snapshot() string
}

// StreamUsageChunk carries token accounting, typically as the final chunk.
type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}
