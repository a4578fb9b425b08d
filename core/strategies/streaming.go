package strategies

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/emberchat/ember-core/core/llms"
)

// Streaming consumes an incremental stream of partial results and republishes
// the cumulative content once per received chunk.
//
// Structured backends emit snapshot chunks where each partial replaces the
// previous one; a plain persona streams raw deltas that accumulate instead.
// Both shapes finalize from whatever the last received chunk left behind.
type Streaming struct {
	backend llms.Streamer

	processing atomic.Bool

	// buffer holds the cumulative content for the in-flight call only; it is
	// reset on entry so no state leaks between turns.
	buffer strings.Builder
	last   string
}

func NewStreaming(backend llms.Streamer) *Streaming {
	return &Streaming{backend: backend}
}

func (s *Streaming) Kind() Kind         { return KindStreaming }
func (s *Streaming) IsProcessing() bool { return s.processing.Load() }

func (s *Streaming) Generate(ctx context.Context, req Request, onPartial func(string)) (*Result, error) {
	s.processing.Store(true)
	defer s.processing.Store(false)

	s.buffer.Reset()
	s.last = ""
	tokenCount := 0

	stream := s.backend.RespondWithStream(ctx, req.Input, req.promptOptions(nil)...)
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			return nil, llms.AsGenerationError(err)
		}

		switch chunk := chunk.(type) {
		case llms.StreamSnapshotChunk:
			s.last = chunk.Snapshot()
			if onPartial != nil {
				onPartial(s.last)
			}

		case llms.StreamContentChunk:
			s.buffer.WriteString(chunk.Content())
			s.last = s.buffer.String()
			if onPartial != nil {
				onPartial(s.last)
			}

		case llms.StreamUsageChunk:
			tokenCount = chunk.Usage().OutputTokens
		}
	}

	return &Result{
		Content:    s.last,
		TokenCount: tokenCount,
	}, nil
}
