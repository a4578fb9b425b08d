package strategies

import (
	"context"
	"sync/atomic"

	"github.com/emberchat/ember-core/core/llms"
)

// Complete issues a single request and exposes only the finished result. The
// backend may still stream internally, but no partial updates escape.
type Complete struct {
	backend llms.Responder

	processing atomic.Bool
}

func NewComplete(backend llms.Responder) *Complete {
	return &Complete{backend: backend}
}

func (s *Complete) Kind() Kind         { return KindComplete }
func (s *Complete) IsProcessing() bool { return s.processing.Load() }

func (s *Complete) Generate(ctx context.Context, req Request, _ func(string)) (*Result, error) {
	s.processing.Store(true)
	defer s.processing.Store(false)

	response, err := s.backend.Respond(ctx, req.Input, req.promptOptions(nil)...)
	if err != nil {
		return nil, llms.AsGenerationError(err)
	}

	result := &Result{
		Content:    response.Content,
		Confidence: response.Confidence,
	}
	if response.Usage != nil {
		result.TokenCount = response.Usage.OutputTokens
	}
	return result, nil
}
