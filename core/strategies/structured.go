package strategies

import (
	"context"
	"sync/atomic"

	"github.com/emberchat/ember-core/core/llms"
	"github.com/emberchat/ember-core/internal/utils"
)

// Structured performs a one-pass analysis-plus-response generation and
// carries the backend's intent confidence and token estimate through to the
// finalized result.
type Structured struct {
	backend llms.Analyzer

	processing atomic.Bool
}

func NewStructured(backend llms.Analyzer) *Structured {
	return &Structured{backend: backend}
}

func (s *Structured) Kind() Kind         { return KindStructured }
func (s *Structured) IsProcessing() bool { return s.processing.Load() }

func (s *Structured) Generate(ctx context.Context, req Request, onPartial func(string)) (*Result, error) {
	s.processing.Store(true)
	defer s.processing.Store(false)

	analysis, err := s.backend.Analyze(ctx, req.Input, req.promptOptions(nil)...)
	if err != nil {
		return nil, llms.AsGenerationError(err)
	}

	if onPartial != nil && analysis.Reply != "" {
		onPartial(analysis.Reply)
	}

	return &Result{
		Content:    analysis.Reply,
		Confidence: utils.Ptr(analysis.Confidence),
		TokenCount: analysis.EstimatedTokens,
	}, nil
}
