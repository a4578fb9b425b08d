// Package strategies provides the interchangeable algorithms for producing a
// reply from the generation backend, plus the pure selection rules that pick
// one for a turn.
package strategies

import (
	"context"
	"strings"

	"github.com/emberchat/ember-core/core/llms"
	"github.com/emberchat/ember-core/core/personas"
)

type Kind string

const (
	KindComplete   Kind = "complete"
	KindStreaming  Kind = "streaming"
	KindStructured Kind = "structured"
)

// Strategy generates a reply for one turn. Implementations reset any partial
// state at the start of every call and report IsProcessing true exactly for
// the span of a Generate call.
type Strategy interface {
	Kind() Kind
	IsProcessing() bool
	// Generate produces the reply for input. onPartial, when non-nil, is
	// invoked once per received chunk with the cumulative content so far.
	// Every failure is translated into a *llms.GenerationError.
	Generate(ctx context.Context, req Request, onPartial func(cumulative string)) (*Result, error)
}

// Request carries the per-turn parameters handed to a strategy.
type Request struct {
	Input        string
	Instructions string
	// History is the prior conversation, earliest first.
	History []llms.Exchange

	Temperature       float64
	MaxResponseTokens int
}

// Result is the finalized output of one strategy call. The coordinator
// attaches timing and fills in a token estimate when TokenCount is zero.
type Result struct {
	Content    string
	Confidence *float64
	TokenCount int
}

// GenerationContext is the ephemeral per-turn view the selection rules run
// over. It is derived from the input, persona and settings and never
// persisted.
type GenerationContext struct {
	Input            string
	Persona          personas.Persona
	MessageCount     int
	StreamingEnabled bool
}

// Selection defaults. These mirror the established heuristics and carry no
// deeper intent; they are configurable rather than load-bearing.
var DefaultStructuredKeywords = []string{"analyze", "compare", "explain", "summarize"}

const DefaultStreamingThreshold = 50

// SelectionConfig holds the tunables for strategy recommendation.
type SelectionConfig struct {
	StructuredKeywords []string
	StreamingThreshold int
}

func DefaultSelectionConfig() SelectionConfig {
	return SelectionConfig{
		StructuredKeywords: DefaultStructuredKeywords,
		StreamingThreshold: DefaultStreamingThreshold,
	}
}

// Recommend picks a strategy kind for the turn. The rules are deterministic
// and order-independent: structured-intent keywords win, then streaming for
// long inputs when enabled, complete otherwise. A plain persona never routes
// to the structured strategy: it produces free-form text, not the analysis
// schema.
func (c SelectionConfig) Recommend(genCtx GenerationContext) Kind {
	if !genCtx.Persona.Plain {
		input := strings.ToLower(genCtx.Input)
		for _, keyword := range c.StructuredKeywords {
			if strings.Contains(input, keyword) {
				return KindStructured
			}
		}
	}

	if genCtx.StreamingEnabled && len(genCtx.Input) > c.StreamingThreshold {
		return KindStreaming
	}

	return KindComplete
}

func (r Request) promptOptions(onChunk func(string)) []llms.PromptOption {
	opts := []llms.PromptOption{
		llms.WithInstructions(r.Instructions),
		llms.WithHistory(r.History...),
		llms.WithTemperature(r.Temperature),
		llms.WithMaxResponseTokens(r.MaxResponseTokens),
	}
	if onChunk != nil {
		opts = append(opts, llms.WithChunkCallback(onChunk))
	}
	return opts
}
