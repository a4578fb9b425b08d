package orchestration

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/emberchat/ember-core/internal/utils"

	"github.com/emberchat/ember-core/core/sessions"
	"github.com/emberchat/ember-core/core/strategies"
)

// generateTurn runs one turn end to end: pick a strategy, generate, finalize
// the assistant message with metadata, return to Idle, and schedule the
// persistence write plus, on the first user turn, the title task. Failures go
// through the recovery policy and never leave the turn hanging.
func (o *Orchestrator) generateTurn(ctx context.Context, genCtx strategies.GenerationContext, req strategies.Request, firstTurn bool) {
	ctx, span := tracer.Start(ctx, "generate turn",
		trace.WithAttributes(attribute.Int("message_count", genCtx.MessageCount)))
	defer span.End()

	kind := o.selection.Recommend(genCtx)
	span.SetAttributes(attribute.String("strategy", string(kind)))
	strategy := o.strategyFor(kind)

	started := time.Now()
	result, err := strategy.Generate(ctx, req, o.publishPartial)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.recoverTurn(ctx, err)
		return
	}

	message := sessions.NewMessage(result.Content, false)
	metadata := &sessions.MessageMetadata{
		ProcessingTime: utils.Ptr(time.Since(started).Seconds()),
		Confidence:     result.Confidence,
	}
	tokens := result.TokenCount
	if tokens == 0 {
		tokens = estimateTokens(result.Content)
	}
	metadata.TokenCount = utils.Ptr(tokens)
	message.Metadata = metadata

	o.mu.Lock()
	o.session.Messages = append(o.session.Messages, message)
	o.lastError = nil
	o.setStateLocked(idleState())
	o.mu.Unlock()

	o.callbacks.onMessageAppended(message)

	o.scheduleSave()
	if firstTurn {
		o.scheduleTitleTask()
	}
}

func (o *Orchestrator) strategyFor(kind strategies.Kind) strategies.Strategy {
	switch kind {
	case strategies.KindStreaming:
		return strategies.NewStreaming(o.backend)
	case strategies.KindStructured:
		return strategies.NewStructured(o.backend)
	default:
		return strategies.NewComplete(o.backend)
	}
}

// publishPartial observes cumulative partial content from an incremental
// strategy. The first non-empty chunk drives Thinking → Streaming.
func (o *Orchestrator) publishPartial(cumulative string) {
	if strings.TrimSpace(cumulative) == "" {
		return
	}

	o.mu.Lock()
	if o.state.Kind == StateThinking {
		o.setStateLocked(ChatState{Kind: StateStreaming})
	}
	o.mu.Unlock()

	o.callbacks.onPartialResponse(cumulative)
}
