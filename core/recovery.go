package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/emberchat/ember-core/internal/utils"

	"github.com/emberchat/ember-core/core/llms"
	"github.com/emberchat/ember-core/core/personas"
	"github.com/emberchat/ember-core/core/sessions"
)

// contextRecoveryKeep is how many trailing messages survive a context-window
// recovery.
const contextRecoveryKeep = 5

const contextTrimmedNotice = "This conversation grew too long for me to keep " +
	"all of it in mind, so I've trimmed it down to the most recent messages. " +
	"We can pick up right from here."

const friendlyConfidence = 0.9

const friendlyRewriteInstructions = "\n\nSomething went wrong on your side " +
	"while replying. Rewrite the technical error below as a warm, first-person " +
	"message to the user, staying in character. Briefly suggest what they " +
	"could try next. Do not include technical jargon or error codes."

// fallbackMessages is the static per-kind table used when the friendly
// rewrite call itself fails.
var fallbackMessages = map[llms.ErrorKind]string{
	llms.ErrorKindContextWindowExceeded: contextTrimmedNotice,
	llms.ErrorKindAssetsUnavailable: "I can't reach the part of me that " +
		"answers right now. Give me a moment and try again.",
	llms.ErrorKindDecodingFailure: "I lost my train of thought while putting " +
		"that answer together. Could you ask me again?",
	llms.ErrorKindGuardrailViolation: "I can't help with that kind of " +
		"content, but I'm happy to talk about something else.",
	llms.ErrorKindUnsupportedGuide: "I couldn't answer in the format that " +
		"was asked for. Try rephrasing your request.",
	llms.ErrorKindUnsupportedLanguageOrLocale: "I had trouble with the " +
		"language of that request. Could you try it another way?",
	llms.ErrorKindRateLimited: "I'm getting a lot of requests right now. " +
		"Give me a few seconds and ask again.",
	llms.ErrorKindSessionInitializationFailed: "I couldn't get set up to " +
		"answer. Check the connection settings and try again.",
	llms.ErrorKindOther: "Something unexpected tripped me up. Let's try that " +
		"again.",
}

// recoverTurn absorbs an in-turn generation failure so the session stays
// usable. Context-window overflow is recovered locally by truncation; every
// other kind becomes a conversational assistant message, first through an
// in-character rewrite and then through the static fallback table. The state
// always returns to Idle — in-turn failures never block.
func (o *Orchestrator) recoverTurn(ctx context.Context, genErr error) {
	kind := llms.KindOf(genErr)
	logger.Warn("turn failed", "kind", string(kind), "error", genErr)

	if kind == llms.ErrorKindContextWindowExceeded {
		o.recoverContextWindow()
		return
	}

	content, confidence := o.friendlyMessage(ctx, kind, genErr)
	message := sessions.NewMessage(content, false)
	if confidence != nil {
		message.Metadata = &sessions.MessageMetadata{Confidence: confidence}
	}

	o.mu.Lock()
	o.session.Messages = append(o.session.Messages, message)
	o.setStateLocked(idleState())
	o.mu.Unlock()

	o.callbacks.onMessageAppended(message)
	o.scheduleSave()
}

// recoverContextWindow truncates the in-memory list to the most recent
// messages and appends a system-authored notice. History truncation also
// resets what the stateless backend sees, the equivalent of discarding a
// backend session.
func (o *Orchestrator) recoverContextWindow() {
	notice := sessions.NewMessage(contextTrimmedNotice, false)

	o.mu.Lock()
	if len(o.session.Messages) > contextRecoveryKeep {
		trimmed := o.session.Messages[len(o.session.Messages)-contextRecoveryKeep:]
		o.session.Messages = append([]sessions.Message{}, trimmed...)
	}
	o.session.Messages = append(o.session.Messages, notice)
	o.setStateLocked(idleState())
	o.mu.Unlock()

	o.callbacks.onMessageAppended(notice)
	o.scheduleSave()
}

// friendlyMessage asks the backend to rewrite the failure in character,
// falling back to the static table when the secondary call fails too.
func (o *Orchestrator) friendlyMessage(ctx context.Context, kind llms.ErrorKind, genErr error) (string, *float64) {
	o.mu.Lock()
	persona := personas.Get(o.session.Persona)
	o.mu.Unlock()

	response, err := o.backend.Respond(ctx,
		fmt.Sprintf("The error was: %v", genErr),
		llms.WithInstructions(persona.Instructions+friendlyRewriteInstructions),
		llms.WithTemperature(persona.Temperature),
		llms.WithMaxResponseTokens(256),
	)
	if err == nil && strings.TrimSpace(response.Content) != "" {
		return strings.TrimSpace(response.Content), utils.Ptr(friendlyConfidence)
	}

	fallback, ok := fallbackMessages[kind]
	if !ok {
		fallback = fallbackMessages[llms.ErrorKindOther]
	}
	return fallback, nil
}
