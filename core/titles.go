package orchestration

import (
	"context"
	"strings"

	"github.com/emberchat/ember-core/core/llms"
	"github.com/emberchat/ember-core/core/sessions"
)

const (
	// titleConfidenceFloor is the minimum backend confidence at which an AI
	// title replaces the keyword fallback.
	titleConfidenceFloor = 0.5
	titleRuneLimit       = 50
	// titleContextMessages caps how many user and assistant messages each
	// feed the title prompt.
	titleContextMessages = 3
)

const titleInstructions = "Produce a short 3-6 word title summarizing the " +
	"conversation so far. Reply with only the title, no quotes and no " +
	"trailing punctuation."

// scheduleTitleTask starts a detached title generation for the current
// session. At most one task is in flight per session: a newly scheduled task
// cancels its predecessor, and a generation counter guards the commit so a
// cancelled task can never write. The task never blocks message display, and
// is cancelled only by a successor or a session change; Close drains it so a
// shutdown cannot swallow an earned title.
func (o *Orchestrator) scheduleTitleTask() {
	o.mu.Lock()
	if o.session.TitleGenerated {
		o.mu.Unlock()
		return
	}
	o.cancelTitleTaskLocked()
	generation := o.titleGeneration
	ctx, cancel := context.WithCancel(context.Background())
	o.titleCancel = cancel

	sessionID := o.session.ID
	prompt := titlePrompt(o.session.Messages)
	o.mu.Unlock()

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		defer cancel()
		o.generateTitle(ctx, generation, sessionID, prompt)
	}()
}

func (o *Orchestrator) generateTitle(ctx context.Context, generation uint64, sessionID, prompt string) {
	ctx, span := tracer.Start(ctx, "generate title")
	defer span.End()

	title := ""
	analysis, err := o.backend.Analyze(ctx, prompt,
		llms.WithInstructions(titleInstructions),
		llms.WithTemperature(0.3),
		llms.WithMaxResponseTokens(64),
	)
	if err != nil {
		span.RecordError(err)
		logger.Debug("title generation failed, keeping keyword title", "session", sessionID, "error", err)
	} else if analysis.Confidence >= titleConfidenceFloor {
		title = strings.TrimSpace(analysis.Reply)
	}
	if title == "" {
		// Low confidence or failure: the keyword fallback set at submit time
		// stands, and a later session may retry.
		return
	}
	title = sessions.TruncateTitle(title, titleRuneLimit)

	o.mu.Lock()
	if ctx.Err() != nil || generation != o.titleGeneration || o.session.ID != sessionID {
		o.mu.Unlock()
		return
	}
	o.session.Title = title
	o.session.TitleGenerated = true
	o.titleCancel = nil
	o.mu.Unlock()

	o.callbacks.onTitleChanged(sessionID, title)
	o.scheduleSave()
}

// titlePrompt interleaves up to the first three user and first three
// assistant messages, in timestamp order, into the title context.
func titlePrompt(messages []sessions.Message) string {
	userKept, assistantKept := 0, 0
	lines := []string{}
	for _, message := range messages {
		if message.IsUser {
			if userKept == titleContextMessages {
				continue
			}
			userKept++
			lines = append(lines, "User: "+message.Content)
		} else {
			if assistantKept == titleContextMessages {
				continue
			}
			assistantKept++
			lines = append(lines, "Assistant: "+message.Content)
		}
	}
	return strings.Join(lines, "\n")
}
