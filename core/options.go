package orchestration

import (
	"time"

	"github.com/emberchat/ember-core/core/llms"
	"github.com/emberchat/ember-core/core/sessions"
	"github.com/emberchat/ember-core/core/strategies"
)

// Backend bundles the generation capabilities a full orchestrator needs. Each
// call is independent; the backend holds no conversation state.
type Backend interface {
	llms.Responder
	llms.Streamer
	llms.Analyzer
}

type OrchestratorOption func(*Orchestrator)

// WithTranscriber wires a transcription source, enabling the voice recording
// subsystem. Without one, StartRecording fails.
func WithTranscriber(client Transcriber) OrchestratorOption {
	return func(o *Orchestrator) {
		o.recorder.client = client
	}
}

// WithSelectionConfig overrides the strategy recommendation tunables.
func WithSelectionConfig(config strategies.SelectionConfig) OrchestratorOption {
	return func(o *Orchestrator) {
		o.selection = config
	}
}

// WithVoiceInactivityTimeout overrides the recording watchdog timeout.
// Intended for tests.
func WithVoiceInactivityTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.recorder.inactivityTimeout = timeout
		}
	}
}

// WithStateChangedCallback registers an observer for chat-state transitions.
// The callback runs inline on internal goroutines and must not call back into
// the orchestrator.
func WithStateChangedCallback(callback func(state ChatState)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.callbacks.onStateChanged = callback
		}
	}
}

// WithPartialResponseCallback registers an observer for cumulative partial
// response updates while a turn is streaming.
func WithPartialResponseCallback(callback func(cumulative string)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.callbacks.onPartialResponse = callback
		}
	}
}

// WithMessageAppendedCallback registers an observer for every message added
// to the current session, user and assistant authored alike.
func WithMessageAppendedCallback(callback func(message sessions.Message)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.callbacks.onMessageAppended = callback
		}
	}
}

// WithInterimTranscriptCallback registers an observer for incremental
// transcript updates while recording.
func WithInterimTranscriptCallback(callback func(transcript string)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.callbacks.onInterimTranscript = callback
		}
	}
}

// WithFinalTranscriptCallback registers an observer for the final transcript
// of a recording that stopped without an explicit StopRecording call
// (watchdog timeout or recognition failure).
func WithFinalTranscriptCallback(callback func(transcript string)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.callbacks.onFinalTranscript = callback
		}
	}
}

// WithTitleChangedCallback registers an observer for session title updates.
func WithTitleChangedCallback(callback func(sessionID string, title string)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.callbacks.onTitleChanged = callback
		}
	}
}

type callbacks struct {
	onStateChanged      func(state ChatState)
	onPartialResponse   func(cumulative string)
	onMessageAppended   func(message sessions.Message)
	onInterimTranscript func(transcript string)
	onFinalTranscript   func(transcript string)
	onTitleChanged      func(sessionID string, title string)
}

func noopCallbacks() callbacks {
	return callbacks{
		onStateChanged:      func(ChatState) {},
		onPartialResponse:   func(string) {},
		onMessageAppended:   func(sessions.Message) {},
		onInterimTranscript: func(string) {},
		onFinalTranscript:   func(string) {},
		onTitleChanged:      func(string, string) {},
	}
}
