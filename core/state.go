package orchestration

// StateKind enumerates the closed set of chat states. Exactly one state is
// active at any instant.
type StateKind string

const (
	StateIdle           StateKind = "idle"
	StateThinking       StateKind = "thinking"
	StateStreaming      StateKind = "streaming"
	StateVoiceListening StateKind = "voiceListening"
	StateError          StateKind = "error"
)

// ChatState is the orchestrator's externally observable state. Reason is set
// only for StateError.
type ChatState struct {
	Kind   StateKind
	Reason string
}

func idleState() ChatState     { return ChatState{Kind: StateIdle} }
func thinkingState() ChatState { return ChatState{Kind: StateThinking} }

func errorState(reason string) ChatState {
	return ChatState{Kind: StateError, Reason: reason}
}

// acceptsSubmission reports whether a user submission may start a turn in
// this state. Turns are allowed from Idle and from the blocking Error state,
// where a successful turn is the recovery path.
func (s ChatState) acceptsSubmission() bool {
	return s.Kind == StateIdle || s.Kind == StateError
}
