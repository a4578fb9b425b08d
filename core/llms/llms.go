package llms

import "context"

// Responder is a backend that produces a complete response for a prompt.
type Responder interface {
	Respond(ctx context.Context, prompt string, opts ...PromptOption) (*Response, error)
}

// Streamer is a backend that produces an incremental stream of partial
// results for a prompt.
type Streamer interface {
	RespondWithStream(ctx context.Context, prompt string, opts ...PromptOption) Stream
}

// Analyzer is a backend that produces a multi-field analysis alongside the
// reply in a single pass.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string, opts ...PromptOption) (*Analysis, error)
}

// Response is a complete generation result.
type Response struct {
	Content string
	// Confidence is the backend's self-reported confidence, when supplied.
	Confidence *float64
	Usage      *Usage
}

// Analysis is a structured generation result pairing the reply with an
// assessment of the user's intent.
type Analysis struct {
	Reply           string   `json:"reply"`
	Intent          string   `json:"intent"`
	Topics          []string `json:"topics,omitempty"`
	Confidence      float64  `json:"confidence"`
	EstimatedTokens int      `json:"estimated_tokens"`
}

// Usage reports token accounting for a single call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ExchangeRole describes who authored an exchange in the history handed to a
// backend.
type ExchangeRole string

const (
	ExchangeRoleUser      ExchangeRole = "user"
	ExchangeRoleAssistant ExchangeRole = "assistant"
)

// Exchange is a single prior message handed to the backend as context. Each
// call is independent: the backend holds no conversation state of its own.
type Exchange struct {
	Role    ExchangeRole
	Content string
}
