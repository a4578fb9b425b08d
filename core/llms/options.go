package llms

// PromptOptions carries the generation parameters shared by all prompt
// variants.
type PromptOptions struct {
	// Instructions is the system prompt shaping the response.
	Instructions string
	// History is the prior conversation, earliest first.
	History []Exchange

	Temperature       float64
	MaxResponseTokens int

	// OnChunk is called once per streamed content delta. Only consulted by
	// backends that stream internally while exposing a complete result.
	OnChunk func(chunk string)
}

type PromptOption func(*PromptOptions)

// NewPromptOptions applies opts over defaults.
func NewPromptOptions(opts ...PromptOption) PromptOptions {
	options := PromptOptions{
		Temperature:       0.7,
		MaxResponseTokens: 1024,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithInstructions sets the system prompt. Repeating this option overwrites
// the previous instructions.
func WithInstructions(instructions string) PromptOption {
	return func(o *PromptOptions) {
		o.Instructions = instructions
	}
}

// WithHistory sets the prior conversation handed to the backend.
func WithHistory(history ...Exchange) PromptOption {
	return func(o *PromptOptions) {
		o.History = history
	}
}

func WithTemperature(temperature float64) PromptOption {
	return func(o *PromptOptions) {
		o.Temperature = temperature
	}
}

func WithMaxResponseTokens(maxResponseTokens int) PromptOption {
	return func(o *PromptOptions) {
		o.MaxResponseTokens = maxResponseTokens
	}
}

// WithChunkCallback registers a callback for streamed content deltas.
func WithChunkCallback(callback func(chunk string)) PromptOption {
	return func(o *PromptOptions) {
		o.OnChunk = callback
	}
}
