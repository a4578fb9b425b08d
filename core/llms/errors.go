package llms

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of generation failure categories every backend
// client must map its own failures into before they leave the llms boundary.
type ErrorKind string

const (
	ErrorKindContextWindowExceeded       ErrorKind = "context_window_exceeded"
	ErrorKindAssetsUnavailable           ErrorKind = "assets_unavailable"
	ErrorKindDecodingFailure             ErrorKind = "decoding_failure"
	ErrorKindGuardrailViolation          ErrorKind = "guardrail_violation"
	ErrorKindUnsupportedGuide            ErrorKind = "unsupported_guide"
	ErrorKindUnsupportedLanguageOrLocale ErrorKind = "unsupported_language_or_locale"
	ErrorKindRateLimited                 ErrorKind = "rate_limited"
	ErrorKindSessionInitializationFailed ErrorKind = "session_initialization_failed"
	ErrorKindOther                       ErrorKind = "other"
)

// GenerationError wraps a backend failure with its taxonomy kind.
type GenerationError struct {
	kind ErrorKind
	err  error
}

func NewGenerationError(kind ErrorKind, err error) *GenerationError {
	return &GenerationError{kind: kind, err: err}
}

func Errorf(kind ErrorKind, format string, args ...any) *GenerationError {
	return &GenerationError{kind: kind, err: fmt.Errorf(format, args...)}
}

func (e *GenerationError) Kind() ErrorKind {
	if e == nil {
		return ErrorKindOther
	}
	return e.kind
}

func (e *GenerationError) Error() string {
	if e.err == nil {
		return string(e.kind)
	}
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *GenerationError) Unwrap() error { return e.err }

// AsGenerationError normalizes err into a GenerationError. Errors that do not
// already carry a kind are classified as ErrorKindOther.
func AsGenerationError(err error) *GenerationError {
	if err == nil {
		return nil
	}

	var generationErr *GenerationError
	if errors.As(err, &generationErr) {
		return generationErr
	}

	return &GenerationError{kind: ErrorKindOther, err: err}
}

// KindOf reports the taxonomy kind of err, ErrorKindOther when untyped.
func KindOf(err error) ErrorKind {
	return AsGenerationError(err).Kind()
}
