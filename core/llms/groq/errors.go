package groq

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/emberchat/ember-core/core/llms"
)

type errorResponseBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// classifyHTTPError maps a non-OK completion response onto the shared
// generation error taxonomy.
func classifyHTTPError(statusCode int, status string, body []byte) *llms.GenerationError {
	var parsed errorResponseBody
	// Unparseable bodies still classify by status code alone.
	_ = json.Unmarshal(body, &parsed)

	code := strings.ToLower(parsed.Error.Code)
	message := strings.ToLower(parsed.Error.Message)

	kind := llms.ErrorKindOther
	switch {
	case statusCode == http.StatusTooManyRequests:
		kind = llms.ErrorKindRateLimited
	case statusCode == http.StatusRequestEntityTooLarge,
		strings.Contains(code, "context_length"),
		strings.Contains(message, "context length"),
		strings.Contains(message, "context window"):
		kind = llms.ErrorKindContextWindowExceeded
	case strings.Contains(code, "content_filter"),
		strings.Contains(message, "content management policy"),
		strings.Contains(message, "flagged"):
		kind = llms.ErrorKindGuardrailViolation
	case strings.Contains(code, "model_not_found"),
		statusCode == http.StatusServiceUnavailable,
		statusCode == http.StatusNotFound:
		kind = llms.ErrorKindAssetsUnavailable
	case strings.Contains(code, "response_format"),
		strings.Contains(message, "json_schema"),
		strings.Contains(message, "response_format"):
		kind = llms.ErrorKindUnsupportedGuide
	case strings.Contains(code, "unsupported_language"),
		strings.Contains(message, "language"):
		kind = llms.ErrorKindUnsupportedLanguageOrLocale
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		kind = llms.ErrorKindSessionInitializationFailed
	}

	if parsed.Error.Message != "" {
		return llms.Errorf(kind, "non-OK HTTP status %s: %s", status, parsed.Error.Message)
	}
	return llms.Errorf(kind, "non-OK HTTP status: %s", status)
}

func decodingError(err error) *llms.GenerationError {
	return llms.NewGenerationError(llms.ErrorKindDecodingFailure, err)
}

func transportError(err error) *llms.GenerationError {
	return llms.NewGenerationError(llms.ErrorKindOther, err)
}

func initializationError(err error) *llms.GenerationError {
	return llms.NewGenerationError(llms.ErrorKindSessionInitializationFailed, err)
}
