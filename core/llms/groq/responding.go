package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/emberchat/ember-core/core/llms"
	"github.com/emberchat/ember-core/internal/utils"
	"go.opentelemetry.io/otel/attribute"
)

// Respond produces a complete response for prompt. The completion is consumed
// as a stream internally so that OnChunk callers still observe deltas, but
// only the assembled result is returned.
func (c *Client) Respond(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	options := llms.NewPromptOptions(opts...)

	messages := toMessages(options.Instructions, options.History)
	messages = append(messages, message{
		Role:    messageRoleUser,
		Content: prompt,
	})

	reqBody := requestBody{
		Model:       c.model,
		Messages:    messages,
		Stream:      true,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxResponseTokens,
	}

	resp, err := c.postCompletion(ctx, reqBody)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			logger.WarnContext(ctx, "failed to read error body", "error", readErr)
		}
		classified := classifyHTTPError(resp.StatusCode, resp.Status, body)
		span.RecordError(classified)
		span.SetAttributes(attribute.String("response.error", string(body)))
		return nil, classified
	}

	var content strings.Builder
	var usage *llms.Usage
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

		if len(chunk) == 0 {
			continue
		}
		if chunk == endMessage {
			break
		}

		var responseBody streamingResponseBody
		if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
			decodeErr := decodingError(fmt.Errorf("error unmarshalling JSON: %w", err))
			span.RecordError(decodeErr)
			return nil, decodeErr
		}

		if len(responseBody.Choices) > 0 {
			delta := responseBody.Choices[0].Delta.Content
			if delta != "" {
				content.WriteString(delta)
				if options.OnChunk != nil {
					options.OnChunk(delta)
				}
			}
		}

		if responseBody.Usage != nil {
			usage = utils.Ptr(responseBody.Usage.toUsage())
		}
	}
	if err := scanner.Err(); err != nil {
		streamErr := transportError(fmt.Errorf("error reading streamed response: %w", err))
		span.RecordError(streamErr)
		return nil, streamErr
	}

	return &llms.Response{
		Content: content.String(),
		Usage:   usage,
	}, nil
}

func (c *Client) postCompletion(ctx context.Context, reqBody requestBody) (*http.Response, error) {
	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, decodingError(fmt.Errorf("error marshalling JSON: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, transportError(fmt.Errorf("error creating HTTP request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(fmt.Errorf("error sending request: %w", err))
	}
	return resp, nil
}

type requestBody struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Role         string  `json:"role,omitempty"`
			Content      string  `json:"content,omitempty"`
			FinishReason *string `json:"finish_reason,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *usageBody `json:"usage"`
}

type usageBody struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u usageBody) toUsage() llms.Usage {
	return llms.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}
