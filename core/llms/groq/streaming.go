package groq

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"context"

	"github.com/emberchat/ember-core/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RespondWithStream prepares a streamed completion for prompt. The request is
// not sent until the returned stream's Chunks iterator is consumed.
func (c *Client) RespondWithStream(_ context.Context, prompt string, opts ...llms.PromptOption) llms.Stream {
	options := llms.NewPromptOptions(opts...)

	messages := toMessages(options.Instructions, options.History)
	if prompt != "" {
		messages = append(messages, message{
			Role:    messageRoleUser,
			Content: prompt,
		})
	}

	return &Stream{
		client:      c,
		messages:    messages,
		temperature: options.Temperature,
		maxTokens:   options.MaxResponseTokens,
	}
}

type Stream struct {
	client *Client

	messages    []message
	temperature float64
	maxTokens   int
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.client.model))

		reqBody := requestBody{
			Model:       s.client.model,
			Messages:    s.messages,
			Stream:      true,
			Temperature: s.temperature,
			MaxTokens:   s.maxTokens,
		}

		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.client.postCompletion(ctx, reqBody)
		if err != nil {
			span.RecordError(err)
			yield(nil, err)
			return
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
			yield(nil, classified)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			setRequestToFirstTokenTime(span)

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
				if !yield(nil, decodeErr) {
					return
				}
				continue
			}

			var finishReason *string
			if len(responseBody.Choices) > 0 {
				delta := responseBody.Choices[0].Delta

				if delta.FinishReason != nil {
					finishReason = delta.FinishReason
				}

				if delta.Content != "" {
					if !yield(contentChunk{
						finishReason: finishReason,
						content:      delta.Content,
					}, nil) {
						return
					}
				}
			}

			if responseBody.Usage != nil {
				span.SetAttributes(attribute.Int("usage.input", responseBody.Usage.PromptTokens))
				span.SetAttributes(attribute.Int("usage.output", responseBody.Usage.CompletionTokens))
				span.SetAttributes(attribute.Int("usage.total", responseBody.Usage.TotalTokens))

				if !yield(usageChunk{
					finishReason: finishReason,
					usage:        responseBody.Usage.toUsage(),
				}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			streamErr := transportError(fmt.Errorf("error reading streamed response: %w", err))
			span.RecordError(streamErr)
			yield(nil, streamErr)
			return
		}
	}
}

type contentChunk struct {
	finishReason *string
	content      string
}

func (c contentChunk) FinishReason() *string { return c.finishReason }
func (c contentChunk) Content() string       { return c.content }

type usageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (c usageChunk) FinishReason() *string { return c.finishReason }
func (c usageChunk) Usage() llms.Usage     { return c.usage }
