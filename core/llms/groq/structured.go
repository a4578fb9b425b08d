package groq

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"context"

	"github.com/emberchat/ember-core/core/llms"
	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel/attribute"
)

const analysisInstructions = `Analyze the user's message and respond to it.
Fill every field: reply with your answer, intent with a short label for what
the user wants, topics with the subjects touched on, confidence with how
certain you are of the intent (0 to 1), and estimated_tokens with a rough
token count for the reply.`

// Analyze produces a structured analysis-plus-reply in a single pass using a
// JSON-schema constrained completion.
func (c *Client) Analyze(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Analysis, error) {
	ctx, span := tracer.Start(ctx, "prompt llm structured")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	options := llms.NewPromptOptions(opts...)

	instructions := options.Instructions
	if instructions != "" {
		instructions += "\n\n"
	}
	instructions += analysisInstructions

	messages := toMessages(instructions, options.History)
	messages = append(messages, message{
		Role:    messageRoleUser,
		Content: prompt,
	})

	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(llms.Analysis{})

	reqBody := schemaRequestBody{
		Model:       c.model,
		Messages:    messages,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxResponseTokens,
		ResponseFormat: &chatResponseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   "Analysis",
				Schema: *schema,
				Strict: true,
			},
		},
	}

	schemaString, _ := schema.MarshalJSON()
	span.SetAttributes(attribute.String("request.schema", string(schemaString)))

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		decodeErr := decodingError(fmt.Errorf("error marshalling JSON: %w", err))
		span.RecordError(decodeErr)
		return nil, decodeErr
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(string(requestBodyBytes)))
	if err != nil {
		transportErr := transportError(fmt.Errorf("error creating HTTP request: %w", err))
		span.RecordError(transportErr)
		return nil, transportErr
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		transportErr := transportError(fmt.Errorf("error sending request: %w", err))
		span.RecordError(transportErr)
		return nil, transportErr
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

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		transportErr := transportError(fmt.Errorf("error reading response body: %w", err))
		span.RecordError(transportErr)
		return nil, transportErr
	}

	var responseBody schemaResponseBody
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		decodeErr := decodingError(fmt.Errorf("error unmarshalling response: %w", err))
		span.RecordError(decodeErr)
		return nil, decodeErr
	}
	if len(responseBody.Choices) == 0 {
		decodeErr := decodingError(fmt.Errorf("response contained no choices"))
		span.RecordError(decodeErr)
		return nil, decodeErr
	}

	content := responseBody.Choices[0].Message.Content
	// Some models wrap the JSON payload in a markdown fence.
	if split := strings.Split(content, "```"); len(split) > 1 {
		content = split[1]
	}

	var analysis llms.Analysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		decodeErr := decodingError(fmt.Errorf("error unmarshalling analysis: %w", err))
		span.RecordError(decodeErr)
		return nil, decodeErr
	}

	if analysis.EstimatedTokens == 0 && responseBody.Usage != nil {
		analysis.EstimatedTokens = responseBody.Usage.CompletionTokens
	}

	return &analysis, nil
}

type schemaRequestBody struct {
	Model          string              `json:"model"`
	Messages       []message           `json:"messages"`
	Temperature    float64             `json:"temperature,omitempty"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Schema      jsonschema.Schema `json:"schema"`
	Strict      bool              `json:"strict"`
}

type schemaResponseBody struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"message"`
	} `json:"choices"`
	Usage *usageBody `json:"usage"`
}
