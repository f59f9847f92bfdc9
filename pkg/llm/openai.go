package llm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// openaiProvider generates comments through the OpenAI chat completions API
// using strict structured output.
type openaiProvider struct {
	client   *openai.Client
	configID uuid.UUID
	model    string

	maxTokens   *int
	temperature *float64
}

func newOpenAIProvider(configID uuid.UUID, apiKey, model string, maxTokens *int, temperature *float64) *openaiProvider {
	return &openaiProvider{
		client:      openai.NewClient(apiKey),
		configID:    configID,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (p *openaiProvider) Name() string       { return "openai" }
func (p *openaiProvider) Model() string      { return p.model }
func (p *openaiProvider) ConfigID() uuid.UUID { return p.configID }

func (p *openaiProvider) GenerateComment(ctx context.Context, systemPrompt, userPrompt string) (string, *int, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "comment",
				Schema: commentSchemaJSON,
				Strict: true,
			},
		},
	}
	if p.maxTokens != nil {
		req.MaxTokens = *p.maxTokens
	}
	if p.temperature != nil {
		req.Temperature = float32(*p.temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("openai returned no choices")
	}

	comment, err := parseCommentJSON(resp.Choices[0].Message.Content)
	if err != nil {
		return "", nil, err
	}
	tokens := resp.Usage.TotalTokens
	return comment, &tokens, nil
}
