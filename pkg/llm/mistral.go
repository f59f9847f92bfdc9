package llm

import (
	"context"
	"fmt"

	mistral "github.com/gage-technologies/mistral-go"
	"github.com/google/uuid"
)

// mistralProvider generates comments through the Mistral chat API in JSON
// mode. Mistral has no strict schema support, so the schema is enforced by
// validating the response.
type mistralProvider struct {
	client   *mistral.MistralClient
	configID uuid.UUID
	model    string

	maxTokens   *int
	temperature *float64
}

func newMistralProvider(configID uuid.UUID, apiKey, model string, maxTokens *int, temperature *float64) *mistralProvider {
	return &mistralProvider{
		client:      mistral.NewMistralClientDefault(apiKey),
		configID:    configID,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (p *mistralProvider) Name() string        { return "mistral" }
func (p *mistralProvider) Model() string       { return p.model }
func (p *mistralProvider) ConfigID() uuid.UUID { return p.configID }

func (p *mistralProvider) GenerateComment(ctx context.Context, systemPrompt, userPrompt string) (string, *int, error) {
	params := mistral.DefaultChatRequestParams
	params.ResponseFormat = mistral.ResponseFormatJsonObject
	if p.maxTokens != nil {
		params.MaxTokens = *p.maxTokens
	}
	if p.temperature != nil {
		params.Temperature = *p.temperature
	}

	// JSON mode needs the expected shape named in the prompt.
	schemaHint := fmt.Sprintf("%s\n\nAntworte ausschliesslich mit einem JSON-Objekt der Form %s.",
		systemPrompt, `{"comment": "..."}`)

	messages := []mistral.ChatMessage{
		{Role: mistral.RoleSystem, Content: schemaHint},
		{Role: mistral.RoleUser, Content: userPrompt},
	}

	resp, err := p.client.Chat(p.model, messages, &params)
	if err != nil {
		return "", nil, fmt.Errorf("mistral chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("mistral returned no choices")
	}

	comment, err := parseCommentJSON(resp.Choices[0].Message.Content)
	if err != nil {
		return "", nil, err
	}
	tokens := resp.Usage.TotalTokens
	return comment, &tokens, nil
}
