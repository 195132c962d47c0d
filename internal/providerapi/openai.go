package providerapi

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient issues tiny completions against OpenAI's API for
// upstream cost reconciliation.
type OpenAIClient struct {
	apiKey string
}

// NewOpenAIClient binds apiKey via construction; it is never read
// from ambient state.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{apiKey: apiKey}
}

func (c *OpenAIClient) TinyCompletion(ctx context.Context, modelID string) (*UpstreamUsage, error) {
	client := openai.NewClient(option.WithAPIKey(c.apiKey))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("hi"),
		},
		Model:     openai.ChatModel(modelID),
		MaxTokens: openai.Int(1),
	})
	if err != nil {
		return nil, fmt.Errorf("openai tiny completion: %w", err)
	}

	return &UpstreamUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
