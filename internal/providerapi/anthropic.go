package providerapi

import (
	"context"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient issues tiny completions against Anthropic's API for
// upstream cost reconciliation.
type AnthropicClient struct {
	apiKey string
}

// NewAnthropicClient binds apiKey via construction; it is never read
// from ambient state.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{apiKey: apiKey}
}

func (c *AnthropicClient) TinyCompletion(ctx context.Context, modelID string) (*UpstreamUsage, error) {
	client := anthropic.NewClient(option.WithAPIKey(c.apiKey))

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{{
			Content: []anthropic.ContentBlockParamUnion{{
				OfText: &anthropic.TextBlockParam{Text: "hi"},
			}},
			Role: anthropic.MessageParamRoleUser,
		}},
		Model: anthropic.Model(modelID),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic tiny completion: %w", err)
	}

	return &UpstreamUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}
