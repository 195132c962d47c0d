package providerapi

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GoogleClient issues tiny completions against the Gemini API for
// upstream cost reconciliation.
type GoogleClient struct {
	apiKey string
}

// NewGoogleClient binds apiKey via construction; it is never read from
// ambient state.
func NewGoogleClient(apiKey string) *GoogleClient {
	return &GoogleClient{apiKey: apiKey}
}

func (c *GoogleClient) TinyCompletion(ctx context.Context, modelID string) (*UpstreamUsage, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	content := []*genai.Content{{Parts: []*genai.Part{{Text: "hi"}}}}

	result, err := client.Models.GenerateContent(ctx, modelID, content, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini tiny completion: %w", err)
	}

	if result.UsageMetadata == nil {
		return nil, fmt.Errorf("gemini response carried no usage metadata")
	}

	return &UpstreamUsage{
		PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
	}, nil
}
