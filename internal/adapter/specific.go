package adapter

import (
	"context"
	"strings"

	"github.com/g2scv/llm-cost/internal/models"
)

// fallbackEntry is a hardcoded published list price, consulted by the
// provider_site source for each provider linked to a model when
// provider scraping is enabled.
type fallbackEntry struct {
	promptPerToken     string
	completionPerToken string
	sourceURL          string
}

// specificAdapter is the shared shape for every well-known provider:
// a small hardcoded price table consulted by substring match on the
// bare model name (the longest matching key wins), falling through to
// the generic web adapter when nothing matches.
type specificAdapter struct {
	providerSlug string
	fallback     map[string]fallbackEntry
	generic      ProviderAdapter
}

// Resolve consults the hardcoded fallback table first. When it hits, it
// also queries the generic web adapter and merges the two via the
// "highest price wins" rule rather than short-circuiting, so a live
// price increase is never masked by a stale hardcoded figure. When the
// table misses entirely, it falls through to the generic adapter alone.
func (a *specificAdapter) Resolve(ctx context.Context, providerSlug, modelSlug string) (*models.PricingResult, error) {
	name := modelNameOf(modelSlug)
	matchKey := ""
	for key := range a.fallback {
		if strings.Contains(name, key) && len(key) > len(matchKey) {
			matchKey = key
		}
	}
	if matchKey != "" {
		entry := a.fallback[matchKey]
		prompt := entry.promptPerToken
		completion := entry.completionPerToken
		fallbackResult := &models.PricingResult{
			PromptPerToken:     &prompt,
			CompletionPerToken: &completion,
			SourceURL:          entry.sourceURL,
		}

		webResult, err := a.generic.Resolve(ctx, providerSlug, modelSlug)
		if err != nil || webResult == nil {
			return fallbackResult, nil
		}
		return MergeHighest([]*models.PricingResult{fallbackResult, webResult}), nil
	}
	return a.generic.Resolve(ctx, providerSlug, modelSlug)
}

// modelNameOf strips the namespace/ prefix, since hardcoded tables are
// keyed by the bare model name.
func modelNameOf(modelSlug string) string {
	if idx := strings.Index(modelSlug, "/"); idx >= 0 {
		return modelSlug[idx+1:]
	}
	return modelSlug
}

// NewAnthropicAdapter builds the Anthropic specific adapter. The
// fallback table carries current published per-token list prices;
// anything not listed here falls through to generic.
func NewAnthropicAdapter(generic ProviderAdapter) ProviderAdapter {
	return &specificAdapter{
		providerSlug: "anthropic",
		generic:      generic,
		fallback: map[string]fallbackEntry{
			"claude-opus":   {"0.000015", "0.000075", "https://anthropic.com/pricing"},
			"claude-sonnet": {"0.000003", "0.000015", "https://anthropic.com/pricing"},
			"claude-haiku":  {"0.0000008", "0.000004", "https://anthropic.com/pricing"},
		},
	}
}

// NewOpenAIAdapter builds the OpenAI specific adapter.
func NewOpenAIAdapter(generic ProviderAdapter) ProviderAdapter {
	return &specificAdapter{
		providerSlug: "openai",
		generic:      generic,
		fallback: map[string]fallbackEntry{
			"gpt-4o-mini": {"0.00000015", "0.0000006", "https://openai.com/api/pricing"},
			"gpt-4o":      {"0.0000025", "0.00001", "https://openai.com/api/pricing"},
			"o1-mini":     {"0.0000011", "0.0000044", "https://openai.com/api/pricing"},
		},
	}
}

// NewGoogleAdapter builds the Gemini specific adapter.
func NewGoogleAdapter(generic ProviderAdapter) ProviderAdapter {
	return &specificAdapter{
		providerSlug: "google",
		generic:      generic,
		fallback: map[string]fallbackEntry{
			"gemini-1.5-pro":   {"0.00000125", "0.000005", "https://ai.google.dev/pricing"},
			"gemini-1.5-flash": {"0.000000075", "0.0000003", "https://ai.google.dev/pricing"},
			"gemini-2.0-flash": {"0.0000001", "0.0000004", "https://ai.google.dev/pricing"},
		},
	}
}
