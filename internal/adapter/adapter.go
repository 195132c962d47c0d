// Package adapter implements the provider-adapter registry: one
// specific resolver per well-known provider, backed by a generic
// web-search fallback for everyone else. Credentials are always bound
// via constructor, never read from ambient process state.
package adapter

import (
	"context"

	"github.com/g2scv/llm-cost/internal/models"
)

// ProviderAdapter resolves a (provider, model) pair to a PricingResult.
// Implementations must be safe for concurrent use.
type ProviderAdapter interface {
	Resolve(ctx context.Context, providerSlug, modelSlug string) (*models.PricingResult, error)
}

// Registry holds every registered specific adapter plus the generic
// fallback, and selects between them by provider slug.
type Registry struct {
	specific map[string]ProviderAdapter
	generic  ProviderAdapter
}

// NewRegistry builds the registry with every known specific adapter
// registered, plus a generic web adapter scoped to trustedDomains and
// bound to webSearchKey (which may be empty — the generic adapter then
// resolves nothing, and only the specific adapters' hardcoded fallback
// tables yield prices).
func NewRegistry(webSearchKey string, trustedDomains []string) *Registry {
	generic := NewGenericWebAdapter(webSearchKey, trustedDomains)

	return &Registry{
		specific: map[string]ProviderAdapter{
			"anthropic": NewAnthropicAdapter(generic),
			"openai":    NewOpenAIAdapter(generic),
			"google":    NewGoogleAdapter(generic),
		},
		generic: generic,
	}
}

// Get returns the specific adapter registered for providerSlug, or the
// generic fallback when none is registered.
func (r *Registry) Get(providerSlug string) ProviderAdapter {
	if a, ok := r.specific[providerSlug]; ok {
		return a
	}
	return r.generic
}

// MergeHighest implements the "highest price wins" selection rule: when
// multiple candidate results exist for the same (model, provider) —
// e.g. a specific adapter's hardcoded table and a generic web-search
// hit both resolving — the merged result carries the maximum of each
// numeric field independently, never an average or a first-match.
func MergeHighest(results []*models.PricingResult) *models.PricingResult {
	if len(results) == 0 {
		return nil
	}
	merged := &models.PricingResult{}
	for _, r := range results {
		if r == nil {
			continue
		}
		merged.PromptPerToken = maxStrNum(merged.PromptPerToken, r.PromptPerToken)
		merged.CompletionPerToken = maxStrNum(merged.CompletionPerToken, r.CompletionPerToken)
		merged.RequestUSD = maxStrNum(merged.RequestUSD, r.RequestUSD)
		merged.ImageUSD = maxStrNum(merged.ImageUSD, r.ImageUSD)
		if merged.SourceURL == "" {
			merged.SourceURL = r.SourceURL
		}
	}
	return merged
}
