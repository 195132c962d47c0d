// Package providerapi issues the tiny max_tokens=1 completion directly
// against a provider's own SDK, independent of the aggregator, so the
// pipeline's BYOK spot-check can compute a genuine upstream cost rather
// than trusting the aggregator's self-reported figure. Token counts
// come from each SDK's own usage block — this package never counts
// tokens itself.
package providerapi

import "context"

// UpstreamUsage is what a tiny completion reports back.
type UpstreamUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// UpstreamClient issues a minimal completion against a provider's own
// API using a service-side key, for BYOK reconciliation only.
type UpstreamClient interface {
	TinyCompletion(ctx context.Context, modelID string) (*UpstreamUsage, error)
}

// Registry maps provider slug to its wired upstream client. A provider
// slug absent from the registry has no SDK wired; the orchestrator
// leaves upstream_cost_usd NULL for models on that provider.
type Registry struct {
	clients map[string]UpstreamClient
}

// NewRegistry builds the registry from whichever provider keys are
// configured; a provider whose key is empty is left unwired.
func NewRegistry(anthropicKey, openaiKey, googleKey string) *Registry {
	r := &Registry{clients: map[string]UpstreamClient{}}
	if anthropicKey != "" {
		r.clients["anthropic"] = NewAnthropicClient(anthropicKey)
	}
	if openaiKey != "" {
		r.clients["openai"] = NewOpenAIClient(openaiKey)
	}
	if googleKey != "" {
		r.clients["google"] = NewGoogleClient(googleKey)
	}
	return r
}

// Get returns the wired client for providerSlug, or nil if none.
func (r *Registry) Get(providerSlug string) UpstreamClient {
	return r.clients[providerSlug]
}
