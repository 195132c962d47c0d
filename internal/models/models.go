// Package models defines the shared entities that flow through the
// pricing pipeline: providers, models, the link between them, pricing
// snapshots, BYOK verification records, and backend projection rows.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SourceType identifies where a pricing figure came from. Change
// detection and upsert only ever compare within the same SourceType.
type SourceType string

const (
	SourceAggregatorAPI SourceType = "aggregator_api"
	SourceProviderSite  SourceType = "provider_site"
	SourceWebFallback   SourceType = "web_fallback"
)

// Provider is an upstream inference vendor (anthropic, openai, ...).
type Provider struct {
	Slug        string    `json:"slug"`
	DisplayName string    `json:"display_name"`
	HomepageURL string    `json:"homepage_url,omitempty"`
	PricingURL  string    `json:"pricing_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Model is a single model identity as reported by the aggregator.
type Model struct {
	Slug                string                 `json:"slug"`
	CanonicalSlug       string                 `json:"canonical_slug,omitempty"`
	DisplayName         string                 `json:"display_name"`
	ContextLength       *int                   `json:"context_length,omitempty"`
	Architecture        map[string]interface{} `json:"architecture,omitempty"`
	SupportedParameters []string               `json:"supported_parameters,omitempty"`
	InputModalities     []string               `json:"input_modalities,omitempty"`
	OutputModalities    []string               `json:"output_modalities,omitempty"`
	HasImagePricing     bool                   `json:"has_image_pricing"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// ProviderLink records which providers serve a given model, derived by
// namespace-prefix matching of the model slug.
type ProviderLink struct {
	ModelSlug        string                 `json:"model_slug"`
	ProviderSlug     string                 `json:"provider_slug"`
	IsTopProvider    bool                   `json:"is_top_provider"`
	ProviderMetadata map[string]interface{} `json:"provider_metadata,omitempty"`
}

// ModelPricing is one day's normalised pricing snapshot for a
// (model, provider, source_type) triple. Provider is nil when the
// source does not distinguish by provider (e.g. the aggregator's
// blended figure).
type ModelPricing struct {
	ID                             uuid.UUID        `json:"id"`
	ModelSlug                      string           `json:"model_slug"`
	Provider                       *string          `json:"provider"`
	SourceType                     SourceType       `json:"source_type"`
	SnapshotDate                   time.Time        `json:"snapshot_date"`
	SourceURL                      string           `json:"source_url,omitempty"`
	PromptPerMillion               *decimal.Decimal `json:"prompt_usd_per_million"`
	CompletionPerMillion           *decimal.Decimal `json:"completion_usd_per_million"`
	RequestUSD                     *decimal.Decimal `json:"request_usd"`
	ImageUSD                       *decimal.Decimal `json:"image_usd"`
	WebSearchUSD                   *decimal.Decimal `json:"web_search_usd"`
	InternalReasoningPerMillion    *decimal.Decimal `json:"internal_reasoning_usd_per_million"`
	InputCacheReadPerMillion       *decimal.Decimal `json:"input_cache_read_usd_per_million"`
	InputCacheWritePerMillion      *decimal.Decimal `json:"input_cache_write_usd_per_million"`
	Currency                       string           `json:"currency"`
	CollectedAt                    time.Time        `json:"collected_at"`
	Notes                          string           `json:"notes,omitempty"`
}

// Free reports whether both scaled token prices are present and exactly
// zero, the only condition under which a model counts as free for BYOK
// sampling purposes.
func (p ModelPricing) Free() bool {
	if p.PromptPerMillion == nil || p.CompletionPerMillion == nil {
		return false
	}
	return p.PromptPerMillion.IsZero() && p.CompletionPerMillion.IsZero()
}

// Sentinel reports whether neither token price normalised to a usable
// value — the "skip entirely" case for a source.
func (p ModelPricing) Sentinel() bool {
	return p.PromptPerMillion == nil && p.CompletionPerMillion == nil
}

// BYOKVerification records the result of a tiny spot-check completion
// issued against a model: the aggregator-reported cost and, where a
// provider SDK is wired, the cost computed from a direct upstream
// call's token counts.
type BYOKVerification struct {
	ID                uuid.UUID        `json:"id"`
	ModelSlug         string           `json:"model_slug"`
	Provider          string           `json:"provider"`
	CheckedAt         time.Time        `json:"checked_at"`
	AggregatorCostUSD *decimal.Decimal `json:"aggregator_cost_usd"`
	UpstreamCostUSD   *decimal.Decimal `json:"upstream_cost_usd"`
	PromptTokens      int              `json:"prompt_tokens"`
	CompletionTokens  int              `json:"completion_tokens"`
	ResponseMS        int64            `json:"response_ms"`
	OK                bool             `json:"ok"`
	FailureReason     string           `json:"failure_reason,omitempty"`
}

// Tier buckets a model by its prompt price for the backend projection.
type Tier string

const (
	TierPremium  Tier = "premium"
	TierStandard Tier = "standard"
	TierBudget   Tier = "budget"
)

// TierFor derives the projection tier from a per-million prompt price,
// per the classification rule: >=1000 premium, >=200 standard, else
// budget.
func TierFor(promptPerMillion decimal.Decimal) Tier {
	switch {
	case promptPerMillion.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return TierPremium
	case promptPerMillion.GreaterThanOrEqual(decimal.NewFromInt(200)):
		return TierStandard
	default:
		return TierBudget
	}
}

// ModelType classifies a backend projection row.
type ModelType string

const (
	ModelTypeChat      ModelType = "chat"
	ModelTypeEmbedding ModelType = "embedding"
)

// ProjectionRow is a denormalised, current-state row synced to the
// backend store. Unlike ModelPricing it is mutated in place, not
// appended as an immutable snapshot.
type ProjectionRow struct {
	ModelSlug            string                 `json:"model_slug"`
	DisplayName          string                 `json:"display_name"`
	Provider             string                 `json:"provider"`
	ModelType            ModelType              `json:"model_type"`
	ContextWindow        *int                   `json:"context_window"`
	MaxOutputTokens      *int                   `json:"max_output_tokens"`
	CostPerMillionInput  *decimal.Decimal       `json:"cost_per_million_input"`
	CostPerMillionOutput *decimal.Decimal       `json:"cost_per_million_output"`
	Tier                 Tier                   `json:"tier"`
	IsActive             bool                   `json:"is_active"`
	IsDefault            bool                   `json:"is_default"`
	SortOrder            int                    `json:"sort_order"`
	Capabilities         map[string]interface{} `json:"capabilities,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	IsThinkingModel      bool                   `json:"is_thinking_model"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// PricingResult is what a provider adapter or the aggregator yields
// for a single (model, provider) resolution attempt, prior to
// normalisation.
type PricingResult struct {
	PromptPerToken     *string
	CompletionPerToken *string
	RequestUSD         *string
	ImageUSD           *string
	SourceURL          string
	Note               string
}
