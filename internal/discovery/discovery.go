// Package discovery diffs the aggregator's remote catalogue against
// the stored one, upserts providers and models, and derives the
// (model, provider) links implied by slug namespacing.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/g2scv/llm-cost/internal/aggregatorclient"
	"github.com/g2scv/llm-cost/internal/models"
)

// wellKnownPricingPaths maps a provider slug to a pricing-page path
// pattern when the provider's own site doesn't expose one directly in
// the aggregator feed.
var wellKnownPricingPaths = map[string]string{
	"openai":    "https://openai.com/api/pricing",
	"anthropic": "https://anthropic.com/pricing",
	"google":    "https://ai.google.dev/pricing",
}

// Store is the subset of the pricing repository discovery needs.
type Store interface {
	UpsertProvider(ctx context.Context, p models.Provider) error
	UpsertModel(ctx context.Context, m models.Model) error
	UpsertProviderLink(ctx context.Context, link models.ProviderLink) error
	KnownModelSlugs(ctx context.Context) (map[string]bool, error)
	ListProviderSlugs(ctx context.Context) ([]string, error)
}

// Discoverer refreshes the catalogue and reports newly-seen models.
type Discoverer struct {
	aggregator *aggregatorclient.Client
	store      Store
}

func New(aggregator *aggregatorclient.Client, store Store) *Discoverer {
	return &Discoverer{aggregator: aggregator, store: store}
}

// Refresh upserts the remote provider and model catalogue and returns
// the set of model slugs not previously known to the store.
func (d *Discoverer) Refresh(ctx context.Context, filters aggregatorclient.ListFilters) ([]string, error) {
	rawProviders, err := d.aggregator.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh providers: %w", err)
	}

	providerSlugs := make(map[string]bool, len(rawProviders))
	for _, rp := range rawProviders {
		p := toProvider(rp)
		if err := d.store.UpsertProvider(ctx, p); err != nil {
			return nil, fmt.Errorf("upsert provider %s: %w", p.Slug, err)
		}
		providerSlugs[p.Slug] = true
	}

	knownBefore, err := d.store.KnownModelSlugs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load known model slugs: %w", err)
	}

	rawModels, err := d.aggregator.ListModels(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("refresh models: %w", err)
	}

	var newSlugs []string
	for _, rm := range rawModels {
		m := toModel(rm)
		if err := d.store.UpsertModel(ctx, m); err != nil {
			return nil, fmt.Errorf("upsert model %s: %w", m.Slug, err)
		}
		if !knownBefore[m.Slug] {
			newSlugs = append(newSlugs, m.Slug)
		}

		if providerSlug, ok := namespaceProvider(m.Slug, providerSlugs); ok {
			link := models.ProviderLink{
				ModelSlug:     m.Slug,
				ProviderSlug:  providerSlug,
				IsTopProvider: rm.TopProvider == providerSlug,
			}
			if err := d.store.UpsertProviderLink(ctx, link); err != nil {
				return nil, fmt.Errorf("upsert link %s/%s: %w", m.Slug, providerSlug, err)
			}
		}
	}

	return newSlugs, nil
}

// namespaceProvider derives a (model, provider) link when the model's
// slug carries a namespace/ prefix matching a known provider slug.
func namespaceProvider(modelSlug string, providerSlugs map[string]bool) (string, bool) {
	idx := strings.Index(modelSlug, "/")
	if idx < 0 {
		return "", false
	}
	namespace := modelSlug[:idx]
	if providerSlugs[namespace] {
		return namespace, true
	}
	return "", false
}

func toProvider(rp aggregatorclient.RawProvider) models.Provider {
	p := models.Provider{
		Slug:        rp.Slug,
		DisplayName: rp.DisplayName,
	}

	p.HomepageURL = homepageFrom(rp.PrivacyPolicyURL, rp.TermsOfServiceURL, rp.StatusPageURL)

	if path, ok := wellKnownPricingPaths[rp.Slug]; ok {
		p.PricingURL = path
	} else if p.HomepageURL != "" {
		p.PricingURL = strings.TrimSuffix(p.HomepageURL, "/") + "/pricing"
	}

	return p
}

// homepageFrom derives scheme+host from the first non-empty of the
// given URL fields.
func homepageFrom(candidates ...string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		u, err := url.Parse(c)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		return u.Scheme + "://" + u.Host
	}
	return ""
}

func toModel(rm aggregatorclient.RawModel) models.Model {
	return models.Model{
		Slug:                rm.Slug,
		CanonicalSlug:       rm.CanonicalSlug,
		DisplayName:         rm.Name,
		ContextLength:       rm.ContextLength,
		Architecture:        rm.Architecture,
		SupportedParameters: rm.SupportedParameters,
		InputModalities:     rm.InputModalities,
		OutputModalities:    rm.OutputModalities,
		HasImagePricing:     rm.Pricing.Image != nil,
	}
}
