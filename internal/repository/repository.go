// Package repository is the primary pricing store: catalogue upserts,
// the same-day idempotent snapshot upsert, and "latest snapshot by
// source" reads. Backed by Supabase/Postgres via supabase-go, the same
// client this codebase already uses for its primary datastore.
package repository

import (
	"context"
	"fmt"
	"time"

	supabase "github.com/supabase-community/supabase-go"

	"github.com/g2scv/llm-cost/internal/models"
)

const (
	tableProviders     = "providers"
	tableModels        = "models"
	tableProviderLinks = "model_providers"
	tablePricing       = "model_pricing"
)

// Store is the full pricing-store surface the pipeline depends on:
// catalogue access for staging plus the snapshot read/write protocol.
// Narrower callers (discovery) declare their own subset rather than
// depending on this one, the same way discovery.Store does.
type Store interface {
	UpsertProvider(ctx context.Context, p models.Provider) error
	UpsertModel(ctx context.Context, m models.Model) error
	UpsertProviderLink(ctx context.Context, link models.ProviderLink) error
	KnownModelSlugs(ctx context.Context) (map[string]bool, error)
	ListProviderSlugs(ctx context.Context) ([]string, error)
	GetModel(ctx context.Context, slug string) (*models.Model, error)
	ListProviderLinksForModel(ctx context.Context, modelSlug string) ([]models.ProviderLink, error)
	UpsertSnapshot(ctx context.Context, p models.ModelPricing) error
	LatestSnapshot(ctx context.Context, modelSlug string, provider *string, sourceType models.SourceType) (*models.ModelPricing, error)
	RecentSnapshotsForProjection(ctx context.Context, since time.Time) ([]models.ModelPricing, error)
	RecordBYOKVerification(ctx context.Context, v models.BYOKVerification) error
}

// Repository wraps a Supabase client against the pricing store. It
// holds no per-call mutable state beyond the client's own connection
// pool, so it is shared read-mostly across pipeline workers.
type Repository struct {
	client *supabase.Client
}

var _ Store = (*Repository)(nil)

func New(client *supabase.Client) *Repository {
	return &Repository{client: client}
}

// UpsertProvider upserts by unique slug.
func (r *Repository) UpsertProvider(ctx context.Context, p models.Provider) error {
	_, _, err := r.client.From(tableProviders).
		Upsert(p, "slug", "", "").
		ExecuteTo(nil)
	if err != nil {
		return fmt.Errorf("upsert provider: %w", err)
	}
	return nil
}

// UpsertModel upserts by unique slug.
func (r *Repository) UpsertModel(ctx context.Context, m models.Model) error {
	_, _, err := r.client.From(tableModels).
		Upsert(m, "slug", "", "").
		ExecuteTo(nil)
	if err != nil {
		return fmt.Errorf("upsert model: %w", err)
	}
	return nil
}

// UpsertProviderLink upserts by the unique (model, provider) pair.
func (r *Repository) UpsertProviderLink(ctx context.Context, link models.ProviderLink) error {
	_, _, err := r.client.From(tableProviderLinks).
		Upsert(link, "model_slug,provider_slug", "", "").
		ExecuteTo(nil)
	if err != nil {
		return fmt.Errorf("upsert provider link: %w", err)
	}
	return nil
}

// KnownModelSlugs returns every model slug already present in the
// store, used by discovery to compute the new-model diff.
func (r *Repository) KnownModelSlugs(ctx context.Context) (map[string]bool, error) {
	var rows []struct {
		Slug string `json:"slug"`
	}
	_, err := r.client.From(tableModels).Select("slug", "", false).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list known model slugs: %w", err)
	}

	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		out[row.Slug] = true
	}
	return out, nil
}

// ListProviderSlugs returns every provider slug in the store.
func (r *Repository) ListProviderSlugs(ctx context.Context) ([]string, error) {
	var rows []struct {
		Slug string `json:"slug"`
	}
	_, err := r.client.From(tableProviders).Select("slug", "", false).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list provider slugs: %w", err)
	}

	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Slug)
	}
	return out, nil
}

// GetModel returns a single model by slug, or nil if unknown.
func (r *Repository) GetModel(ctx context.Context, slug string) (*models.Model, error) {
	var rows []models.Model
	_, err := r.client.From(tableModels).Select("*", "", false).Eq("slug", slug).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get model %s: %w", slug, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListProviderLinksForModel returns every provider linked to a model.
func (r *Repository) ListProviderLinksForModel(ctx context.Context, modelSlug string) ([]models.ProviderLink, error) {
	var rows []models.ProviderLink
	_, err := r.client.From(tableProviderLinks).Select("*", "", false).Eq("model_slug", modelSlug).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list provider links for %s: %w", modelSlug, err)
	}
	return rows, nil
}

// UpsertSnapshot performs the same-day idempotent upsert protocol: the
// row matching the full key (model, provider|NULL, snapshot_date,
// source_type) is deleted first — with NULL provider expressed as an
// IS NULL predicate, never equality — then the new row is inserted.
// This is a single logical operation; different days accumulate
// immutable history, same-day re-ingestion replaces in place.
func (r *Repository) UpsertSnapshot(ctx context.Context, p models.ModelPricing) error {
	del := r.client.From(tablePricing).
		Delete("", "").
		Eq("model_slug", p.ModelSlug).
		Eq("snapshot_date", p.SnapshotDate.Format("2006-01-02")).
		Eq("source_type", string(p.SourceType))

	if p.Provider == nil {
		del = del.Is("provider", "null")
	} else {
		del = del.Eq("provider", *p.Provider)
	}

	if _, _, err := del.ExecuteTo(nil); err != nil {
		return fmt.Errorf("delete prior snapshot: %w", err)
	}

	if _, _, err := r.client.From(tablePricing).Insert(p, false, "", "", "").ExecuteTo(nil); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot for (model, provider,
// source_type), or nil if none exists. Lookups are always scoped to a
// single source_type — snapshots from different sources are never
// compared.
func (r *Repository) LatestSnapshot(ctx context.Context, modelSlug string, provider *string, sourceType models.SourceType) (*models.ModelPricing, error) {
	q := r.client.From(tablePricing).
		Select("*", "", false).
		Eq("model_slug", modelSlug).
		Eq("source_type", string(sourceType)).
		Order("snapshot_date", nil).
		Limit(1, "")

	if provider == nil {
		q = q.Is("provider", "null")
	} else {
		q = q.Eq("provider", *provider)
	}

	var rows []models.ModelPricing
	if _, err := q.ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// RecentSnapshotsForProjection returns every aggregator_api snapshot
// whose snapshot_date lies within the freshness window, for the
// backend projection stage.
func (r *Repository) RecentSnapshotsForProjection(ctx context.Context, since time.Time) ([]models.ModelPricing, error) {
	var rows []models.ModelPricing
	_, err := r.client.From(tablePricing).
		Select("*", "", false).
		Eq("source_type", string(models.SourceAggregatorAPI)).
		Gte("snapshot_date", since.Format("2006-01-02")).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("recent snapshots for projection: %w", err)
	}
	return rows, nil
}

// RecordBYOKVerification persists a spot-check audit row. Never
// mutated once written.
func (r *Repository) RecordBYOKVerification(ctx context.Context, v models.BYOKVerification) error {
	_, _, err := r.client.From("byok_verifications").Insert(v, false, "", "", "").ExecuteTo(nil)
	if err != nil {
		return fmt.Errorf("record byok verification: %w", err)
	}
	return nil
}
