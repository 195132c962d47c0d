// Package repositorytest provides an in-memory repository.Store fake
// for tests that would otherwise need a live Supabase connection.
package repositorytest

import (
	"context"
	"sync"
	"time"

	"github.com/g2scv/llm-cost/internal/models"
	"github.com/g2scv/llm-cost/internal/repository"
)

var _ repository.Store = (*Fake)(nil)

// Fake is an in-memory repository.Store. Safe for concurrent use,
// since the pipeline's fan-out resolves models in parallel.
type Fake struct {
	mu sync.Mutex

	providers map[string]models.Provider
	models    map[string]models.Model
	links     map[string][]models.ProviderLink
	snapshots []models.ModelPricing
	byok      []models.BYOKVerification
}

// New builds an empty Fake.
func New() *Fake {
	return &Fake{
		providers: make(map[string]models.Provider),
		models:    make(map[string]models.Model),
		links:     make(map[string][]models.ProviderLink),
	}
}

func (f *Fake) UpsertProvider(ctx context.Context, p models.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[p.Slug] = p
	return nil
}

func (f *Fake) UpsertModel(ctx context.Context, m models.Model) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models[m.Slug] = m
	return nil
}

func (f *Fake) UpsertProviderLink(ctx context.Context, link models.ProviderLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := f.links[link.ModelSlug]
	for i, l := range existing {
		if l.ProviderSlug == link.ProviderSlug {
			existing[i] = link
			return nil
		}
	}
	f.links[link.ModelSlug] = append(existing, link)
	return nil
}

func (f *Fake) KnownModelSlugs(ctx context.Context) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(f.models))
	for slug := range f.models {
		out[slug] = true
	}
	return out, nil
}

func (f *Fake) ListProviderSlugs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.providers))
	for slug := range f.providers {
		out = append(out, slug)
	}
	return out, nil
}

func (f *Fake) GetModel(ctx context.Context, slug string) (*models.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[slug]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *Fake) ListProviderLinksForModel(ctx context.Context, modelSlug string) ([]models.ProviderLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ProviderLink, len(f.links[modelSlug]))
	copy(out, f.links[modelSlug])
	return out, nil
}

// UpsertSnapshot mirrors the same-day idempotent upsert protocol:
// delete the row matching the full key, NULL provider via identity
// rather than equality, then insert.
func (f *Fake) UpsertSnapshot(ctx context.Context, p models.ModelPricing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.snapshots[:0]
	for _, s := range f.snapshots {
		if sameKey(s, p) {
			continue
		}
		kept = append(kept, s)
	}
	f.snapshots = append(kept, p)
	return nil
}

func sameKey(a, b models.ModelPricing) bool {
	if a.ModelSlug != b.ModelSlug || a.SourceType != b.SourceType {
		return false
	}
	if !a.SnapshotDate.Equal(b.SnapshotDate) {
		return false
	}
	if (a.Provider == nil) != (b.Provider == nil) {
		return false
	}
	if a.Provider != nil && *a.Provider != *b.Provider {
		return false
	}
	return true
}

func (f *Fake) LatestSnapshot(ctx context.Context, modelSlug string, provider *string, sourceType models.SourceType) (*models.ModelPricing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.ModelPricing
	for i := range f.snapshots {
		s := f.snapshots[i]
		if s.ModelSlug != modelSlug || s.SourceType != sourceType {
			continue
		}
		if (provider == nil) != (s.Provider == nil) {
			continue
		}
		if provider != nil && s.Provider != nil && *provider != *s.Provider {
			continue
		}
		if latest == nil || s.SnapshotDate.After(latest.SnapshotDate) {
			row := s
			latest = &row
		}
	}
	return latest, nil
}

func (f *Fake) RecentSnapshotsForProjection(ctx context.Context, since time.Time) ([]models.ModelPricing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ModelPricing
	for _, s := range f.snapshots {
		if s.SourceType != models.SourceAggregatorAPI {
			continue
		}
		if s.SnapshotDate.Before(since) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *Fake) RecordBYOKVerification(ctx context.Context, v models.BYOKVerification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byok = append(f.byok, v)
	return nil
}

// Snapshots returns every snapshot currently stored, for test
// assertions.
func (f *Fake) Snapshots() []models.ModelPricing {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ModelPricing, len(f.snapshots))
	copy(out, f.snapshots)
	return out
}

// SeedModel inserts a model directly, bypassing UpsertModel, for test
// setup.
func (f *Fake) SeedModel(m models.Model) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models[m.Slug] = m
}

// SeedProviderLink inserts a provider link directly, for test setup.
func (f *Fake) SeedProviderLink(link models.ProviderLink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[link.ModelSlug] = append(f.links[link.ModelSlug], link)
}
