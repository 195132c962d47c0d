// Package projection maintains the denormalised "current active
// models" table in the backend store: stage candidate rows from the
// pricing store, upsert, deactivate what's missing (honouring the
// protected set), and backfill models missing from the backend.
package projection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	supabase "github.com/supabase-community/supabase-go"

	"github.com/g2scv/llm-cost/internal/models"
	"github.com/g2scv/llm-cost/internal/obslog"
)

const tableProjection = "active_models"

// ProtectionMap supplies a hardcoded row for a protected slug absent
// from the staged candidates (e.g. a manually-added embedding model).
type ProtectionMap map[string]models.ProjectionRow

// Store is the backend-projection surface Syncer depends on, narrow
// enough that an in-memory fake can stand in for tests the way
// discovery.Store does for the pricing store.
type Store interface {
	// ListRows returns every row currently in the projection table,
	// full column set included — callers need model_slug for the
	// missing/deactivate diff and sort_order/is_default for carrying
	// forward values a prior run (or manual curation) already set.
	ListRows(ctx context.Context) ([]models.ProjectionRow, error)
	UpsertRow(ctx context.Context, row models.ProjectionRow) error
	InsertRow(ctx context.Context, row models.ProjectionRow) error
	SetActive(ctx context.Context, slug string, active bool) error
}

// supabaseStore is the production Store backed by the backend
// Supabase client.
type supabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore wraps a backend Supabase client as a Store.
func NewSupabaseStore(client *supabase.Client) Store {
	return &supabaseStore{client: client}
}

func (s *supabaseStore) ListRows(ctx context.Context) ([]models.ProjectionRow, error) {
	var rows []models.ProjectionRow
	_, err := s.client.From(tableProjection).Select("*", "", false).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list projection rows: %w", err)
	}
	return rows, nil
}

func (s *supabaseStore) UpsertRow(ctx context.Context, row models.ProjectionRow) error {
	_, _, err := s.client.From(tableProjection).
		Upsert(row, "model_slug", "", "").
		ExecuteTo(nil)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", row.ModelSlug, err)
	}
	return nil
}

func (s *supabaseStore) InsertRow(ctx context.Context, row models.ProjectionRow) error {
	_, _, err := s.client.From(tableProjection).Insert(row, false, "", "", "").ExecuteTo(nil)
	if err != nil {
		return fmt.Errorf("insert %s: %w", row.ModelSlug, err)
	}
	return nil
}

func (s *supabaseStore) SetActive(ctx context.Context, slug string, active bool) error {
	_, _, err := s.client.From(tableProjection).
		Update(map[string]interface{}{"is_active": active, "updated_at": time.Now()}, "", "").
		Eq("model_slug", slug).
		ExecuteTo(nil)
	if err != nil {
		return fmt.Errorf("set active %s: %w", slug, err)
	}
	return nil
}

// Syncer drives the backend projection sync against a Store distinct
// from the pricing store's.
type Syncer struct {
	store          Store
	protectedSlugs map[string]bool
	protectionMap  ProtectionMap
	logger         *slog.Logger
}

func New(store Store, protectedSlugs []string, protectionMap ProtectionMap, logger *slog.Logger) *Syncer {
	set := make(map[string]bool, len(protectedSlugs))
	for _, s := range protectedSlugs {
		set[s] = true
	}
	return &Syncer{store: store, protectedSlugs: set, protectionMap: protectionMap, logger: logger}
}

// Sync runs the protocol over rows the pipeline already staged: report
// staged slugs missing from the backend, upsert, deactivate missing
// (minus protected), and protect.
func (s *Syncer) Sync(ctx context.Context, staged []models.ProjectionRow) error {
	stagedSlugs := make(map[string]bool, len(staged))
	for _, row := range staged {
		stagedSlugs[row.ModelSlug] = true
	}

	rowsBefore, err := s.store.ListRows(ctx)
	if err != nil {
		return fmt.Errorf("list backend rows: %w", err)
	}
	backendBefore := make(map[string]models.ProjectionRow, len(rowsBefore))
	for _, row := range rowsBefore {
		backendBefore[row.ModelSlug] = row
	}

	var missingFromBackend []string
	for slug := range stagedSlugs {
		if _, ok := backendBefore[slug]; !ok {
			missingFromBackend = append(missingFromBackend, slug)
		}
	}
	if len(missingFromBackend) > 0 {
		obslog.FoundMissingModelsInBackend(s.logger, len(missingFromBackend), missingFromBackend)
	}

	if err := s.upsertAll(ctx, staged, backendBefore); err != nil {
		return fmt.Errorf("upsert staged rows: %w", err)
	}

	rowsAfter, err := s.store.ListRows(ctx)
	if err != nil {
		return fmt.Errorf("list backend rows: %w", err)
	}
	backendSlugs := make([]string, 0, len(rowsAfter))
	for _, row := range rowsAfter {
		backendSlugs = append(backendSlugs, row.ModelSlug)
	}

	var toDeactivate []string
	var protectedSkipped []string
	for _, slug := range backendSlugs {
		if stagedSlugs[slug] {
			continue
		}
		if s.protectedSlugs[slug] {
			protectedSkipped = append(protectedSkipped, slug)
			continue
		}
		toDeactivate = append(toDeactivate, slug)
	}

	if len(protectedSkipped) > 0 {
		obslog.SkippingDeactivationForProtectedModels(s.logger, protectedSkipped)
	}

	if err := s.deactivate(ctx, toDeactivate); err != nil {
		return fmt.Errorf("deactivate missing: %w", err)
	}

	if err := s.ensureProtected(ctx, backendSlugs, stagedSlugs); err != nil {
		return fmt.Errorf("ensure protected: %w", err)
	}

	return nil
}

// upsertAll writes the staged rows by unique slug. Before writing, it
// carries forward sort_order and is_default from the row's last known
// backend state: the staging step never assigns a display sort_order
// at all (that's manual curation), and is_default, once set by a
// prior run or an operator, stays set even if this tick's config no
// longer names the slug a default.
func (s *Syncer) upsertAll(ctx context.Context, rows []models.ProjectionRow, backendBefore map[string]models.ProjectionRow) error {
	for _, row := range rows {
		if prior, ok := backendBefore[row.ModelSlug]; ok {
			row.SortOrder = prior.SortOrder
			row.IsDefault = row.IsDefault || prior.IsDefault
		}
		if err := s.store.UpsertRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) deactivate(ctx context.Context, slugs []string) error {
	for _, slug := range slugs {
		if err := s.store.SetActive(ctx, slug, false); err != nil {
			return fmt.Errorf("deactivate %s: %w", slug, err)
		}
	}
	return nil
}

// ensureProtected guarantees every protected slug exists with
// is_active=true, inserting a hardcoded row from the protection map
// when a slug never made it into staging.
func (s *Syncer) ensureProtected(ctx context.Context, backendSlugs []string, stagedSlugs map[string]bool) error {
	present := make(map[string]bool, len(backendSlugs))
	for _, slug := range backendSlugs {
		present[slug] = true
	}

	for slug := range s.protectedSlugs {
		if stagedSlugs[slug] {
			continue
		}
		if present[slug] {
			if err := s.store.SetActive(ctx, slug, true); err != nil {
				return fmt.Errorf("reactivate protected %s: %w", slug, err)
			}
			continue
		}

		row, ok := s.protectionMap[slug]
		if !ok {
			s.logger.Warn("protected slug has no configured fallback row", "model_slug", slug)
			continue
		}
		row.IsActive = true
		if err := s.store.InsertRow(ctx, row); err != nil {
			return fmt.Errorf("insert protected %s: %w", slug, err)
		}
	}
	return nil
}
