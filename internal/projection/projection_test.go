package projection

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g2scv/llm-cost/internal/models"
	"github.com/g2scv/llm-cost/internal/projection/projectiontest"
)

func newTestSyncer(store Store, protectedSlugs []string, protectionMap ProtectionMap) *Syncer {
	return New(store, protectedSlugs, protectionMap, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSync_InsertsStagedRows(t *testing.T) {
	store := projectiontest.New()
	s := newTestSyncer(store, nil, nil)

	cost := decimal.NewFromFloat(3)
	staged := []models.ProjectionRow{{ModelSlug: "anthropic/claude-sonnet-4", CostPerMillionInput: &cost, IsActive: true}}

	require.NoError(t, s.Sync(context.Background(), staged))

	row, ok := store.Row("anthropic/claude-sonnet-4")
	require.True(t, ok)
	assert.True(t, row.IsActive)
}

// TestSync_PreservesSortOrderAndIsDefault covers the preservation
// requirement: a slug already in the backend with a manually-curated
// sort_order and is_default keeps both across a sync, even though
// staging never computes a sort_order and this tick's config no
// longer names the slug a default.
func TestSync_PreservesSortOrderAndIsDefault(t *testing.T) {
	store := projectiontest.New()
	store.Seed(models.ProjectionRow{ModelSlug: "openai/gpt-4o", SortOrder: 7, IsDefault: true, IsActive: true})
	s := newTestSyncer(store, nil, nil)

	cost := decimal.NewFromFloat(5)
	staged := []models.ProjectionRow{{ModelSlug: "openai/gpt-4o", CostPerMillionInput: &cost, IsActive: true}}

	require.NoError(t, s.Sync(context.Background(), staged))

	row, ok := store.Row("openai/gpt-4o")
	require.True(t, ok)
	assert.Equal(t, 7, row.SortOrder)
	assert.True(t, row.IsDefault)
	assert.True(t, row.CostPerMillionInput.Equal(cost))
}

func TestSync_DeactivatesMissingNonProtected(t *testing.T) {
	store := projectiontest.New()
	store.Seed(models.ProjectionRow{ModelSlug: "retired/model", IsActive: true})
	s := newTestSyncer(store, nil, nil)

	require.NoError(t, s.Sync(context.Background(), nil))

	row, ok := store.Row("retired/model")
	require.True(t, ok)
	assert.False(t, row.IsActive)
}

func TestSync_SkipsDeactivationForProtected(t *testing.T) {
	store := projectiontest.New()
	store.Seed(models.ProjectionRow{ModelSlug: "text-embedding-3-large", IsActive: true})
	s := newTestSyncer(store, []string{"text-embedding-3-large"}, nil)

	require.NoError(t, s.Sync(context.Background(), nil))

	row, ok := store.Row("text-embedding-3-large")
	require.True(t, ok)
	assert.True(t, row.IsActive)
}

// TestSync_ProtectedSlugMissingEverywhereUsesProtectionMap is
// Scenario 6: a protected slug absent from both staging and the
// backend gets inserted from the hardcoded fallback row with
// is_active=true.
func TestSync_ProtectedSlugMissingEverywhereUsesProtectionMap(t *testing.T) {
	store := projectiontest.New()
	promptCost := decimal.NewFromFloat(0.13)
	completionCost := decimal.NewFromFloat(0.065)
	protectionMap := ProtectionMap{
		"text-embedding-3-large": {
			ModelSlug:            "text-embedding-3-large",
			Provider:             "openai",
			ModelType:            models.ModelTypeEmbedding,
			CostPerMillionInput:  &promptCost,
			CostPerMillionOutput: &completionCost,
			Tier:                 models.TierBudget,
			CreatedAt:            time.Now(),
			UpdatedAt:            time.Now(),
		},
	}
	s := newTestSyncer(store, []string{"text-embedding-3-large"}, protectionMap)

	require.NoError(t, s.Sync(context.Background(), nil))

	row, ok := store.Row("text-embedding-3-large")
	require.True(t, ok)
	assert.True(t, row.IsActive)
	assert.True(t, row.CostPerMillionInput.Equal(promptCost))
	assert.True(t, row.CostPerMillionOutput.Equal(completionCost))
}

func TestSync_ProtectedSlugMissingWithoutFallbackRowIsSkipped(t *testing.T) {
	store := projectiontest.New()
	s := newTestSyncer(store, []string{"unconfigured/model"}, nil)

	require.NoError(t, s.Sync(context.Background(), nil))

	_, ok := store.Row("unconfigured/model")
	assert.False(t, ok)
}
