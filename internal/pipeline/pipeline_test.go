package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g2scv/llm-cost/internal/aggregatorclient"
	"github.com/g2scv/llm-cost/internal/config"
	"github.com/g2scv/llm-cost/internal/models"
	"github.com/g2scv/llm-cost/internal/repository/repositorytest"
)

func testPipeline(store *repositorytest.Fake, cfg *config.Config) *Pipeline {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Pipeline{cfg: cfg, store: store, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestPrimaryProviderSlug(t *testing.T) {
	assert.Equal(t, "anthropic", primaryProviderSlug("anthropic/claude-sonnet-4"))
	assert.Equal(t, "gpt-4o", primaryProviderSlug("gpt-4o"))
}

func TestTopProviderOf(t *testing.T) {
	links := []models.ProviderLink{
		{ProviderSlug: "deepinfra"},
		{ProviderSlug: "anthropic", IsTopProvider: true},
	}
	assert.Equal(t, "anthropic", topProviderOf(links))
	assert.Equal(t, "", topProviderOf(nil))
}

func TestModelTypeOf(t *testing.T) {
	embedding := &models.Model{SupportedParameters: []string{"embeddings"}}
	assert.Equal(t, models.ModelTypeEmbedding, modelTypeOf(embedding))

	chat := &models.Model{SupportedParameters: []string{"tools"}}
	assert.Equal(t, models.ModelTypeChat, modelTypeOf(chat))
}

func TestMaxOutputTokensOf(t *testing.T) {
	m := &models.Model{Architecture: map[string]interface{}{"max_output_tokens": float64(8192)}}
	got := maxOutputTokensOf(m)
	assert.NotNil(t, got)
	assert.Equal(t, 8192, *got)

	assert.Nil(t, maxOutputTokensOf(&models.Model{}))
}

func TestResolveCost(t *testing.T) {
	prompt := "0.000003"
	completion := "0.000015"
	rm := aggregatorclient.RawModel{
		Slug: "anthropic/claude-sonnet-4",
		Pricing: aggregatorclient.RawPricing{
			Prompt:     &prompt,
			Completion: &completion,
		},
	}

	cost := resolveCost(rm, 1000, 500)
	assert.NotNil(t, cost)
	assert.True(t, cost.IsPositive())
}

func TestResolveCost_MissingPricingYieldsNil(t *testing.T) {
	rm := aggregatorclient.RawModel{Slug: "unknown/model"}
	assert.Nil(t, resolveCost(rm, 1000, 500))
}

func TestValidateAndWrite_WritesSnapshot(t *testing.T) {
	store := repositorytest.New()
	p := testPipeline(store, nil)

	prompt := decimal.NewFromFloat(3)
	completion := decimal.NewFromFloat(15)

	ok, err := p.validateAndWrite(context.Background(), "anthropic/claude-sonnet-4", nil, models.SourceAggregatorAPI, today(), &prompt, &completion, writeExtras{})
	require.NoError(t, err)
	assert.True(t, ok)

	snaps := store.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "anthropic/claude-sonnet-4", snaps[0].ModelSlug)
	assert.True(t, snaps[0].PromptPerMillion.Equal(prompt))
}

func TestValidateAndWrite_RejectsNegativePrice(t *testing.T) {
	store := repositorytest.New()
	p := testPipeline(store, nil)

	prompt := decimal.NewFromFloat(-1)
	completion := decimal.NewFromFloat(15)

	ok, err := p.validateAndWrite(context.Background(), "broken/model", nil, models.SourceAggregatorAPI, today(), &prompt, &completion, writeExtras{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, store.Snapshots())
}

func TestValidateAndWrite_SameDayUpsertReplaces(t *testing.T) {
	store := repositorytest.New()
	p := testPipeline(store, nil)
	date := today()

	first := decimal.NewFromFloat(3)
	second := decimal.NewFromFloat(4)
	completion := decimal.NewFromFloat(15)

	_, err := p.validateAndWrite(context.Background(), "openai/gpt-4o", nil, models.SourceAggregatorAPI, date, &first, &completion, writeExtras{})
	require.NoError(t, err)
	_, err = p.validateAndWrite(context.Background(), "openai/gpt-4o", nil, models.SourceAggregatorAPI, date, &second, &completion, writeExtras{})
	require.NoError(t, err)

	snaps := store.Snapshots()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].PromptPerMillion.Equal(second))
}

func TestStageOne_SetsIsDefaultFromConfig(t *testing.T) {
	store := repositorytest.New()
	cfg := &config.Config{Defaults: config.DefaultsConfig{EmbeddingModelID: "text-embedding-3-large"}}
	p := testPipeline(store, cfg)

	store.SeedModel(models.Model{Slug: "text-embedding-3-large", DisplayName: "text-embedding-3-large", SupportedParameters: []string{"embeddings"}})
	store.SeedProviderLink(models.ProviderLink{ModelSlug: "text-embedding-3-large", ProviderSlug: "openai", IsTopProvider: true})

	prompt := decimal.NewFromFloat(0.13)
	completion := decimal.NewFromFloat(0)
	snap := models.ModelPricing{ModelSlug: "text-embedding-3-large", PromptPerMillion: &prompt, CompletionPerMillion: &completion}

	row, ok, err := p.stageOne(context.Background(), "text-embedding-3-large", snap)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, row.IsDefault)
	assert.Equal(t, "openai", row.Provider)
	assert.Equal(t, models.ModelTypeEmbedding, row.ModelType)
	assert.Equal(t, models.TierBudget, row.Tier)

	// sort_order is never assigned by staging; that's preserved by the
	// projection syncer from whatever the backend already holds.
	assert.Equal(t, 0, row.SortOrder)
}

func TestStageOne_SentinelSnapshotSkipped(t *testing.T) {
	store := repositorytest.New()
	p := testPipeline(store, nil)

	row, ok, err := p.stageOne(context.Background(), "unknown/model", models.ModelPricing{ModelSlug: "unknown/model"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.ProjectionRow{}, row)
}

func TestStageOne_UnknownModelSkipped(t *testing.T) {
	store := repositorytest.New()
	p := testPipeline(store, nil)

	prompt := decimal.NewFromFloat(3)
	completion := decimal.NewFromFloat(15)
	snap := models.ModelPricing{ModelSlug: "ghost/model", PromptPerMillion: &prompt, CompletionPerMillion: &completion}

	row, ok, err := p.stageOne(context.Background(), "ghost/model", snap)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.ProjectionRow{}, row)
}
