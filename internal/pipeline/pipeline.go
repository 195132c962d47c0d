// Package pipeline sequences discovery, multi-source pricing
// resolution, validation, and persistence for every model in the
// catalogue each tick, with bounded parallelism over the per-model
// fan-out and independent BYOK spot-checks afterward.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/g2scv/llm-cost/internal/adapter"
	"github.com/g2scv/llm-cost/internal/aggregatorclient"
	"github.com/g2scv/llm-cost/internal/config"
	"github.com/g2scv/llm-cost/internal/discovery"
	"github.com/g2scv/llm-cost/internal/models"
	"github.com/g2scv/llm-cost/internal/normalize"
	"github.com/g2scv/llm-cost/internal/obslog"
	"github.com/g2scv/llm-cost/internal/providerapi"
	"github.com/g2scv/llm-cost/internal/repository"
	"github.com/g2scv/llm-cost/internal/validate"
)

// Result summarises one tick's work, handed to the scheduler so it can
// drive the backend projection sync and log a completion event.
type Result struct {
	NewModelSlugs    []string
	ModelsProcessed  int
	SnapshotsWritten int
	BYOKChecks       []models.BYOKVerification
	Staged           []models.ProjectionRow
}

// Pipeline sequences discovery, resolution, validation and persistence.
// It holds no per-call mutable state: the repository, aggregator
// client, and adapter registry it wraps are themselves safe for
// concurrent use, so a single Pipeline can drive any number of ticks.
type Pipeline struct {
	cfg        *config.Config
	aggregator *aggregatorclient.Client
	discoverer *discovery.Discoverer
	adapters   *adapter.Registry
	upstream   *providerapi.Registry
	store      repository.Store
	logger     *slog.Logger
}

func New(cfg *config.Config, aggregator *aggregatorclient.Client, discoverer *discovery.Discoverer, adapters *adapter.Registry, upstream *providerapi.Registry, store repository.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		aggregator: aggregator,
		discoverer: discoverer,
		adapters:   adapters,
		upstream:   upstream,
		store:      store,
		logger:     logger,
	}
}

// filters builds the aggregator list_models filter set from config.
func (p *Pipeline) filters() aggregatorclient.ListFilters {
	return aggregatorclient.ListFilters{
		SupportedParameters: p.cfg.Filter.SupportedParameters,
		Distillable:         p.cfg.Filter.Distillable,
		InputModalities:     p.cfg.Filter.InputModalities,
		OutputModalities:    p.cfg.Filter.OutputModalities,
	}
}

// Run executes one full tick: discovery, per-model resolution with
// bounded parallelism, and the BYOK spot-check sample.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	filters := p.filters()

	newSlugs, err := p.discoverer.Refresh(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	rawModels, err := p.aggregator.ListModels(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	result := &Result{NewModelSlugs: newSlugs, ModelsProcessed: len(rawModels)}

	snapshotsWritten := p.fanOutResolve(ctx, rawModels)
	result.SnapshotsWritten = snapshotsWritten

	result.BYOKChecks = p.spotCheck(ctx, rawModels)

	staged, err := p.stage(ctx, rawModels)
	if err != nil {
		return nil, fmt.Errorf("stage projection rows: %w", err)
	}
	result.Staged = staged

	return result, nil
}

// fanOutResolve runs resolveModel over every model with bounded
// parallelism P. Per-model failures are recovered here and logged;
// they never abort sibling workers.
func (p *Pipeline) fanOutResolve(ctx context.Context, rawModels []aggregatorclient.RawModel) int {
	concurrency := p.cfg.Scheduler.MaxParallelModels
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	written := 0

	for _, rm := range rawModels {
		rm := rm
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("panic resolving model", "model", rm.Slug, "recovered", r)
				}
			}()

			n, err := p.resolveModel(ctx, rm)
			if err != nil {
				p.logger.Error("resolve model failed", "model", rm.Slug, "error", err)
				return
			}
			mu.Lock()
			written += n
			mu.Unlock()
		}()
	}

	wg.Wait()
	return written
}

// resolveModel runs the precedence-ordered resolution algorithm for a
// single model: aggregator, then (if enabled) provider-specific
// adapters, then the generic web fallback only if nothing writable was
// produced yet.
func (p *Pipeline) resolveModel(ctx context.Context, rm aggregatorclient.RawModel) (int, error) {
	snapshotDate := today()
	written := 0

	wroteAny, err := p.resolveAggregatorSource(ctx, rm, snapshotDate)
	if err != nil {
		return written, err
	}
	if wroteAny {
		written++
	}

	if p.cfg.WebSearch.EnableProviderScraping {
		links, err := p.store.ListProviderLinksForModel(ctx, rm.Slug)
		if err != nil {
			return written, fmt.Errorf("list provider links: %w", err)
		}
		for _, link := range links {
			ok, err := p.resolveAdapterSource(ctx, rm, link.ProviderSlug, snapshotDate)
			if err != nil {
				p.logger.Error("adapter resolution failed", "model", rm.Slug, "provider", link.ProviderSlug, "error", err)
				continue
			}
			if ok {
				written++
				wroteAny = true
			}
		}
	}

	if !wroteAny {
		ok, err := p.resolveWebFallback(ctx, rm, snapshotDate)
		if err != nil {
			p.logger.Error("web fallback resolution failed", "model", rm.Slug, "error", err)
		} else if ok {
			written++
		}
	}

	return written, nil
}

func (p *Pipeline) resolveAggregatorSource(ctx context.Context, rm aggregatorclient.RawModel, snapshotDate time.Time) (bool, error) {
	prompt, promptTrace := normalize.ToPerMillion(rm.Pricing.Prompt)
	completion, completionTrace := normalize.ToPerMillion(rm.Pricing.Completion)

	if promptTrace == normalize.TraceSentinel {
		obslog.SentinelPricingValue(p.logger, rm.Slug, "", string(models.SourceAggregatorAPI), "prompt")
	}
	if completionTrace == normalize.TraceSentinel {
		obslog.SentinelPricingValue(p.logger, rm.Slug, "", string(models.SourceAggregatorAPI), "completion")
	}

	if prompt == nil && completion == nil {
		return false, nil
	}

	request, _ := normalize.PassThrough(rm.Pricing.Request)
	image, _ := normalize.PassThrough(rm.Pricing.Image)
	webSearch, _ := normalize.PassThrough(rm.Pricing.WebSearch)
	reasoning, _ := normalize.ToPerMillion(rm.Pricing.InternalReasoning)
	cacheRead, _ := normalize.ToPerMillion(rm.Pricing.InputCacheRead)
	cacheWrite, _ := normalize.ToPerMillion(rm.Pricing.InputCacheWrite)

	return p.validateAndWrite(ctx, rm.Slug, nil, models.SourceAggregatorAPI, snapshotDate, prompt, completion, writeExtras{
		request: request, image: image, webSearch: webSearch,
		reasoning: reasoning, cacheRead: cacheRead, cacheWrite: cacheWrite,
		hasImagePricing: rm.Pricing.Image != nil,
	})
}

func (p *Pipeline) resolveAdapterSource(ctx context.Context, rm aggregatorclient.RawModel, providerSlug string, snapshotDate time.Time) (bool, error) {
	a := p.adapters.Get(providerSlug)
	result, err := a.Resolve(ctx, providerSlug, rm.Slug)
	if err != nil {
		return false, err
	}
	if result == nil {
		return false, nil
	}

	prompt, _ := normalize.ToPerMillion(result.PromptPerToken)
	completion, _ := normalize.ToPerMillion(result.CompletionPerToken)
	if prompt == nil && completion == nil {
		return false, nil
	}

	request, _ := normalize.PassThrough(result.RequestUSD)
	image, _ := normalize.PassThrough(result.ImageUSD)
	providerSlugCopy := providerSlug

	return p.validateAndWrite(ctx, rm.Slug, &providerSlugCopy, models.SourceProviderSite, snapshotDate, prompt, completion, writeExtras{
		request: request, image: image, sourceURL: result.SourceURL, notes: result.Note,
		hasImagePricing: rm.Pricing.Image != nil,
	})
}

func (p *Pipeline) resolveWebFallback(ctx context.Context, rm aggregatorclient.RawModel, snapshotDate time.Time) (bool, error) {
	providerSlug := primaryProviderSlug(rm.Slug)
	result, err := p.adapters.Get("").Resolve(ctx, providerSlug, rm.Slug)
	if err != nil {
		return false, err
	}
	if result == nil {
		return false, nil
	}

	prompt, _ := normalize.ToPerMillion(result.PromptPerToken)
	completion, _ := normalize.ToPerMillion(result.CompletionPerToken)
	if prompt == nil && completion == nil {
		return false, nil
	}

	return p.validateAndWrite(ctx, rm.Slug, nil, models.SourceWebFallback, snapshotDate, prompt, completion, writeExtras{
		sourceURL: result.SourceURL, notes: result.Note, hasImagePricing: rm.Pricing.Image != nil,
	})
}

type writeExtras struct {
	request         *decimal.Decimal
	image           *decimal.Decimal
	webSearch       *decimal.Decimal
	reasoning       *decimal.Decimal
	cacheRead       *decimal.Decimal
	cacheWrite      *decimal.Decimal
	sourceURL       string
	notes           string
	hasImagePricing bool
}

// validateAndWrite validates the resolved pair, compares against the
// prior snapshot of the same source_type/provider for change
// detection, and writes via the same-day idempotent upsert when valid.
func (p *Pipeline) validateAndWrite(ctx context.Context, modelSlug string, provider *string, sourceType models.SourceType, snapshotDate time.Time, prompt, completion *decimal.Decimal, extras writeExtras) (bool, error) {
	ok, warnings := validate.Validate(prompt, completion, validate.Input{
		ModelSlug:       modelSlug,
		HasImagePricing: extras.hasImagePricing,
	})
	if !ok {
		obslog.SkippingInvalidPricing(p.logger, modelSlug, providerString(provider), string(sourceType), "negative price after normalization")
		return false, nil
	}
	for _, w := range warnings {
		p.logger.Warn("pricing validation warning", "model", modelSlug, "provider", providerString(provider), "source_type", sourceType, "code", w.Code, "message", w.Message)
	}

	prev, err := p.store.LatestSnapshot(ctx, modelSlug, provider, sourceType)
	if err != nil {
		return false, fmt.Errorf("load prior snapshot: %w", err)
	}

	threshold := decimal.NewFromFloat(p.cfg.Scheduler.PriceChangeThresholdPercent)
	if prev != nil {
		events := validate.DetectChange(prev.PromptPerMillion, prev.CompletionPerMillion, prompt, completion, threshold)
		for _, e := range events {
			obslog.SignificantPriceChangeDetected(p.logger, modelSlug, providerString(provider), string(sourceType), e.Field, e.OldValue.String(), e.NewValue.String(), e.ChangePercent.String())
		}
	}

	snapshot := models.ModelPricing{
		ID:                          uuid.New(),
		ModelSlug:                   modelSlug,
		Provider:                    provider,
		SourceType:                  sourceType,
		SnapshotDate:                snapshotDate,
		SourceURL:                   extras.sourceURL,
		PromptPerMillion:            prompt,
		CompletionPerMillion:        completion,
		RequestUSD:                  extras.request,
		ImageUSD:                    extras.image,
		WebSearchUSD:                extras.webSearch,
		InternalReasoningPerMillion: extras.reasoning,
		InputCacheReadPerMillion:    extras.cacheRead,
		InputCacheWritePerMillion:   extras.cacheWrite,
		Currency:                    "USD",
		CollectedAt:                 time.Now(),
		Notes:                       extras.notes,
	}

	if err := p.store.UpsertSnapshot(ctx, snapshot); err != nil {
		return false, fmt.Errorf("upsert snapshot: %w", err)
	}
	return true, nil
}

// spotCheck samples a handful of non-free, non-sentinel models, records
// the aggregator-reported cost of a tiny call and, where a provider SDK
// is wired, an upstream cost computed from a direct provider call's
// token counts, and persists each verification row.
func (p *Pipeline) spotCheck(ctx context.Context, rawModels []aggregatorclient.RawModel) []models.BYOKVerification {
	sampleSize := p.cfg.Scheduler.ByokSampleSize
	if sampleSize <= 0 {
		sampleSize = 5
	}

	candidates := make([]aggregatorclient.RawModel, 0, len(rawModels))
	for _, rm := range rawModels {
		prompt, _ := normalize.ToPerMillion(rm.Pricing.Prompt)
		completion, _ := normalize.ToPerMillion(rm.Pricing.Completion)
		if prompt == nil && completion == nil {
			obslog.SkippingBYOKForFreeOrUnavailableModel(p.logger, rm.Slug, "sentinel priced")
			continue
		}
		free := prompt != nil && completion != nil && prompt.IsZero() && completion.IsZero()
		if free {
			obslog.SkippingBYOKForFreeOrUnavailableModel(p.logger, rm.Slug, "free")
			continue
		}
		candidates = append(candidates, rm)
	}

	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if len(candidates) > sampleSize {
		candidates = candidates[:sampleSize]
	}

	var results []models.BYOKVerification
	for _, rm := range candidates {
		v := p.spotCheckOne(ctx, rm)
		if err := p.store.RecordBYOKVerification(ctx, v); err != nil {
			p.logger.Error("record byok verification failed", "model", rm.Slug, "error", err)
		}
		results = append(results, v)
	}
	return results
}

func (p *Pipeline) spotCheckOne(ctx context.Context, rm aggregatorclient.RawModel) models.BYOKVerification {
	verification := models.BYOKVerification{
		ID:        uuid.New(),
		ModelSlug: rm.Slug,
		Provider:  primaryProviderSlug(rm.Slug),
		CheckedAt: time.Now(),
	}

	usage, err := p.aggregator.TinyBYOKCall(ctx, rm.Slug)
	if err != nil {
		verification.OK = false
		verification.FailureReason = err.Error()
		return verification
	}

	verification.PromptTokens = usage.PromptTokens
	verification.CompletionTokens = usage.CompletionTokens
	verification.ResponseMS = usage.ResponseMS
	if usage.AggregatorCostUSD != nil {
		if cost, parseErr := decimal.NewFromString(*usage.AggregatorCostUSD); parseErr == nil {
			verification.AggregatorCostUSD = &cost
		}
	}

	if upstream := p.upstream.Get(verification.Provider); upstream != nil {
		if u, err := upstream.TinyCompletion(ctx, rm.Slug); err == nil {
			cost := resolveCost(rm, u.PromptTokens, u.CompletionTokens)
			verification.UpstreamCostUSD = cost
		}
	}

	verification.OK = true
	return verification
}

// resolveCost computes a cost estimate from the model's normalised
// aggregator pricing; spotCheckOne applies it to the upstream call's
// token counts to produce the upstream figure.
func resolveCost(rm aggregatorclient.RawModel, promptTokens, completionTokens int) *decimal.Decimal {
	prompt, _ := normalize.ToPerMillion(rm.Pricing.Prompt)
	completion, _ := normalize.ToPerMillion(rm.Pricing.Completion)
	if prompt == nil || completion == nil {
		return nil
	}

	million := decimal.NewFromInt(1_000_000)
	promptCost := prompt.Mul(decimal.NewFromInt(int64(promptTokens))).Div(million)
	completionCost := completion.Mul(decimal.NewFromInt(int64(completionTokens))).Div(million)
	total := promptCost.Add(completionCost)
	return &total
}

// stage builds candidate backend projection rows from recent
// aggregator_api snapshots joined with each model's catalogue entry
// and provider links, per the projection staging step: one row per
// model, carrying its current price, derived tier, and model type.
func (p *Pipeline) stage(ctx context.Context, rawModels []aggregatorclient.RawModel) ([]models.ProjectionRow, error) {
	since := time.Now().AddDate(0, 0, -p.cfg.Scheduler.BackendFreshnessWindowDays)
	snapshots, err := p.store.RecentSnapshotsForProjection(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load recent snapshots: %w", err)
	}

	latestBySlug := make(map[string]models.ModelPricing, len(snapshots))
	for _, snap := range snapshots {
		existing, ok := latestBySlug[snap.ModelSlug]
		if !ok || snap.SnapshotDate.After(existing.SnapshotDate) {
			latestBySlug[snap.ModelSlug] = snap
		}
	}

	rows := make([]models.ProjectionRow, 0, len(latestBySlug))
	for slug, snap := range latestBySlug {
		row, ok, err := p.stageOne(ctx, slug, snap)
		if err != nil {
			p.logger.Error("stage projection row failed", "model", slug, "error", err)
			continue
		}
		if ok {
			rows = append(rows, row)
		}
	}

	return rows, nil
}

func (p *Pipeline) stageOne(ctx context.Context, slug string, snap models.ModelPricing) (models.ProjectionRow, bool, error) {
	if snap.Sentinel() {
		return models.ProjectionRow{}, false, nil
	}

	model, err := p.store.GetModel(ctx, slug)
	if err != nil {
		return models.ProjectionRow{}, false, fmt.Errorf("get model: %w", err)
	}
	if model == nil {
		return models.ProjectionRow{}, false, nil
	}

	links, err := p.store.ListProviderLinksForModel(ctx, slug)
	if err != nil {
		return models.ProjectionRow{}, false, fmt.Errorf("list provider links: %w", err)
	}

	row := models.ProjectionRow{
		ModelSlug:            slug,
		DisplayName:          model.DisplayName,
		Provider:             topProviderOf(links),
		ModelType:            modelTypeOf(model),
		ContextWindow:        model.ContextLength,
		MaxOutputTokens:      maxOutputTokensOf(model),
		CostPerMillionInput:  snap.PromptPerMillion,
		CostPerMillionOutput: snap.CompletionPerMillion,
		IsActive:             true,
		IsDefault:            slug == p.cfg.Defaults.EmbeddingModelID || slug == p.cfg.Defaults.ChatModelID,
		IsThinkingModel:      hasSupportedParameter(model, "reasoning", "include_reasoning"),
		Capabilities:         capabilitiesOf(model),
		UpdatedAt:            time.Now(),
	}

	if snap.PromptPerMillion != nil {
		row.Tier = models.TierFor(*snap.PromptPerMillion)
	} else {
		row.Tier = models.TierBudget
	}

	return row, true, nil
}

func topProviderOf(links []models.ProviderLink) string {
	for _, l := range links {
		if l.IsTopProvider {
			return l.ProviderSlug
		}
	}
	if len(links) > 0 {
		return links[0].ProviderSlug
	}
	return ""
}

func modelTypeOf(m *models.Model) models.ModelType {
	if hasSupportedParameter(m, "embeddings") {
		return models.ModelTypeEmbedding
	}
	return models.ModelTypeChat
}

func hasSupportedParameter(m *models.Model, names ...string) bool {
	for _, sp := range m.SupportedParameters {
		for _, name := range names {
			if sp == name {
				return true
			}
		}
	}
	return false
}

func maxOutputTokensOf(m *models.Model) *int {
	if m.Architecture == nil {
		return nil
	}
	raw, ok := m.Architecture["max_output_tokens"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		return &v
	default:
		return nil
	}
}

func capabilitiesOf(m *models.Model) map[string]interface{} {
	if len(m.InputModalities) == 0 && len(m.OutputModalities) == 0 {
		return nil
	}
	return map[string]interface{}{
		"input_modalities":  m.InputModalities,
		"output_modalities": m.OutputModalities,
	}
}

func primaryProviderSlug(modelSlug string) string {
	for i, c := range modelSlug {
		if c == '/' {
			return modelSlug[:i]
		}
	}
	return modelSlug
}

func providerString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
