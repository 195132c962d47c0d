// Command pricing-pipeline runs the LLM pricing aggregation scheduler:
// discover providers and models from the configured aggregator,
// resolve and validate pricing from every source in precedence order,
// persist immutable daily snapshots, spot-check a sample against
// upstream provider SDKs, and stage the backend's denormalised active
// models table.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	supabase "github.com/supabase-community/supabase-go"

	"github.com/g2scv/llm-cost/internal/adapter"
	"github.com/g2scv/llm-cost/internal/aggregatorclient"
	"github.com/g2scv/llm-cost/internal/config"
	"github.com/g2scv/llm-cost/internal/discovery"
	"github.com/g2scv/llm-cost/internal/healthserver"
	"github.com/g2scv/llm-cost/internal/models"
	"github.com/g2scv/llm-cost/internal/obslog"
	"github.com/g2scv/llm-cost/internal/pipeline"
	"github.com/g2scv/llm-cost/internal/projection"
	"github.com/g2scv/llm-cost/internal/providerapi"
	"github.com/g2scv/llm-cost/internal/repository"
	"github.com/g2scv/llm-cost/internal/scheduler"
)

func main() {
	once := flag.Bool("once", false, "run a single tick and exit instead of looping")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := obslog.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	logger.Info("starting pricing pipeline", "once", *once)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pricingClient, err := supabase.NewClient(cfg.PricingStore.URL, cfg.PricingStore.Key, &supabase.ClientOptions{})
	if err != nil {
		logger.Error("failed to initialize pricing store client", "error", err)
		os.Exit(1)
	}
	store := repository.New(pricingClient)

	var backendClient *supabase.Client
	if cfg.BackendSyncEnabled() {
		backendClient, err = supabase.NewClient(cfg.BackendStore.URL, cfg.BackendStore.Key, &supabase.ClientOptions{})
		if err != nil {
			logger.Error("failed to initialize backend store client", "error", err)
			os.Exit(1)
		}
	}

	aggClient := aggregatorclient.New(
		cfg.Aggregator.URL, cfg.Aggregator.Key,
		cfg.Aggregator.ModelsPath, cfg.Aggregator.ProvidersPath, cfg.Aggregator.BYOKPath,
		cfg.RequestTimeout(), logger,
	)

	discoverer := discovery.New(aggClient, store)
	adapters := adapter.NewRegistry(cfg.WebSearch.Key, cfg.WebSearch.TrustedDomains)
	upstream := providerapi.NewRegistry(
		os.Getenv("ANTHROPIC_API_KEY"),
		os.Getenv("OPENAI_API_KEY"),
		os.Getenv("GOOGLE_API_KEY"),
	)

	pl := pipeline.New(cfg, aggClient, discoverer, adapters, upstream, store, logger)

	projectionSyncer := scheduler.NewProjectionSyncer(cfg, backendClient, defaultProtectionMap(), logger)

	health := healthserver.New(cfg.Scheduler.HealthPort, logger)
	sched := scheduler.New(cfg, pl, projectionSyncer, logger, health)

	if *once {
		if err := sched.RunOnce(ctx); err != nil {
			logger.Error("single tick failed", "error", err)
			os.Exit(2)
		}
		return
	}

	go func() {
		if err := health.Start(ctx); err != nil {
			logger.Error("health server exited with error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sched.Run(ctx)
	}()

	select {
	case <-quit:
		logger.Info("shutdown signal received")
		cancel()
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error("scheduler exited with error", "error", err)
			os.Exit(2)
		}
	}

	logger.Info("pricing pipeline exited")
}

// defaultProtectionMap supplies the hardcoded fallback row inserted by
// the protect step (internal/projection's ensureProtected) when a
// protected model slug is entirely absent from both the staged
// catalogue and the backend table. Only the shipped default protected
// slug, text-embedding-3-large (internal/config's
// scheduler.protected_model_slugs default), has a known published
// price; an operator protecting additional slugs via
// PROTECTED_MODEL_SLUGS is expected to have seeded the backend row
// for those once, since there is no published price to fall back to.
func defaultProtectionMap() projection.ProtectionMap {
	now := time.Now()
	promptCost := decimal.NewFromFloat(0.13)
	completionCost := decimal.NewFromFloat(0.065)
	return projection.ProtectionMap{
		"text-embedding-3-large": {
			ModelSlug:            "text-embedding-3-large",
			DisplayName:          "text-embedding-3-large",
			Provider:             "openai",
			ModelType:            models.ModelTypeEmbedding,
			CostPerMillionInput:  &promptCost,
			CostPerMillionOutput: &completionCost,
			Tier:                 models.TierFor(promptCost),
			CreatedAt:            now,
			UpdatedAt:            now,
		},
	}
}
