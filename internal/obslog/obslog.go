// Package obslog wraps log/slog with one helper per structured event
// name the pipeline emits, so call sites can't drift from the
// observability vocabulary.
package obslog

import (
	"log/slog"
	"os"
)

// New builds the process logger. format selects "json" (production)
// or anything else (text, for local development), matching the
// handler-selection switch this codebase already uses.
func New(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func SchedulerIterationStarted(l *slog.Logger, tick int) {
	l.Info("scheduler_iteration_started", "tick", tick)
}

func SchedulerIterationCompleted(l *slog.Logger, tick int, durationMS int64) {
	l.Info("scheduler_iteration_completed", "tick", tick, "duration_ms", durationMS)
}

func SchedulerIterationFailed(l *slog.Logger, tick int, err error) {
	l.Error("scheduler_iteration_failed", "tick", tick, "error", err)
}

func SignificantPriceChangeDetected(l *slog.Logger, model, provider string, sourceType string, field string, oldVal, newVal, changePercent string) {
	l.Warn("significant_price_change_detected",
		"model", model, "provider", provider, "source_type", sourceType,
		"field", field, "old_value", oldVal, "new_value", newVal, "change_percent", changePercent)
}

func SkippingInvalidPricing(l *slog.Logger, model, provider, sourceType, reason string) {
	l.Warn("skipping_invalid_pricing", "model", model, "provider", provider, "source_type", sourceType, "reason", reason)
}

func SentinelPricingValue(l *slog.Logger, model, provider, sourceType, field string) {
	l.Debug("sentinel_pricing_value", "model", model, "provider", provider, "source_type", sourceType, "field", field)
}

func SkippingBYOKForFreeOrUnavailableModel(l *slog.Logger, model, reason string) {
	l.Info("skipping_byok_for_free_or_unavailable_model", "model", model, "reason", reason)
}

func FoundMissingModelsInBackend(l *slog.Logger, count int, slugs []string) {
	l.Info("found_missing_models_in_backend", "count", count, "slugs", slugs)
}

func SkippingDeactivationForProtectedModels(l *slog.Logger, slugs []string) {
	l.Info("skipping_deactivation_for_protected_models", "slugs", slugs)
}

func BackendSyncDisabled(l *slog.Logger) {
	l.Info("backend_sync_disabled")
}
