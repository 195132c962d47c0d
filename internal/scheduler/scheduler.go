// Package scheduler drives the pricing pipeline on a single-threaded,
// strictly serial tick loop: one tick runs to completion (or failure)
// before the next begins, so there is never more than one in-flight
// pass over the catalogue.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	supabase "github.com/supabase-community/supabase-go"

	"github.com/g2scv/llm-cost/internal/config"
	"github.com/g2scv/llm-cost/internal/obslog"
	"github.com/g2scv/llm-cost/internal/pipeline"
	"github.com/g2scv/llm-cost/internal/projection"
)

// TickRecorder receives a per-tick error (nil on success) after each
// iteration, used by the health server to surface liveness.
type TickRecorder interface {
	RecordTick(err error)
}

// Scheduler owns the pipeline and, when the backend store is
// configured, the projection syncer.
type Scheduler struct {
	cfg        *config.Config
	pipeline   *pipeline.Pipeline
	projection *projection.Syncer
	logger     *slog.Logger
	recorder   TickRecorder

	tick int
}

// New builds a Scheduler. projectionSyncer may be nil when the backend
// store is not configured; every tick then logs BackendSyncDisabled
// and skips the projection stage entirely.
func New(cfg *config.Config, pl *pipeline.Pipeline, projectionSyncer *projection.Syncer, logger *slog.Logger, recorder TickRecorder) *Scheduler {
	return &Scheduler{cfg: cfg, pipeline: pl, projection: projectionSyncer, logger: logger, recorder: recorder}
}

// Run blocks until ctx is cancelled, executing one tick immediately if
// RunOnStartup is set, then one tick per configured interval.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.Scheduler.RunOnStartup {
		s.runTick(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// RunOnce executes a single tick and returns, for the --once CLI mode.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.tickOnce(ctx)
}

func (s *Scheduler) runTick(ctx context.Context) {
	err := s.tickOnce(ctx)
	if s.recorder != nil {
		s.recorder.RecordTick(err)
	}
}

func (s *Scheduler) tickOnce(ctx context.Context) error {
	s.tick++
	obslog.SchedulerIterationStarted(s.logger, s.tick)
	start := time.Now()

	result, err := s.pipeline.Run(ctx)
	if err != nil {
		obslog.SchedulerIterationFailed(s.logger, s.tick, err)
		return err
	}

	if s.projection != nil {
		if err := s.projection.Sync(ctx, result.Staged); err != nil {
			obslog.SchedulerIterationFailed(s.logger, s.tick, err)
			return err
		}
	} else {
		obslog.BackendSyncDisabled(s.logger)
	}

	obslog.SchedulerIterationCompleted(s.logger, s.tick, time.Since(start).Milliseconds())
	return nil
}

// NewProjectionSyncer builds the projection syncer only when the
// backend store is configured; callers pass the result (possibly nil)
// straight to New.
func NewProjectionSyncer(cfg *config.Config, client *supabase.Client, protectionMap projection.ProtectionMap, logger *slog.Logger) *projection.Syncer {
	if client == nil {
		return nil
	}
	return projection.New(projection.NewSupabaseStore(client), cfg.Scheduler.ProtectedModelSlugs, protectionMap, logger)
}
