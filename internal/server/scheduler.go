package server

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"alpha-finder/internal/config"
	"alpha-finder/internal/pipeline"
)

// CycleRunner runs one scoring cycle.
type CycleRunner interface {
	Run(ctx context.Context) (*pipeline.CycleResult, error)
}

// Scheduler triggers scoring cycles on a cron schedule. A tick that fires
// while the previous cycle is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner CycleRunner
	logger zerolog.Logger
}

// NewScheduler creates a Scheduler for a seconds-first cron schedule.
func NewScheduler(ctx context.Context, schedule string, runner CycleRunner, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		runner: runner,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
	s.cron = cron.New(
		cron.WithParser(config.CronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := s.cron.AddFunc(schedule, func() { s.Tick(ctx) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins firing the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and returns a context that is done once any
// running cycle has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Tick runs one cycle and logs its outcome.
func (s *Scheduler) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, pipeline.ErrCycleRunning):
		s.logger.Warn().Msg("previous cycle still running, tick skipped")
	case err != nil && result == nil:
		s.logger.Error().Err(err).Msg("scoring cycle failed")
	case err != nil:
		s.logger.Warn().Err(err).Str("run_id", result.RunID).Msg("scoring cycle interrupted")
	default:
		s.logger.Info().
			Str("run_id", result.RunID).
			Int("tokens_ok", result.Succeeded()).
			Int("tokens_failed", result.Failed()).
			Msg("scheduled cycle done")
	}
}
