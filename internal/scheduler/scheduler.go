// Package scheduler runs the pipeline on a cron schedule in service mode.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-co-op/gocron"
)

// RunFunc performs one pipeline run.
type RunFunc func(ctx context.Context) error

// Scheduler triggers RunFunc on a cron expression evaluated in UTC. A tick
// never starts a run while the previous one is still in progress.
type Scheduler struct {
	scheduler *gocron.Scheduler
	spec      string
	run       RunFunc
	logger    *slog.Logger
	cancel    context.CancelFunc
}

// New creates a Scheduler for a five-field cron spec, or a six-field one
// whose leading field is seconds.
func New(spec string, run RunFunc, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		spec:      spec,
		run:       run,
		logger:    logger,
	}
}

// Start registers the job and starts the scheduler in the background. Runs
// receive a context derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.spec == "" {
		return errors.New("scheduler: empty cron spec")
	}

	jobCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	sched := s.scheduler.Cron(s.spec)
	if len(strings.Fields(s.spec)) == 6 {
		sched = s.scheduler.CronWithSeconds(s.spec)
	}
	job, err := sched.Do(s.tick, jobCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("scheduler: register %q: %w", s.spec, err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "schedule", s.spec, "next_run", job.NextRun())
	return nil
}

// Stop cancels in-flight runs and stops scheduling new ones.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Info("scheduled run starting")
	if err := s.run(ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err)
		return
	}
	s.logger.Info("scheduled run finished")
}
