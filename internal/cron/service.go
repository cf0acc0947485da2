// Package cron runs the periodic maintenance jobs of the cron worker: the
// stale-budget reminder and outbox retention. One worker at a time holds the
// Redis lease and runs a full cycle.
package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lease    Lease
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout caps a single job; zero leaves it bounded only by shutdown.
	JobTimeout time.Duration
}

type Service struct {
	logg       *logger.Logger
	jobs       []Job
	lease      Lease
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// cycleReport summarizes one pass over the registry.
type cycleReport struct {
	skipped bool
	holder  string
	ran     int
	failed  int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lease == nil {
		return nil, errors.New("lease required")
	}
	if params.Registry == nil || len(params.Registry.Jobs()) == 0 {
		return nil, errors.New("at least one cron job required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:       params.Logger,
		jobs:       params.Registry.Jobs(),
		lease:      params.Lease,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: params.JobTimeout,
	}, nil
}

// Run executes a cycle immediately and then once per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		report, err := s.cycle(ctx)
		s.logCycle(ctx, report, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) cycle(ctx context.Context) (cycleReport, error) {
	var report cycleReport
	ok, err := s.lease.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("acquire cron lease: %w", err)
	}
	if !ok {
		report.skipped = true
		report.holder, _ = s.lease.Holder(ctx)
		return report, nil
	}
	defer func() {
		// release on a fresh context so shutdown does not strand the lease
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.lease.Release(releaseCtx); err != nil {
			s.logg.Error(ctx, "cron.lease_release_failed", err)
		}
	}()

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			break
		}
		report.ran++
		if err := s.runJob(ctx, job); err != nil {
			report.failed++
		}
	}
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.metrics.Observe(job.Name(), elapsed, err)

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron job failed", err)
		return err
	}
	s.logg.Info(ctx, "cron job completed")
	return nil
}

func (s *Service) logCycle(ctx context.Context, report cycleReport, err error) {
	if err != nil {
		s.logg.Error(ctx, "cron cycle failed", err)
		return
	}
	if report.skipped {
		s.logg.Info(s.logg.WithField(ctx, "lease_holder", report.holder), "cron lease held elsewhere, skipping cycle")
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs_run":    report.ran,
		"jobs_failed": report.failed,
	}), "cron cycle complete")
}
