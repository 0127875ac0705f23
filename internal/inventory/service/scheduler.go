package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// Redeliverer retries event deliveries that failed after their commit.
type Redeliverer interface {
	Redeliver(ctx context.Context) (delivered, failed int)
}

// Scheduler triggers the periodic jobs: bulk demand normalization, cleanup,
// alert scans and redelivery of failed events. Each job runs once at start
// and then on its interval.
type Scheduler struct {
	demand      *DemandService
	cleanup     *CleanupService
	alerts      *AlertService
	redeliverer Redeliverer
	cfg         config.SchedulerConfig
	window      int
	logger      *logger.Logger
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewScheduler creates a scheduler. Nothing runs until Start. A nil
// redeliverer disables the redelivery job.
func NewScheduler(demand *DemandService, cleanup *CleanupService, alerts *AlertService, redeliverer Redeliverer, cfg config.SchedulerConfig, demandWindowDays int, log *logger.Logger) *Scheduler {
	return &Scheduler{
		demand:      demand,
		cleanup:     cleanup,
		alerts:      alerts,
		redeliverer: redeliverer,
		cfg:         cfg,
		window:      demandWindowDays,
		logger:      log.WithComponent("scheduler"),
	}
}

// Start launches one goroutine per job.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(actor.WithActor(ctx, actor.SystemActor()))

	s.every(ctx, "normalize", s.cfg.NormalizeInterval, func(ctx context.Context) (*BatchReport, error) {
		return s.demand.NormalizeAll(ctx, s.window)
	})
	s.every(ctx, "cleanup", s.cfg.CleanupInterval, s.cleanup.Run)
	s.every(ctx, "alert_scan", s.cfg.ScanInterval, s.alerts.Scan)
	if s.redeliverer != nil {
		s.every(ctx, "redeliver", s.cfg.RedeliverInterval, s.redeliver)
	}
}

// redeliver retries parked event deliveries. Events that still fail stay
// parked for the next run.
func (s *Scheduler) redeliver(ctx context.Context) (*BatchReport, error) {
	c := newBatchCollector("redeliver", time.Now().UTC())
	delivered, failed := s.redeliverer.Redeliver(ctx)
	for i := 0; i < delivered; i++ {
		c.success(1, 0)
	}
	if failed > 0 {
		c.failure("parked", fmt.Errorf("%d deliveries still failing", failed))
	}
	return c.finish(time.Now().UTC()), nil
}

// Stop cancels the loops and waits for a running job to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, job func(context.Context) (*BatchReport, error)) {
	if interval <= 0 {
		s.logger.Info().Str("job", name).Msg("job disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info().Str("job", name).Dur("interval", interval).Msg("job scheduled")

		s.run(ctx, name, job)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Str("job", name).Msg("job stopped")
				return
			case <-ticker.C:
				s.run(ctx, name, job)
			}
		}
	}()
}

func (s *Scheduler) run(ctx context.Context, name string, job func(context.Context) (*BatchReport, error)) {
	start := time.Now()
	report, err := job(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Msg("scheduled job failed")
		return
	}
	ev := s.logger.Info()
	if report.Processed == 0 {
		ev = s.logger.Debug()
	}
	ev.
		Str("job", name).
		Int("processed", report.Processed).
		Int("failed", report.Failed()).
		Dur("duration", time.Since(start)).
		Msg("scheduled job completed")
}
