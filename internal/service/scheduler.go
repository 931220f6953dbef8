package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

type ticker interface {
	Tick(ctx context.Context)
	Wait()
}

// Scheduler triggers the settlement worker on a cron schedule. Ticks fire on time even
// while transfers from earlier ticks are still in flight.
type Scheduler struct {
	cron     *cron.Cron
	worker   ticker
	schedule string
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewScheduler(worker ticker, schedule string, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger))),
		worker:   worker,
		schedule: schedule,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.schedule, func() { s.worker.Tick(s.ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("Scheduler.Start: schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("settlement worker scheduled", "schedule", s.schedule)
	return nil
}

// Stop halts new ticks, cancels in-flight dispatches and waits for their outcomes to
// be recorded.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	if s.cancel != nil {
		s.cancel()
	}
	s.worker.Wait()
	s.logger.Info("settlement worker stopped")
}
