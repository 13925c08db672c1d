package backup

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a backup on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *slog.Logger
}

// NewScheduler registers a backup job on spec, a standard five-field cron
// expression or a descriptor such as "@daily".
func NewScheduler(service *Service, spec string) (*Scheduler, error) {
	logger := slog.Default().With("system", "cron")
	cronLogger := cronLog{logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		service: service,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, err
	}
	logger.Info("backup job registered", "schedule", spec)
	return s, nil
}

func (s *Scheduler) run() {
	if _, err := s.service.Run(context.Background()); err != nil {
		s.logger.Error("scheduled backup failed", "err", err)
	}
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running backup to finish or ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// cronLog adapts an slog logger to cron.Logger.
type cronLog struct {
	logger *slog.Logger
}

func (l cronLog) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLog) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}
