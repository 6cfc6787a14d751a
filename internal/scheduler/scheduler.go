// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const sweepTimeout = 30 * time.Second

// SessionSweeper deletes expired sessions and reports how many it removed.
type SessionSweeper interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper SessionSweeper
	logger  *slog.Logger
}

// New schedules the session sweep on spec, a standard cron expression or a
// descriptor such as "@every 15m".
func New(spec string, sweeper SessionSweeper, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper: sweeper,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.SweepSessions(context.Background()) }); err != nil {
		return nil, fmt.Errorf("scheduler: invalid session sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop prevents new runs and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// SweepSessions runs one sweep. Errors are logged; the next run retries.
func (s *Scheduler) SweepSessions(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	n, err := s.sweeper.SweepExpiredSessions(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", slog.Int64("count", n))
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
