// Package scheduler runs LostLine's background maintenance on a cron
// schedule: PENDING reports older than the configured age are marked
// UNCLAIMED, and sessions idle past their TTL are pruned.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/robfig/cron/v3"
)

// MaintenanceStore is the storage surface the scheduler needs.
type MaintenanceStore interface {
	ExpirePendingReports(ctx context.Context, cutoff time.Time) (int64, error)
	PruneSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls the maintenance job.
type Config struct {
	// Schedule is a cron expression or shorthand ("@daily", "@every 6h").
	Schedule string

	// UnclaimedAfter is how long a PENDING report stays open.
	UnclaimedAfter time.Duration

	// SessionTTL is how long an idle session is kept.
	SessionTTL time.Duration
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cfg    Config
	store  MaintenanceStore
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
}

// New creates a scheduler.
func New(cfg Config, store MaintenanceStore, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}
	return &Scheduler{
		cfg:    cfg,
		store:  store,
		cron:   cron.New(),
		logger: logger.With("component", "scheduler"),
	}
}

// Start registers the maintenance job and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.runMaintenance); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.logger.Info("maintenance scheduled", "schedule", s.cfg.Schedule)
	return nil
}

// Stop halts the cron runner, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

// runMaintenance executes one maintenance pass.
func (s *Scheduler) runMaintenance() {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
	defer cancel()

	now := time.Now()

	if s.cfg.UnclaimedAfter > 0 {
		n, err := s.store.ExpirePendingReports(ctx, now.Add(-s.cfg.UnclaimedAfter))
		if err != nil {
			s.logger.Error("failed to expire pending reports", "error", err)
		} else if n > 0 {
			s.logger.Info("expired pending reports to UNCLAIMED", "count", n)
		}
	}

	if s.cfg.SessionTTL > 0 {
		n, err := s.store.PruneSessions(ctx, now.Add(-s.cfg.SessionTTL))
		if err != nil {
			s.logger.Error("failed to prune sessions", "error", err)
		} else if n > 0 {
			s.logger.Info("pruned idle sessions", "count", n)
		}
	}
}
