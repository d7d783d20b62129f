// Package scheduler runs periodic batch refreshes of the metrics cache.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"perfmetrics/internal/engine"
	"perfmetrics/internal/store"
)

// Refresher recomputes metrics for a list of symbols.
type Refresher interface {
	RefreshAll(ctx context.Context, symbols []string) engine.BatchResult
}

// Scheduler triggers a refresh of a fixed symbol list on a cron schedule and
// sweeps expired cache rows afterwards.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	sweeper   store.Sweeper
	symbols   []string
	running   sync.Mutex
	ctx       context.Context
	log       *slog.Logger
}

// New creates a Scheduler. sweeper may be nil. Cron expressions carry a
// seconds field and are evaluated in loc.
func New(ctx context.Context, r Refresher, sweeper store.Sweeper, symbols []string, loc *time.Location, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		refresher: r,
		sweeper:   sweeper,
		symbols:   symbols,
		ctx:       ctx,
		log:       log.With("component", "scheduler"),
	}
}

// Register adds the refresh job on schedule.
func (s *Scheduler) Register(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.RunNow() }); err != nil {
		return fmt.Errorf("register refresh job %q: %w", schedule, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "symbols", len(s.symbols))
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow runs one refresh cycle immediately. It reports false without
// running when a cycle is already in progress.
func (s *Scheduler) RunNow() (engine.BatchResult, bool) {
	if !s.running.TryLock() {
		s.log.Warn("refresh already running, skipping")
		return engine.BatchResult{}, false
	}
	defer s.running.Unlock()

	if len(s.symbols) == 0 {
		s.log.Debug("no symbols configured")
		return engine.BatchResult{}, true
	}

	res := s.refresher.RefreshAll(s.ctx, s.symbols)
	if len(res.Failures) > 0 {
		s.log.Warn("scheduled refresh finished with failures",
			"run", res.RunID,
			"ok", len(res.Results),
			"failures", res.Failures,
		)
	}

	if s.sweeper != nil {
		n, err := s.sweeper.DeleteExpired(s.ctx)
		if err != nil {
			s.log.Error("cache sweep failed", "err", err)
		} else if n > 0 {
			s.log.Info("swept expired cache entries", "removed", n)
		}
	}
	return res, true
}
