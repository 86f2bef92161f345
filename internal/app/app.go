// Package app orchestrates startup: config, store, sweep loop and HTTP.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"gradebook/internal/config"
	"gradebook/internal/logger"
	"gradebook/internal/scheduler"
	"gradebook/internal/scorer"
	"gradebook/internal/store/gormstore"
	apihttp "gradebook/internal/transport/http/api"
)

type App struct {
	cfg    *config.Config
	store  *gormstore.GormStore
	scorer *scorer.Scorer
	http   *apihttp.Server
}

// NewApp builds the application from config without starting anything.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildApp(cfg)
}

// Run starts the HTTP server and the aligned checkpoint sweep, blocking
// until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.store.Close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		interval := a.cfg.Scorer.SweepIntervalDuration()
		sched := scheduler.NewAlignedScheduler(ctx, interval,
			time.Duration(a.cfg.Scorer.OffsetSeconds)*time.Second)
		sched.RunImmediately = a.cfg.Scorer.RunImmediately
		sched.Start(func() {
			stats := a.scorer.Sweep(ctx)
			logger.Infof("sweep done scanned=%d advanced=%d graded=%d failures=%d contracts=%d",
				stats.Scanned, stats.Advanced, stats.Graded, stats.Failures, stats.Contracts)
		})
		a.scorer.WaitSyncs()
		return nil
	})

	logger.Infof("gradebook up env=%s http=%s store=%s sweep=%s",
		a.cfg.App.Env, a.cfg.App.HTTPAddr, a.cfg.Store.Path, a.cfg.Scorer.SweepInterval)
	return group.Wait()
}
