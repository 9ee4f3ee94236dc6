// Package cron runs the periodic housekeeping jobs of the auction service:
// the lifecycle status sweep and the presence stale-viewer cleanup.
package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner wraps a seconds-resolution cron scheduler.  Jobs receive the
// runner's base context and are skipped while a previous run of the same job
// is still in progress.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

// New returns a stopped runner.
func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under a six-field spec.  Each run gets a context bounded
// by timeout when timeout is positive.
func (r *Runner) Add(name, spec string, timeout time.Duration, job func(context.Context) error) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		ctx := r.baseCtx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		started := time.Now()
		if err := job(ctx); err != nil {
			r.logger.Warn("cron job failed", zap.String("job", name), zap.Error(err))
			return
		}
		r.logger.Debug("cron job done", zap.String("job", name), zap.Duration("took", time.Since(started)))
	})
}

// Start launches the scheduler in its own goroutine.
func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
