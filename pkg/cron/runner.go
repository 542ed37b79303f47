// Package cron runs periodic maintenance jobs on a seconds-resolution
// schedule.
package cron

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	applogger "AnimaRex/pkg/logger"
)

type Runner struct {
	cron    *cron.Cron
	logger  *applogger.Logger
	baseCtx context.Context
}

// New builds a runner whose jobs receive baseCtx.
func New(logger *applogger.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add schedules job under a six-field spec. A panicking job is logged and
// the schedule keeps running.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("cron job panicked",
					applogger.String("job", name),
					applogger.Any("panic", rec),
				)
			}
		}()
		job(r.baseCtx)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	r.logger.Info("cron job scheduled", applogger.String("job", name), applogger.String("spec", spec))
	return id, nil
}

// Len is the number of scheduled jobs.
func (r *Runner) Len() int { return len(r.cron.Entries()) }

func (r *Runner) Start() {
	r.logger.Info("cron started")
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
