package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// SchedulerWorker triggers a deploy on a cron schedule. A tick that
// arrives while the previous one is still running is skipped.
type SchedulerWorker struct {
	deployer *Deployer
	schedule cron.Schedule
	spec     string
	logger   *zap.Logger
}

// NewSchedulerWorker parses spec with the standard five-field syntax plus
// descriptors such as "@every 1m".
func NewSchedulerWorker(deployer *Deployer, spec string, logger *zap.Logger) (*SchedulerWorker, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse deploy schedule %q: %w", spec, err)
	}
	return &SchedulerWorker{deployer: deployer, schedule: schedule, spec: spec, logger: logger}, nil
}

// Run blocks until ctx is cancelled, then waits for a running deploy to return.
func (sw *SchedulerWorker) Run(ctx context.Context) {
	cl := cronLogger{sw.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(sw.schedule, cron.FuncJob(func() { sw.tick(ctx) }))

	sw.logger.Info("scheduler worker started", zap.String("schedule", sw.spec))
	c.Start()

	<-ctx.Done()
	sw.logger.Info("scheduler worker stopping")
	<-c.Stop().Done()
}

func (sw *SchedulerWorker) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := sw.deployer.Deploy(ctx, DeployOptions{})
	switch {
	case err == nil, errors.Is(err, domain.ErrConcurrentRun):
	case errors.Is(err, context.Canceled):
		sw.logger.Info("scheduled deploy interrupted by shutdown")
	default:
		sw.logger.Error("scheduled deploy failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
