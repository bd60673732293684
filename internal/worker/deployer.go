package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/lock"
	"github.com/ricirt/pigeonpost/internal/repository"
)

// Deploy results passed to DeployHooks.OnRun.
const (
	ResultOK         = "ok"
	ResultDryRun     = "dry_run"
	ResultConcurrent = "concurrent"
	ResultError      = "error"
)

// DeployHooks carries the metric callbacks injected by main.
type DeployHooks struct {
	OnRun     func(result string)
	OnBacklog func(pending, undelivered int)
}

// DeployOptions mirrors the operator flags of a deploy run.
type DeployOptions struct {
	Force  bool
	DryRun bool
}

// DeployReport is the combined result of both pipeline stages.
type DeployReport struct {
	Queue    QueueReport
	Dispatch DispatchReport
}

// Deployer runs the queue processor and then the outbox dispatcher while
// holding a cross-process lock, so overlapping invocations never interleave.
type Deployer struct {
	locker        lock.Locker
	lockName      string
	processor     *QueueProcessor
	dispatcher    *OutboxDispatcher
	notifications repository.NotificationRepository
	outbox        repository.OutboxRepository
	maxRetries    int
	logger        *zap.Logger

	onRun     func(string)
	onBacklog func(int, int)
}

func NewDeployer(
	locker lock.Locker,
	lockName string,
	processor *QueueProcessor,
	dispatcher *OutboxDispatcher,
	notifications repository.NotificationRepository,
	outbox repository.OutboxRepository,
	maxRetries int,
	logger *zap.Logger,
	hooks DeployHooks,
) *Deployer {
	if hooks.OnRun == nil {
		hooks.OnRun = func(string) {}
	}
	if hooks.OnBacklog == nil {
		hooks.OnBacklog = func(int, int) {}
	}
	return &Deployer{
		locker: locker, lockName: lockName,
		processor: processor, dispatcher: dispatcher,
		notifications: notifications, outbox: outbox,
		maxRetries: maxRetries, logger: logger,
		onRun: hooks.OnRun, onBacklog: hooks.OnBacklog,
	}
}

// Deploy never waits for the lock. When another run holds it the returned
// error wraps domain.ErrConcurrentRun and nothing is touched. The lock is
// released on every path once acquired.
func (d *Deployer) Deploy(ctx context.Context, opts DeployOptions) (report DeployReport, err error) {
	lease, err := d.locker.TryAcquire(ctx, d.lockName)
	if errors.Is(err, domain.ErrConcurrentRun) {
		d.logger.Info("another deploy holds the lock, exiting", zap.String("lock", d.lockName))
		d.onRun(ResultConcurrent)
		return report, err
	}
	if err != nil {
		d.onRun(ResultError)
		return report, fmt.Errorf("acquire deploy lock: %w", err)
	}

	log := d.logger.With(
		zap.String("lock_owner", lease.Owner()),
		zap.Bool("force", opts.Force),
		zap.Bool("dry_run", opts.DryRun),
	)
	defer func() {
		if rerr := lease.Release(context.Background()); rerr != nil {
			log.Error("failed to release deploy lock", zap.Error(rerr))
		}
	}()

	log.Info("deploy started")

	var errs []error
	report.Queue, err = d.processor.Process(ctx, ProcessOptions{Force: opts.Force, DryRun: opts.DryRun})
	if err != nil {
		// A failed render stops only its own notification; the outbox is
		// still dispatched.
		if !errors.Is(err, domain.ErrRender) {
			d.finish(ctx, log, ResultError)
			return report, fmt.Errorf("process queue: %w", err)
		}
		errs = append(errs, fmt.Errorf("process queue: %w", err))
	}

	if opts.DryRun {
		d.onRun(ResultDryRun)
		log.Info("dry run finished", zap.Int("would_stage", report.Queue.EntriesCreated))
		return report, errors.Join(errs...)
	}

	report.Dispatch, err = d.dispatcher.Dispatch(ctx, DispatchOptions{MaxRetries: d.maxRetries})
	if err != nil {
		errs = append(errs, fmt.Errorf("dispatch outbox: %w", err))
	}
	if len(errs) > 0 {
		d.finish(ctx, log, ResultError)
		return report, errors.Join(errs...)
	}

	d.finish(ctx, log, ResultOK)
	log.Info("deploy finished",
		zap.Int("entries_created", report.Queue.EntriesCreated),
		zap.Int("sent", report.Dispatch.Sent),
		zap.Int("failed", report.Dispatch.Failed),
	)
	return report, nil
}

func (d *Deployer) finish(ctx context.Context, log *zap.Logger, result string) {
	d.onRun(result)

	pending, err := d.notifications.CountPending(ctx)
	if err != nil {
		log.Warn("failed to count pending notifications", zap.Error(err))
		return
	}
	undelivered, err := d.outbox.CountUndelivered(ctx, d.maxRetries)
	if err != nil {
		log.Warn("failed to count undelivered entries", zap.Error(err))
		return
	}
	d.onBacklog(pending, undelivered)
}
