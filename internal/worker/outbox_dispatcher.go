package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/payload"
	"github.com/ricirt/pigeonpost/internal/ratelimiter"
	"github.com/ricirt/pigeonpost/internal/repository"
	"github.com/ricirt/pigeonpost/internal/transport"
)

// DispatcherHooks carries the metric callbacks injected by main.
type DispatcherHooks struct {
	OnSent   func(latency time.Duration)
	OnFailed func()
}

// DispatcherOptions configures an OutboxDispatcher.
type DispatcherOptions struct {
	// SinkAddress, when set, replaces every recipient of every message.
	SinkAddress string
	// DialRetries is how many times a failed Dial is retried before the
	// batch is abandoned.
	DialRetries uint64
	// DialBackoff is the first wait between dial attempts; it grows
	// exponentially after that.
	DialBackoff time.Duration
}

// DispatchOptions scopes one Dispatch call.
type DispatchOptions struct {
	MaxRetries     int
	NotificationID *string
}

// DispatchReport summarises one Dispatch call.
type DispatchReport struct {
	Selected int
	Sent     int
	Failed   int
}

// OutboxDispatcher delivers staged outbox entries over one transport
// connection per run.
type OutboxDispatcher struct {
	outbox    repository.OutboxRepository
	transport transport.Transport
	limiter   *ratelimiter.KeyedLimiters
	opts      DispatcherOptions
	logger    *zap.Logger
	now       func() time.Time

	onSent   func(time.Duration)
	onFailed func()
}

// NewOutboxDispatcher constructs a dispatcher. Hook fields may be nil.
func NewOutboxDispatcher(
	outbox repository.OutboxRepository,
	tr transport.Transport,
	limiter *ratelimiter.KeyedLimiters,
	opts DispatcherOptions,
	logger *zap.Logger,
	hooks DispatcherHooks,
) *OutboxDispatcher {
	if hooks.OnSent == nil {
		hooks.OnSent = func(time.Duration) {}
	}
	if hooks.OnFailed == nil {
		hooks.OnFailed = func() {}
	}
	if opts.DialBackoff <= 0 {
		opts.DialBackoff = 500 * time.Millisecond
	}
	return &OutboxDispatcher{
		outbox: outbox, transport: tr, limiter: limiter,
		opts: opts, logger: logger, now: time.Now,
		onSent: hooks.OnSent, onFailed: hooks.OnFailed,
	}
}

// Dispatch attempts every undelivered entry with failure_count below
// opts.MaxRetries. Per-entry transport failures are recorded on the entry
// and do not stop the batch. If no connection can be opened the batch is
// abandoned untouched and the error wraps domain.ErrTransportUnavailable.
func (d *OutboxDispatcher) Dispatch(ctx context.Context, opts DispatchOptions) (DispatchReport, error) {
	var report DispatchReport

	entries, err := d.outbox.FindUndelivered(ctx, opts.MaxRetries, opts.NotificationID)
	if err != nil {
		return report, fmt.Errorf("find undelivered entries: %w", err)
	}
	report.Selected = len(entries)
	if len(entries) == 0 {
		return report, nil
	}

	conn, err := d.dial(ctx)
	if err != nil {
		d.logger.Error("transport unavailable, batch abandoned",
			zap.Int("entries", len(entries)), zap.Error(err))
		return report, fmt.Errorf("%w: %w", domain.ErrTransportUnavailable, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			d.logger.Warn("failed to close transport connection", zap.Error(err))
		}
	}()

	for _, e := range entries {
		sent, err := d.deliver(ctx, conn, e)
		if err != nil {
			return report, err
		}
		if sent {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	d.logger.Info("outbox dispatched",
		zap.Int("selected", report.Selected),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Bool("sink", d.opts.SinkAddress != ""),
	)
	return report, nil
}

func (d *OutboxDispatcher) dial(ctx context.Context) (transport.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.DialBackoff
	b.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(b, d.opts.DialRetries), ctx)
	return backoff.RetryNotifyWithData(func() (transport.Conn, error) {
		return d.transport.Dial(ctx)
	}, policy, func(err error, wait time.Duration) {
		d.logger.Warn("transport dial failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
}

// deliver makes one attempt for e. The returned error is non-nil only when
// ctx is done; delivery failures are recorded and reported as sent=false.
func (d *OutboxDispatcher) deliver(ctx context.Context, conn transport.Conn, e *domain.OutboxEntry) (bool, error) {
	log := d.logger.With(
		zap.String("entry_id", e.ID),
		zap.String("recipient_id", e.RecipientID),
		zap.Int("attempt", e.FailureCount+1),
	)
	if e.NotificationID != nil {
		log = log.With(zap.String("notification_id", *e.NotificationID))
	}

	msg, err := payload.Decode(e.Payload)
	if err != nil {
		d.recordFailure(ctx, log, e, fmt.Errorf("decode payload: %w", err))
		return false, nil
	}
	if d.opts.SinkAddress != "" {
		msg.Reroute(d.opts.SinkAddress)
	}

	var key string
	if rcpts := msg.Recipients(); len(rcpts) > 0 {
		key = domain.AddressDomain(rcpts[0])
	}
	if err := d.limiter.Wait(ctx, key); err != nil {
		return false, err
	}

	start := time.Now()
	if err := conn.Send(ctx, msg); err != nil {
		d.recordFailure(ctx, log, e, err)
		return false, nil
	}
	elapsed := time.Since(start)

	if err := d.outbox.MarkSucceeded(ctx, e.ID, d.now().UTC()); err != nil {
		log.Error("failed to mark entry as sent", zap.Error(err))
		return true, nil
	}
	d.onSent(elapsed)
	log.Info("entry delivered", zap.Duration("latency", elapsed))
	return true, nil
}

func (d *OutboxDispatcher) recordFailure(ctx context.Context, log *zap.Logger, e *domain.OutboxEntry, cause error) {
	log.Warn("delivery failed", zap.Error(cause))
	d.onFailed()
	if err := d.outbox.MarkFailed(ctx, e.ID, d.now().UTC(), cause.Error()); err != nil {
		log.Error("failed to record delivery failure", zap.Error(err))
	}
}
