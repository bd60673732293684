package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/payload"
	"github.com/ricirt/pigeonpost/internal/recipient"
	"github.com/ricirt/pigeonpost/internal/repository"
	"github.com/ricirt/pigeonpost/internal/source"
)

// RenderFailurePolicy decides what a renderer error does to its notification.
type RenderFailurePolicy string

const (
	// RenderAbort stops the current notification; it stays pending and the
	// run moves on to the next one.
	RenderAbort RenderFailurePolicy = "abort"
	// RenderSkip counts the failure and moves on to the next recipient.
	RenderSkip RenderFailurePolicy = "skip"
)

// Outcome labels passed to ProcessorHooks.OnProcessed.
const (
	OutcomeCompleted = "completed"
	OutcomeTerminal  = "terminal"
	OutcomeAborted   = "aborted"
)

// ProcessorHooks carries the metric callbacks injected by main.
type ProcessorHooks struct {
	OnProcessed    func(outcome string)
	OnEntryCreated func()
}

// ProcessOptions selects which notifications a run picks up.
type ProcessOptions struct {
	// Force selects every pending notification, due or not.
	Force bool
	// DryRun renders and logs but writes nothing.
	DryRun bool
}

// QueueReport summarises one Process call.
type QueueReport struct {
	Selected       int
	Completed      int
	Terminal       int
	EntriesCreated int
	Duplicates     int
	Declined       int
	RenderFailures int
	OverLimit      int
}

// QueueProcessor turns due notifications into outbox entries, one per
// recipient, and closes them.
type QueueProcessor struct {
	notifications  repository.NotificationRepository
	outbox         repository.OutboxRepository
	registry       *source.Registry
	resolver       *recipient.Resolver
	policy         RenderFailurePolicy
	recipientLimit int
	maxRetries     int
	logger         *zap.Logger
	now            func() time.Time

	onProcessed    func(string)
	onEntryCreated func()
}

// NewQueueProcessor constructs a processor. recipientLimit caps the recipients
// handled across one whole run; 0 means no cap. A notification whose
// failure_count reaches maxRetries after an aborted render is closed as
// failed; 0 means no ceiling.
func NewQueueProcessor(
	notifications repository.NotificationRepository,
	outbox repository.OutboxRepository,
	registry *source.Registry,
	resolver *recipient.Resolver,
	policy RenderFailurePolicy,
	recipientLimit int,
	maxRetries int,
	logger *zap.Logger,
	hooks ProcessorHooks,
) *QueueProcessor {
	if hooks.OnProcessed == nil {
		hooks.OnProcessed = func(string) {}
	}
	if hooks.OnEntryCreated == nil {
		hooks.OnEntryCreated = func() {}
	}
	if policy == "" {
		policy = RenderAbort
	}
	return &QueueProcessor{
		notifications: notifications, outbox: outbox,
		registry: registry, resolver: resolver,
		policy: policy, recipientLimit: recipientLimit, maxRetries: maxRetries,
		logger: logger, now: time.Now,
		onProcessed: hooks.OnProcessed, onEntryCreated: hooks.OnEntryCreated,
	}
}

// runState is shared by every notification of one Process call.
type runState struct {
	opts   ProcessOptions
	now    time.Time
	budget int
	report QueueReport
	log    *zap.Logger
}

func (s *runState) limited(limit int) bool {
	if limit <= 0 {
		return false
	}
	if s.budget >= limit {
		return true
	}
	s.budget++
	return false
}

// Process handles pending notifications in ascending scheduled_for order.
// A notification whose source or explicit recipient is gone is closed as
// failed and the run continues. Under RenderAbort a renderer error stops
// only its own notification; the run continues and the returned error joins
// every such failure, each wrapping domain.ErrRender.
func (p *QueueProcessor) Process(ctx context.Context, opts ProcessOptions) (QueueReport, error) {
	st := &runState{opts: opts, now: p.now().UTC(), log: p.logger}
	if opts.DryRun {
		st.log = p.logger.Named("dryrun")
	}

	var dueBy *time.Time
	if !opts.Force {
		dueBy = &st.now
	}
	pending, err := p.notifications.FindPending(ctx, dueBy)
	if err != nil {
		return st.report, fmt.Errorf("find pending notifications: %w", err)
	}
	st.report.Selected = len(pending)

	var renderErrs []error
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return st.report, err
		}
		err := p.processOne(ctx, st, n)
		if errors.Is(err, domain.ErrRender) {
			renderErrs = append(renderErrs, err)
			continue
		}
		if err != nil {
			return st.report, err
		}
	}

	st.log.Info("queue processed",
		zap.Bool("force", opts.Force),
		zap.Int("selected", st.report.Selected),
		zap.Int("completed", st.report.Completed),
		zap.Int("terminal", st.report.Terminal),
		zap.Int("entries_created", st.report.EntriesCreated),
		zap.Int("declined", st.report.Declined),
		zap.Int("render_failures", st.report.RenderFailures),
	)
	return st.report, errors.Join(renderErrs...)
}

// terminal reports errors after which a notification can never succeed.
func terminal(err error) bool {
	return errors.Is(err, domain.ErrMissingSource) ||
		errors.Is(err, domain.ErrRecipientNotFound) ||
		errors.Is(err, domain.ErrUnknownSourceType) ||
		errors.Is(err, domain.ErrUnknownRenderMethod) ||
		errors.Is(err, domain.ErrUnknownRecipientFunc)
}

func (p *QueueProcessor) processOne(ctx context.Context, st *runState, n *domain.Notification) error {
	log := st.log.With(
		zap.String("notification_id", n.ID),
		zap.String("source_type", n.Source.Type),
		zap.String("source_id", n.Source.ID),
		zap.String("render_method", n.RenderMethod),
	)

	src, err := p.registry.Load(ctx, n.Source)
	if err != nil {
		return p.closeIfTerminal(ctx, st, log, n, fmt.Errorf("load source: %w", err))
	}
	render, err := p.registry.Renderer(n.Source.Type, n.RenderMethod)
	if err != nil {
		return p.closeIfTerminal(ctx, st, log, n, err)
	}
	recipients, err := p.resolver.Resolve(ctx, n, src)
	if err != nil {
		return p.closeIfTerminal(ctx, st, log, n, fmt.Errorf("resolve recipients: %w", err))
	}

	var success, failure int
	for _, rc := range recipients {
		rlog := log.With(zap.String("recipient_id", rc.ID))

		if st.limited(p.recipientLimit) {
			st.report.OverLimit++
			rlog.Debug("recipient limit reached, skipping")
			continue
		}

		msg, err := render(ctx, src, rc)
		var blob []byte
		if err == nil && msg != nil {
			blob, err = payload.Encode(msg)
		}
		if err != nil {
			failure++
			st.report.RenderFailures++
			if st.opts.DryRun || p.policy == RenderSkip {
				rlog.Error("render failed, skipping recipient", zap.Error(err))
				continue
			}
			return p.abort(ctx, st, log, n, rc, success, failure, err)
		}

		if msg == nil {
			st.report.Declined++
			rlog.Debug("renderer declined recipient")
			continue
		}

		if st.opts.DryRun {
			st.report.EntriesCreated++
			rlog.Debug("would stage message",
				zap.String("subject", msg.Subject),
				zap.Strings("to", msg.To),
			)
			continue
		}

		created, err := p.stage(ctx, n, rc, blob, st.now)
		if err != nil {
			return err
		}
		if !created {
			st.report.Duplicates++
			rlog.Debug("outbox entry already exists")
			continue
		}
		success++
		st.report.EntriesCreated++
		p.onEntryCreated()
	}

	if st.opts.DryRun {
		log.Debug("would complete notification", zap.Int("recipients", len(recipients)))
		return nil
	}

	if err := p.notifications.Complete(ctx, n.ID, success, failure, st.now); err != nil {
		return fmt.Errorf("complete notification %s: %w", n.ID, err)
	}
	st.report.Completed++
	p.onProcessed(OutcomeCompleted)
	log.Info("notification processed",
		zap.Int("success_count", n.SuccessCount+success),
		zap.Int("failure_count", n.FailureCount+failure),
	)
	return nil
}

// stage writes the outbox entry unless one already exists for the pair.
func (p *QueueProcessor) stage(ctx context.Context, n *domain.Notification, rc domain.Recipient, blob []byte, now time.Time) (bool, error) {
	exists, err := p.outbox.Exists(ctx, n.ID, rc.ID)
	if err != nil {
		return false, fmt.Errorf("check outbox entry: %w", err)
	}
	if exists {
		return false, nil
	}

	nid := n.ID
	created, err := p.outbox.Create(ctx, &domain.OutboxEntry{
		ID:             uuid.NewString(),
		NotificationID: &nid,
		RecipientID:    rc.ID,
		Payload:        blob,
		CreatedAt:      now,
	})
	if err != nil {
		return false, fmt.Errorf("create outbox entry: %w", err)
	}
	return created, nil
}

func (p *QueueProcessor) closeIfTerminal(ctx context.Context, st *runState, log *zap.Logger, n *domain.Notification, cause error) error {
	if !terminal(cause) {
		return fmt.Errorf("notification %s: %w", n.ID, cause)
	}

	st.report.Terminal++
	if st.opts.DryRun {
		log.Warn("would close notification as failed", zap.Error(cause))
		return nil
	}

	log.Warn("closing notification as failed", zap.Error(cause))
	if err := p.notifications.Complete(ctx, n.ID, 0, 1, st.now); err != nil {
		return fmt.Errorf("close notification %s: %w", n.ID, err)
	}
	p.onProcessed(OutcomeTerminal)
	return nil
}

func (p *QueueProcessor) abort(
	ctx context.Context,
	st *runState,
	log *zap.Logger,
	n *domain.Notification,
	rc domain.Recipient,
	success, failure int,
	cause error,
) error {
	renderErr := fmt.Errorf("notification %s recipient %s: %w: %w", n.ID, rc.ID, domain.ErrRender, cause)
	failures := n.FailureCount + failure

	if p.maxRetries > 0 && failures >= p.maxRetries {
		log.Error("render failed too often, closing notification as failed",
			zap.String("recipient_id", rc.ID),
			zap.Int("failure_count", failures),
			zap.Error(cause),
		)
		if err := p.notifications.Complete(ctx, n.ID, success, failure, st.now); err != nil {
			return fmt.Errorf("close notification %s: %w", n.ID, err)
		}
		st.report.Terminal++
		p.onProcessed(OutcomeTerminal)
		return renderErr
	}

	log.Error("render failed, aborting notification",
		zap.String("recipient_id", rc.ID),
		zap.Int("staged", success),
		zap.Int("failure_count", failures),
		zap.Error(cause),
	)
	if err := p.notifications.AddCounts(ctx, n.ID, success, failure); err != nil {
		log.Error("failed to persist partial counts", zap.Error(err))
	}
	p.onProcessed(OutcomeAborted)
	return renderErr
}
