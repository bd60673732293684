package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/payload"
	"github.com/ricirt/pigeonpost/internal/repository"
	"github.com/ricirt/pigeonpost/internal/source"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// NotificationService is the producer-facing side of the queue: enqueueing,
// inspection, panic-stop and ad-hoc sends. HTTP handlers, the news write
// path and the CLI depend on this service, not on the repositories.
type NotificationService struct {
	notifications repository.NotificationRepository
	outbox        repository.OutboxRepository
	recipients    repository.RecipientRepository
	registry      *source.Registry
	logger        *zap.Logger
	now           func() time.Time
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	outbox repository.OutboxRepository,
	recipients repository.RecipientRepository,
	registry *source.Registry,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		outbox:        outbox,
		recipients:    recipients,
		registry:      registry,
		logger:        logger,
		now:           time.Now,
	}
}

// Enqueue stores a notification. While one with the same source, render
// method and recipient selector is still pending, only its scheduled_for is
// moved to this request's value; the bool result is false in that case.
func (s *NotificationService) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.Notification, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	if err := s.registry.Check(req.Source); err != nil {
		return nil, false, err
	}
	method := req.Method()
	if _, err := s.registry.Renderer(req.Source.Type, method); err != nil {
		return nil, false, err
	}
	if req.RecipientMethod != nil {
		if _, err := s.registry.RecipientMethod(req.Source.Type, *req.RecipientMethod); err != nil {
			return nil, false, err
		}
	}
	if req.RecipientID != nil {
		if _, err := s.recipients.GetByID(ctx, *req.RecipientID); err != nil {
			return nil, false, err
		}
	}

	now := s.now().UTC()
	n := &domain.Notification{
		ID:              uuid.NewString(),
		Source:          req.Source,
		RenderMethod:    method,
		RecipientID:     req.RecipientID,
		RecipientMethod: req.RecipientMethod,
		ScheduledFor:    req.ScheduleAt(now),
		Pending:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.notifications.Upsert(ctx, n)
	if err != nil {
		return nil, false, fmt.Errorf("persist notification: %w", err)
	}

	s.logger.Debug("notification enqueued",
		zap.String("id", n.ID),
		zap.String("source_type", n.Source.Type),
		zap.String("source_id", n.Source.ID),
		zap.String("render_method", n.RenderMethod),
		zap.Time("scheduled_for", n.ScheduledFor),
		zap.Bool("created", created),
	)
	return n, created, nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	return s.notifications.GetByID(ctx, id)
}

func (s *NotificationService) List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, int, error) {
	filter.Page, filter.Limit = page(filter.Page, filter.Limit)
	return s.notifications.List(ctx, filter)
}

// CancelAllPending closes every pending notification without rendering.
// Entries already in the outbox are unaffected.
func (s *NotificationService) CancelAllPending(ctx context.Context) (int64, error) {
	n, err := s.notifications.CancelAllPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("cancel pending notifications: %w", err)
	}
	s.logger.Warn("cancelled all pending notifications", zap.Int64("count", n))
	return n, nil
}

// SendNow stages msg for recipientID directly in the outbox. The next
// dispatch delivers it like any other entry.
func (s *NotificationService) SendNow(ctx context.Context, recipientID string, msg *domain.Message) (*domain.OutboxEntry, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.recipients.GetByID(ctx, recipientID); err != nil {
		return nil, err
	}

	blob, err := payload.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	e := &domain.OutboxEntry{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Payload:     blob,
		CreatedAt:   s.now().UTC(),
	}
	if _, err := s.outbox.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("persist outbox entry: %w", err)
	}
	return e, nil
}

func (s *NotificationService) ListOutbox(ctx context.Context, filter domain.OutboxFilter) ([]*domain.OutboxEntry, int, error) {
	filter.Page, filter.Limit = page(filter.Page, filter.Limit)
	return s.outbox.List(ctx, filter)
}

func (s *NotificationService) CreateRecipient(ctx context.Context, req domain.CreateRecipientRequest) (*domain.Recipient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r := &domain.Recipient{
		ID:        uuid.NewString(),
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Active:    true,
		Staff:     req.Staff,
		CreatedAt: s.now().UTC(),
	}
	if err := s.recipients.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("persist recipient: %w", err)
	}
	return r, nil
}

func page(p, limit int) (int, int) {
	if p < 1 {
		p = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return p, limit
}
