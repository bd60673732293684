package news

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// Enqueuer is the trigger side of the notification queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.Notification, bool, error)
}

// Service is the write path for news items. Saving a published item
// enqueues its notifications explicitly.
type Service struct {
	repo   Repository
	queue  Enqueuer
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, queue Enqueuer, logger *zap.Logger) *Service {
	return &Service{repo: repo, queue: queue, logger: logger, now: time.Now}
}

// Save stores the item. When it is published, subscribers are scheduled
// PublishDelay out and staff immediately. Saving again while those are
// pending pushes the subscriber mail back rather than duplicating it.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*Item, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	it := &Item{
		ID:        req.ID,
		Subject:   req.Subject,
		Body:      req.Body,
		Published: req.Published,
		UpdatedAt: s.now().UTC(),
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if err := s.repo.Save(ctx, it); err != nil {
		return nil, err
	}

	if !it.Published {
		return it, nil
	}

	ref := domain.SourceRef{Type: SourceType, ID: it.ID}
	delay := PublishDelay
	staff := RecipientsStaff
	for _, req := range []domain.EnqueueRequest{
		{Source: ref, DeferFor: &delay},
		{Source: ref, RenderMethod: RenderModerators, RecipientMethod: &staff},
	} {
		n, _, err := s.queue.Enqueue(ctx, req)
		if err != nil {
			return it, fmt.Errorf("enqueue %s notification: %w", req.Method(), err)
		}
		s.logger.Info("news notification queued",
			zap.String("news_id", it.ID),
			zap.String("notification_id", n.ID),
			zap.String("render_method", n.RenderMethod),
			zap.Time("scheduled_for", n.ScheduledFor),
		)
	}
	return it, nil
}

// Subscribe toggles whether recipientID receives news mail.
func (s *Service) Subscribe(ctx context.Context, recipientID string, subscribed bool) error {
	return s.repo.SetSubscribed(ctx, recipientID, subscribed)
}
