package repository

import (
	"context"
	"time"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// OutboxRepository persists staged per-recipient messages.
type OutboxRepository interface {
	// Create inserts e. It returns false without error when an entry for the
	// same (notification, recipient) pair already exists.
	Create(ctx context.Context, e *domain.OutboxEntry) (bool, error)
	Exists(ctx context.Context, notificationID, recipientID string) (bool, error)

	// FindUndelivered returns entries not yet delivered whose failure count is
	// below maxRetries, oldest first, optionally scoped to one notification.
	FindUndelivered(ctx context.Context, maxRetries int, notificationID *string) ([]*domain.OutboxEntry, error)
	MarkSucceeded(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, sentAt time.Time, errMsg string) error

	List(ctx context.Context, filter domain.OutboxFilter) ([]*domain.OutboxEntry, int, error)
	CountUndelivered(ctx context.Context, maxRetries int) (int, error)
}
