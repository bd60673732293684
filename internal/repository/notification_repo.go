package repository

import (
	"context"
	"time"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// NotificationRepository defines all persistence operations for the
// notification queue. The pgx implementation is in pg_notification_repo.go.
// Tests use a hand-written mock (mock_notification_repo.go).
type NotificationRepository interface {
	// Upsert stores n unless a pending notification with the same identity
	// exists, in which case only that one's scheduled_for is moved to
	// n.ScheduledFor. n is overwritten with the stored row. The bool is true
	// when a new row was inserted.
	Upsert(ctx context.Context, n *domain.Notification) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, int, error)

	// FindPending returns pending notifications in scheduled_for order.
	// A nil dueBy selects every pending notification regardless of schedule.
	FindPending(ctx context.Context, dueBy *time.Time) ([]*domain.Notification, error)

	// Complete marks a notification terminal and adds the counter deltas.
	Complete(ctx context.Context, id string, successDelta, failureDelta int, sentAt time.Time) error
	// AddCounts adds counter deltas without changing pending state.
	AddCounts(ctx context.Context, id string, successDelta, failureDelta int) error

	CancelAllPending(ctx context.Context) (int64, error)
	CountPending(ctx context.Context) (int, error)
}
