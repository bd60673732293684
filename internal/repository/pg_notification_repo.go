package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/pigeonpost/internal/domain"
)

const notificationColumns = `id, source_type, source_id, render_method, recipient_id, recipient_method,
	       scheduled_for, pending, sent_at, success_count, failure_count, created_at, updated_at`

type pgNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewPgNotificationRepository returns a NotificationRepository backed by PostgreSQL.
func NewPgNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepository{pool: pool}
}

// Upsert relies on the partial unique index notifications_pending_identity;
// the conflict target must repeat its expressions exactly.
func (r *pgNotificationRepository) Upsert(ctx context.Context, n *domain.Notification) (bool, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO notifications
			(id, source_type, source_id, render_method, recipient_id, recipient_method,
			 scheduled_for, pending, success_count, failure_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE,0,0,$8,$8)
		ON CONFLICT (source_type, COALESCE(source_id, ''), render_method,
		             COALESCE(recipient_id, ''), COALESCE(recipient_method, ''))
		WHERE pending
		DO UPDATE SET scheduled_for = EXCLUDED.scheduled_for, updated_at = EXCLUDED.updated_at
		RETURNING `+notificationColumns+`, (xmax = 0) AS inserted`,
		n.ID, n.Source.Type, nullStr(n.Source.ID), n.RenderMethod, n.RecipientID, n.RecipientMethod,
		n.ScheduledFor, n.CreatedAt,
	)

	var inserted bool
	stored, err := scanNotification(row, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert notification: %w", err)
	}
	*n = *stored
	return inserted, nil
}

func (r *pgNotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return n, err
}

func (r *pgNotificationRepository) List(ctx context.Context, f domain.NotificationFilter) ([]*domain.Notification, int, error) {
	var w whereBuilder
	if f.Pending != nil {
		w.add("pending = $%d", *f.Pending)
	}
	if f.SourceType != nil {
		w.add("source_type = $%d", *f.SourceType)
	}
	where, args := w.build()

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`SELECT %s FROM notifications%s
		ORDER BY scheduled_for DESC, id
		LIMIT $%d OFFSET $%d`, notificationColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications, err := scanNotifications(rows)
	return notifications, total, err
}

func (r *pgNotificationRepository) FindPending(ctx context.Context, dueBy *time.Time) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE pending
		  AND ($1::timestamptz IS NULL OR scheduled_for <= $1)
		ORDER BY scheduled_for ASC, id`, dueBy)
	if err != nil {
		return nil, fmt.Errorf("find pending notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *pgNotificationRepository) Complete(ctx context.Context, id string, successDelta, failureDelta int, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET pending = FALSE,
		    sent_at = $2,
		    success_count = success_count + $3,
		    failure_count = failure_count + $4,
		    updated_at = $2
		WHERE id = $1`, id, sentAt, successDelta, failureDelta)
	if err != nil {
		return fmt.Errorf("complete notification: %w", err)
	}
	return nil
}

func (r *pgNotificationRepository) AddCounts(ctx context.Context, id string, successDelta, failureDelta int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET success_count = success_count + $2,
		    failure_count = failure_count + $3,
		    updated_at = NOW()
		WHERE id = $1`, id, successDelta, failureDelta)
	if err != nil {
		return fmt.Errorf("update notification counts: %w", err)
	}
	return nil
}

func (r *pgNotificationRepository) CancelAllPending(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET pending = FALSE, updated_at = NOW() WHERE pending`)
	if err != nil {
		return 0, fmt.Errorf("cancel pending notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgNotificationRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE pending`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending notifications: %w", err)
	}
	return n, nil
}

// ---- helpers ----

// scanNotification reads a single notification row from any pgx row type.
// extra receives any columns selected after the notification columns.
func scanNotification(row pgx.Row, extra ...any) (*domain.Notification, error) {
	var (
		n        domain.Notification
		sourceID *string
	)
	dest := []any{
		&n.ID, &n.Source.Type, &sourceID, &n.RenderMethod, &n.RecipientID, &n.RecipientMethod,
		&n.ScheduledFor, &n.Pending, &n.SentAt, &n.SuccessCount, &n.FailureCount,
		&n.CreatedAt, &n.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if sourceID != nil {
		n.Source.ID = *sourceID
	}
	return &n, nil
}

func scanNotifications(rows pgx.Rows) ([]*domain.Notification, error) {
	var result []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// whereBuilder builds a parameterised WHERE clause from optional filters.
type whereBuilder struct {
	conditions []string
	args       []any
}

func (w *whereBuilder) add(condition string, val any) {
	w.args = append(w.args, val)
	w.conditions = append(w.conditions, fmt.Sprintf(condition, len(w.args)))
}

func (w *whereBuilder) build() (string, []any) {
	if len(w.conditions) == 0 {
		return "", w.args
	}
	return " WHERE " + strings.Join(w.conditions, " AND "), w.args
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
