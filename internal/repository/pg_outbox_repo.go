package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/pigeonpost/internal/domain"
)

const outboxColumns = `id, notification_id, recipient_id, payload, succeeded, failure_count,
	       sent_at, last_error, created_at`

type pgOutboxRepository struct {
	pool *pgxpool.Pool
}

// NewPgOutboxRepository returns an OutboxRepository backed by PostgreSQL.
func NewPgOutboxRepository(pool *pgxpool.Pool) OutboxRepository {
	return &pgOutboxRepository{pool: pool}
}

func (r *pgOutboxRepository) Create(ctx context.Context, e *domain.OutboxEntry) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO outbox
			(id, notification_id, recipient_id, payload, succeeded, failure_count, created_at)
		VALUES ($1,$2,$3,$4,FALSE,0,$5)
		ON CONFLICT (notification_id, recipient_id) DO NOTHING`,
		e.ID, e.NotificationID, e.RecipientID, e.Payload, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert outbox entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgOutboxRepository) Exists(ctx context.Context, notificationID, recipientID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM outbox WHERE notification_id = $1 AND recipient_id = $2)`,
		notificationID, recipientID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check outbox entry: %w", err)
	}
	return exists, nil
}

func (r *pgOutboxRepository) FindUndelivered(ctx context.Context, maxRetries int, notificationID *string) ([]*domain.OutboxEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox
		WHERE NOT succeeded
		  AND failure_count < $1
		  AND ($2::text IS NULL OR notification_id = $2)
		ORDER BY created_at ASC, id`, maxRetries, notificationID)
	if err != nil {
		return nil, fmt.Errorf("find undelivered outbox entries: %w", err)
	}
	defer rows.Close()
	return scanOutboxEntries(rows)
}

// MarkSucceeded and MarkFailed are conditional on the entry still being
// undelivered, so a concurrent dispatcher cannot resurrect a delivered entry.
func (r *pgOutboxRepository) MarkSucceeded(ctx context.Context, id string, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox
		SET succeeded = TRUE, sent_at = $2, last_error = NULL
		WHERE id = $1 AND NOT succeeded`, id, sentAt)
	if err != nil {
		return fmt.Errorf("mark outbox entry sent: %w", err)
	}
	return nil
}

func (r *pgOutboxRepository) MarkFailed(ctx context.Context, id string, sentAt time.Time, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox
		SET failure_count = failure_count + 1, sent_at = $2, last_error = $3
		WHERE id = $1 AND NOT succeeded`, id, sentAt, errMsg)
	if err != nil {
		return fmt.Errorf("mark outbox entry failed: %w", err)
	}
	return nil
}

func (r *pgOutboxRepository) List(ctx context.Context, f domain.OutboxFilter) ([]*domain.OutboxEntry, int, error) {
	var w whereBuilder
	if f.NotificationID != nil {
		w.add("notification_id = $%d", *f.NotificationID)
	}
	if f.Succeeded != nil {
		w.add("succeeded = $%d", *f.Succeeded)
	}
	where, args := w.build()

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM outbox"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count outbox entries: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`SELECT %s FROM outbox%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, outboxColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list outbox entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanOutboxEntries(rows)
	return entries, total, err
}

func (r *pgOutboxRepository) CountUndelivered(ctx context.Context, maxRetries int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE NOT succeeded AND failure_count < $1`, maxRetries).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count undelivered outbox entries: %w", err)
	}
	return n, nil
}

func scanOutboxEntry(row pgx.Row) (*domain.OutboxEntry, error) {
	var e domain.OutboxEntry
	err := row.Scan(
		&e.ID, &e.NotificationID, &e.RecipientID, &e.Payload, &e.Succeeded, &e.FailureCount,
		&e.SentAt, &e.LastError, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanOutboxEntries(rows pgx.Rows) ([]*domain.OutboxEntry, error) {
	var result []*domain.OutboxEntry
	for rows.Next() {
		e, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
