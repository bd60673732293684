package news

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// Repository stores news items and the set of subscribed recipients.
type Repository interface {
	Save(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id string) (*Item, error)
	SetSubscribed(ctx context.Context, recipientID string, subscribed bool) error
	IsSubscribed(ctx context.Context, recipientID string) (bool, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository returns a Repository backed by PostgreSQL.
func NewPgRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Save(ctx context.Context, item *Item) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO news (id, subject, body, published, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
		ON CONFLICT (id) DO UPDATE SET
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			published = EXCLUDED.published,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`,
		item.ID, item.Subject, item.Body, item.Published, item.UpdatedAt,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save news: %w", err)
	}
	return nil
}

func (r *pgRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	var it Item
	err := r.pool.QueryRow(ctx, `
		SELECT id, subject, body, published, created_at, updated_at
		FROM news WHERE id = $1`, id,
	).Scan(&it.ID, &it.Subject, &it.Body, &it.Published, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get news: %w", err)
	}
	return &it, nil
}

func (r *pgRepository) SetSubscribed(ctx context.Context, recipientID string, subscribed bool) error {
	var err error
	if subscribed {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO news_subscriptions (recipient_id) VALUES ($1)
			ON CONFLICT (recipient_id) DO NOTHING`, recipientID)
	} else {
		_, err = r.pool.Exec(ctx, `DELETE FROM news_subscriptions WHERE recipient_id = $1`, recipientID)
	}
	if err != nil {
		return fmt.Errorf("update news subscription: %w", err)
	}
	return nil
}

func (r *pgRepository) IsSubscribed(ctx context.Context, recipientID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM news_subscriptions WHERE recipient_id = $1)`, recipientID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check news subscription: %w", err)
	}
	return ok, nil
}
