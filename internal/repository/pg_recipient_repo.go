package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/pigeonpost/internal/domain"
)

const recipientColumns = `id, email, first_name, last_name, is_active, is_staff, created_at`

type pgRecipientRepository struct {
	pool *pgxpool.Pool
}

// NewPgRecipientRepository returns a RecipientRepository backed by PostgreSQL.
func NewPgRecipientRepository(pool *pgxpool.Pool) RecipientRepository {
	return &pgRecipientRepository{pool: pool}
}

func (r *pgRecipientRepository) Create(ctx context.Context, rc *domain.Recipient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recipients (id, email, first_name, last_name, is_active, is_staff, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rc.ID, rc.Email, rc.FirstName, rc.LastName, rc.Active, rc.Staff, rc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recipient: %w", err)
	}
	return nil
}

func (r *pgRecipientRepository) GetByID(ctx context.Context, id string) (*domain.Recipient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recipientColumns+` FROM recipients WHERE id = $1`, id)
	rc, err := scanRecipient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRecipientNotFound
	}
	return rc, err
}

func (r *pgRecipientRepository) ListActive(ctx context.Context) ([]domain.Recipient, error) {
	return r.list(ctx, `SELECT `+recipientColumns+` FROM recipients WHERE is_active ORDER BY created_at, id`)
}

func (r *pgRecipientRepository) ListStaff(ctx context.Context) ([]domain.Recipient, error) {
	return r.list(ctx, `SELECT `+recipientColumns+` FROM recipients WHERE is_active AND is_staff ORDER BY created_at, id`)
}

func (r *pgRecipientRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE recipients SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("update recipient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecipientNotFound
	}
	return nil
}

func (r *pgRecipientRepository) list(ctx context.Context, query string) ([]domain.Recipient, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var result []domain.Recipient
	for rows.Next() {
		rc, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rc)
	}
	return result, rows.Err()
}

func scanRecipient(row pgx.Row) (*domain.Recipient, error) {
	var rc domain.Recipient
	err := row.Scan(&rc.ID, &rc.Email, &rc.FirstName, &rc.LastName, &rc.Active, &rc.Staff, &rc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rc, nil
}
