package repository

import (
	"context"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// RecipientRepository is the directory of users notifications can target.
type RecipientRepository interface {
	Create(ctx context.Context, r *domain.Recipient) error
	GetByID(ctx context.Context, id string) (*domain.Recipient, error)
	ListActive(ctx context.Context) ([]domain.Recipient, error)
	ListStaff(ctx context.Context) ([]domain.Recipient, error)
	SetActive(ctx context.Context, id string, active bool) error
}
