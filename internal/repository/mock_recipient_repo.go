package repository

import (
	"context"
	"sync"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// MockRecipientRepository is the in-memory RecipientRepository used in unit
// tests. Listing order is insertion order.
type MockRecipientRepository struct {
	mu         sync.RWMutex
	recipients []*domain.Recipient

	ListActiveErr error
}

func NewMockRecipientRepository() *MockRecipientRepository {
	return &MockRecipientRepository{}
}

func (m *MockRecipientRepository) Create(_ context.Context, r *domain.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *r
	m.recipients = append(m.recipients, &clone)
	return nil
}

func (m *MockRecipientRepository) GetByID(_ context.Context, id string) (*domain.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.recipients {
		if r.ID == id {
			clone := *r
			return &clone, nil
		}
	}
	return nil, domain.ErrRecipientNotFound
}

func (m *MockRecipientRepository) ListActive(_ context.Context) ([]domain.Recipient, error) {
	if m.ListActiveErr != nil {
		return nil, m.ListActiveErr
	}
	return m.filter(func(r *domain.Recipient) bool { return r.Active }), nil
}

func (m *MockRecipientRepository) ListStaff(_ context.Context) ([]domain.Recipient, error) {
	return m.filter(func(r *domain.Recipient) bool { return r.Active && r.Staff }), nil
}

func (m *MockRecipientRepository) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recipients {
		if r.ID == id {
			r.Active = active
			return nil
		}
	}
	return domain.ErrRecipientNotFound
}

func (m *MockRecipientRepository) filter(keep func(*domain.Recipient) bool) []domain.Recipient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Recipient
	for _, r := range m.recipients {
		if keep(r) {
			result = append(result, *r)
		}
	}
	return result
}
