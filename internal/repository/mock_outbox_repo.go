package repository

import (
	"context"
	"sync"
	"time"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// MockOutboxRepository is the in-memory OutboxRepository used in unit tests.
// Entries keep insertion order, which stands in for created_at ordering.
type MockOutboxRepository struct {
	mu      sync.RWMutex
	entries []*domain.OutboxEntry

	// Optional error overrides.
	CreateErr     error
	MarkFailedErr error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Create(_ context.Context, e *domain.OutboxEntry) (bool, error) {
	if m.CreateErr != nil {
		return false, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.NotificationID != nil && m.find(*e.NotificationID, e.RecipientID) != nil {
		return false, nil
	}
	clone := *e
	clone.Succeeded = false
	clone.FailureCount = 0
	m.entries = append(m.entries, &clone)
	return true, nil
}

func (m *MockOutboxRepository) Exists(_ context.Context, notificationID, recipientID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.find(notificationID, recipientID) != nil, nil
}

func (m *MockOutboxRepository) FindUndelivered(_ context.Context, maxRetries int, notificationID *string) ([]*domain.OutboxEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.OutboxEntry
	for _, e := range m.entries {
		if !e.Retryable(maxRetries) {
			continue
		}
		if notificationID != nil && (e.NotificationID == nil || *e.NotificationID != *notificationID) {
			continue
		}
		clone := *e
		result = append(result, &clone)
	}
	return result, nil
}

func (m *MockOutboxRepository) MarkSucceeded(_ context.Context, id string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.byID(id); e != nil && !e.Succeeded {
		e.Succeeded = true
		e.SentAt = &sentAt
		e.LastError = nil
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(_ context.Context, id string, sentAt time.Time, errMsg string) error {
	if m.MarkFailedErr != nil {
		return m.MarkFailedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.byID(id); e != nil && !e.Succeeded {
		e.FailureCount++
		e.SentAt = &sentAt
		e.LastError = &errMsg
	}
	return nil
}

func (m *MockOutboxRepository) List(_ context.Context, f domain.OutboxFilter) ([]*domain.OutboxEntry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.OutboxEntry
	for _, e := range m.entries {
		if f.NotificationID != nil && (e.NotificationID == nil || *e.NotificationID != *f.NotificationID) {
			continue
		}
		if f.Succeeded != nil && e.Succeeded != *f.Succeeded {
			continue
		}
		clone := *e
		result = append(result, &clone)
	}
	return result, len(result), nil
}

func (m *MockOutboxRepository) CountUndelivered(_ context.Context, maxRetries int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.entries {
		if e.Retryable(maxRetries) {
			count++
		}
	}
	return count, nil
}

// All returns a snapshot of every entry in insertion order; test helper.
func (m *MockOutboxRepository) All() []*domain.OutboxEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.OutboxEntry, len(m.entries))
	for i, e := range m.entries {
		clone := *e
		result[i] = &clone
	}
	return result
}

func (m *MockOutboxRepository) find(notificationID, recipientID string) *domain.OutboxEntry {
	for _, e := range m.entries {
		if e.NotificationID != nil && *e.NotificationID == notificationID && e.RecipientID == recipientID {
			return e
		}
	}
	return nil
}

func (m *MockOutboxRepository) byID(id string) *domain.OutboxEntry {
	for _, e := range m.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}
