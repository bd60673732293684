package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// MockNotificationRepository is a hand-written, in-memory implementation of
// NotificationRepository used in unit tests. No mock-generation library needed.
type MockNotificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification

	// Optional error overrides, set in tests to simulate failure paths.
	UpsertErr      error
	FindPendingErr error
	CompleteErr    error
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{notifications: make(map[string]*domain.Notification)}
}

func (m *MockNotificationRepository) Upsert(_ context.Context, n *domain.Notification) (bool, error) {
	if m.UpsertErr != nil {
		return false, m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := n.Key()
	for _, existing := range m.notifications {
		if existing.Pending && existing.Key() == key {
			existing.ScheduledFor = n.ScheduledFor
			existing.UpdatedAt = n.CreatedAt
			*n = *existing
			return false, nil
		}
	}
	clone := *n
	clone.Pending = true
	clone.SentAt = nil
	clone.SuccessCount, clone.FailureCount = 0, 0
	clone.UpdatedAt = clone.CreatedAt
	m.notifications[n.ID] = &clone
	*n = clone
	return true, nil
}

func (m *MockNotificationRepository) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (m *MockNotificationRepository) List(_ context.Context, f domain.NotificationFilter) ([]*domain.Notification, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Notification
	for _, n := range m.notifications {
		if f.Pending != nil && n.Pending != *f.Pending {
			continue
		}
		if f.SourceType != nil && n.Source.Type != *f.SourceType {
			continue
		}
		clone := *n
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledFor.After(result[j].ScheduledFor) })
	return result, len(result), nil
}

func (m *MockNotificationRepository) FindPending(_ context.Context, dueBy *time.Time) ([]*domain.Notification, error) {
	if m.FindPendingErr != nil {
		return nil, m.FindPendingErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Notification
	for _, n := range m.notifications {
		if !n.Pending || (dueBy != nil && !n.IsDue(*dueBy)) {
			continue
		}
		clone := *n
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ScheduledFor.Equal(result[j].ScheduledFor) {
			return result[i].ID < result[j].ID
		}
		return result[i].ScheduledFor.Before(result[j].ScheduledFor)
	})
	return result, nil
}

func (m *MockNotificationRepository) Complete(_ context.Context, id string, successDelta, failureDelta int, sentAt time.Time) error {
	if m.CompleteErr != nil {
		return m.CompleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.notifications[id]; ok {
		n.Pending = false
		n.SentAt = &sentAt
		n.SuccessCount += successDelta
		n.FailureCount += failureDelta
		n.UpdatedAt = sentAt
	}
	return nil
}

func (m *MockNotificationRepository) AddCounts(_ context.Context, id string, successDelta, failureDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.notifications[id]; ok {
		n.SuccessCount += successDelta
		n.FailureCount += failureDelta
	}
	return nil
}

func (m *MockNotificationRepository) CancelAllPending(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cancelled int64
	for _, n := range m.notifications {
		if n.Pending {
			n.Pending = false
			cancelled++
		}
	}
	return cancelled, nil
}

func (m *MockNotificationRepository) CountPending(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.notifications {
		if n.Pending {
			count++
		}
	}
	return count, nil
}

// All returns a snapshot of every stored notification; test helper.
func (m *MockNotificationRepository) All() []*domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		clone := *n
		result = append(result, &clone)
	}
	return result
}
