package news

import (
	"context"
	"sync"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// MockRepository is the in-memory Repository used in unit tests.
type MockRepository struct {
	mu          sync.RWMutex
	items       map[string]*Item
	subscribers map[string]bool
}

func NewMockRepository() *MockRepository {
	return &MockRepository{items: make(map[string]*Item), subscribers: make(map[string]bool)}
}

func (m *MockRepository) Save(_ context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.items[item.ID]; ok {
		item.CreatedAt = existing.CreatedAt
	} else {
		item.CreatedAt = item.UpdatedAt
	}
	clone := *item
	m.items[item.ID] = &clone
	return nil
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *it
	return &clone, nil
}

// Delete removes an item; test helper for the missing-source path.
func (m *MockRepository) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
}

func (m *MockRepository) SetSubscribed(_ context.Context, recipientID string, subscribed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subscribed {
		m.subscribers[recipientID] = true
	} else {
		delete(m.subscribers, recipientID)
	}
	return nil
}

func (m *MockRepository) IsSubscribed(_ context.Context, recipientID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subscribers[recipientID], nil
}
