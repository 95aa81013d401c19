package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore keeps subscriptions in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[string]Subscription
}

// NewMemoryStore is TryNewMemoryStore but panics on an invalid seed.
func NewMemoryStore(subs ...Subscription) *MemoryStore {
	m, err := TryNewMemoryStore(subs...)
	if err != nil {
		panic(err)
	}
	return m
}

// TryNewMemoryStore returns a store seeded with subs. A seed without a
// subscription id, or one repeating an earlier id, is an error.
func TryNewMemoryStore(subs ...Subscription) (*MemoryStore, error) {
	m := &MemoryStore{subs: make(map[string]Subscription)}
	for i, sub := range subs {
		if _, err := m.Create(context.Background(), sub); err != nil {
			return nil, fmt.Errorf("seed subscription %d: %w", i, err)
		}
	}
	return m, nil
}

func (m *MemoryStore) FindSubscription(_ context.Context, subscriptionID string) (Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[strings.TrimSpace(subscriptionID)]
	if !ok {
		return Subscription{}, ErrNotFound
	}
	return sub, nil
}

func (m *MemoryStore) Create(_ context.Context, sub Subscription) (Subscription, error) {
	sub.SubscriptionID = strings.TrimSpace(sub.SubscriptionID)
	if sub.SubscriptionID == "" {
		return Subscription{}, fmt.Errorf("subscription id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.subs[sub.SubscriptionID]; exists {
		return Subscription{}, fmt.Errorf("subscription %q already exists", sub.SubscriptionID)
	}
	m.nextID++
	if sub.ID == 0 {
		sub.ID = m.nextID
	}
	m.subs[sub.SubscriptionID] = sub
	return sub, nil
}

func (m *MemoryStore) Delete(_ context.Context, subscriptionID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[subscriptionID]; !ok {
		return ErrNotFound
	}
	delete(m.subs, subscriptionID)
	return nil
}

// Len returns the number of stored subscriptions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}
