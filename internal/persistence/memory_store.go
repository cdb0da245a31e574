package persistence

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/petrijr/durable/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe HistoryStore backed by a map.
// Read returns a copy of the stored slice.
type InMemoryStore struct {
	mu        sync.RWMutex
	histories map[string][]api.HistoryEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		histories: make(map[string][]api.HistoryEvent),
	}
}

// Ensure InMemoryStore implements HistoryStore.
var _ HistoryStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) Create(ctx context.Context, instanceID string, started api.HistoryEvent) error {
	if err := checkStarted(started); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.histories[instanceID]; ok {
		return api.ErrInstanceExists
	}
	s.histories[instanceID] = append([]api.HistoryEvent{started})
	return nil
}

func (s *InMemoryStore) Append(ctx context.Context, instanceID string, events ...api.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.histories[instanceID]
	if !ok {
		return api.ErrInstanceNotFound
	}
	s.histories[instanceID] = append(h, events...)
	return nil
}

func (s *InMemoryStore) Read(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.histories[instanceID]
	if !ok {
		return nil, api.ErrInstanceNotFound
	}
	return slices.Clone(h), nil
}

func (s *InMemoryStore) Reset(ctx context.Context, instanceID string, started api.HistoryEvent, carried ...api.HistoryEvent) error {
	if err := checkStarted(started); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.histories[instanceID]; !ok {
		return api.ErrInstanceNotFound
	}
	s.histories[instanceID] = append([]api.HistoryEvent{started}, carried...)
	return nil
}

func (s *InMemoryStore) ListInstances(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.histories))
	for id := range s.histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
