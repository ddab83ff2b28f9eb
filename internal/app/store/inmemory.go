package store

import (
	"context"
	"sync"

	"github.com/aseptimu/matchup-votes/internal/app/service"
)

// InMemoryStore хранит голоса только в памяти процесса.
// Tally внутри data никогда не меняются на месте: инкремент кладёт новую копию.
type InMemoryStore struct {
	data map[string]service.Tally
	mu   sync.RWMutex
}

func NewStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]service.Tally),
	}
}

func (m *InMemoryStore) Dump(_ context.Context) (map[string]service.Tally, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneData(m.data), nil
}

func (m *InMemoryStore) Get(_ context.Context, key string) (service.Tally, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key].Clone(), nil
}

func (m *InMemoryStore) Increment(_ context.Context, key, choice string) (service.Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.data[key].Clone()
	next[choice]++
	m.data[key] = next
	return next.Clone(), nil
}

func (m *InMemoryStore) NormalizeKeys(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, changed := normalizeData(m.data)
	m.data = data
	return changed, nil
}

func (m *InMemoryStore) Ping(_ context.Context) error {
	return nil
}

func (m *InMemoryStore) Close() error {
	return nil
}

func cloneData(data map[string]service.Tally) map[string]service.Tally {
	out := make(map[string]service.Tally, len(data))
	for key, tally := range data {
		out[key] = tally.Clone()
	}
	return out
}
