package store

import (
	"context"
	"sort"
	"sync"

	"github.com/stevemurr/stac-server/stac"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*stac.Collection
	items       map[string]map[string]*stac.Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*stac.Collection),
		items:       make(map[string]map[string]*stac.Item),
	}
}

func (m *MemoryStore) CreateCollection(_ context.Context, c *stac.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[c.ID]; ok {
		return ErrConflict
	}
	m.collections[c.ID] = c.Clone()
	return nil
}

func (m *MemoryStore) UpdateCollection(_ context.Context, c *stac.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[c.ID] = c.Clone()
	return nil
}

func (m *MemoryStore) GetCollection(_ context.Context, id string) (*stac.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *MemoryStore) ListCollections(_ context.Context) ([]*stac.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*stac.Collection, 0, len(m.collections))
	for _, c := range m.collections {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteCollection(_ context.Context, id string) (*stac.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.collections, id)
	delete(m.items, id)
	return c, nil
}

func (m *MemoryStore) CreateItem(_ context.Context, it *stac.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[it.Collection]; !ok {
		return ErrNotFound
	}
	coll := m.items[it.Collection]
	if coll == nil {
		coll = make(map[string]*stac.Item)
		m.items[it.Collection] = coll
	}
	if _, exists := coll[it.ID]; exists {
		return ErrConflict
	}
	coll[it.ID] = it.Clone()
	return nil
}

func (m *MemoryStore) UpdateItem(_ context.Context, it *stac.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[it.Collection]; !ok {
		return ErrNotFound
	}
	if _, ok := m.items[it.Collection]; !ok {
		m.items[it.Collection] = make(map[string]*stac.Item)
	}
	m.items[it.Collection][it.ID] = it.Clone()
	return nil
}

func (m *MemoryStore) GetItem(_ context.Context, collection, id string) (*stac.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return it.Clone(), nil
}

func (m *MemoryStore) DeleteItem(_ context.Context, collection, id string) (*stac.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.items[collection], id)
	return it, nil
}

func (m *MemoryStore) Search(_ context.Context, s *stac.Search) (*Result, error) {
	m.mu.RLock()
	var all []*stac.Item
	for _, coll := range m.items {
		for _, it := range coll {
			all = append(all, it.Clone())
		}
	}
	m.mu.RUnlock()
	return searchInProcess(all, s), nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
