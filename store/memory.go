package store

import (
	"context"
	"sync"
	"time"

	"pair-engine-go/pairs"
)

var _ PairStore = (*MemoryStore)(nil)

// MemoryStore PairStore 的内存实现，用于测试和 dry-run。
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*pairs.OrderPair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, data: make(map[int64]*pairs.OrderPair)}
}

func (m *MemoryStore) ListPairs(_ context.Context, status pairs.PairStatus) ([]pairs.OrderPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pairs.OrderPair
	for id := int64(1); id < m.nextID; id++ {
		if p, ok := m.data[id]; ok && p.Status == status {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreatePair(_ context.Context, p *pairs.OrderPair) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Status == "" {
		p.Status = pairs.PairActive
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.ID = m.nextID
	m.nextID++
	cp := *p
	m.data[p.ID] = &cp
	return p.ID, nil
}

func (m *MemoryStore) GetPair(_ context.Context, id int64) (*pairs.OrderPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.data[id]
	if !ok {
		return nil, ErrPairNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdatePair(_ context.Context, id int64, d pairs.Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok {
		return ErrPairNotFound
	}
	if d.PairStatus != nil && *d.PairStatus == pairs.PairActive && p.Status == pairs.PairCompleted {
		return ErrPairCompleted
	}
	d.Apply(p)
	p.UpdatedAt = time.Now().UTC()
	return nil
}
