package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MemoryStore keeps medicines in process. Every write runs under one store-wide slot,
// which serializes decrements across medicines; acquiring the slot honours ctx deadlines.
type MemoryStore struct {
	slot  chan struct{}
	items map[string]Medicine
	Now   func() time.Time
}

// NewMemoryStore returns a store seeded with the given medicines.
func NewMemoryStore(seed ...Medicine) *MemoryStore {
	s := &MemoryStore{slot: make(chan struct{}, 1), items: make(map[string]Medicine, len(seed))}
	for _, m := range seed {
		s.items[m.ID] = m
	}
	return s
}

func (s *MemoryStore) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MemoryStore) release() { <-s.slot }

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Get returns the medicine with id.
func (s *MemoryStore) Get(ctx context.Context, id string) (Medicine, error) {
	if err := s.acquire(ctx); err != nil {
		return Medicine{}, err
	}
	defer s.release()
	m, ok := s.items[id]
	if !ok {
		return Medicine{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return m, nil
}

// List returns medicines whose name contains query (case-insensitive), ordered by name.
func (s *MemoryStore) List(ctx context.Context, query string) ([]Medicine, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Medicine, 0, len(s.items))
	for _, m := range s.items {
		if q == "" || strings.Contains(strings.ToLower(m.Name), q) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Upsert inserts or replaces a medicine.
func (s *MemoryStore) Upsert(ctx context.Context, m Medicine) (Medicine, error) {
	if err := m.Validate(); err != nil {
		return Medicine{}, err
	}
	if err := s.acquire(ctx); err != nil {
		return Medicine{}, err
	}
	defer s.release()
	m.UpdatedAt = s.now()
	s.items[m.ID] = m
	return m, nil
}

// Insert adds a medicine unless its id is taken.
func (s *MemoryStore) Insert(ctx context.Context, m Medicine) (Medicine, error) {
	if err := m.Validate(); err != nil {
		return Medicine{}, err
	}
	if err := s.acquire(ctx); err != nil {
		return Medicine{}, err
	}
	defer s.release()
	if _, ok := s.items[m.ID]; ok {
		return Medicine{}, fmt.Errorf("%s: %w", m.ID, ErrDuplicate)
	}
	m.UpdatedAt = s.now()
	s.items[m.ID] = m
	return m, nil
}

// Update applies fn to the stored record under the store slot.
func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*Medicine) error) (Medicine, error) {
	if err := s.acquire(ctx); err != nil {
		return Medicine{}, err
	}
	defer s.release()
	m, ok := s.items[id]
	if !ok {
		return Medicine{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err := fn(&m); err != nil {
		return Medicine{}, err
	}
	m.ID = id
	if err := m.Validate(); err != nil {
		return Medicine{}, err
	}
	m.UpdatedAt = s.now()
	s.items[id] = m
	return m, nil
}

// Delete removes a medicine.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

// DecrementStock checks every adjustment before applying any of them.
func (s *MemoryStore) DecrementStock(ctx context.Context, adjs []StockAdjustment) ([]Medicine, error) {
	totals, order, err := mergeAdjustments(adjs)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	for _, id := range order {
		m, ok := s.items[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if m.StockQty < totals[id] {
			return nil, &InsufficientStockError{MedicineID: id, Requested: totals[id], Available: m.StockQty}
		}
	}
	now := s.now()
	out := make([]Medicine, 0, len(order))
	for _, id := range order {
		m := s.items[id]
		m.StockQty -= totals[id]
		m.UpdatedAt = now
		s.items[id] = m
		out = append(out, m)
	}
	return out, nil
}

// RestoreStock adds the quantities back. Unknown ids are skipped.
func (s *MemoryStore) RestoreStock(ctx context.Context, adjs []StockAdjustment) error {
	totals, order, err := mergeAdjustments(adjs)
	if err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	now := s.now()
	for _, id := range order {
		m, ok := s.items[id]
		if !ok {
			continue
		}
		m.StockQty += totals[id]
		m.UpdatedAt = now
		s.items[id] = m
	}
	return nil
}

// IncrementStock adds packSize × packs units to the medicine.
func (s *MemoryStore) IncrementStock(ctx context.Context, id string, packs int) (Medicine, error) {
	if packs < 1 {
		return Medicine{}, fmt.Errorf("packs must be at least 1: %w", ErrInvalidInput)
	}
	if err := s.acquire(ctx); err != nil {
		return Medicine{}, err
	}
	defer s.release()
	m, ok := s.items[id]
	if !ok {
		return Medicine{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	m.StockQty += m.PackSize * packs
	m.UpdatedAt = s.now()
	s.items[id] = m
	return m, nil
}
