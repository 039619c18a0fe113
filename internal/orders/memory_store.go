package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
)

// MemoryStore is an in-process Store used for offline demos and tests. It
// merges repeated adds of the same product the way the backend does.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string][]Line
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: map[string][]Line{}, now: time.Now}
}

func (s *MemoryStore) Fetch(_ context.Context, tableID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.orders[tableID]
	if !ok {
		return Order{}, pkgerrors.New(pkgerrors.CodeNotFound, "no order for table")
	}
	return Order{TableID: tableID, Lines: cloneLines(lines), Source: SourceRemote}, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.orders))
	for id, lines := range s.orders {
		out = append(out, Order{TableID: id, Lines: cloneLines(lines), Source: SourceRemote})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableID < out[j].TableID })
	return out, nil
}

func (s *MemoryStore) AddItem(_ context.Context, tableID string, line Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.orders[tableID]
	if idx := find(lines, line.ProductID); idx >= 0 {
		lines[idx].Quantity += line.Quantity
	} else {
		lines = append(lines, line)
	}
	s.orders[tableID] = lines
	return nil
}

func (s *MemoryStore) UpdateItem(_ context.Context, tableID, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.orders[tableID]
	idx := find(lines, productID)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "item not in order")
	}
	lines[idx].Quantity = quantity
	return nil
}

func (s *MemoryStore) RemoveItem(_ context.Context, tableID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.orders[tableID]
	idx := find(lines, productID)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "item not in order")
	}
	s.orders[tableID] = append(lines[:idx], lines[idx+1:]...)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, tableID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, tableID)
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, tableID string) (Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.orders[tableID]) == 0 {
		return Completion{}, pkgerrors.New(pkgerrors.CodeNotFound, "no order for table")
	}
	delete(s.orders, tableID)
	return Completion{TableID: FlexibleID(tableID), Completed: true, Timestamp: s.now().UnixMilli()}, nil
}
