package invoice

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Filter narrows a history listing.
type Filter struct {
	Query  string
	Limit  int
	Offset int
}

// Summary aggregates the invoice history.
type Summary struct {
	Count     int             `json:"count"`
	Completed int             `json:"completed"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// Repository stores finalized invoices. NextNumber is monotonic; numbers taken by
// failed finalizes are not reused, so gaps are expected.
type Repository interface {
	NextNumber(ctx context.Context) (int64, error)
	Save(ctx context.Context, inv Invoice) error
	Get(ctx context.Context, number int64) (Invoice, error)
	List(ctx context.Context, f Filter) ([]Invoice, int, error)
	Summary(ctx context.Context) (Summary, error)
}

// MemoryRepository keeps invoices in process.
type MemoryRepository struct {
	mu       sync.RWMutex
	last     int64
	invoices map[int64]Invoice
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{invoices: make(map[int64]Invoice)}
}

// NextNumber returns the next invoice number.
func (r *MemoryRepository) NextNumber(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	return r.last, nil
}

// Save stores inv.
func (r *MemoryRepository) Save(_ context.Context, inv Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.invoices == nil {
		r.invoices = make(map[int64]Invoice)
	}
	if _, exists := r.invoices[inv.Number]; exists {
		return fmt.Errorf("%s: %w", inv.Code(), ErrDuplicateNumber)
	}
	inv.Lines = append([]Line(nil), inv.Lines...)
	r.invoices[inv.Number] = inv
	return nil
}

// Get returns the invoice with number.
func (r *MemoryRepository) Get(_ context.Context, number int64) (Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invoices[number]
	if !ok {
		return Invoice{}, fmt.Errorf("%s: %w", FormatCode(number), ErrNotFound)
	}
	inv.Lines = append([]Line(nil), inv.Lines...)
	return inv, nil
}

// List returns matching invoices newest first, plus the total match count.
func (r *MemoryRepository) List(_ context.Context, f Filter) ([]Invoice, int, error) {
	r.mu.RLock()
	matched := make([]Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		if inv.Matches(f.Query) {
			matched = append(matched, inv)
		}
	}
	r.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool { return matched[i].Number > matched[j].Number })
	total := len(matched)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return matched[start:end], total, nil
}

// Summary aggregates counts and revenue.
func (r *MemoryRepository) Summary(context.Context) (Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Summary{Revenue: decimal.Zero}
	for _, inv := range r.invoices {
		s.Count++
		if inv.Status == StatusFinalized {
			s.Completed++
			s.Revenue = s.Revenue.Add(inv.NetTotal)
		}
	}
	return s, nil
}
