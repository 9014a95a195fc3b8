package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-apotek/internal/common"
	"github.com/noah-isme/backend-apotek/internal/events"
	"github.com/noah-isme/backend-apotek/internal/obs"
)

// Service fronts a Store with the read cache, operation timeouts and restock rules.
type Service struct {
	store     Store
	cache     *Cache
	threshold int
	timeout   time.Duration
	events    *events.Bus
	log       zerolog.Logger
	// writes counts invalidations; Lookup compares it around a store read to
	// avoid caching a record that a concurrent write already replaced.
	writes atomic.Uint64
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store             Store
	Cache             *Cache
	LowStockThreshold int
	// Timeout bounds every store call; exceeding it yields a retryable error.
	Timeout time.Duration
	Events  *events.Bus
	Logger  *zerolog.Logger
}

// RestockResult reports the effect of a restock.
type RestockResult struct {
	Medicine      Medicine `json:"medicine"`
	PreviousStock int      `json:"previousStock"`
	UnitsAdded    int      `json:"unitsAdded"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	threshold := cfg.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "catalog").Logger()
	}
	return &Service{store: cfg.Store, cache: cfg.Cache, threshold: threshold, timeout: timeout, events: cfg.Events, log: logger}, nil
}

// LowStockThreshold returns the configured threshold.
func (s *Service) LowStockThreshold() int { return s.threshold }

// Lookup returns a medicine, served from the cache when possible. Cached records may lag
// stock by up to the cache TTL; callers needing exact stock go through the store writes.
func (s *Service) Lookup(ctx context.Context, id string) (Medicine, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Medicine{}, fmt.Errorf("id is required: %w", ErrNotFound)
	}
	var cached Medicine
	if ok, err := s.cache.GetJSON(ctx, medicineKey(id), &cached); err != nil {
		s.log.Warn().Err(err).Str("medicine_id", id).Msg("catalog cache read failed")
	} else if ok {
		return cached, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	seen := s.writes.Load()
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return Medicine{}, transient(err)
	}
	if err := s.cache.SetJSON(ctx, medicineKey(id), m); err != nil {
		s.log.Warn().Err(err).Str("medicine_id", id).Msg("catalog cache write failed")
	} else if s.writes.Load() != seen {
		// a write landed while we read; its invalidation may have run before our set
		if err := s.cache.Delete(context.WithoutCancel(ctx), medicineKey(id)); err != nil {
			s.log.Warn().Err(err).Str("medicine_id", id).Msg("catalog cache invalidation failed")
		}
	}
	return m, nil
}

// Search lists medicines whose name contains q.
func (s *Service) Search(ctx context.Context, q string) ([]Medicine, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.store.List(ctx, q)
	return out, transient(err)
}

// LowStock lists medicines below the low-stock threshold, out-of-stock ones included.
func (s *Service) LowStock(ctx context.Context) ([]Medicine, error) {
	all, err := s.Search(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]Medicine, 0, len(all))
	for _, m := range all {
		if m.StockStatus(s.threshold) != StatusInStock {
			out = append(out, m)
		}
	}
	return out, nil
}

// Upsert writes a medicine and drops its cache entry.
func (s *Service) Upsert(ctx context.Context, m Medicine) (Medicine, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.store.Upsert(ctx, m)
	if err != nil {
		return Medicine{}, transient(err)
	}
	s.invalidate(ctx, m.ID)
	return out, nil
}

// Create adds a new medicine. An empty id is filled with a generated one.
func (s *Service) Create(ctx context.Context, m Medicine) (Medicine, error) {
	m.ID = strings.TrimSpace(m.ID)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.store.Insert(ctx, m)
	if err != nil {
		return Medicine{}, transient(err)
	}
	s.invalidate(ctx, out.ID)
	s.log.Info().Str("medicine_id", out.ID).Msg("medicine created")
	return out, nil
}

// MedicinePatch lists the fields an edit may change. Nil fields keep their value.
type MedicinePatch struct {
	Name              *string
	UnitSalesPrice    *decimal.Decimal
	UnitPurchasePrice *decimal.Decimal
	PackSize          *int
	StockQty          *int
}

func (p MedicinePatch) apply(m *Medicine) error {
	if p.Name != nil {
		m.Name = strings.TrimSpace(*p.Name)
	}
	if p.UnitSalesPrice != nil {
		m.UnitSalesPrice = *p.UnitSalesPrice
	}
	if p.UnitPurchasePrice != nil {
		m.UnitPurchasePrice = *p.UnitPurchasePrice
	}
	if p.PackSize != nil {
		m.PackSize = *p.PackSize
	}
	if p.StockQty != nil {
		m.StockQty = *p.StockQty
	}
	return nil
}

// Update edits a medicine in place. Stock is only replaced when the patch sets it, so an
// edit racing a sale never restores the pre-sale quantity.
func (s *Service) Update(ctx context.Context, id string, patch MedicinePatch) (Medicine, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.store.Update(ctx, id, patch.apply)
	if err != nil {
		return Medicine{}, transient(err)
	}
	s.invalidate(ctx, id)
	s.log.Info().Str("medicine_id", id).Msg("medicine updated")
	return out, nil
}

// Delete removes a medicine from the catalog. Open drafts holding it fail at finalize.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Delete(ctx, id); err != nil {
		return transient(err)
	}
	s.invalidate(ctx, id)
	s.log.Info().Str("medicine_id", id).Msg("medicine deleted")
	return nil
}

// DecrementStock atomically removes the given quantities.
func (s *Service) DecrementStock(ctx context.Context, adjs []StockAdjustment) ([]Medicine, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.store.DecrementStock(ctx, adjs)
	if err != nil {
		return nil, transient(err)
	}
	s.invalidate(ctx, adjustmentIDs(adjs)...)
	return out, nil
}

// RestoreStock compensates a previous DecrementStock. It ignores the caller's
// cancellation so compensation still runs when the request is abandoned.
func (s *Service) RestoreStock(ctx context.Context, adjs []StockAdjustment) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.store.RestoreStock(ctx, adjs); err != nil {
		s.log.Error().Err(err).Int("lines", len(adjs)).Msg("stock restore failed")
		return transient(err)
	}
	s.invalidate(ctx, adjustmentIDs(adjs)...)
	return nil
}

// Restock adds packSize × packs units to a medicine.
func (s *Service) Restock(ctx context.Context, id string, packs int) (RestockResult, error) {
	if packs < 1 {
		return RestockResult{}, fmt.Errorf("packs must be at least 1: %w", ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	m, err := s.store.IncrementStock(ctx, id, packs)
	if err != nil {
		return RestockResult{}, transient(err)
	}
	s.invalidate(ctx, id)
	added := m.PackSize * packs
	obs.ObserveRestock()
	s.log.Info().Str("medicine_id", id).Int("packs", packs).Int("units", added).Int("stock", m.StockQty).Msg("medicine restocked")
	res := RestockResult{Medicine: m, PreviousStock: m.StockQty - added, UnitsAdded: added}
	if s.events != nil {
		payload := map[string]any{"medicineId": id, "packs": packs, "unitsAdded": added, "stockQty": m.StockQty}
		if _, err := s.events.Emit(context.WithoutCancel(ctx), events.TopicStockRestocked, id, payload); err != nil {
			s.log.Warn().Err(err).Str("medicine_id", id).Msg("restock event not published")
		}
	}
	return res, nil
}

func (s *Service) invalidate(ctx context.Context, ids ...string) {
	s.writes.Add(1)
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, medicineKey(id))
	}
	if err := s.cache.Delete(context.WithoutCancel(ctx), keys...); err != nil {
		s.log.Warn().Err(err).Strs("medicine_ids", ids).Msg("catalog cache invalidation failed")
	}
}

func adjustmentIDs(adjs []StockAdjustment) []string {
	ids := make([]string, 0, len(adjs))
	for _, a := range adjs {
		ids = append(ids, a.MedicineID)
	}
	return ids
}

// transient maps deadline and cancellation errors to common.ErrUnavailable.
func transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return common.Unavailable(err)
	}
	return err
}
