package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-apotek/internal/catalog"
	"github.com/noah-isme/backend-apotek/internal/common"
	"github.com/noah-isme/backend-apotek/internal/lock"
	"github.com/noah-isme/backend-apotek/internal/obs"
)

// MedicineLookup resolves medicines for pricing and the add-time stock check.
type MedicineLookup interface {
	Lookup(ctx context.Context, id string) (catalog.Medicine, error)
}

// Service encapsulates draft invoice operations. Mutations of one session run under
// that session's lock, which finalize also takes.
type Service struct {
	Store   Store
	Catalog MedicineLookup
	Locker  lock.Locker
	LockTTL time.Duration
	// Timeout bounds lock acquisition and store calls.
	Timeout time.Duration
	Now     func() time.Time
	Logger  *zerolog.Logger
}

// LockKey is the lock key guarding a session's draft.
func LockKey(sessionID string) string { return "draft:" + sessionID }

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) timeout() time.Duration {
	if s == nil || s.Timeout <= 0 {
		return 2 * time.Second
	}
	return s.Timeout
}

func (s *Service) logger() *zerolog.Logger {
	if s.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return s.Logger
}

func (s *Service) configured() error {
	if s == nil || s.Store == nil || s.Catalog == nil || s.Locker == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Get returns the session's draft. ok is false when the session has no items.
func (s *Service) Get(ctx context.Context, sessionID string) (Draft, bool, error) {
	if err := s.configured(); err != nil {
		return Draft{}, false, err
	}
	sessionID, err := normalizeSession(sessionID)
	if err != nil {
		return Draft{}, false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	d, ok, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return Draft{}, false, transient(err)
	}
	if !ok || d.IsEmpty() {
		return Draft{}, false, nil
	}
	return d, true, nil
}

// AddItem adds a medicine to the session's draft, creating the draft on first use.
// Re-adding a medicine replaces its quantity and discount. Stock is only checked for
// being non-zero; nothing is reserved.
func (s *Service) AddItem(ctx context.Context, sessionID, medicineID string, qty int, discountPercent decimal.Decimal) (Draft, error) {
	if err := s.configured(); err != nil {
		return Draft{}, err
	}
	sessionID, err := normalizeSession(sessionID)
	if err != nil {
		return Draft{}, err
	}
	if err := validateQty(qty); err != nil {
		return Draft{}, err
	}
	if err := validateDiscount(discountPercent); err != nil {
		return Draft{}, err
	}
	med, err := s.Catalog.Lookup(ctx, medicineID)
	if err != nil {
		return Draft{}, err
	}
	if med.StockQty <= 0 {
		return Draft{}, fmt.Errorf("%s: %w", med.ID, ErrOutOfStock)
	}
	item, err := NewLineItem(med, qty, discountPercent)
	if err != nil {
		return Draft{}, err
	}
	var out Draft
	err = s.mutate(ctx, sessionID, func(d *Draft) error {
		d.Put(item)
		out = d.Clone()
		return nil
	})
	if err != nil {
		return Draft{}, err
	}
	obs.ObserveDraftOp("add")
	s.logger().Debug().Str("session_id", sessionID).Str("medicine_id", item.MedicineID).Int("qty", qty).Msg("draft item added")
	return out, nil
}

// UpdateItem replaces the quantity of a line. A quantity of zero or less removes it.
// Stock is not re-checked here.
func (s *Service) UpdateItem(ctx context.Context, sessionID, medicineID string, qty int) (Draft, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, sessionID, medicineID)
	}
	if err := s.configured(); err != nil {
		return Draft{}, err
	}
	sessionID, err := normalizeSession(sessionID)
	if err != nil {
		return Draft{}, err
	}
	if err := validateQty(qty); err != nil {
		return Draft{}, err
	}
	var out Draft
	err = s.mutate(ctx, sessionID, func(d *Draft) error {
		item, ok := d.Find(medicineID)
		if !ok {
			return fmt.Errorf("%s: %w", medicineID, ErrLineNotFound)
		}
		item.Qty = qty
		d.Put(item)
		out = d.Clone()
		return nil
	})
	if err != nil {
		return Draft{}, err
	}
	obs.ObserveDraftOp("update")
	return out, nil
}

// RemoveItem drops a line. Removing an absent medicine is not an error.
func (s *Service) RemoveItem(ctx context.Context, sessionID, medicineID string) (Draft, error) {
	if err := s.configured(); err != nil {
		return Draft{}, err
	}
	sessionID, err := normalizeSession(sessionID)
	if err != nil {
		return Draft{}, err
	}
	var out Draft
	err = s.mutate(ctx, sessionID, func(d *Draft) error {
		d.Remove(medicineID)
		out = d.Clone()
		return nil
	})
	if err != nil {
		return Draft{}, err
	}
	obs.ObserveDraftOp("remove")
	return out, nil
}

// Discard deletes the session's draft. Discarding nothing is not an error.
func (s *Service) Discard(ctx context.Context, sessionID string) error {
	if err := s.configured(); err != nil {
		return err
	}
	sessionID, err := normalizeSession(sessionID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	err = s.Locker.WithLock(ctx, LockKey(sessionID), s.LockTTL, func(ctx context.Context) error {
		return s.Store.Delete(ctx, sessionID)
	})
	if err != nil {
		return transient(err)
	}
	obs.ObserveDraftOp("discard")
	s.logger().Info().Str("session_id", sessionID).Msg("draft discarded")
	return nil
}

// mutate loads the draft under the session lock, applies fn and writes the result back.
// A draft left without lines is deleted.
func (s *Service) mutate(ctx context.Context, sessionID string, fn func(*Draft) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	err := s.Locker.WithLock(ctx, LockKey(sessionID), s.LockTTL, func(ctx context.Context) error {
		d, ok, err := s.Store.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		now := s.now()
		if !ok {
			d = Draft{ID: uuid.NewString(), SessionID: sessionID, CreatedAt: now}
		}
		if err := fn(&d); err != nil {
			return err
		}
		if d.IsEmpty() {
			if !ok {
				return nil
			}
			return s.Store.Delete(ctx, sessionID)
		}
		d.UpdatedAt = now
		return s.Store.Save(ctx, d)
	})
	return transient(err)
}

func transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, lock.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return common.Unavailable(err)
	}
	return err
}
