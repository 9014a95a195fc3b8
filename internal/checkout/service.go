package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-apotek/internal/cart"
	"github.com/noah-isme/backend-apotek/internal/catalog"
	"github.com/noah-isme/backend-apotek/internal/common"
	"github.com/noah-isme/backend-apotek/internal/events"
	"github.com/noah-isme/backend-apotek/internal/invoice"
	"github.com/noah-isme/backend-apotek/internal/lock"
	"github.com/noah-isme/backend-apotek/internal/obs"
	"github.com/noah-isme/backend-apotek/internal/pricing"
)

var (
	// ErrNoActiveDraft is returned when the session has no draft to finalize.
	ErrNoActiveDraft = errors.New("no active draft invoice")
	// ErrEmptyDraft is returned when the draft has no line items.
	ErrEmptyDraft = errors.New("draft invoice has no items")
	// ErrInsufficientPayment is returned when cash paid is below the net total.
	ErrInsufficientPayment = errors.New("cash paid is less than the net total")
	// ErrInvalidPayment is returned for a negative cash amount or one with fractions of a cent.
	ErrInvalidPayment = errors.New("cash paid must be a non-negative amount with at most two decimals")
	// ErrInvalidDiscount is returned for a negative invoice discount.
	ErrInvalidDiscount = errors.New("invoice discount must not be negative")
)

// PaymentError carries the amounts behind ErrInsufficientPayment.
type PaymentError struct {
	CashPaid decimal.Decimal
	NetTotal decimal.Decimal
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("cash paid %s is less than net total %s", pricing.Format(e.CashPaid), pricing.Format(e.NetTotal))
}

// Is matches ErrInsufficientPayment.
func (e *PaymentError) Is(target error) bool { return target == ErrInsufficientPayment }

// StockKeeper applies and compensates stock decrements.
type StockKeeper interface {
	DecrementStock(ctx context.Context, adjs []catalog.StockAdjustment) ([]catalog.Medicine, error)
	RestoreStock(ctx context.Context, adjs []catalog.StockAdjustment) error
}

// Service turns a session's draft into a finalized invoice.
type Service struct {
	Drafts   cart.Store
	Stock    StockKeeper
	Invoices invoice.Repository
	Locker   lock.Locker
	LockTTL  time.Duration
	// Timeout bounds the whole finalize, lock wait included.
	Timeout time.Duration
	Events  *events.Bus
	Now     func() time.Time
	Logger  *zerolog.Logger
}

// FinalizeInput holds the operator's finalize request.
type FinalizeInput struct {
	SessionID       string
	CashierID       string
	CustomerName    string
	CashPaid        decimal.Decimal
	DiscountPercent decimal.Decimal
}

// Preview is the read-only pricing of the current draft.
type Preview struct {
	Draft     cart.Draft
	Breakdown pricing.Breakdown
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 5 * time.Second
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
	if s == nil || s.Drafts == nil || s.Stock == nil || s.Invoices == nil || s.Locker == nil {
		return errors.New("checkout service not configured")
	}
	return nil
}

// Preview prices the session's draft with the invoice discount without changing
// anything. A session without a draft previews as an empty breakdown.
func (s *Service) Preview(ctx context.Context, sessionID string, discountPercent decimal.Decimal) (Preview, error) {
	if err := s.configured(); err != nil {
		return Preview{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Preview{}, cart.ErrNoSession
	}
	if discountPercent.IsNegative() {
		return Preview{}, ErrInvalidDiscount
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	d, _, err := s.Drafts.Get(ctx, sessionID)
	if err != nil {
		return Preview{}, transient(err)
	}
	b, err := pricing.Compute(d.PricingLines(), discountPercent)
	if err != nil {
		return Preview{}, priceError(err)
	}
	return Preview{Draft: d, Breakdown: b}, nil
}

// Finalize commits the session's draft: it checks payment, decrements stock for every
// line as one batch, assigns the next invoice number, stores the invoice and removes the
// draft. Any failure leaves the draft and stock as they were.
func (s *Service) Finalize(ctx context.Context, in FinalizeInput) (invoice.Invoice, error) {
	start := time.Now()
	ctx, span := obs.StartSpan(ctx, "checkout.finalize", attribute.String("pos.session_id", in.SessionID))
	inv, err := s.finalize(ctx, in)
	defer func() { obs.EndSpan(span, err) }()
	if err != nil {
		_, code := classify(err)
		span.SetAttributes(attribute.String("pos.error_code", code))
		obs.ObserveFinalizeFailure(code)
		s.logger().Warn().Err(err).Str("session_id", in.SessionID).Str("code", code).Msg("finalize failed")
		return invoice.Invoice{}, err
	}
	span.SetAttributes(attribute.Int64("pos.invoice_number", inv.Number), attribute.Int("pos.lines", len(inv.Lines)))
	net, _ := inv.NetTotal.Float64()
	obs.ObserveFinalized(net, obs.DurationMillis(time.Since(start)))
	s.logger().Info().
		Str("invoice", inv.Code()).
		Str("session_id", inv.SessionID).
		Str("cashier_id", inv.CashierID).
		Str("net_total", pricing.Format(inv.NetTotal)).
		Int("lines", len(inv.Lines)).
		Msg("invoice finalized")
	s.publish(ctx, inv)
	return inv, nil
}

func (s *Service) finalize(ctx context.Context, in FinalizeInput) (invoice.Invoice, error) {
	if err := s.configured(); err != nil {
		return invoice.Invoice{}, err
	}
	session := strings.TrimSpace(in.SessionID)
	if session == "" {
		return invoice.Invoice{}, cart.ErrNoSession
	}
	if in.DiscountPercent.IsNegative() {
		return invoice.Invoice{}, ErrInvalidDiscount
	}
	if in.CashPaid.IsNegative() || !pricing.FitsScale(in.CashPaid, pricing.Scale) {
		return invoice.Invoice{}, ErrInvalidPayment
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	var out invoice.Invoice
	err := s.Locker.WithLock(ctx, cart.LockKey(session), s.LockTTL, func(ctx context.Context) error {
		d, ok, err := s.Drafts.Get(ctx, session)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoActiveDraft
		}
		if d.IsEmpty() {
			return ErrEmptyDraft
		}
		b, err := pricing.Compute(d.PricingLines(), in.DiscountPercent)
		if err != nil {
			return priceError(err)
		}
		net := b.Rounded().NetTotal
		if in.CashPaid.LessThan(net) {
			return &PaymentError{CashPaid: in.CashPaid, NetTotal: net}
		}

		adjs := d.Adjustments()
		if _, err := s.Stock.DecrementStock(ctx, adjs); err != nil {
			return err
		}
		number, err := s.Invoices.NextNumber(ctx)
		if err != nil {
			s.restore(ctx, adjs)
			return err
		}
		names := make(map[string]string, len(d.Items))
		for _, it := range d.Items {
			names[it.MedicineID] = it.Name
		}
		inv := invoice.New(invoice.Snapshot{
			Number:       number,
			CreatedAt:    s.now(),
			CustomerName: in.CustomerName,
			CashierID:    in.CashierID,
			SessionID:    session,
			Names:        names,
			Pricing:      b,
			CashPaid:     in.CashPaid,
		})
		if err := s.Drafts.Delete(ctx, session); err != nil {
			s.restore(ctx, adjs)
			return err
		}
		if err := s.Invoices.Save(ctx, inv); err != nil {
			s.restore(ctx, adjs)
			if serr := s.Drafts.Save(context.WithoutCancel(ctx), d); serr != nil {
				s.logger().Error().Err(serr).Str("session_id", session).Msg("draft restore failed")
			}
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return invoice.Invoice{}, transient(err)
	}
	return out, nil
}

func (s *Service) restore(ctx context.Context, adjs []catalog.StockAdjustment) {
	if err := s.Stock.RestoreStock(context.WithoutCancel(ctx), adjs); err != nil {
		s.logger().Error().Err(err).Int("lines", len(adjs)).Msg("stock compensation failed")
	}
}

func (s *Service) publish(ctx context.Context, inv invoice.Invoice) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(context.WithoutCancel(ctx), events.TopicInvoiceFinalized, inv.Code(), inv); err != nil {
		s.logger().Warn().Err(err).Str("invoice", inv.Code()).Msg("invoice event not published")
	}
}

func priceError(err error) error {
	switch {
	case errors.Is(err, pricing.ErrNegativeDiscount), errors.Is(err, pricing.ErrDiscountOutOfRange):
		return fmt.Errorf("%w: %w", ErrInvalidDiscount, err)
	case errors.Is(err, pricing.ErrInvalidLine):
		return fmt.Errorf("%w: %w", cart.ErrInvalidQuantity, err)
	}
	return err
}

func transient(err error) error {
	if err == nil || errors.Is(err, common.ErrUnavailable) {
		return err
	}
	if errors.Is(err, lock.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return common.Unavailable(err)
	}
	return err
}
