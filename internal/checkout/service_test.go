package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-apotek/internal/cart"
	"github.com/noah-isme/backend-apotek/internal/catalog"
	"github.com/noah-isme/backend-apotek/internal/checkout"
	"github.com/noah-isme/backend-apotek/internal/common"
	"github.com/noah-isme/backend-apotek/internal/events"
	"github.com/noah-isme/backend-apotek/internal/invoice"
	"github.com/noah-isme/backend-apotek/internal/lock"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store    *catalog.MemoryStore
	catalog  *catalog.Service
	drafts   *cart.MemoryStore
	cart     *cart.Service
	invoices *invoice.MemoryRepository
	locker   *lock.Local
	svc      *checkout.Service
	events   []events.Event
	mu       sync.Mutex
}

func newFixture(t *testing.T, meds ...catalog.Medicine) *fixture {
	t.Helper()
	if len(meds) == 0 {
		meds = []catalog.Medicine{
			{ID: "paracetamol", Name: "Paracetamol", UnitSalesPrice: dec("10.00"), UnitPurchasePrice: dec("7"), PackSize: 10, StockQty: 100},
			{ID: "ibuprofen", Name: "Ibuprofen", UnitSalesPrice: dec("8.00"), UnitPurchasePrice: dec("5"), PackSize: 10, StockQty: 20},
		}
	}
	f := &fixture{
		store:    catalog.NewMemoryStore(meds...),
		drafts:   cart.NewMemoryStore(),
		invoices: invoice.NewMemoryRepository(),
		locker:   lock.NewLocal(),
	}
	var err error
	f.catalog, err = catalog.NewService(catalog.ServiceConfig{Store: f.store})
	require.NoError(t, err)
	f.cart = &cart.Service{Store: f.drafts, Catalog: f.catalog, Locker: f.locker, Now: func() time.Time { return fixedNow }}
	bus := &events.Bus{Publishers: []events.Publisher{events.PublisherFunc(func(_ context.Context, ev events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, ev)
		return nil
	})}}
	f.svc = &checkout.Service{
		Drafts:   f.drafts,
		Stock:    f.catalog,
		Invoices: f.invoices,
		Locker:   f.locker,
		Events:   bus,
		Now:      func() time.Time { return fixedNow },
	}
	return f
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	m, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return m.StockQty
}

func TestPreviewScenarioA(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.cart.AddItem(ctx, "s1", "paracetamol", 5, decimal.Zero)
	require.NoError(t, err)

	p, err := f.svc.Preview(ctx, "s1", dec("10"))
	require.NoError(t, err)
	v := p.Breakdown.View()
	require.Equal(t, "50.00", v.GrossTotal)
	require.Equal(t, "5.00", v.DiscountAmount)
	require.Equal(t, "45.00", v.NetTotal)
	require.Equal(t, 100, f.stock(t, "paracetamol"), "preview does not touch stock")

	p, err = f.svc.Preview(ctx, "nobody", dec("10"))
	require.NoError(t, err)
	require.True(t, p.Breakdown.NetTotal.IsZero())

	_, err = f.svc.Preview(ctx, "s1", dec("-1"))
	require.ErrorIs(t, err, checkout.ErrInvalidDiscount)
}

func TestFinalizeScenariosBAndC(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.cart.AddItem(ctx, "s1", "paracetamol", 5, decimal.Zero)
	require.NoError(t, err)

	in := checkout.FinalizeInput{SessionID: "s1", CashierID: "cashier-1", CashPaid: dec("40.00"), DiscountPercent: dec("10")}
	_, err = f.svc.Finalize(ctx, in)
	require.ErrorIs(t, err, checkout.ErrInsufficientPayment)
	var payErr *checkout.PaymentError
	require.True(t, errors.As(err, &payErr))
	require.True(t, payErr.NetTotal.Equal(dec("45")))
	_, ok, err := f.cart.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok, "draft remains open")
	require.Equal(t, 100, f.stock(t, "paracetamol"))

	in.CashPaid = dec("45.00")
	in.CustomerName = "Budi"
	inv, err := f.svc.Finalize(ctx, in)
	require.NoError(t, err)
	require.EqualValues(t, 1, inv.Number)
	require.Equal(t, "INV-000001", inv.Code())
	require.True(t, inv.ChangeDue.IsZero())
	require.True(t, inv.NetTotal.Equal(dec("45")))
	require.Equal(t, "cashier-1", inv.CashierID)
	require.Equal(t, "Budi", inv.CustomerName)
	require.Equal(t, fixedNow, inv.CreatedAt)
	require.Equal(t, "Paracetamol", inv.Lines[0].Name)
	require.Equal(t, 95, f.stock(t, "paracetamol"))

	_, ok, err = f.cart.Get(ctx, "s1")
	require.NoError(t, err)
	require.False(t, ok, "draft removed")

	stored, err := f.invoices.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, inv.Code(), stored.Code())

	require.Len(t, f.events, 1)
	require.Equal(t, events.TopicInvoiceFinalized, f.events[0].Topic)
	require.Equal(t, "INV-000001", f.events[0].AggregateID)
}

func TestFinalizeTwiceReportsNoActiveDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.cart.AddItem(ctx, "s1", "paracetamol", 1, decimal.Zero)
	require.NoError(t, err)
	in := checkout.FinalizeInput{SessionID: "s1", CashierID: "c", CashPaid: dec("10")}
	_, err = f.svc.Finalize(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, in)
	require.ErrorIs(t, err, checkout.ErrNoActiveDraft)
	require.Equal(t, 99, f.stock(t, "paracetamol"))
}

func TestFinalizeEmptyDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.drafts.Save(ctx, cart.Draft{ID: "d1", SessionID: "s1"}))
	_, err := f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("10")})
	require.ErrorIs(t, err, checkout.ErrEmptyDraft)
}

func TestFinalizeRejectsNegativeInputs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.cart.AddItem(ctx, "s1", "paracetamol", 1, decimal.Zero)
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("10"), DiscountPercent: dec("-5")})
	require.ErrorIs(t, err, checkout.ErrInvalidDiscount)
	_, err = f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("-1")})
	require.ErrorIs(t, err, checkout.ErrInvalidPayment)
}

func TestFinalizeRejectsSubCentPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.cart.AddItem(ctx, "s1", "paracetamol", 5, decimal.Zero)
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("44.995"), DiscountPercent: dec("10")})
	require.ErrorIs(t, err, checkout.ErrInvalidPayment)
	_, err = f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("44.99"), DiscountPercent: dec("10")})
	require.ErrorIs(t, err, checkout.ErrInsufficientPayment)
	require.Equal(t, 100, f.stock(t, "paracetamol"))

	inv, err := f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("45.00"), DiscountPercent: dec("10")})
	require.NoError(t, err)
	require.True(t, inv.CashPaid.Equal(dec("45")))
}

func TestFinalizeRejectsOutOfRangeDiscountBeforeStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.cart.AddItem(ctx, "s1", "paracetamol", 5, decimal.Zero)
	require.NoError(t, err)

	for _, d := range []string{"1000", "10.12345"} {
		_, err = f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("100"), DiscountPercent: dec(d)})
		require.ErrorIs(t, err, checkout.ErrInvalidDiscount, d)
		_, err = f.svc.Preview(ctx, "s1", dec(d))
		require.ErrorIs(t, err, checkout.ErrInvalidDiscount, d)
	}
	require.Equal(t, 100, f.stock(t, "paracetamol"))
	_, ok, err := f.cart.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFinalizeInsufficientStockIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.cart.AddItem(ctx, "s1", "paracetamol", 5, decimal.Zero)
	require.NoError(t, err)
	_, err = f.cart.AddItem(ctx, "s1", "ibuprofen", 50, decimal.Zero)
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("1000")})
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)
	var stockErr *catalog.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, "ibuprofen", stockErr.MedicineID)

	require.Equal(t, 100, f.stock(t, "paracetamol"))
	require.Equal(t, 20, f.stock(t, "ibuprofen"))
	d, ok, err := f.cart.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, d.Items, 2)
	require.Empty(t, f.events)
}

type failingRepo struct {
	*invoice.MemoryRepository
	err error
}

func (r failingRepo) Save(context.Context, invoice.Invoice) error { return r.err }

func TestFinalizeSaveFailureRestoresStockAndDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.Invoices = failingRepo{MemoryRepository: f.invoices, err: common.Unavailable(errors.New("db down"))}
	_, err := f.cart.AddItem(ctx, "s1", "paracetamol", 5, decimal.Zero)
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("50")})
	require.ErrorIs(t, err, common.ErrUnavailable)
	require.Equal(t, 100, f.stock(t, "paracetamol"))
	d, ok, err := f.cart.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 5, d.Items[0].Qty)

	// the consumed number is not reused
	f.svc.Invoices = f.invoices
	inv, err := f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("50")})
	require.NoError(t, err)
	require.EqualValues(t, 2, inv.Number)
}

func TestFinalizeLockTimeoutIsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.Timeout = 50 * time.Millisecond
	_, err := f.cart.AddItem(ctx, "s1", "paracetamol", 1, decimal.Zero)
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = f.locker.WithLock(ctx, cart.LockKey("s1"), time.Second, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	_, err = f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("10")})
	close(release)
	require.ErrorIs(t, err, common.ErrUnavailable)
	require.Equal(t, 100, f.stock(t, "paracetamol"))
}

func TestFinalizeRedisLockOutageIsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.cart.AddItem(ctx, "s1", "paracetamol", 2, decimal.Zero)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	f.svc.Locker = lock.Redis{R: client}
	mr.Close()

	_, err = f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: "s1", CashPaid: dec("20")})
	require.ErrorIs(t, err, common.ErrUnavailable)
	require.Equal(t, 100, f.stock(t, "paracetamol"))
	_, ok, err := f.cart.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConcurrentFinalizeNeverOversells(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.Medicine{ID: "insulin", Name: "Insulin", UnitSalesPrice: dec("25"), UnitPurchasePrice: dec("20"), PackSize: 1, StockQty: 5})

	const sessions = 12
	for i := 0; i < sessions; i++ {
		_, err := f.cart.AddItem(ctx, fmt.Sprintf("s%d", i), "insulin", 1, decimal.Zero)
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = map[int64]bool{}
		short   int
	)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inv, err := f.svc.Finalize(ctx, checkout.FinalizeInput{SessionID: fmt.Sprintf("s%d", i), CashPaid: dec("25")})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
				short++
				return
			}
			numbers[inv.Number] = true
		}(i)
	}
	wg.Wait()

	require.Len(t, numbers, 5)
	require.Equal(t, sessions-5, short)
	require.Equal(t, 0, f.stock(t, "insulin"))
}
