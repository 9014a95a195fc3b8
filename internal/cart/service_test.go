package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-apotek/internal/cart"
	"github.com/noah-isme/backend-apotek/internal/catalog"
	"github.com/noah-isme/backend-apotek/internal/common"
	"github.com/noah-isme/backend-apotek/internal/lock"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func medicines() []catalog.Medicine {
	return []catalog.Medicine{
		{ID: "paracetamol", Name: "Paracetamol", UnitSalesPrice: decimal.RequireFromString("10.00"), UnitPurchasePrice: decimal.RequireFromString("7"), PackSize: 10, StockQty: 100},
		{ID: "ibuprofen", Name: "Ibuprofen", UnitSalesPrice: decimal.RequireFromString("8.00"), UnitPurchasePrice: decimal.RequireFromString("5"), PackSize: 10, StockQty: 20},
		{ID: "cetirizine", Name: "Cetirizine", UnitSalesPrice: decimal.RequireFromString("3.00"), UnitPurchasePrice: decimal.RequireFromString("2"), PackSize: 10, StockQty: 0},
	}
}

func newService(t *testing.T, store cart.Store) *cart.Service {
	t.Helper()
	catSvc, err := catalog.NewService(catalog.ServiceConfig{Store: catalog.NewMemoryStore(medicines()...)})
	require.NoError(t, err)
	return &cart.Service{
		Store:   store,
		Catalog: catSvc,
		Locker:  lock.NewLocal(),
		Now:     func() time.Time { return fixedNow },
	}
}

func TestAddItemCreatesDraftAndReplacesOnReAdd(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, cart.NewMemoryStore())

	d, err := svc.AddItem(ctx, "s1", "paracetamol", 5, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, d.Items, 1)
	require.NotEmpty(t, d.ID)
	require.Equal(t, fixedNow, d.CreatedAt)

	_, err = svc.AddItem(ctx, "s1", "ibuprofen", 2, decimal.NewFromInt(50))
	require.NoError(t, err)
	d, err = svc.AddItem(ctx, "s1", "paracetamol", 3, decimal.NewFromInt(5))
	require.NoError(t, err)
	require.Len(t, d.Items, 2)
	require.Equal(t, "paracetamol", d.Items[0].MedicineID, "re-add keeps insertion position")
	require.Equal(t, 3, d.Items[0].Qty)
	require.True(t, d.Items[0].DiscountPercent.Equal(decimal.NewFromInt(5)))
}

func TestAddItemValidationOrder(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, cart.NewMemoryStore())

	_, err := svc.AddItem(ctx, "s1", "ghost", 0, decimal.Zero)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity, "input validation precedes lookups")

	_, err = svc.AddItem(ctx, "s1", "ghost", 1, decimal.Zero)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = svc.AddItem(ctx, "s1", "cetirizine", 1, decimal.Zero)
	require.ErrorIs(t, err, cart.ErrOutOfStock)

	_, err = svc.AddItem(ctx, "s1", "paracetamol", 1, decimal.NewFromInt(101))
	require.ErrorIs(t, err, cart.ErrInvalidDiscount)

	_, err = svc.AddItem(ctx, "s1", "paracetamol", 1, decimal.RequireFromString("12.34567"))
	require.ErrorIs(t, err, cart.ErrInvalidDiscount)

	_, err = svc.AddItem(ctx, "", "paracetamol", 1, decimal.Zero)
	require.ErrorIs(t, err, cart.ErrNoSession)

	_, ok, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddItemDoesNotReserveStock(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, cart.NewMemoryStore())
	// more than on hand is accepted at add time; finalize enforces stock
	d, err := svc.AddItem(ctx, "s1", "ibuprofen", 500, decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, 500, d.Items[0].Qty)
	m, err := svc.Catalog.Lookup(ctx, "ibuprofen")
	require.NoError(t, err)
	require.Equal(t, 20, m.StockQty)
}

func TestUpdateItem(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, cart.NewMemoryStore())
	_, err := svc.AddItem(ctx, "s1", "paracetamol", 5, decimal.Zero)
	require.NoError(t, err)

	d, err := svc.UpdateItem(ctx, "s1", "paracetamol", 7)
	require.NoError(t, err)
	require.Equal(t, 7, d.Items[0].Qty)

	_, err = svc.UpdateItem(ctx, "s1", "ibuprofen", 2)
	require.ErrorIs(t, err, cart.ErrLineNotFound)

	d, err = svc.UpdateItem(ctx, "s1", "paracetamol", 0)
	require.NoError(t, err)
	require.True(t, d.IsEmpty())
	_, ok, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.False(t, ok, "removing the last line drops the draft")
}

func TestAddThenRemoveRestoresDraft(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, cart.NewMemoryStore())
	before, err := svc.AddItem(ctx, "s1", "paracetamol", 5, decimal.NewFromInt(10))
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, "s1", "ibuprofen", 1, decimal.Zero)
	require.NoError(t, err)
	after, err := svc.RemoveItem(ctx, "s1", "ibuprofen")
	require.NoError(t, err)
	require.Equal(t, before.Items, after.Items)
	require.Equal(t, before.ID, after.ID)
}

func TestRemoveAndDiscardAreNoopsWhenAbsent(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, cart.NewMemoryStore())
	d, err := svc.RemoveItem(ctx, "s1", "paracetamol")
	require.NoError(t, err)
	require.True(t, d.IsEmpty())
	require.NoError(t, svc.Discard(ctx, "s1"))

	_, err = svc.AddItem(ctx, "s1", "paracetamol", 1, decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, svc.Discard(ctx, "s1"))
	_, ok, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, cart.NewMemoryStore())
	_, err := svc.AddItem(ctx, "s1", "paracetamol", 1, decimal.Zero)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "s2", "ibuprofen", 1, decimal.Zero)
	require.NoError(t, err)

	d1, _, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	d2, _, err := svc.Get(ctx, "s2")
	require.NoError(t, err)
	require.Equal(t, "paracetamol", d1.Items[0].MedicineID)
	require.Equal(t, "ibuprofen", d2.Items[0].MedicineID)
	require.NotEqual(t, d1.ID, d2.ID)
}

func TestMutationTimesOutWhenSessionLocked(t *testing.T) {
	locker := lock.NewLocal()
	svc := newService(t, cart.NewMemoryStore())
	svc.Locker = locker
	svc.Timeout = 20 * time.Millisecond

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), cart.LockKey("s1"), 0, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	_, err := svc.AddItem(context.Background(), "s1", "paracetamol", 1, decimal.Zero)
	require.ErrorIs(t, err, common.ErrUnavailable)
}

func TestRedisStoreRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cart.RedisStore{R: client, TTL: time.Hour}
	svc := newService(t, store)

	_, err := svc.AddItem(ctx, "s1", "paracetamol", 5, decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	require.True(t, mr.Exists("draft:s1"))
	require.Equal(t, time.Hour, mr.TTL("draft:s1"))

	d, ok, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, d.Items[0].UnitSalesPrice.Equal(decimal.RequireFromString("10")))
	require.True(t, d.Items[0].DiscountPercent.Equal(decimal.RequireFromString("12.5")))

	mr.FastForward(2 * time.Hour)
	_, ok, err = svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.False(t, ok, "abandoned drafts expire")
}

func TestRedisStoreFailureIsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	store := cart.RedisStore{R: client}
	mr.Close()

	_, _, err := store.Get(context.Background(), "s1")
	require.ErrorIs(t, err, common.ErrUnavailable)
}

func TestRedisLockOutageIsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	svc := newService(t, cart.NewMemoryStore())
	svc.Locker = lock.Redis{R: client}
	mr.Close()

	ctx := context.Background()
	_, err := svc.AddItem(ctx, "s1", "paracetamol", 1, decimal.Zero)
	require.ErrorIs(t, err, common.ErrUnavailable)
	_, err = svc.UpdateItem(ctx, "s1", "paracetamol", 2)
	require.ErrorIs(t, err, common.ErrUnavailable)
	_, err = svc.RemoveItem(ctx, "s1", "paracetamol")
	require.ErrorIs(t, err, common.ErrUnavailable)
	require.ErrorIs(t, svc.Discard(ctx, "s1"), common.ErrUnavailable)
}

func TestParseQuantity(t *testing.T) {
	q, err := cart.ParseQuantity(decimal.NewFromInt(3))
	require.NoError(t, err)
	require.Equal(t, 3, q)
	q, err = cart.ParseQuantity(decimal.NewFromInt(-2))
	require.NoError(t, err)
	require.Equal(t, -2, q)
	_, err = cart.ParseQuantity(decimal.RequireFromString("2.5"))
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)
	_, err = cart.ParseQuantity(decimal.NewFromInt(cart.MaxQuantity + 1))
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)
}
