package cart_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

const session = "sess-1"

type fixture struct {
	manager *cart.Manager
	catalog domain.CatalogRepository
}

func newFixture(t *testing.T, products ...domain.Product) fixture {
	t.Helper()
	store := memory.NewStore()
	catalog := memory.NewCatalogRepository(store)
	for _, p := range products {
		require.NoError(t, catalog.Create(context.Background(), p))
	}
	manager := cart.NewManager(catalog, memory.NewCartStore())
	_, err := manager.Open(context.Background(), session, "buyer-1")
	require.NoError(t, err)
	return fixture{manager: manager, catalog: catalog}
}

func product(id string, price int64, stock int) domain.Product {
	now := time.Now().UTC()
	return domain.Product{
		ID:         id,
		SupplierID: "sup-1",
		Name:       "Item " + id,
		PriceMinor: price,
		Stock:      stock,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestAddOrIncrement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", 1000, 2), product("p2", 500, 0))

	size, err := f.manager.AddOrIncrement(ctx, session, "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	size, err = f.manager.AddOrIncrement(ctx, session, "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	_, err = f.manager.AddOrIncrement(ctx, session, "p1", 1)
	var exceeded *domain.StockExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 2, exceeded.Available)
	assert.Equal(t, "Only 2 items available for Item p1", err.Error())

	_, err = f.manager.AddOrIncrement(ctx, session, "p2", 1)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)

	_, err = f.manager.AddOrIncrement(ctx, session, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	current, err := f.manager.Get(ctx, session)
	require.NoError(t, err)
	require.Len(t, current.Entries, 1)
	assert.Equal(t, 2, current.Entries[0].Quantity)
	assert.Equal(t, int64(2000), cart.Totals(current))
}

func TestAddOrIncrement_KeepsSnapshotPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", 1000, 5))

	_, err := f.manager.AddOrIncrement(ctx, session, "p1", 1)
	require.NoError(t, err)
	_, err = f.catalog.UpdatePriceStock(ctx, "p1", "sup-1", 1200, 5)
	require.NoError(t, err)
	_, err = f.manager.AddOrIncrement(ctx, session, "p1", 1)
	require.NoError(t, err)

	current, err := f.manager.Get(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), current.Entries[0].PriceMinor)
	assert.Equal(t, int64(2000), cart.Totals(current))
}

func TestAddOrIncrement_NewEntryStartsAtOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", 1000, 2))

	_, err := f.manager.AddOrIncrement(ctx, session, "p1", 3)
	require.NoError(t, err)

	current, err := f.manager.Get(ctx, session)
	require.NoError(t, err)
	require.Len(t, current.Entries, 1)
	assert.Equal(t, 1, current.Entries[0].Quantity)

	_, err = f.manager.AddOrIncrement(ctx, session, "p1", 3)
	assert.ErrorIs(t, err, domain.ErrStockExceeded)

	current, err = f.manager.Get(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 1, current.Entries[0].Quantity)
}

func TestAddOrIncrement_HugeDeltaRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", 1000, 5))

	_, err := f.manager.AddOrIncrement(ctx, session, "p1", 1)
	require.NoError(t, err)

	_, err = f.manager.AddOrIncrement(ctx, session, "p1", math.MaxInt)
	var exceeded *domain.StockExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 5, exceeded.Available)

	current, notes, err := f.manager.Reconcile(ctx, session)
	require.NoError(t, err)
	assert.Empty(t, notes)
	require.Len(t, current.Entries, 1)
	assert.Equal(t, 1, current.Entries[0].Quantity)
	assert.Equal(t, int64(1000), cart.Totals(current))
}

func TestSetQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", 1000, 3))

	_, err := f.manager.AddOrIncrement(ctx, session, "p1", 1)
	require.NoError(t, err)

	current, err := f.manager.SetQuantity(ctx, session, "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, current.Entries[0].Quantity)

	_, err = f.manager.SetQuantity(ctx, session, "p1", 4)
	assert.ErrorIs(t, err, domain.ErrStockExceeded)

	current, err = f.manager.Get(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 3, current.Entries[0].Quantity, "rejected update must not change the cart")

	for i := 0; i < 2; i++ {
		current, err = f.manager.SetQuantity(ctx, session, "p1", 0)
		require.NoError(t, err)
		assert.True(t, current.Empty())
	}
}

func TestSetQuantity_EntryNotInCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", 1000, 3))

	_, err := f.manager.SetQuantity(ctx, session, "p1", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetQuantity_ProductGone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", 1000, 3))

	_, err := f.manager.AddOrIncrement(ctx, session, "p1", 1)
	require.NoError(t, err)
	require.NoError(t, f.catalog.Delete(ctx, "p1", "sup-1"))

	current, err := f.manager.SetQuantity(ctx, session, "p1", 2)
	require.ErrorIs(t, err, domain.ErrProductGone)
	assert.True(t, current.Empty())

	stored, err := f.manager.Get(ctx, session)
	require.NoError(t, err)
	assert.True(t, stored.Empty())
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		product("keep", 100, 10),
		product("clamp", 200, 5),
		product("empty", 300, 1),
		product("gone", 400, 1),
	)

	_, err := f.manager.AddOrIncrement(ctx, session, "keep", 1)
	require.NoError(t, err)
	_, err = f.manager.AddOrIncrement(ctx, session, "clamp", 1)
	require.NoError(t, err)
	_, err = f.manager.SetQuantity(ctx, session, "clamp", 5)
	require.NoError(t, err)
	_, err = f.manager.AddOrIncrement(ctx, session, "empty", 1)
	require.NoError(t, err)
	_, err = f.manager.AddOrIncrement(ctx, session, "gone", 1)
	require.NoError(t, err)

	_, err = f.catalog.UpdatePriceStock(ctx, "clamp", "sup-1", 200, 2)
	require.NoError(t, err)
	_, err = f.catalog.UpdatePriceStock(ctx, "empty", "sup-1", 300, 0)
	require.NoError(t, err)
	require.NoError(t, f.catalog.Delete(ctx, "gone", "sup-1"))

	current, notes, err := f.manager.Reconcile(ctx, session)
	require.NoError(t, err)

	require.Len(t, current.Entries, 2)
	assert.Equal(t, "keep", current.Entries[0].ProductID)
	assert.Equal(t, "clamp", current.Entries[1].ProductID)
	assert.Equal(t, 2, current.Entries[1].Quantity)

	require.Len(t, notes, 3)
	assert.Equal(t, domain.AdjustmentClamped, notes[0].Kind)
	assert.Equal(t, "Quantity for Item clamp adjusted to available stock (2).", notes[0].Message)
	assert.Equal(t, domain.AdjustmentOutOfStock, notes[1].Kind)
	assert.Equal(t, domain.AdjustmentRemoved, notes[2].Kind)
	assert.Equal(t, "Product no longer available or was removed from inventory.", notes[2].Message)

	again, notes, err := f.manager.Reconcile(ctx, session)
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Equal(t, current.Entries, again.Entries)
}

func TestReconcile_EmptyCart(t *testing.T) {
	f := newFixture(t)
	current, notes, err := f.manager.Reconcile(context.Background(), session)
	require.NoError(t, err)
	assert.True(t, current.Empty())
	assert.Nil(t, notes)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", 1000, 3))

	_, err := f.manager.AddOrIncrement(ctx, session, "p1", 1)
	require.NoError(t, err)

	opened, err := f.manager.Open(ctx, session, "buyer-1")
	require.NoError(t, err)
	assert.True(t, opened.Empty(), "login resets the cart")
	assert.Equal(t, "buyer-1", opened.ActorID)

	_, err = f.manager.AddOrIncrement(ctx, session, "p1", 1)
	require.NoError(t, err)
	require.NoError(t, f.manager.Clear(ctx, session))

	current, err := f.manager.Get(ctx, session)
	require.NoError(t, err)
	assert.True(t, current.Empty())
	assert.Equal(t, "buyer-1", current.ActorID)

	require.NoError(t, f.manager.Discard(ctx, session))
	require.NoError(t, f.manager.Clear(ctx, session), "clearing a discarded session is a no-op")
}

func TestDiscardedSessionIsNotRecreated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", 1000, 3))
	require.NoError(t, f.manager.Discard(ctx, session))

	_, err := f.manager.AddOrIncrement(ctx, session, "p1", 1)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	_, err = f.manager.SetQuantity(ctx, session, "p1", 0)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	_, err = f.manager.Remove(ctx, session, "p1")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	_, _, err = f.manager.Reconcile(ctx, session)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = f.manager.Get(ctx, session)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = f.manager.AddOrIncrement(ctx, "never-opened", "p1", 1)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestMissingSessionRejected(t *testing.T) {
	f := newFixture(t, product("p1", 1000, 3))
	_, err := f.manager.AddOrIncrement(context.Background(), " ", "p1", 1)
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "session_id", vErr.Field)
}

func TestManagerRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	catalog := memory.NewCatalogRepository(store)
	require.NoError(t, catalog.Create(ctx, product("p1", 1000, 1)))

	reg := prometheus.NewRegistry()
	mx := metrics.NewMarketplaceMetricsWithRegisterer(reg)
	manager := cart.NewManager(catalog, memory.NewCartStore(), cart.WithMetrics(mx))
	_, err := manager.Open(ctx, session, "buyer-1")
	require.NoError(t, err)

	_, err = manager.AddOrIncrement(ctx, session, "p1", 1)
	require.NoError(t, err)
	_, err = manager.AddOrIncrement(ctx, session, "p1", 1)
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "marketplace_cart_mutations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
