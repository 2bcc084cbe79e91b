package fulfillment_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

type env struct {
	store   *memory.Store
	orders  domain.OrderRepository
	service *fulfillment.Service
	order   domain.Order
	// itemA принадлежит sup-a, itemB, sup-b.
	itemA domain.OrderItem
	itemB domain.OrderItem
}

func newEnv(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	catalog := memory.NewCatalogRepository(store)
	require.NoError(t, catalog.Create(ctx, domain.Product{ID: "pa", SupplierID: "sup-a", Name: "Lamp", PriceMinor: 5000, Stock: 5}))
	require.NoError(t, catalog.Create(ctx, domain.Product{ID: "pb", SupplierID: "sup-b", Name: "Chair", PriceMinor: 3000, Stock: 5}))

	txm := memory.NewTxManager(store)
	order, err := checkout.NewService(txm, nil).PlaceOrder(ctx, checkout.PlaceOrderInput{
		BuyerID:         "buyer-1",
		Entries:         []domain.CartEntry{{ProductID: "pa", Quantity: 2}, {ProductID: "pb", Quantity: 1}},
		DeliveryAddress: "Main st 1",
		DeliveryPhone:   "+1000",
	})
	require.NoError(t, err)

	e := env{
		store:   store,
		orders:  memory.NewOrderRepository(store),
		service: fulfillment.NewService(txm),
		order:   order,
	}
	for _, item := range order.Items {
		if item.SupplierID == "sup-a" {
			e.itemA = item
		} else {
			e.itemB = item
		}
	}
	return e
}

func (e env) update(t *testing.T, item domain.OrderItem, status string) (fulfillment.Result, error) {
	t.Helper()
	return e.service.UpdateItemStatus(context.Background(), fulfillment.UpdateItemStatusInput{
		OrderID:    e.order.ID,
		ItemID:     item.ID,
		Status:     status,
		SupplierID: item.SupplierID,
	})
}

func (e env) orderStatus(t *testing.T) domain.OrderStatus {
	t.Helper()
	order, err := e.orders.Get(context.Background(), e.order.ID)
	require.NoError(t, err)
	return order.Status
}

func TestUpdateItemStatus_AggregateFollowsSlowestItem(t *testing.T) {
	e := newEnv(t)

	res, err := e.update(t, e.itemA, "Processing")
	require.NoError(t, err)
	assert.True(t, res.ItemChanged)
	assert.False(t, res.OrderChanged, "item B is still Pending")
	assert.Equal(t, domain.OrderStatusPending, e.orderStatus(t))

	res, err = e.update(t, e.itemB, "Shipped")
	require.NoError(t, err)
	assert.True(t, res.OrderChanged)
	assert.Equal(t, domain.OrderStatusProcessing, res.OrderStatus)
	assert.Equal(t, domain.OrderStatusProcessing, e.orderStatus(t))

	_, err = e.update(t, e.itemA, "Delivered")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, e.orderStatus(t))

	res, err = e.update(t, e.itemB, "Cancelled")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPartiallyFulfilled, res.OrderStatus)
	assert.Equal(t, domain.OrderStatusPartiallyFulfilled, e.orderStatus(t))
}

func TestUpdateItemStatus_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.update(t, e.itemA, "Lost")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	_, err = e.update(t, e.itemA, "processing")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus, "status names are case-sensitive")

	_, err = e.service.UpdateItemStatus(ctx, fulfillment.UpdateItemStatusInput{
		OrderID: e.order.ID, ItemID: e.itemA.ID, Status: "Processing", SupplierID: "sup-b",
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.service.UpdateItemStatus(ctx, fulfillment.UpdateItemStatusInput{
		OrderID: "missing", ItemID: e.itemA.ID, Status: "Processing", SupplierID: "sup-a",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.service.UpdateItemStatus(ctx, fulfillment.UpdateItemStatusInput{
		OrderID: e.order.ID, ItemID: "missing", Status: "Processing", SupplierID: "sup-a",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.update(t, e.itemA, "Shipped")
	require.NoError(t, err)
	_, err = e.update(t, e.itemA, "Processing")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = e.update(t, e.itemA, "Delivered")
	require.NoError(t, err)
	_, err = e.update(t, e.itemA, "Cancelled")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	item, err := e.orders.ListItems(ctx, e.order.ID)
	require.NoError(t, err)
	for _, it := range item {
		if it.ID == e.itemA.ID {
			assert.Equal(t, domain.ItemStatusDelivered, it.Status)
		}
	}
}

func TestUpdateItemStatus_ItemFromAnotherOrder(t *testing.T) {
	e := newEnv(t)
	other := newEnv(t)

	// Позиция другого хранилища не видна в этом заказе.
	_, err := e.service.UpdateItemStatus(context.Background(), fulfillment.UpdateItemStatusInput{
		OrderID: e.order.ID, ItemID: other.itemA.ID, Status: "Processing", SupplierID: "sup-a",
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdateItemStatus_SameStatusIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	before, err := e.store.Outbox().PullPending(ctx, 100)
	require.NoError(t, err)

	res, err := e.update(t, e.itemA, "Pending")
	require.NoError(t, err)
	assert.False(t, res.ItemChanged)
	assert.False(t, res.OrderChanged)
	assert.Equal(t, domain.OrderStatusPending, res.OrderStatus)

	after, err := e.store.Outbox().PullPending(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	timeline, err := e.store.Timeline().List(ctx, e.order.ID)
	require.NoError(t, err)
	assert.Len(t, timeline, 1, "only order_placed is recorded")
}

func TestUpdateItemStatus_EmitsEvents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.update(t, e.itemA, "Cancelled")
	require.NoError(t, err)
	_, err = e.update(t, e.itemB, "Cancelled")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, e.orderStatus(t))

	pending, err := e.store.Outbox().PullPending(ctx, 100)
	require.NoError(t, err)

	var types []string
	for _, msg := range pending {
		types = append(types, msg.EventType)
	}
	assert.Equal(t, []string{
		domain.EventOrderPlaced,
		domain.EventOrderItemStatusChanged,
		domain.EventOrderItemStatusChanged,
		domain.EventOrderStatusChanged,
	}, types)

	var changed domain.OrderStatusChangedEvent
	require.NoError(t, json.Unmarshal(pending[3].Payload, &changed))
	assert.Equal(t, domain.OrderStatusPending, changed.From)
	assert.Equal(t, domain.OrderStatusCancelled, changed.To)

	timeline, err := e.store.Timeline().List(ctx, e.order.ID)
	require.NoError(t, err)
	assert.Len(t, timeline, 4)
}
