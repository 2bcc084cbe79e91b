package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// orderRepositoryInMemory: чтение заказов из общего Store.
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий заказов для локальной разработки и тестов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// Get возвращает заказ с позициями или ErrNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	order, ok := r.store.orderLocked(id)
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return order, nil
}

// ListByBuyer возвращает заказы покупателя, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByBuyer(_ context.Context, buyerID string, limit int) ([]domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Order, 0)
	for id, order := range r.store.orders {
		if order.BuyerID != buyerID {
			continue
		}
		order.Items = r.store.orderItemsLocked(id)
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListBySupplier возвращает заказы с позициями поставщика и суммой только по его позициям.
func (r *orderRepositoryInMemory) ListBySupplier(_ context.Context, supplierID string, limit int) ([]domain.SupplierOrderSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	subtotals := make(map[string]int64)
	for _, item := range r.store.items {
		if item.SupplierID != supplierID {
			continue
		}
		subtotals[item.OrderID] += item.LineTotal()
	}

	result := make([]domain.SupplierOrderSummary, 0, len(subtotals))
	for orderID, subtotal := range subtotals {
		order := r.store.orders[orderID]
		result = append(result, domain.SupplierOrderSummary{
			OrderID:         order.ID,
			BuyerID:         order.BuyerID,
			Status:          order.Status,
			DeliveryAddress: order.DeliveryAddress,
			DeliveryPhone:   order.DeliveryPhone,
			SubtotalMinor:   subtotal,
			CreatedAt:       order.CreatedAt,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].OrderID > result[j].OrderID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListItems возвращает позиции заказа в порядке оформления.
func (r *orderRepositoryInMemory) ListItems(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if _, ok := r.store.orders[orderID]; !ok {
		return nil, domain.ErrNotFound
	}
	return r.store.orderItemsLocked(orderID), nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
