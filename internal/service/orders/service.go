package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// DefaultListLimit ограничивает списки заказов, если лимит не передан.
const DefaultListLimit = 50

// SupplierOrderView: заказ глазами поставщика: только его позиции и его выручка.
type SupplierOrderView struct {
	OrderID         string
	BuyerID         string
	Status          domain.OrderStatus
	Currency        string
	DeliveryAddress string
	DeliveryPhone   string
	Items           []domain.OrderItem
	EarningsMinor   int64
}

// Service отвечает на запросы чтения заказов покупателя и поставщика.
type Service struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
}

// NewService создаёт сервис чтения заказов.
func NewService(orders domain.OrderRepository, timeline domain.TimelineRepository) *Service {
	return &Service{orders: orders, timeline: timeline}
}

// ListForBuyer возвращает заказы покупателя, новые первыми.
func (s *Service) ListForBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error) {
	orders, err := s.orders.ListByBuyer(ctx, buyerID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list buyer orders: %w", err)
	}
	return orders, nil
}

// GetForBuyer возвращает заказ покупателя. Чужой заказ неотличим от отсутствующего.
func (s *Service) GetForBuyer(ctx context.Context, buyerID, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, wrapLookup(orderID, err)
	}
	if order.BuyerID != buyerID {
		return domain.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return order, nil
}

// Timeline возвращает историю заказа покупателя.
func (s *Service) Timeline(ctx context.Context, buyerID, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.GetForBuyer(ctx, buyerID, orderID); err != nil {
		return nil, err
	}
	events, err := s.timeline.List(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return events, nil
}

// ListForSupplier возвращает заказы с позициями поставщика и его подытогом.
func (s *Service) ListForSupplier(ctx context.Context, supplierID string, limit int) ([]domain.SupplierOrderSummary, error) {
	summaries, err := s.orders.ListBySupplier(ctx, supplierID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list supplier orders: %w", err)
	}
	return summaries, nil
}

// GetForSupplier возвращает позиции поставщика в заказе. Заказ без его позиций даёт ErrNotFound.
func (s *Service) GetForSupplier(ctx context.Context, supplierID, orderID string) (SupplierOrderView, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return SupplierOrderView{}, wrapLookup(orderID, err)
	}
	items := order.ItemsOf(supplierID)
	if len(items) == 0 {
		return SupplierOrderView{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}

	view := SupplierOrderView{
		OrderID:         order.ID,
		BuyerID:         order.BuyerID,
		Status:          order.Status,
		Currency:        order.Currency,
		DeliveryAddress: order.DeliveryAddress,
		DeliveryPhone:   order.DeliveryPhone,
		Items:           items,
	}
	for _, item := range items {
		view.EarningsMinor += item.LineTotal()
	}
	return view, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func wrapLookup(orderID string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return fmt.Errorf("get order: %w", err)
}
