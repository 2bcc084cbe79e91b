package domain

import "time"

// OrderPlacedLine: строка события order.placed.
type OrderPlacedLine struct {
	ItemID     string `json:"item_id"`
	ProductID  string `json:"product_id"`
	SupplierID string `json:"supplier_id"`
	Quantity   int    `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

// OrderPlacedEvent: полезная нагрузка события order.placed.
type OrderPlacedEvent struct {
	OrderID    string            `json:"order_id"`
	BuyerID    string            `json:"buyer_id"`
	Currency   string            `json:"currency"`
	TotalMinor int64             `json:"total_minor"`
	Items      []OrderPlacedLine `json:"items"`
	PlacedAt   time.Time         `json:"placed_at"`
}

// NewOrderPlacedEvent строит событие из только что созданного заказа.
func NewOrderPlacedEvent(order Order) OrderPlacedEvent {
	lines := make([]OrderPlacedLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, OrderPlacedLine{
			ItemID:     item.ID,
			ProductID:  item.ProductID,
			SupplierID: item.SupplierID,
			Quantity:   item.Quantity,
			PriceMinor: item.PriceMinor,
		})
	}
	return OrderPlacedEvent{
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		Currency:   order.Currency,
		TotalMinor: order.TotalMinor,
		Items:      lines,
		PlacedAt:   order.CreatedAt,
	}
}

// ItemStatusChangedEvent: полезная нагрузка события order_item.status_changed.
type ItemStatusChangedEvent struct {
	OrderID    string     `json:"order_id"`
	ItemID     string     `json:"item_id"`
	SupplierID string     `json:"supplier_id"`
	From       ItemStatus `json:"from"`
	To         ItemStatus `json:"to"`
	ChangedAt  time.Time  `json:"changed_at"`
}

// OrderStatusChangedEvent: полезная нагрузка события order.status_changed.
type OrderStatusChangedEvent struct {
	OrderID   string      `json:"order_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	ChangedAt time.Time   `json:"changed_at"`
}
