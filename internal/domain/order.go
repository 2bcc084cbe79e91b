package domain

import (
	"strings"
	"time"
)

// OrderItem: позиция заказа одного поставщика со снимком названия и цены на момент покупки.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	SupplierID  string
	ProductName string
	// PriceMinor: цена за единицу на момент покупки в минимальных денежных единицах.
	PriceMinor int64
	Quantity   int
	Status     ItemStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LineTotal возвращает стоимость позиции.
func (i OrderItem) LineTotal() int64 {
	return int64(i.Quantity) * i.PriceMinor
}

// Order агрегирует позиции, оформленные покупателем за одну операцию.
type Order struct {
	ID              string
	BuyerID         string
	Status          OrderStatus
	Currency        string
	TotalMinor      int64
	DeliveryAddress string
	DeliveryPhone   string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ItemStatuses возвращает статусы всех позиций заказа.
func (o *Order) ItemStatuses() []ItemStatus {
	statuses := make([]ItemStatus, 0, len(o.Items))
	for _, item := range o.Items {
		statuses = append(statuses, item.Status)
	}
	return statuses
}

// ItemsOf возвращает позиции заданного поставщика.
func (o *Order) ItemsOf(supplierID string) []OrderItem {
	var items []OrderItem
	for _, item := range o.Items {
		if item.SupplierID == supplierID {
			items = append(items, item)
		}
	}
	return items
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(o.BuyerID) == "" {
		errs = append(errs, NewValidationError("buyer_id", "is required"))
	}
	if strings.TrimSpace(o.DeliveryAddress) == "" {
		errs = append(errs, NewValidationError("delivery_address", "is required"))
	}
	if strings.TrimSpace(o.DeliveryPhone) == "" {
		errs = append(errs, NewValidationError("delivery_phone", "is required"))
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrCartEmpty)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, NewValidationError("quantity", "must be greater than zero"))
		}
		if item.PriceMinor < 0 {
			errs = append(errs, NewValidationError("price", "must be non-negative"))
		}
		calc += item.LineTotal()
	}
	if calc != o.TotalMinor {
		errs = append(errs, NewValidationError("total", "does not match items sum"))
	}

	return errs
}

// SupplierOrderSummary: строка списка заказов поставщика с его долей суммы.
type SupplierOrderSummary struct {
	OrderID         string
	BuyerID         string
	Status          OrderStatus
	DeliveryAddress string
	DeliveryPhone   string
	SubtotalMinor   int64
	CreatedAt       time.Time
}
