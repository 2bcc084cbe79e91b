package domain

import (
	"strings"
	"time"
)

// Product: товар каталога, принадлежащий одному поставщику.
type Product struct {
	ID          string
	SupplierID  string
	Name        string
	Description string
	ImageRef    string
	// PriceMinor: цена за единицу в минимальных денежных единицах (2 знака после запятой).
	PriceMinor int64
	// Stock: остаток на складе, никогда не бывает отрицательным.
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InStock сообщает, что товар можно купить хотя бы в одном экземпляре.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// OwnedBy проверяет, что товар принадлежит поставщику.
func (p Product) OwnedBy(supplierID string) bool {
	return supplierID != "" && p.SupplierID == supplierID
}

// Validate проверяет инварианты товара перед сохранением.
func (p Product) Validate() error {
	switch {
	case strings.TrimSpace(p.SupplierID) == "":
		return NewValidationError("supplier_id", "is required")
	case strings.TrimSpace(p.Name) == "":
		return NewValidationError("name", "is required")
	case p.PriceMinor < 0:
		return NewValidationError("price", "must be non-negative")
	case p.Stock < 0:
		return NewValidationError("stock", "must be non-negative")
	}
	return nil
}

// ProductFilter ограничивает выборку каталога.
type ProductFilter struct {
	SupplierID string
	Limit      int
}
