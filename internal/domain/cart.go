package domain

import "time"

// CartEntry: строка корзины со снимком цены и отображаемых данных на момент добавления.
type CartEntry struct {
	ProductID  string
	Quantity   int
	PriceMinor int64
	Name       string
	ImageRef   string
}

// LineTotal возвращает стоимость строки по снимку цены.
func (e CartEntry) LineTotal() int64 {
	return int64(e.Quantity) * e.PriceMinor
}

// Cart: корзина одной сессии. Порядок строк совпадает с порядком добавления.
type Cart struct {
	SessionID string
	ActorID   string
	Entries   []CartEntry
	UpdatedAt time.Time
}

// Size возвращает число различных товаров в корзине.
func (c *Cart) Size() int {
	return len(c.Entries)
}

// Empty сообщает, что в корзине нет строк.
func (c *Cart) Empty() bool {
	return len(c.Entries) == 0
}

// Find возвращает индекс строки товара или -1.
func (c *Cart) Find(productID string) int {
	for i := range c.Entries {
		if c.Entries[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Remove удаляет строку товара. Отсутствие строки не является ошибкой.
func (c *Cart) Remove(productID string) bool {
	idx := c.Find(productID)
	if idx < 0 {
		return false
	}
	c.Entries = append(c.Entries[:idx], c.Entries[idx+1:]...)
	return true
}

// Total: сумма quantity * снимок цены по всем строкам.
func (c *Cart) Total() int64 {
	var total int64
	for _, entry := range c.Entries {
		total += entry.LineTotal()
	}
	return total
}

// Clone возвращает независимую копию корзины.
func (c Cart) Clone() Cart {
	out := c
	out.Entries = append([]CartEntry(nil), c.Entries...)
	return out
}

// AdjustmentKind описывает, что произошло со строкой при сверке с остатками.
type AdjustmentKind string

const (
	// AdjustmentRemoved: товар исчез из каталога, строка удалена.
	AdjustmentRemoved AdjustmentKind = "removed"
	// AdjustmentClamped: количество уменьшено до текущего остатка.
	AdjustmentClamped AdjustmentKind = "clamped"
	// AdjustmentOutOfStock: остаток обнулился, строка удалена.
	AdjustmentOutOfStock AdjustmentKind = "out_of_stock"
)

// Adjustment: пользовательская заметка о корректировке корзины.
type Adjustment struct {
	ProductID string
	Name      string
	Kind      AdjustmentKind
	Quantity  int
	Message   string
}
