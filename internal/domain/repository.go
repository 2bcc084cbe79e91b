package domain

import "context"

// CatalogRepository описывает требования к хранилищу каталога товаров.
type CatalogRepository interface {
	// Get возвращает товар по идентификатору или ErrNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// List возвращает товары каталога, отсортированные по имени.
	List(ctx context.Context, filter ProductFilter) ([]Product, error)
	// Create сохраняет новый товар. Повторный ID даёт ErrAlreadyExists.
	Create(ctx context.Context, product Product) error
	// UpdatePriceStock меняет цену и остаток товара, если он принадлежит supplierID.
	// Чужой товар и отсутствующий товар неразличимы и дают ErrNotFound.
	UpdatePriceStock(ctx context.Context, id, supplierID string, priceMinor int64, stock int) (Product, error)
	// Delete удаляет товар поставщика.
	Delete(ctx context.Context, id, supplierID string) error
}

// OrderRepository описывает чтение заказов вне транзакций оформления.
type OrderRepository interface {
	// Get возвращает заказ вместе с позициями или ErrNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByBuyer возвращает заказы покупателя, новые первыми; limit<=0, без ограничения.
	ListByBuyer(ctx context.Context, buyerID string, limit int) ([]Order, error)
	// ListBySupplier возвращает заказы, содержащие позиции поставщика, с его подытогом.
	ListBySupplier(ctx context.Context, supplierID string, limit int) ([]SupplierOrderSummary, error)
	// ListItems возвращает позиции заказа.
	ListItems(ctx context.Context, orderID string) ([]OrderItem, error)
}

// CartStore хранит корзины, привязанные к сессии.
type CartStore interface {
	// Get возвращает корзину сессии или ErrSessionExpired, если сессия не открыта.
	Get(ctx context.Context, sessionID string) (Cart, error)
	// Update атомарно применяет fn к корзине сессии. Если fn вернула ошибку, изменения отбрасываются.
	// Для отсутствующей сессии создаётся пустая корзина, если create=true, иначе ErrSessionExpired.
	Update(ctx context.Context, sessionID string, create bool, fn func(cart *Cart) error) (Cart, error)
	// Delete удаляет корзину сессии. Отсутствие корзины не является ошибкой.
	Delete(ctx context.Context, sessionID string) error
}
