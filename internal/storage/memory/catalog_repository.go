package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// catalogRepositoryInMemory читает и меняет товары в общем Store.
type catalogRepositoryInMemory struct {
	store *Store
}

// NewCatalogRepository возвращает in-memory каталог для локальной разработки и тестов.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepositoryInMemory{store: store}
}

// Get возвращает товар или ErrNotFound.
func (r *catalogRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	product, ok := r.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return product, nil
}

// List возвращает товары, отсортированные по имени, с фильтром по поставщику.
func (r *catalogRepositoryInMemory) List(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.store.products))
	for _, product := range r.store.products {
		if filter.SupplierID != "" && product.SupplierID != filter.SupplierID {
			continue
		}
		result = append(result, product)
	}

	sort.Slice(result, func(i, j int) bool {
		ni, nj := strings.ToLower(result[i].Name), strings.ToLower(result[j].Name)
		if ni != nj {
			return ni < nj
		}
		return result[i].ID < result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Create сохраняет товар, если ID ещё не занят.
func (r *catalogRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.products[product.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.store.products[product.ID] = product
	return nil
}

// UpdatePriceStock меняет цену и остаток товара поставщика.
func (r *catalogRepositoryInMemory) UpdatePriceStock(_ context.Context, id, supplierID string, priceMinor int64, stock int) (domain.Product, error) {
	if stock < 0 {
		return domain.Product{}, domain.NewValidationError("stock", "must be non-negative")
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	product, ok := r.store.products[id]
	if !ok || product.SupplierID != supplierID {
		return domain.Product{}, domain.ErrNotFound
	}
	product.PriceMinor = priceMinor
	product.Stock = stock
	product.UpdatedAt = time.Now().UTC()
	r.store.products[id] = product
	return product, nil
}

// Delete удаляет товар поставщика. Позиции уже оформленных заказов хранят свои снимки.
func (r *catalogRepositoryInMemory) Delete(_ context.Context, id, supplierID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	product, ok := r.store.products[id]
	if !ok || product.SupplierID != supplierID {
		return domain.ErrNotFound
	}
	delete(r.store.products, id)
	return nil
}

var _ domain.CatalogRepository = (*catalogRepositoryInMemory)(nil)
