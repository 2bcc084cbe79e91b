package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// Операции корзины для логов и метрик.
const (
	opAdd       = "add"
	opSet       = "set"
	opRemove    = "remove"
	opReconcile = "reconcile"
)

// Option настраивает Manager.
type Option func(*Manager)

// WithLogger задаёт logger менеджера корзины.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics подключает метрики корзины.
func WithMetrics(mx *metrics.MarketplaceMetrics) Option {
	return func(m *Manager) {
		m.metrics = mx
	}
}

// Manager управляет корзинами сессий и сверяет их с живыми остатками каталога.
// Каталог только читается: остаток меняют лишь оформление заказа и поставщик.
type Manager struct {
	catalog domain.CatalogRepository
	carts   domain.CartStore
	logger  *log.Entry
	metrics *metrics.MarketplaceMetrics
}

// NewManager создаёт менеджер корзины.
func NewManager(catalog domain.CatalogRepository, carts domain.CartStore, options ...Option) *Manager {
	m := &Manager{
		catalog: catalog,
		carts:   carts,
	}
	for _, option := range options {
		option(m)
	}
	if m.logger == nil {
		m.logger = log.WithField("component", "cart-manager")
	}
	return m
}

// Open создаёт пустую корзину сессии. Вызывается при каждом входе, поэтому старая корзина сбрасывается.
func (m *Manager) Open(ctx context.Context, sessionID, actorID string) (domain.Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return domain.Cart{}, err
	}
	if err := m.carts.Delete(ctx, sessionID); err != nil {
		return domain.Cart{}, fmt.Errorf("reset cart: %w", err)
	}
	cart, err := m.carts.Update(ctx, sessionID, true, func(c *domain.Cart) error {
		c.ActorID = actorID
		c.Entries = nil
		return nil
	})
	if err != nil {
		return domain.Cart{}, fmt.Errorf("open cart: %w", err)
	}
	m.logger.WithFields(log.Fields{"session_id": sessionID, "actor_id": actorID}).Debug("cart opened")
	return cart, nil
}

// Discard удаляет корзину при выходе из сессии.
func (m *Manager) Discard(ctx context.Context, sessionID string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	if err := m.carts.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("discard cart: %w", err)
	}
	return nil
}

// Get возвращает текущую корзину без сверки.
// Для неоткрытой или завершённой сессии возвращается domain.ErrSessionExpired.
func (m *Manager) Get(ctx context.Context, sessionID string) (domain.Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return domain.Cart{}, err
	}
	cart, err := m.carts.Get(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// Clear очищает корзину после успешного оформления заказа.
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	_, err := m.carts.Update(ctx, sessionID, false, func(c *domain.Cart) error {
		c.Entries = nil
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrSessionExpired) {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// AddOrIncrement добавляет товар или увеличивает количество на delta и возвращает число строк корзины.
//
// Новая строка всегда создаётся с количеством 1 и только при ненулевом остатке, delta применяется
// к уже существующей строке. Итоговое количество не может превышать остаток.
func (m *Manager) AddOrIncrement(ctx context.Context, sessionID, productID string, delta int) (int, error) {
	if err := requireSession(sessionID); err != nil {
		return 0, err
	}
	if delta <= 0 {
		delta = 1
	}

	product, err := m.catalog.Get(ctx, productID)
	if err != nil {
		m.record(opAdd, err)
		if errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("get product: %w", err)
	}

	cart, err := m.carts.Update(ctx, sessionID, false, func(c *domain.Cart) error {
		idx := c.Find(productID)
		if idx < 0 {
			if !product.InStock() {
				return fmt.Errorf("%s: %w", product.Name, domain.ErrOutOfStock)
			}
			c.Entries = append(c.Entries, domain.CartEntry{
				ProductID:  product.ID,
				Quantity:   1,
				PriceMinor: product.PriceMinor,
				Name:       product.Name,
				ImageRef:   product.ImageRef,
			})
			return nil
		}

		// Сравнение с остатком до сложения: qty + delta не переполняется.
		if delta > product.Stock-c.Entries[idx].Quantity {
			return &domain.StockExceededError{ProductID: product.ID, Name: product.Name, Available: product.Stock}
		}
		c.Entries[idx].Quantity += delta
		return nil
	})
	m.record(opAdd, err)
	if err != nil {
		return cart.Size(), err
	}

	m.logger.WithFields(log.Fields{
		"session_id": sessionID,
		"product_id": productID,
		"delta":      delta,
	}).Debug("cart entry added")
	return cart.Size(), nil
}

// SetQuantity задаёт количество строки.
//
// qty <= 0 удаляет строку (идемпотентно). Если товар исчез из каталога, строка удаляется и
// возвращается domain.ErrProductGone вместе с уже сохранённой корзиной.
func (m *Manager) SetQuantity(ctx context.Context, sessionID, productID string, qty int) (domain.Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return domain.Cart{}, err
	}
	if qty <= 0 {
		return m.Remove(ctx, sessionID, productID)
	}

	product, err := m.catalog.Get(ctx, productID)
	if errors.Is(err, domain.ErrNotFound) {
		cart, removeErr := m.Remove(ctx, sessionID, productID)
		if removeErr != nil {
			return cart, removeErr
		}
		m.logger.WithFields(log.Fields{"session_id": sessionID, "product_id": productID}).Info("product vanished, cart entry removed")
		m.record(opSet, domain.ErrProductGone)
		return cart, domain.ErrProductGone
	}
	if err != nil {
		m.record(opSet, err)
		return domain.Cart{}, fmt.Errorf("get product: %w", err)
	}

	cart, err := m.carts.Update(ctx, sessionID, false, func(c *domain.Cart) error {
		idx := c.Find(productID)
		if idx < 0 {
			return fmt.Errorf("cart entry %s: %w", productID, domain.ErrNotFound)
		}
		if qty > product.Stock {
			return &domain.StockExceededError{ProductID: product.ID, Name: product.Name, Available: product.Stock}
		}
		c.Entries[idx].Quantity = qty
		return nil
	})
	m.record(opSet, err)
	return cart, err
}

// Remove безусловно удаляет строку товара; отсутствие строки не является ошибкой.
func (m *Manager) Remove(ctx context.Context, sessionID, productID string) (domain.Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return domain.Cart{}, err
	}
	cart, err := m.carts.Update(ctx, sessionID, false, func(c *domain.Cart) error {
		c.Remove(productID)
		return nil
	})
	m.record(opRemove, err)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("remove cart entry: %w", err)
	}
	return cart, nil
}

// Reconcile сверяет корзину с живыми остатками перед показом и оформлением.
//
// Исчезнувшие товары удаляются, количество сверх остатка урезается до остатка (строка удаляется при нуле).
// Каждая корректировка возвращается как заметка для пользователя.
func (m *Manager) Reconcile(ctx context.Context, sessionID string) (domain.Cart, []domain.Adjustment, error) {
	current, err := m.Get(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, nil, err
	}
	if current.Empty() {
		return current, nil, nil
	}

	live := make(map[string]*domain.Product, len(current.Entries))
	for _, entry := range current.Entries {
		product, err := m.catalog.Get(ctx, entry.ProductID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			live[entry.ProductID] = nil
		case err != nil:
			return current, nil, fmt.Errorf("get product %s: %w", entry.ProductID, err)
		default:
			p := product
			live[entry.ProductID] = &p
		}
	}

	var notes []domain.Adjustment
	cart, err := m.carts.Update(ctx, sessionID, false, func(c *domain.Cart) error {
		notes = notes[:0]
		kept := c.Entries[:0]
		for _, entry := range c.Entries {
			product, checked := live[entry.ProductID]
			if !checked {
				// Строка добавлена после чтения каталога и уже проверена при добавлении.
				kept = append(kept, entry)
				continue
			}
			note, keep := adjustEntry(&entry, product)
			if note != nil {
				notes = append(notes, *note)
			}
			if keep {
				kept = append(kept, entry)
			}
		}
		c.Entries = kept
		return nil
	})
	if err != nil {
		return domain.Cart{}, nil, fmt.Errorf("reconcile cart: %w", err)
	}

	m.record(opReconcile, nil)
	for _, note := range notes {
		if m.metrics != nil {
			m.metrics.RecordCartAdjustment(string(note.Kind))
		}
		m.logger.WithFields(log.Fields{
			"session_id": sessionID,
			"product_id": note.ProductID,
			"kind":       note.Kind,
			"quantity":   note.Quantity,
		}).Info("cart entry adjusted to live stock")
	}
	return cart, notes, nil
}

// Totals: сумма quantity * снимок цены; остатки не перечитываются.
func Totals(cart domain.Cart) int64 {
	return cart.Total()
}

// adjustEntry применяет к строке живой товар и сообщает, оставить ли её.
func adjustEntry(entry *domain.CartEntry, product *domain.Product) (*domain.Adjustment, bool) {
	if product == nil {
		return &domain.Adjustment{
			ProductID: entry.ProductID,
			Name:      entry.Name,
			Kind:      domain.AdjustmentRemoved,
			Message:   "Product no longer available or was removed from inventory.",
		}, false
	}
	if entry.Quantity <= product.Stock {
		return nil, true
	}
	if product.Stock <= 0 {
		return &domain.Adjustment{
			ProductID: entry.ProductID,
			Name:      entry.Name,
			Kind:      domain.AdjustmentOutOfStock,
			Message:   fmt.Sprintf("Product %s is now out of stock and removed from your cart.", entry.Name),
		}, false
	}

	entry.Quantity = product.Stock
	return &domain.Adjustment{
		ProductID: entry.ProductID,
		Name:      entry.Name,
		Kind:      domain.AdjustmentClamped,
		Quantity:  product.Stock,
		Message:   fmt.Sprintf("Quantity for %s adjusted to available stock (%d).", entry.Name, product.Stock),
	}, true
}

func (m *Manager) record(operation string, err error) {
	if m.metrics == nil {
		return
	}
	result := metrics.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrStockExceeded),
		errors.Is(err, domain.ErrProductGone),
		errors.Is(err, domain.ErrSessionExpired):
		result = metrics.ResultRejected
	default:
		result = metrics.ResultError
	}
	m.metrics.RecordCartMutation(operation, result)
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return domain.NewValidationError("session_id", "is required")
	}
	return nil
}
