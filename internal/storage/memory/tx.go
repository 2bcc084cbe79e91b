package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type txManagerInMemory struct {
	store *Store
}

// NewTxManager создаёт менеджер транзакций поверх Store.
// Транзакции сериализуются эксклюзивной блокировкой хранилища, откат выполняется по журналу отмены.
func NewTxManager(store *Store) domain.TxManager {
	return &txManagerInMemory{store: store}
}

func (m *txManagerInMemory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	tx := &memoryTx{store: m.store}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err = ctx.Err(); err != nil {
		tx.rollback()
		return err
	}

	tx.commit()
	return nil
}

// memoryTx изменяет данные сразу и запоминает обратные операции.
// Outbox и timeline копятся в буфере и попадают в хранилище только при commit.
type memoryTx struct {
	store    *Store
	undo     []func()
	outbox   []domain.OutboxMessage
	timeline []domain.TimelineEvent
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.outbox = nil
	t.timeline = nil
}

func (t *memoryTx) commit() {
	for _, msg := range t.outbox {
		t.store.outbox.put(msg)
	}
	for _, event := range t.timeline {
		t.store.timeline.put(event)
	}
	t.undo = nil
}

func (t *memoryTx) LockProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.store.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (t *memoryTx) DecrementStock(_ context.Context, productID string, qty int) error {
	if qty <= 0 {
		return domain.NewValidationError("quantity", "must be greater than zero")
	}
	product, ok := t.store.products[productID]
	if !ok {
		return &domain.ProductUnavailableError{ProductID: productID}
	}
	if product.Stock < qty {
		return &domain.InsufficientStockError{
			ProductID: productID,
			Name:      product.Name,
			Requested: qty,
			Available: product.Stock,
		}
	}

	previous := product
	product.Stock -= qty
	product.UpdatedAt = time.Now().UTC()
	t.store.products[productID] = product
	t.undo = append(t.undo, func() { t.store.products[productID] = previous })
	return nil
}

func (t *memoryTx) CreateOrder(_ context.Context, order domain.Order) error {
	if _, exists := t.store.orders[order.ID]; exists {
		return fmt.Errorf("insert order %s: %w", order.ID, domain.ErrAlreadyExists)
	}
	for _, item := range order.Items {
		if _, exists := t.store.items[item.ID]; exists {
			return fmt.Errorf("insert order item %s: %w", item.ID, domain.ErrAlreadyExists)
		}
	}

	header := order
	header.Items = nil
	t.store.orders[order.ID] = header

	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		item.OrderID = order.ID
		t.store.items[item.ID] = item
		ids = append(ids, item.ID)
	}
	t.store.itemOrder[order.ID] = ids

	t.undo = append(t.undo, func() {
		for _, id := range ids {
			delete(t.store.items, id)
		}
		delete(t.store.itemOrder, order.ID)
		delete(t.store.orders, order.ID)
	})
	return nil
}

func (t *memoryTx) LockOrder(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := t.store.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return order, nil
}

func (t *memoryTx) LockOrderItem(_ context.Context, itemID string) (domain.OrderItem, error) {
	item, ok := t.store.items[itemID]
	if !ok {
		return domain.OrderItem{}, domain.ErrNotFound
	}
	return item, nil
}

func (t *memoryTx) ListOrderItems(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	return t.store.orderItemsLocked(orderID), nil
}

func (t *memoryTx) UpdateItemStatus(_ context.Context, itemID string, status domain.ItemStatus, at time.Time) error {
	item, ok := t.store.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	previous := item
	item.Status = status
	item.UpdatedAt = at
	t.store.items[itemID] = item
	t.undo = append(t.undo, func() { t.store.items[itemID] = previous })
	return nil
}

func (t *memoryTx) UpdateOrderStatus(_ context.Context, orderID string, status domain.OrderStatus, at time.Time) error {
	order, ok := t.store.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	previous := order
	order.Status = status
	order.UpdatedAt = at
	t.store.orders[orderID] = order
	t.undo = append(t.undo, func() { t.store.orders[orderID] = previous })
	return nil
}

func (t *memoryTx) EnqueueOutbox(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	t.outbox = append(t.outbox, msg)
	return msg, nil
}

func (t *memoryTx) AppendTimeline(_ context.Context, event domain.TimelineEvent) error {
	t.timeline = append(t.timeline, event)
	return nil
}

var _ domain.TxManager = (*txManagerInMemory)(nil)
var _ domain.Tx = (*memoryTx)(nil)
