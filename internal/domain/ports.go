package domain

import (
	"context"
	"time"
)

// Tx: операции хранилища, выполняемые в одной изолированной транзакции.
type Tx interface {
	// LockProducts блокирует строки товаров (FOR UPDATE) и возвращает найденные по ID.
	// Отсутствующие товары просто не попадают в результат.
	LockProducts(ctx context.Context, ids []string) (map[string]Product, error)
	// DecrementStock уменьшает остаток; при нехватке возвращает ErrInsufficientStock.
	DecrementStock(ctx context.Context, productID string, qty int) error
	// CreateOrder сохраняет заказ вместе со всеми позициями.
	CreateOrder(ctx context.Context, order Order) error
	// LockOrder блокирует строку заказа и возвращает её без позиций.
	LockOrder(ctx context.Context, orderID string) (Order, error)
	// LockOrderItem блокирует позицию заказа.
	LockOrderItem(ctx context.Context, itemID string) (OrderItem, error)
	// ListOrderItems возвращает все позиции заказа внутри транзакции.
	ListOrderItems(ctx context.Context, orderID string) ([]OrderItem, error)
	UpdateItemStatus(ctx context.Context, itemID string, status ItemStatus, at time.Time) error
	UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus, at time.Time) error
	// EnqueueOutbox сохраняет событие для последующей публикации вместе с транзакцией.
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	// AppendTimeline добавляет событие в историю заказа.
	AppendTimeline(ctx context.Context, event TimelineEvent) error
}

// TxManager запускает функцию в транзакции: commit при nil, полный rollback при ошибке.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// CheckoutAttemptRepository хранит попытки оформления заказа по Idempotency-Key покупателя.
type CheckoutAttemptRepository interface {
	// Begin регистрирует попытку в статусе processing. Для существующего ключа возвращает
	// сохранённую попытку и ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
	Begin(ctx context.Context, key CheckoutKey, requestHash string, expiresAt time.Time) (CheckoutAttempt, error)
	Get(ctx context.Context, key CheckoutKey) (CheckoutAttempt, error)
	// Finish сохраняет окончательный ответ незавершённой попытки.
	Finish(ctx context.Context, key CheckoutKey, outcome CheckoutOutcome) error
	// Release удаляет незавершённую попытку, чтобы ключ можно было использовать снова.
	Release(ctx context.Context, key CheckoutKey) error
	// DeleteExpired удаляет до limit попыток с ExpiresAt <= before.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
	// ReleaseStale удаляет до limit попыток, застрявших в processing с UpdatedAt <= before.
	ReleaseStale(ctx context.Context, before time.Time, limit int) (int, error)
}

// Типы агрегатов и событий outbox.
const (
	AggregateOrder = "order"

	EventOrderPlaced            = "order.placed"
	EventOrderStatusChanged     = "order.status_changed"
	EventOrderItemStatusChanged = "order_item.status_changed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
