package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Store: общее in-memory хранилище каталога и заказов.
//
// Каталог и заказы разделяют один мьютекс: транзакция оформления держит его целиком,
// поэтому проверка остатка и списание не пересекаются с другими транзакциями.
type Store struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	items    map[string]domain.OrderItem
	// itemOrder хранит порядок позиций внутри заказа.
	itemOrder map[string][]string

	outbox   *outboxRepositoryInMemory
	timeline *timelineRepositoryInMemory
}

// NewStore создаёт пустое хранилище со встроенными outbox и timeline.
func NewStore() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
		items:     make(map[string]domain.OrderItem),
		itemOrder: make(map[string][]string),
		outbox:    NewOutboxRepository(),
		timeline:  newTimelineRepository(),
	}
}

// Outbox возвращает outbox-репозиторий, в который пишут транзакции этого хранилища.
func (s *Store) Outbox() domain.OutboxRepository {
	return s.outbox
}

// Timeline возвращает репозиторий истории заказов.
func (s *Store) Timeline() domain.TimelineRepository {
	return s.timeline
}

// Ping нужен для health-check и всегда успешен.
func (s *Store) Ping(context.Context) error {
	return nil
}

// orderItemsLocked собирает позиции заказа; вызывать под s.mu.
func (s *Store) orderItemsLocked(orderID string) []domain.OrderItem {
	ids := s.itemOrder[orderID]
	items := make([]domain.OrderItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, s.items[id])
	}
	return items
}

// orderLocked возвращает заказ с позициями; вызывать под s.mu.
func (s *Store) orderLocked(id string) (domain.Order, bool) {
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	order.Items = s.orderItemsLocked(id)
	return order, true
}
