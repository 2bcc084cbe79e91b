package domain

// ItemStatus описывает статус исполнения одной позиции заказа.
type ItemStatus string

const (
	// ItemStatusPending: позиция создана, поставщик ещё не взял её в работу.
	ItemStatusPending ItemStatus = "Pending"
	// ItemStatusProcessing: поставщик собирает позицию.
	ItemStatusProcessing ItemStatus = "Processing"
	// ItemStatusReadyForDispatch: позиция упакована и ждёт отгрузки.
	ItemStatusReadyForDispatch ItemStatus = "Ready for Dispatch"
	// ItemStatusShipped: позиция передана в доставку.
	ItemStatusShipped ItemStatus = "Shipped"
	// ItemStatusDelivered: позиция доставлена покупателю (терминальный статус).
	ItemStatusDelivered ItemStatus = "Delivered"
	// ItemStatusCancelled: позиция отменена (терминальный статус).
	ItemStatusCancelled ItemStatus = "Cancelled"
)

// OrderStatus описывает агрегированный статус заказа, вычисляемый по его позициям.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = OrderStatus(ItemStatusPending)
	OrderStatusProcessing       OrderStatus = OrderStatus(ItemStatusProcessing)
	OrderStatusReadyForDispatch OrderStatus = OrderStatus(ItemStatusReadyForDispatch)
	OrderStatusShipped          OrderStatus = OrderStatus(ItemStatusShipped)
	OrderStatusDelivered        OrderStatus = OrderStatus(ItemStatusDelivered)
	OrderStatusCancelled        OrderStatus = OrderStatus(ItemStatusCancelled)
	// OrderStatusPartiallyFulfilled: все позиции завершены, часть доставлена, часть отменена.
	OrderStatusPartiallyFulfilled OrderStatus = "Partially Fulfilled"
)

// itemStatusRank задаёт порядок продвижения позиции. Меньший ранг, меньший прогресс.
// Агрегат заказа определяется активной позицией с наименьшим рангом.
var itemStatusRank = map[ItemStatus]int{
	ItemStatusPending:          0,
	ItemStatusProcessing:       1,
	ItemStatusReadyForDispatch: 2,
	ItemStatusShipped:          3,
	ItemStatusDelivered:        4,
	ItemStatusCancelled:        5,
}

// ItemStatuses возвращает все допустимые статусы позиции в порядке продвижения.
func ItemStatuses() []ItemStatus {
	return []ItemStatus{
		ItemStatusPending,
		ItemStatusProcessing,
		ItemStatusReadyForDispatch,
		ItemStatusShipped,
		ItemStatusDelivered,
		ItemStatusCancelled,
	}
}

// ParseItemStatus принимает только точное имя статуса ("Ready for Dispatch", не "ready for dispatch").
// Остальные значения дают ErrInvalidStatus.
func ParseItemStatus(raw string) (ItemStatus, error) {
	status := ItemStatus(raw)
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// Valid проверяет, что статус относится к шести поддерживаемым значениям.
func (s ItemStatus) Valid() bool {
	_, ok := itemStatusRank[s]
	return ok
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusDelivered || s == ItemStatusCancelled
}

// CanTransition проверяет допустимость перехода позиции from -> to.
// Разрешено движение вперёд по цепочке (с пропуском шагов) и отмена из любого нетерминального статуса.
// Переход в тот же статус допустим и трактуется как no-op.
func CanTransition(from, to ItemStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	if to == ItemStatusCancelled {
		return true
	}
	return itemStatusRank[to] > itemStatusRank[from]
}

// activeStatusPriority: статусы, которые делают заказ «незавершённым», в порядке приоритета.
var activeStatusPriority = []ItemStatus{
	ItemStatusPending,
	ItemStatusProcessing,
	ItemStatusReadyForDispatch,
	ItemStatusShipped,
}

// AggregateStatus вычисляет статус заказа по статусам всех его позиций.
//
// Активная позиция с наименьшим прогрессом определяет статус заказа. Если активных нет:
// все Delivered -> Delivered, все Cancelled -> Cancelled, смесь -> Partially Fulfilled.
// Для пустого набора возвращается previous.
func AggregateStatus(items []ItemStatus, previous OrderStatus) OrderStatus {
	if len(items) == 0 {
		return previous
	}

	present := make(map[ItemStatus]int, len(items))
	for _, status := range items {
		present[status]++
	}

	for _, status := range activeStatusPriority {
		if present[status] > 0 {
			return OrderStatus(status)
		}
	}

	delivered := present[ItemStatusDelivered]
	cancelled := present[ItemStatusCancelled]
	switch {
	case delivered == len(items):
		return OrderStatusDelivered
	case cancelled == len(items):
		return OrderStatusCancelled
	case delivered+cancelled == len(items):
		return OrderStatusPartiallyFulfilled
	default:
		// Встречен неизвестный статус, оставляем сохранённое значение.
		return previous
	}
}
