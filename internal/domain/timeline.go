package domain

import "time"

// Типы событий истории заказа.
const (
	TimelineOrderPlaced        = "order_placed"
	TimelineItemStatusChanged  = "item_status_changed"
	TimelineOrderStatusChanged = "order_status_changed"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
