package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// UpdateItemStatusInput: запрос поставщика на смену статуса позиции.
type UpdateItemStatusInput struct {
	OrderID    string
	ItemID     string
	Status     string
	SupplierID string
}

// Result описывает итог смены статуса.
type Result struct {
	Item        domain.OrderItem
	OrderStatus domain.OrderStatus
	// ItemChanged=false означает no-op: позиция уже была в запрошенном статусе.
	ItemChanged bool
	// OrderChanged сообщает, что агрегированный статус заказа изменился.
	OrderChanged bool
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics подключает метрики переходов.
func WithMetrics(mx *metrics.MarketplaceMetrics) Option {
	return func(s *Service) { s.metrics = mx }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service: машина состояний исполнения позиций заказа.
type Service struct {
	tx      domain.TxManager
	logger  *log.Entry
	metrics *metrics.MarketplaceMetrics
	now     func() time.Time
}

// NewService создаёт сервис исполнения.
func NewService(tx domain.TxManager, options ...Option) *Service {
	s := &Service{
		tx:  tx,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "fulfillment")
	}
	return s
}

// UpdateItemStatus переводит позицию поставщика в новый статус и пересчитывает статус заказа.
// Запись статуса позиции, агрегата и событий выполняется в одной транзакции.
func (s *Service) UpdateItemStatus(ctx context.Context, in UpdateItemStatusInput) (res Result, err error) {
	ctx, span := otel.Tracer("fulfillment").Start(ctx, "Fulfillment.UpdateItemStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", in.OrderID),
		attribute.String("item_id", in.ItemID),
		attribute.String("status", in.Status),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	target, err := domain.ParseItemStatus(in.Status)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(in.SupplierID) == "" {
		return Result{}, domain.ErrForbidden
	}

	var (
		from      domain.ItemStatus
		prevOrder domain.OrderStatus
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		res = Result{}

		order, err := tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return lookupError("order", in.OrderID, err)
		}
		item, err := tx.LockOrderItem(ctx, in.ItemID)
		if err != nil {
			return lookupError("order item", in.ItemID, err)
		}
		if item.OrderID != order.ID {
			return fmt.Errorf("order item %s in order %s: %w", in.ItemID, in.OrderID, domain.ErrNotFound)
		}
		if item.SupplierID != in.SupplierID {
			return fmt.Errorf("order item %s: %w", item.ID, domain.ErrForbidden)
		}

		from = item.Status
		prevOrder = order.Status
		res.Item = item
		res.OrderStatus = order.Status
		if item.Status == target {
			return nil
		}
		if !domain.CanTransition(item.Status, target) {
			return fmt.Errorf("%s -> %s: %w", item.Status, target, domain.ErrInvalidTransition)
		}

		now := s.now()
		if err := tx.UpdateItemStatus(ctx, item.ID, target, now); err != nil {
			return fmt.Errorf("update item status: %w", err)
		}
		item.Status = target
		item.UpdatedAt = now
		res.Item = item
		res.ItemChanged = true

		if err := enqueue(ctx, tx, order.ID, domain.EventOrderItemStatusChanged, domain.ItemStatusChangedEvent{
			OrderID:    order.ID,
			ItemID:     item.ID,
			SupplierID: item.SupplierID,
			From:       from,
			To:         target,
			ChangedAt:  now,
		}, now); err != nil {
			return err
		}
		if err := tx.AppendTimeline(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.TimelineItemStatusChanged,
			Reason:   fmt.Sprintf("%s: %s -> %s", item.ProductName, from, target),
			Occurred: now,
		}); err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}

		siblings, err := tx.ListOrderItems(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}
		statuses := make([]domain.ItemStatus, 0, len(siblings))
		for _, sibling := range siblings {
			statuses = append(statuses, sibling.Status)
		}
		next := domain.AggregateStatus(statuses, order.Status)
		res.OrderStatus = next
		if next == order.Status {
			return nil
		}

		if err := tx.UpdateOrderStatus(ctx, order.ID, next, now); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		res.OrderChanged = true
		if err := enqueue(ctx, tx, order.ID, domain.EventOrderStatusChanged, domain.OrderStatusChangedEvent{
			OrderID:   order.ID,
			From:      order.Status,
			To:        next,
			ChangedAt: now,
		}, now); err != nil {
			return err
		}
		if err := tx.AppendTimeline(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.TimelineOrderStatusChanged,
			Reason:   fmt.Sprintf("%s -> %s", order.Status, next),
			Occurred: now,
		}); err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":    in.OrderID,
			"item_id":     in.ItemID,
			"supplier_id": in.SupplierID,
			"status":      in.Status,
		}).Warn("item status update rejected")
		return Result{}, err
	}

	fields := log.Fields{
		"order_id":    in.OrderID,
		"item_id":     in.ItemID,
		"supplier_id": in.SupplierID,
		"from":        from,
		"to":          target,
	}
	if !res.ItemChanged {
		s.logger.WithFields(fields).Debug("item status unchanged")
		return res, nil
	}
	if s.metrics != nil {
		s.metrics.RecordItemTransition(string(target))
		s.metrics.RecordOutboxEvent()
		s.metrics.RecordTimelineEvent()
		if res.OrderChanged {
			s.metrics.RecordOrderStatusChange(string(res.OrderStatus))
			s.metrics.RecordOutboxEvent()
			s.metrics.RecordTimelineEvent()
		}
	}
	if res.OrderChanged {
		fields["order_status_from"] = prevOrder
		fields["order_status_to"] = res.OrderStatus
	}
	s.logger.WithFields(fields).Info("item status updated")
	return res, nil
}

func enqueue(ctx context.Context, tx domain.Tx, orderID, eventType string, payload any, at time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	if _, err := tx.EnqueueOutbox(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     at,
	}); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}

func lookupError(kind, id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return fmt.Errorf("lock %s: %w", kind, err)
}
