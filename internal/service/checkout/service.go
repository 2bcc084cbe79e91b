package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// DefaultCurrency: валюта заказов, если не задана конфигурацией.
const DefaultCurrency = "INR"

// CartClearer очищает корзину сессии после успешного оформления.
type CartClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

// PlaceOrderInput: данные для оформления заказа.
type PlaceOrderInput struct {
	BuyerID   string
	SessionID string
	// Entries: строки корзины; цена в строках игнорируется, берётся свежая из каталога.
	Entries         []domain.CartEntry
	DeliveryAddress string
	DeliveryPhone   string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics подключает метрики оформления.
func WithMetrics(mx *metrics.MarketplaceMetrics) Option {
	return func(s *Service) { s.metrics = mx }
}

// WithCurrency задаёт валюту создаваемых заказов.
func WithCurrency(currency string) Option {
	return func(s *Service) {
		if currency != "" {
			s.currency = currency
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service превращает корзину в заказ одной атомарной транзакцией.
type Service struct {
	tx       domain.TxManager
	carts    CartClearer
	currency string
	logger   *log.Entry
	metrics  *metrics.MarketplaceMetrics
	now      func() time.Time
	newID    func() string
}

// NewService создаёт сервис оформления заказов. carts может быть nil, тогда корзина не очищается.
func NewService(tx domain.TxManager, carts CartClearer, options ...Option) *Service {
	s := &Service{
		tx:       tx,
		carts:    carts,
		currency: DefaultCurrency,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "checkout")
	}
	return s
}

type line struct {
	productID string
	quantity  int
}

// PlaceOrder проверяет и списывает остатки по всем строкам, создаёт заказ с позициями
// и событие order.placed. Либо применяется всё, либо ничего.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (order domain.Order, err error) {
	ctx, span := otel.Tracer("checkout").Start(ctx, "Checkout.PlaceOrder")
	defer span.End()

	started := time.Now()
	defer func() {
		s.recordResult(err, time.Since(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	lines, err := validate(in)
	if err != nil {
		return domain.Order{}, err
	}
	span.SetAttributes(
		attribute.String("buyer_id", in.BuyerID),
		attribute.Int("lines", len(lines)),
	)

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		products, err := tx.LockProducts(ctx, lockOrder(lines))
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		// Все строки проверяются до первой записи.
		for _, l := range lines {
			product, ok := products[l.productID]
			if !ok {
				return &domain.ProductUnavailableError{ProductID: l.productID, Name: nameFromEntries(in.Entries, l.productID)}
			}
			if product.Stock < l.quantity {
				return &domain.InsufficientStockError{
					ProductID: product.ID,
					Name:      product.Name,
					Requested: l.quantity,
					Available: product.Stock,
				}
			}
		}

		for _, l := range lines {
			if err := tx.DecrementStock(ctx, l.productID, l.quantity); err != nil {
				return decrementError(err)
			}
		}

		order = s.buildOrder(in, lines, products)
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		payload, err := json.Marshal(domain.NewOrderPlacedEvent(order))
		if err != nil {
			return fmt.Errorf("marshal order.placed: %w", err)
		}
		if _, err := tx.EnqueueOutbox(ctx, domain.OutboxMessage{
			AggregateType: domain.AggregateOrder,
			AggregateID:   order.ID,
			EventType:     domain.EventOrderPlaced,
			Payload:       payload,
			CreatedAt:     order.CreatedAt,
		}); err != nil {
			return fmt.Errorf("enqueue order.placed: %w", err)
		}
		if err := tx.AppendTimeline(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.TimelineOrderPlaced,
			Occurred: order.CreatedAt,
		}); err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"buyer_id":   in.BuyerID,
			"session_id": in.SessionID,
		}).Warn("checkout rejected")
		return domain.Order{}, err
	}

	units := 0
	for _, item := range order.Items {
		units += item.Quantity
	}
	if s.metrics != nil {
		s.metrics.RecordOrderCommitted(units, order.TotalMinor)
		s.metrics.RecordOutboxEvent()
		s.metrics.RecordTimelineEvent()
	}
	span.SetAttributes(attribute.String("order_id", order.ID))

	if s.carts != nil && in.SessionID != "" {
		// Заказ уже зафиксирован, ошибка очистки корзины его не отменяет.
		if clearErr := s.carts.Clear(ctx, in.SessionID); clearErr != nil {
			s.logger.WithError(clearErr).WithField("session_id", in.SessionID).Warn("не удалось очистить корзину после заказа")
		}
	}

	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"buyer_id":    order.BuyerID,
		"total_minor": order.TotalMinor,
		"items":       len(order.Items),
	}).Info("order placed")
	return order, nil
}

func (s *Service) buildOrder(in PlaceOrderInput, lines []line, products map[string]domain.Product) domain.Order {
	now := s.now()
	order := domain.Order{
		ID:              s.newID(),
		BuyerID:         in.BuyerID,
		Status:          domain.OrderStatusPending,
		Currency:        s.currency,
		DeliveryAddress: strings.TrimSpace(in.DeliveryAddress),
		DeliveryPhone:   strings.TrimSpace(in.DeliveryPhone),
		Items:           make([]domain.OrderItem, 0, len(lines)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, l := range lines {
		product := products[l.productID]
		item := domain.OrderItem{
			ID:          s.newID(),
			OrderID:     order.ID,
			ProductID:   product.ID,
			SupplierID:  product.SupplierID,
			ProductName: product.Name,
			PriceMinor:  product.PriceMinor,
			Quantity:    l.quantity,
			Status:      domain.ItemStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		order.TotalMinor += item.LineTotal()
		order.Items = append(order.Items, item)
	}
	return order
}

// validate проверяет входные данные и сводит дубли товаров в одну строку в порядке первого появления.
func validate(in PlaceOrderInput) ([]line, error) {
	if strings.TrimSpace(in.BuyerID) == "" {
		return nil, domain.NewValidationError("buyer_id", "is required")
	}
	if len(in.Entries) == 0 {
		return nil, domain.ErrCartEmpty
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		return nil, domain.NewValidationError("delivery_address", "is required")
	}
	if strings.TrimSpace(in.DeliveryPhone) == "" {
		return nil, domain.NewValidationError("delivery_phone", "is required")
	}

	index := make(map[string]int, len(in.Entries))
	lines := make([]line, 0, len(in.Entries))
	for _, entry := range in.Entries {
		if strings.TrimSpace(entry.ProductID) == "" {
			return nil, domain.NewValidationError("product_id", "is required")
		}
		if entry.Quantity <= 0 {
			return nil, domain.NewValidationError("quantity", "must be greater than zero")
		}
		if i, ok := index[entry.ProductID]; ok {
			lines[i].quantity += entry.Quantity
			continue
		}
		index[entry.ProductID] = len(lines)
		lines = append(lines, line{productID: entry.ProductID, quantity: entry.Quantity})
	}
	return lines, nil
}

// lockOrder возвращает ID товаров в порядке блокировки.
func lockOrder(lines []line) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.productID)
	}
	sort.Strings(ids)
	return ids
}

func nameFromEntries(entries []domain.CartEntry, productID string) string {
	for _, entry := range entries {
		if entry.ProductID == productID && entry.Name != "" {
			return entry.Name
		}
	}
	return ""
}

// decrementError оставляет доменные ошибки остатка как есть и оборачивает ошибки хранилища.
func decrementError(err error) error {
	if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrProductUnavailable) {
		return err
	}
	return fmt.Errorf("decrement stock: %w", err)
}

func (s *Service) recordResult(err error, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.RecordCheckout(metrics.ResultOK, "", duration)
	case errors.Is(err, domain.ErrInsufficientStock):
		s.metrics.RecordCheckout(metrics.ResultRejected, "insufficient_stock", duration)
	case errors.Is(err, domain.ErrProductUnavailable):
		s.metrics.RecordCheckout(metrics.ResultRejected, "product_unavailable", duration)
	case errors.Is(err, domain.ErrValidation):
		s.metrics.RecordCheckout(metrics.ResultRejected, "validation", duration)
	default:
		s.metrics.RecordCheckout(metrics.ResultError, "store", duration)
	}
}
