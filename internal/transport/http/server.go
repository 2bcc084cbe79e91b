// Package httptransport: JSON API маркетплейса поверх chi.
//
// Идентичность актора приходит от внешнего слоя аутентификации в заголовках
// X-Actor-ID и X-Actor-Role, корзина адресуется заголовком X-Session-ID.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/orders"
)

// CartService: операции корзины сессии.
type CartService interface {
	Open(ctx context.Context, sessionID, actorID string) (domain.Cart, error)
	Discard(ctx context.Context, sessionID string) error
	Get(ctx context.Context, sessionID string) (domain.Cart, error)
	AddOrIncrement(ctx context.Context, sessionID, productID string, delta int) (int, error)
	SetQuantity(ctx context.Context, sessionID, productID string, qty int) (domain.Cart, error)
	Remove(ctx context.Context, sessionID, productID string) (domain.Cart, error)
	Reconcile(ctx context.Context, sessionID string) (domain.Cart, []domain.Adjustment, error)
}

// CheckoutService оформляет заказ из строк корзины.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, in checkout.PlaceOrderInput) (domain.Order, error)
}

// FulfillmentService меняет статусы позиций.
type FulfillmentService interface {
	UpdateItemStatus(ctx context.Context, in fulfillment.UpdateItemStatusInput) (fulfillment.Result, error)
}

// CatalogService: витрина и товары поставщика.
type CatalogService interface {
	Get(ctx context.Context, id string) (domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	CreateProduct(ctx context.Context, in catalog.CreateProductInput) (domain.Product, error)
	UpdatePriceStock(ctx context.Context, supplierID, productID string, priceMinor int64, stock int) (domain.Product, error)
	DeleteProduct(ctx context.Context, supplierID, productID string) error
}

// OrderQueries: чтение заказов покупателем и поставщиком.
type OrderQueries interface {
	ListForBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error)
	GetForBuyer(ctx context.Context, buyerID, orderID string) (domain.Order, error)
	Timeline(ctx context.Context, buyerID, orderID string) ([]domain.TimelineEvent, error)
	ListForSupplier(ctx context.Context, supplierID string, limit int) ([]domain.SupplierOrderSummary, error)
	GetForSupplier(ctx context.Context, supplierID, orderID string) (orders.SupplierOrderView, error)
}

// Services: зависимости обработчиков.
type Services struct {
	Carts       CartService
	Checkout    CheckoutService
	Fulfillment FulfillmentService
	Catalog     CatalogService
	Orders      OrderQueries
	// Idempotency может быть nil: тогда Idempotency-Key игнорируется.
	Idempotency *idempotency.Guard
}

// Options: настройки HTTP слоя.
type Options struct {
	AllowedOrigins []string
	Logger         *log.Entry
}

// Handler обслуживает /api/v1.
type Handler struct {
	carts       CartService
	checkout    CheckoutService
	fulfillment FulfillmentService
	catalog     CatalogService
	orders      OrderQueries
	guard       *idempotency.Guard
	logger      *log.Entry
	newSession  func() string
}

// NewHandler собирает обработчики поверх сервисов.
func NewHandler(svc Services, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return &Handler{
		carts:       svc.Carts,
		checkout:    svc.Checkout,
		fulfillment: svc.Fulfillment,
		catalog:     svc.Catalog,
		orders:      svc.Orders,
		guard:       svc.Idempotency,
		logger:      logger,
		newSession:  uuid.NewString,
	}
}

// NewRouter возвращает chi роутер со всеми маршрутами и общими middleware.
func NewRouter(svc Services, opts Options) *chi.Mux {
	h := NewHandler(svc, opts.Logger)

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(accessLog(h.logger))
	router.Use(middleware.Recoverer)
	router.Use(tracing)
	router.Use(corsHandler(opts.AllowedOrigins))

	router.Route("/api/v1", h.routes)
	return router
}

func (h *Handler) routes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)

	r.Group(func(r chi.Router) {
		r.Use(h.identity)

		r.Group(func(r chi.Router) {
			r.Use(h.requireRole(domain.RoleBuyer))
			r.Post("/sessions", h.openSession)

			r.Group(func(r chi.Router) {
				r.Use(h.requireSession)
				r.Delete("/sessions", h.closeSession)
				r.Get("/cart", h.getCart)
				r.Post("/cart/items", h.addToCart)
				r.Put("/cart/items/{productID}", h.setQuantity)
				r.Delete("/cart/items/{productID}", h.removeFromCart)
				r.Post("/checkout", h.placeOrder)
			})

			r.Get("/orders", h.listOrders)
			r.Get("/orders/{orderID}", h.getOrder)
			r.Get("/orders/{orderID}/timeline", h.orderTimeline)
		})

		r.Route("/supplier", func(r chi.Router) {
			r.Use(h.requireRole(domain.RoleSupplier))
			r.Post("/products", h.createProduct)
			r.Patch("/products/{productID}", h.updateProduct)
			r.Delete("/products/{productID}", h.deleteProduct)
			r.Get("/orders", h.listSupplierOrders)
			r.Get("/orders/{orderID}", h.getSupplierOrder)
			r.Patch("/orders/{orderID}/items/{itemID}", h.updateItemStatus)
		})
	})
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", HeaderActorID, HeaderActorRole, HeaderSessionID, HeaderIdempotencyKey, "Traceparent", "Tracestate"},
		ExposedHeaders:   []string{HeaderSessionID, HeaderReplayed, middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler
}

// NewServer оборачивает роутер в http.Server с таймаутами.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
