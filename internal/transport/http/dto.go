package httptransport

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/orders"
)

// Запросы.

// Верхняя граница количества в одном запросе корзины.
const maxCartQuantity = 10000

type addToCartRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"omitempty,gt=0,max=10000"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,max=10000"`
}

type checkoutRequest struct {
	DeliveryAddress string `json:"delivery_address" validate:"required,max=500"`
	DeliveryPhone   string `json:"delivery_phone" validate:"required,min=5,max=32"`
}

type createProductRequest struct {
	Name        string           `json:"name" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=4000"`
	ImageRef    string           `json:"image_ref" validate:"max=500"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Stock       int              `json:"stock" validate:"gte=0"`
}

type updateProductRequest struct {
	Price *decimal.Decimal `json:"price" validate:"required"`
	Stock *int             `json:"stock" validate:"required,gte=0"`
}

type updateItemStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Ответы. Денежные суммы отдаются строками с двумя знаками после запятой.

type productResponse struct {
	ID          string    `json:"id"`
	SupplierID  string    `json:"supplier_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty"`
	Price       string    `json:"price"`
	Stock       int       `json:"stock"`
	InStock     bool      `json:"in_stock"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

type cartLineResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageRef  string `json:"image_ref,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	LineTotal string `json:"line_total"`
}

type noteResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind"`
	Quantity  int    `json:"quantity"`
	Message   string `json:"message"`
}

type cartResponse struct {
	SessionID string             `json:"session_id"`
	Items     []cartLineResponse `json:"items"`
	Size      int                `json:"size"`
	Total     string             `json:"total"`
	Notes     []noteResponse     `json:"notes,omitempty"`
}

type addToCartResponse struct {
	CartSize int `json:"cart_size"`
}

type checkoutAdjustedResponse struct {
	Error errorDetail  `json:"error"`
	Cart  cartResponse `json:"cart"`
}

type orderItemResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	SupplierID  string `json:"supplier_id"`
	ProductName string `json:"product_name"`
	Price       string `json:"price"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"line_total"`
	Status      string `json:"status"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	BuyerID         string              `json:"buyer_id"`
	Status          string              `json:"status"`
	Currency        string              `json:"currency"`
	Total           string              `json:"total"`
	DeliveryAddress string              `json:"delivery_address"`
	DeliveryPhone   string              `json:"delivery_phone"`
	Items           []orderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
}

type timelineEventResponse struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

type supplierOrderSummaryResponse struct {
	OrderID         string    `json:"order_id"`
	BuyerID         string    `json:"buyer_id"`
	Status          string    `json:"status"`
	DeliveryAddress string    `json:"delivery_address"`
	DeliveryPhone   string    `json:"delivery_phone"`
	Subtotal        string    `json:"subtotal"`
	CreatedAt       time.Time `json:"created_at"`
}

type supplierOrderResponse struct {
	OrderID         string              `json:"order_id"`
	BuyerID         string              `json:"buyer_id"`
	Status          string              `json:"status"`
	Currency        string              `json:"currency"`
	DeliveryAddress string              `json:"delivery_address"`
	DeliveryPhone   string              `json:"delivery_phone"`
	Items           []orderItemResponse `json:"items"`
	Earnings        string              `json:"earnings"`
}

type itemStatusResponse struct {
	Item         orderItemResponse `json:"item"`
	OrderStatus  string            `json:"order_status"`
	ItemChanged  bool              `json:"item_changed"`
	OrderChanged bool              `json:"order_changed"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		SupplierID:  p.SupplierID,
		Name:        p.Name,
		Description: p.Description,
		ImageRef:    p.ImageRef,
		Price:       formatMinor(p.PriceMinor),
		Stock:       p.Stock,
		InStock:     p.InStock(),
		UpdatedAt:   p.UpdatedAt,
	}
}

func toCartResponse(cart domain.Cart, notes []domain.Adjustment) cartResponse {
	resp := cartResponse{
		SessionID: cart.SessionID,
		Items:     make([]cartLineResponse, 0, len(cart.Entries)),
		Size:      cart.Size(),
		Total:     formatMinor(cart.Total()),
	}
	for _, entry := range cart.Entries {
		resp.Items = append(resp.Items, cartLineResponse{
			ProductID: entry.ProductID,
			Name:      entry.Name,
			ImageRef:  entry.ImageRef,
			Quantity:  entry.Quantity,
			Price:     formatMinor(entry.PriceMinor),
			LineTotal: formatMinor(entry.LineTotal()),
		})
	}
	for _, note := range notes {
		resp.Notes = append(resp.Notes, noteResponse{
			ProductID: note.ProductID,
			Name:      note.Name,
			Kind:      string(note.Kind),
			Quantity:  note.Quantity,
			Message:   note.Message,
		})
	}
	return resp
}

func toOrderItemResponse(item domain.OrderItem) orderItemResponse {
	return orderItemResponse{
		ID:          item.ID,
		ProductID:   item.ProductID,
		SupplierID:  item.SupplierID,
		ProductName: item.ProductName,
		Price:       formatMinor(item.PriceMinor),
		Quantity:    item.Quantity,
		LineTotal:   formatMinor(item.LineTotal()),
		Status:      string(item.Status),
	}
}

func toOrderItems(items []domain.OrderItem) []orderItemResponse {
	out := make([]orderItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toOrderItemResponse(item))
	}
	return out
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		BuyerID:         o.BuyerID,
		Status:          string(o.Status),
		Currency:        o.Currency,
		Total:           formatMinor(o.TotalMinor),
		DeliveryAddress: o.DeliveryAddress,
		DeliveryPhone:   o.DeliveryPhone,
		Items:           toOrderItems(o.Items),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toSupplierOrderResponse(v orders.SupplierOrderView) supplierOrderResponse {
	return supplierOrderResponse{
		OrderID:         v.OrderID,
		BuyerID:         v.BuyerID,
		Status:          string(v.Status),
		Currency:        v.Currency,
		DeliveryAddress: v.DeliveryAddress,
		DeliveryPhone:   v.DeliveryPhone,
		Items:           toOrderItems(v.Items),
		Earnings:        formatMinor(v.EarningsMinor),
	}
}
